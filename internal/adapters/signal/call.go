package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrConflict):
		return "conflict"
	case errors.Is(err, core.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, core.ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, core.ErrExpired):
		return "expired"
	case errors.Is(err, core.ErrBackpressure):
		return "backpressure"
	}
	return "internal"
}

func (ctl *WSController) handleHello(ctx context.Context, st *connState, data []byte) {
	type helloPayload struct {
		Type        string `json:"type"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
	}
	var p helloPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad hello payload")
		ctl.sendError(st.conn, "bad_payload")
		return
	}
	if _, ok := st.endpointID(); ok {
		ctl.sendError(st.conn, "already_registered")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	ep, err := ctl.Orch.Connect(p.DisplayName, domain.Role(p.Role), st.conn, cancel)
	if err != nil {
		cancel()
		ctl.sendError(st.conn, "bad_payload")
		return
	}
	st.setEndpointID(ep.ID)

	resp := struct {
		Type        string            `json:"type"`
		EndpointID  domain.EndpointID `json:"endpoint_id"`
		Role        domain.Role       `json:"role"`
		DisplayName string            `json:"display_name"`
	}{
		Type:        "welcome",
		EndpointID:  ep.ID,
		Role:        ep.Role,
		DisplayName: ep.DisplayName,
	}
	ctl.sendJSON(st.conn, resp)
}

func (ctl *WSController) handleCall(st *connState, data []byte) {
	id, ok := st.endpointID()
	if !ok {
		ctl.sendError(st.conn, "not_registered")
		return
	}
	type callPayload struct {
		Type     string `json:"type"`
		TargetID string `json:"target_id,omitempty"`
	}
	var p callPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call payload")
		ctl.sendError(st.conn, "bad_payload")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		ctl.sendError(st.conn, "rate_limited")
		return
	}

	res, err := ctl.Orch.Submit(id, domain.EndpointID(p.TargetID))
	if err != nil {
		ctl.sendError(st.conn, errorCode(err))
		return
	}

	resp := struct {
		Type      string           `json:"type"`
		RequestID domain.RequestID `json:"request_id"`
		SessionID domain.SessionID `json:"session_id,omitempty"`
		Pending   bool             `json:"pending"`
	}{
		Type:      "call_submitted",
		RequestID: res.RequestID,
		SessionID: res.SessionID,
		Pending:   res.Pending,
	}
	ctl.sendJSON(st.conn, resp)
}

func (ctl *WSController) handleResolve(st *connState, data []byte) {
	id, ok := st.endpointID()
	if !ok {
		ctl.sendError(st.conn, "not_registered")
		return
	}
	type resolvePayload struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
		Accept    bool   `json:"accept"`
	}
	var p resolvePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad resolve payload")
		ctl.sendError(st.conn, "bad_payload")
		return
	}

	if err := ctl.Orch.ResolveRequest(id, domain.RequestID(p.RequestID), p.Accept); err != nil {
		ctl.sendError(st.conn, errorCode(err))
	}
}

func (ctl *WSController) handlePulse(st *connState, data []byte) {
	id, ok := st.endpointID()
	if !ok {
		return
	}
	type pulsePayload struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
	}
	var p pulsePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	ctl.Orch.PulseRequest(id, domain.RequestID(p.RequestID))
}

func (ctl *WSController) handleConnected(st *connState, data []byte) {
	id, ok := st.endpointID()
	if !ok {
		ctl.sendError(st.conn, "not_registered")
		return
	}
	type connectedPayload struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
	}
	var p connectedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(st.conn, "bad_payload")
		return
	}
	if err := ctl.Orch.ReportConnected(id, domain.SessionID(p.SessionID)); err != nil {
		ctl.sendError(st.conn, errorCode(err))
	}
}

// handleFailed is the transport's report that the media path is gone;
// the session is torn down with its distinct reason.
func (ctl *WSController) handleFailed(st *connState, data []byte) {
	id, ok := st.endpointID()
	if !ok {
		ctl.sendError(st.conn, "not_registered")
		return
	}
	type failedPayload struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
	}
	var p failedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(st.conn, "bad_payload")
		return
	}
	ctl.Orch.ReportFailed(id, domain.SessionID(p.SessionID))
}

// handleLeave ends the current session; the connection stays up and the
// endpoint becomes available again.
func (ctl *WSController) handleLeave(st *connState) {
	id, ok := st.endpointID()
	if !ok {
		return
	}
	log.Info().Str("module", "signal").Str("id", string(id)).Msg("leave")
	ctl.Orch.Leave(id)
	ctl.sendJSON(st.conn, map[string]any{
		"type": "left",
	})
}
