package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Handshake/internal/domain"
)

// handleNegotiation validates the envelope shape and hands the payload
// to the relay untouched. SDP and candidate contents are checked only
// for being well-formed pion DTOs; the core never sees inside them.
func (ctl *WSController) handleNegotiation(st *connState, kind string, data []byte) {
	id, ok := st.endpointID()
	if !ok {
		ctl.sendError(st.conn, "not_registered")
		return
	}
	type negotiationPayload struct {
		Type      string          `json:"type"`
		SessionID string          `json:"session_id"`
		Payload   json.RawMessage `json:"payload"`
	}
	var p negotiationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("kind", kind).Msg("bad negotiation payload")
		ctl.sendError(st.conn, "bad_payload")
		return
	}
	if p.SessionID == "" || len(p.Payload) == 0 {
		ctl.sendError(st.conn, "bad_payload")
		return
	}

	var mk domain.MessageKind
	switch kind {
	case "offer":
		mk = domain.KindOffer
		if !validSDP(p.Payload, webrtc.SDPTypeOffer) {
			ctl.sendError(st.conn, "bad_payload")
			return
		}
	case "answer":
		mk = domain.KindAnswer
		if !validSDP(p.Payload, webrtc.SDPTypeAnswer) {
			ctl.sendError(st.conn, "bad_payload")
			return
		}
	case "candidate":
		mk = domain.KindIceCandidate
		if !validCandidate(p.Payload) {
			ctl.sendError(st.conn, "bad_payload")
			return
		}
	}

	if err := ctl.Orch.Send(id, domain.SessionID(p.SessionID), mk, p.Payload); err != nil {
		ctl.sendError(st.conn, errorCode(err))
	}
}

func validSDP(raw json.RawMessage, want webrtc.SDPType) bool {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return false
	}
	return desc.Type == want && desc.SDP != ""
}

func validCandidate(raw json.RawMessage) bool {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &ci); err != nil {
		return false
	}
	return ci.Candidate != ""
}
