package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *WSController) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *WSController) readPump(ctx context.Context, cancel context.CancelFunc, st *connState) {
	defer func() {
		if id, ok := st.endpointID(); ok {
			log.Info().Str("module", "signal").Str("id", string(id)).Msg("readPump closing")
			ctl.Orch.Disconnect(id)
			if ctl.Limiter != nil {
				ctl.Limiter.Forget(id)
			}
		}
		cancel()
		st.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("readPump ctx done")
			return
		default:
			_, data, err := st.conn.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				return
			}
			ctl.handleSignal(ctx, st, data)
		}
	}
}

func (ctl *WSController) handleSignal(ctx context.Context, st *connState, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "hello":
		ctl.handleHello(ctx, st, data)
	case "call":
		ctl.handleCall(st, data)
	case "resolve":
		ctl.handleResolve(st, data)
	case "pulse":
		ctl.handlePulse(st, data)
	case "offer", "answer", "candidate":
		ctl.handleNegotiation(st, env.Type, data)
	case "connected":
		ctl.handleConnected(st, data)
	case "failed":
		ctl.handleFailed(st, data)
	case "leave":
		ctl.handleLeave(st)
	case "ping":
		ctl.handlePing(st.conn)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *WSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *WSController) sendError(c *WsSignalConn, code string) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"error": code,
	})
}

func (ctl *WSController) handlePing(c *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(c, resp)
}
