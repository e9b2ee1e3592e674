package signal

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Handshake/internal/app/orch"
	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
)

type WSController struct {
	Orch      *orch.Orchestrator
	Limiter   *CallRateLimiter
	ReadLimit int64
}

func NewWSController(o *orch.Orchestrator, limiter *CallRateLimiter, readLimit int64) *WSController {
	return &WSController{Orch: o, Limiter: limiter, ReadLimit: readLimit}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrNotFound
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// connState tracks what the read pump knows about this connection. The
// endpoint id appears once the client said hello.
type connState struct {
	conn *WsSignalConn

	mu sync.RWMutex
	id domain.EndpointID
}

func (st *connState) endpointID() (domain.EndpointID, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.id, st.id != ""
}

func (st *connState) setEndpointID(id domain.EndpointID) {
	st.mu.Lock()
	st.id = id
	st.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *WSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}
	log.Info().Str("module", "signal").Str("remote", ws.RemoteAddr().String()).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	st := &connState{conn: conn}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, st)
}
