// Package outbound holds the two relay substrates behind core.Outbound:
// direct in-memory delivery to live connections, and a document-store
// mailbox watched for new writes. The protocol core never knows which
// one is active.
package outbound

import (
	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
	"github.com/rs/zerolog/log"
)

// Resolver finds the live signal connection for an endpoint. Backed by
// the registry; kept as a func to avoid an import cycle.
type Resolver func(domain.EndpointID) (core.SignalConnection, bool)

// Direct pushes events straight into the endpoint's send buffer.
type Direct struct {
	resolve Resolver
}

func NewDirect(resolve Resolver) *Direct {
	return &Direct{resolve: resolve}
}

func (d *Direct) Deliver(id domain.EndpointID, ev core.Event) error {
	conn, ok := d.resolve(id)
	if !ok || conn == nil {
		return core.ErrNotFound
	}
	frame, err := ev.Encode()
	if err != nil {
		return err
	}
	if err := conn.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "outbound.direct").Str("id", string(id)).Msg("send failed")
		return err
	}
	return nil
}

func (d *Direct) Close() {}
