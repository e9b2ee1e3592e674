package orch

import (
	"context"

	"github.com/dkeye/Handshake/internal/app"
	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) Connect(displayName string, role domain.Role, conn core.SignalConnection, cancel context.CancelFunc) (*domain.Endpoint, error) {
	return o.Registry.Register(displayName, role, conn, cancel)
}

// Disconnect is idempotent; the registry runs the wired teardown
// cascade before removing the entry.
func (o *Orchestrator) Disconnect(id domain.EndpointID) {
	o.Registry.Unregister(id)
}

func (o *Orchestrator) Submit(requester, target domain.EndpointID) (app.SubmitResult, error) {
	res, err := o.Pairing.Submit(requester, target)
	if err != nil {
		log.Info().Err(err).Str("module", "orch").Str("requester", string(requester)).Msg("submit rejected")
	}
	return res, err
}

func (o *Orchestrator) ResolveRequest(by domain.EndpointID, id domain.RequestID, accept bool) error {
	return o.Pairing.Resolve(by, id, accept)
}

func (o *Orchestrator) PulseRequest(by domain.EndpointID, id domain.RequestID) {
	o.Pairing.Pulse(by, id)
}

// Leave tears down the endpoint's session without dropping its
// connection; the endpoint goes back to being available.
func (o *Orchestrator) Leave(id domain.EndpointID) {
	o.Sessions.TerminateFor(id, domain.ReasonPeerLeft)
}

// ListAvailable returns connected endpoints of the role that are not in
// an active session.
func (o *Orchestrator) ListAvailable(role domain.Role) []core.EndpointDTO {
	eps := o.Registry.ListAvailable(role)
	out := make([]core.EndpointDTO, 0, len(eps))
	for _, ep := range eps {
		if o.Sessions.InSession(ep.ID) {
			continue
		}
		out = append(out, core.EndpointDTO{ID: ep.ID, Role: ep.Role, DisplayName: ep.DisplayName})
	}
	return out
}

func (o *Orchestrator) ListSessions() []core.SessionDTO {
	return o.Sessions.List()
}
