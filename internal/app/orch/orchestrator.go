package orch

import (
	"errors"

	"github.com/dkeye/Handshake/internal/app"
	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator binds transport-in events to the core components. All
// mutation of shared state goes through the registry, pairing engine
// and lifecycle controller; adapters only ever call methods here.
type Orchestrator struct {
	Registry   *app.Registry
	Pairing    app.PairingEngine
	Sessions   *app.Lifecycle
	Relay      *app.Relay
	Supervisor *app.Supervisor
	Policy     app.DeliveryPolicy
}

// Wire installs the disconnect cascade: the registry entry disappears
// first, then pending requests are cancelled and the session torn down
// synchronously inside Unregister. Session creation re-checks registry
// membership, so an endpoint mid-disconnect can never be claimed into a
// fresh session.
func (o *Orchestrator) Wire() {
	o.Registry.OnUnregister(func(id domain.EndpointID) {
		o.Pairing.CancelFor(id)
		o.Sessions.TerminateFor(id, domain.ReasonPeerDisconnect)
	})
	o.Sessions.RequireRegistered(func(id domain.EndpointID) bool {
		_, ok := o.Registry.Lookup(id)
		return ok
	})
}

// Send relays one negotiation message into the counterpart's outbound
// channel. A full peer buffer consults the delivery policy.
func (o *Orchestrator) Send(from domain.EndpointID, sessionID domain.SessionID, kind domain.MessageKind, payload []byte) error {
	err := o.Relay.Relay(from, domain.NegotiationMessage{
		SessionID: sessionID,
		From:      from,
		Kind:      kind,
		Payload:   payload,
	})
	if err == nil || !errors.Is(err, core.ErrBackpressure) {
		return err
	}

	sess, ok := o.Sessions.Get(sessionID)
	if !ok {
		return err
	}
	peer, _ := sess.Peer(from)
	if o.Policy != nil && o.Policy.OnBackpressure(peer) == app.KickEndpoint {
		log.Warn().Str("module", "orch").Str("peer", string(peer)).Msg("kicking slow endpoint")
		o.Disconnect(peer)
	}
	return err
}

// ReportConnected is the transport's signal that ICE completed and the
// media path is up.
func (o *Orchestrator) ReportConnected(from domain.EndpointID, sessionID domain.SessionID) error {
	sess, ok := o.Sessions.Get(sessionID)
	if !ok || !sess.Has(from) {
		return core.ErrNotFound
	}
	return o.Sessions.Connected(sessionID)
}

// ReportFailed is the transport's signal that the media path is gone.
func (o *Orchestrator) ReportFailed(from domain.EndpointID, sessionID domain.SessionID) {
	sess, ok := o.Sessions.Get(sessionID)
	if !ok || !sess.Has(from) {
		return
	}
	o.Sessions.Terminate(sessionID, domain.ReasonTransportFailed)
}
