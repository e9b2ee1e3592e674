package app

import (
	"sync"

	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
	"github.com/rs/zerolog/log"
)

// Lifecycle owns the session table and the per-session state machine.
// It is the only writer of session membership: pairing creates through
// it, teardown releases through it. Endpoint membership is tracked here
// so an endpoint can never sit in two active sessions.
type Lifecycle struct {
	mu         sync.RWMutex
	sessions   map[domain.SessionID]*domain.Session
	byEndpoint map[domain.EndpointID]domain.SessionID

	out core.Outbound

	// registered gates Create: both endpoints must still be in the
	// registry when the session claims them. Wired by the orchestrator.
	registered func(domain.EndpointID) bool
}

func NewLifecycle(out core.Outbound) *Lifecycle {
	return &Lifecycle{
		sessions:   make(map[domain.SessionID]*domain.Session),
		byEndpoint: make(map[domain.EndpointID]domain.SessionID),
		out:        out,
	}
}

func (l *Lifecycle) RequireRegistered(fn func(domain.EndpointID) bool) {
	l.registered = fn
}

// InSession reports whether the endpoint belongs to an active session.
func (l *Lifecycle) InSession(id domain.EndpointID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.byEndpoint[id]
	return ok
}

func (l *Lifecycle) Get(id domain.SessionID) (*domain.Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sessions[id]
	return s, ok
}

func (l *Lifecycle) SessionOf(id domain.EndpointID) (*domain.Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sid, ok := l.byEndpoint[id]
	if !ok {
		return nil, false
	}
	s, ok := l.sessions[sid]
	return s, ok
}

// Create pairs two endpoints transactionally: both must be free and
// still registered, and they are claimed under one lock so a concurrent
// Create cannot consume either of them. The membership check under the
// same lock closes the race with a disconnect cascade: once the
// registry entry is gone, no new session can claim the departed
// endpoint, and a session created just before the delete is still
// visible to the cascade's teardown.
func (l *Lifecycle) Create(initiator, responder domain.EndpointID) (*domain.Session, error) {
	l.mu.Lock()
	if _, busy := l.byEndpoint[initiator]; busy {
		l.mu.Unlock()
		return nil, core.ErrConflict
	}
	if _, busy := l.byEndpoint[responder]; busy {
		l.mu.Unlock()
		return nil, core.ErrConflict
	}
	if l.registered != nil && (!l.registered(initiator) || !l.registered(responder)) {
		l.mu.Unlock()
		return nil, core.ErrNotFound
	}
	sess := domain.NewSession(initiator, responder)
	l.sessions[sess.ID] = sess
	l.byEndpoint[initiator] = sess.ID
	l.byEndpoint[responder] = sess.ID
	l.mu.Unlock()

	log.Info().Str("module", "app.lifecycle").
		Str("session", string(sess.ID)).
		Str("initiator", string(initiator)).
		Str("responder", string(responder)).
		Msg("session created")

	l.notify(initiator, core.Event{Type: core.EventSessionEstablished, SessionID: sess.ID, PeerID: responder})
	l.notify(responder, core.Event{Type: core.EventSessionEstablished, SessionID: sess.ID, PeerID: initiator})
	return sess, nil
}

// Connected records that the underlying transport reports a working
// media path. Only valid from Negotiating.
func (l *Lifecycle) Connected(id domain.SessionID) error {
	sess, ok := l.Get(id)
	if !ok {
		return core.ErrNotFound
	}
	if !sess.Transition(domain.SessionNegotiating, domain.SessionConnected) {
		return core.ErrInvalidState
	}
	sess.Touch()
	log.Info().Str("module", "app.lifecycle").Str("session", string(sess.ID)).Msg("session connected")
	return nil
}

// Terminate is absorbing and exactly-once: the state swap decides the
// single winner, and only that winner releases the endpoints and emits
// the teardown notifications. Simultaneous disconnects of both sides
// collapse into one notification per side.
func (l *Lifecycle) Terminate(id domain.SessionID, reason domain.TerminateReason) {
	sess, ok := l.Get(id)
	if !ok {
		return
	}
	won := sess.Transition(domain.SessionNegotiating, domain.SessionTerminated) ||
		sess.Transition(domain.SessionConnected, domain.SessionTerminated)
	if !won {
		return
	}

	l.mu.Lock()
	delete(l.sessions, sess.ID)
	if l.byEndpoint[sess.InitiatorID] == sess.ID {
		delete(l.byEndpoint, sess.InitiatorID)
	}
	if l.byEndpoint[sess.ResponderID] == sess.ID {
		delete(l.byEndpoint, sess.ResponderID)
	}
	l.mu.Unlock()

	log.Info().Str("module", "app.lifecycle").
		Str("session", string(sess.ID)).
		Str("reason", string(reason)).
		Msg("session terminated")

	l.notify(sess.InitiatorID, core.Event{Type: core.EventSessionTerminated, SessionID: sess.ID, Reason: reason})
	l.notify(sess.ResponderID, core.Event{Type: core.EventSessionTerminated, SessionID: sess.ID, Reason: reason})
}

// TerminateFor tears down whatever session the endpoint is part of.
// Called synchronously from the disconnect cascade.
func (l *Lifecycle) TerminateFor(id domain.EndpointID, reason domain.TerminateReason) {
	if sess, ok := l.SessionOf(id); ok {
		l.Terminate(sess.ID, reason)
	}
}

func (l *Lifecycle) List() []core.SessionDTO {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.SessionDTO, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, core.SessionDTO{
			ID:          s.ID,
			InitiatorID: s.InitiatorID,
			ResponderID: s.ResponderID,
			State:       s.State().String(),
		})
	}
	return out
}

func (l *Lifecycle) notify(id domain.EndpointID, ev core.Event) {
	if err := l.out.Deliver(id, ev); err != nil {
		log.Warn().Err(err).Str("module", "app.lifecycle").Str("id", string(id)).Str("event", string(ev.Type)).Msg("notify failed")
	}
}
