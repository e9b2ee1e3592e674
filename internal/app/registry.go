package app

import (
	"context"
	"sync"

	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
	"github.com/rs/zerolog/log"
)

type registryEntry struct {
	Session core.EndpointSession
	Cancel  context.CancelFunc
}

// Registry tracks connected endpoints and their transport bindings.
// Ids are assigned here under the lock, never client-supplied.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[domain.EndpointID]*registryEntry

	// teardown runs synchronously inside Unregister, after the entry is
	// removed, so nothing can pair the departing endpoint into a fresh
	// session mid-cascade. Wired by the orchestrator.
	teardown func(domain.EndpointID)
}

func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[domain.EndpointID]*registryEntry)}
}

func (r *Registry) OnUnregister(fn func(domain.EndpointID)) {
	r.teardown = fn
}

// Register creates the endpoint and binds its session atomically.
func (r *Registry) Register(displayName string, role domain.Role, conn core.SignalConnection, cancel context.CancelFunc) (*domain.Endpoint, error) {
	ep, err := domain.NewEndpoint(displayName, role)
	if err != nil {
		return nil, err
	}
	sess := core.NewEndpointSession(ep).UpdateSignal(conn)
	r.mu.Lock()
	r.endpoints[ep.ID] = &registryEntry{Session: sess, Cancel: cancel}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("id", string(ep.ID)).Str("role", string(ep.Role)).Msg("registered endpoint")
	return ep, nil
}

func (r *Registry) Lookup(id domain.EndpointID) (*domain.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[id]
	if !ok {
		return nil, false
	}
	return e.Session.Meta(), true
}

func (r *Registry) Session(id domain.EndpointID) (core.EndpointSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.endpoints[id]; ok {
		return e.Session, true
	}
	return nil, false
}

// ListAvailable returns connected endpoints of the given role
// (RoleUnassigned matches everything). Session-membership filtering is
// the lifecycle controller's business; the orchestrator combines both.
func (r *Registry) ListAvailable(role domain.Role) []*domain.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		meta := e.Session.Meta()
		if role == domain.RoleUnassigned || meta.Role == role {
			out = append(out, meta)
		}
	}
	return out
}

// Unregister is idempotent. The entry is deleted first, then the
// teardown cascade (pending requests, session, counterpart
// notification) runs before the call returns; a concurrent pairing that
// checks membership after the delete can no longer claim the departing
// endpoint.
func (r *Registry) Unregister(id domain.EndpointID) {
	r.mu.Lock()
	e, ok := r.endpoints[id]
	if ok {
		delete(r.endpoints, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if r.teardown != nil {
		r.teardown(id)
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("unregistered endpoint")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}
