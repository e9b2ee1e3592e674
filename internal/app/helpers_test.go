package app

import (
	"sync"
	"time"

	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
)

// captureOutbound records every delivered event per endpoint.
type captureOutbound struct {
	mu     sync.Mutex
	events map[domain.EndpointID][]core.Event
}

func newCaptureOutbound() *captureOutbound {
	return &captureOutbound{events: make(map[domain.EndpointID][]core.Event)}
}

func (c *captureOutbound) Deliver(id domain.EndpointID, ev core.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[id] = append(c.events[id], ev)
	return nil
}

func (c *captureOutbound) Close() {}

func (c *captureOutbound) eventsFor(id domain.EndpointID) []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Event, len(c.events[id]))
	copy(out, c.events[id])
	return out
}

func (c *captureOutbound) countOf(id domain.EndpointID, t core.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events[id] {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type testEnv struct {
	registry   *Registry
	sessions   *Lifecycle
	supervisor *Supervisor
	out        *captureOutbound
}

func newTestEnv(acceptTimeout, livenessPulse time.Duration) *testEnv {
	out := newCaptureOutbound()
	env := &testEnv{
		registry:   NewRegistry(),
		sessions:   NewLifecycle(out),
		supervisor: NewSupervisor(acceptTimeout, livenessPulse),
		out:        out,
	}
	env.sessions.RequireRegistered(func(id domain.EndpointID) bool {
		_, ok := env.registry.Lookup(id)
		return ok
	})
	return env
}

func (e *testEnv) register(name string, role domain.Role) domain.EndpointID {
	ep, err := e.registry.Register(name, role, nil, nil)
	if err != nil {
		panic(err)
	}
	return ep.ID
}

// wireCascade mirrors the orchestrator's disconnect wiring.
func (e *testEnv) wireCascade(engine PairingEngine) {
	e.registry.OnUnregister(func(id domain.EndpointID) {
		engine.CancelFor(id)
		e.sessions.TerminateFor(id, domain.ReasonPeerDisconnect)
	})
}
