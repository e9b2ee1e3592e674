package app

import (
	"sync"
	"time"

	"github.com/dkeye/Handshake/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAcceptTimeout = 30 * time.Second
	DefaultLivenessPulse = 2 * time.Second
)

type watchEntry struct {
	req      *domain.ConnectRequest
	accept   *time.Timer
	liveness *time.Timer
}

// Supervisor arms the accept-or-expire deadline on every pending
// request, plus a shorter liveness timer for requests that need an
// acknowledge pulse from the target. Timer callbacks and resolve calls
// are competing writers; the request's compare-and-swap status is the
// single authority, timer Stop is only a courtesy.
type Supervisor struct {
	acceptTimeout time.Duration
	livenessPulse time.Duration

	mu      sync.Mutex
	watches map[domain.RequestID]*watchEntry

	// expired is invoked exactly once per expired request, off the
	// timer goroutine's lock. Wired by the pairing engine.
	expired func(req *domain.ConnectRequest, outcome domain.Outcome)
}

func NewSupervisor(acceptTimeout, livenessPulse time.Duration) *Supervisor {
	if acceptTimeout <= 0 {
		acceptTimeout = DefaultAcceptTimeout
	}
	if livenessPulse <= 0 {
		livenessPulse = DefaultLivenessPulse
	}
	return &Supervisor{
		acceptTimeout: acceptTimeout,
		livenessPulse: livenessPulse,
		watches:       make(map[domain.RequestID]*watchEntry),
	}
}

func (s *Supervisor) OnExpired(fn func(req *domain.ConnectRequest, outcome domain.Outcome)) {
	s.expired = fn
}

// Watch arms the deadline timers for a pending request. The accept
// deadline is anchored to IssuedAt, so re-arming after a rolled-back
// claim never extends it. withLiveness additionally requires a Pulse
// within the short window, expiring early with the no_responder outcome
// when the target never acknowledges.
func (s *Supervisor) Watch(req *domain.ConnectRequest, withLiveness bool) {
	remaining := s.acceptTimeout - time.Since(req.IssuedAt)
	if remaining < 0 {
		remaining = 0
	}
	e := &watchEntry{req: req}
	e.accept = time.AfterFunc(remaining, func() {
		s.fire(req, domain.OutcomeTimedOut)
	})
	if withLiveness {
		e.liveness = time.AfterFunc(s.livenessPulse, func() {
			s.fire(req, domain.OutcomeNoResponder)
		})
	}
	s.mu.Lock()
	s.watches[req.ID] = e
	s.mu.Unlock()
	log.Debug().Str("module", "app.supervisor").Str("request", string(req.ID)).Bool("liveness", withLiveness).Msg("watching request")
}

// Pulse acknowledges receipt on the target side. It suppresses only
// the short liveness timer; the accept deadline keeps running.
func (s *Supervisor) Pulse(id domain.RequestID) {
	s.mu.Lock()
	e, ok := s.watches[id]
	if ok && e.liveness != nil {
		e.liveness.Stop()
		e.liveness = nil
	}
	s.mu.Unlock()
	if ok {
		log.Debug().Str("module", "app.supervisor").Str("request", string(id)).Msg("liveness pulse")
	}
}

// Cancel stops both timers after a terminal transition. A timer that
// already fired loses the status swap anyway, so a missed Stop here is
// harmless.
func (s *Supervisor) Cancel(id domain.RequestID) {
	s.mu.Lock()
	e, ok := s.watches[id]
	if ok {
		delete(s.watches, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	e.accept.Stop()
	if e.liveness != nil {
		e.liveness.Stop()
	}
}

func (s *Supervisor) fire(req *domain.ConnectRequest, outcome domain.Outcome) {
	won := req.Resolve(domain.RequestExpired)
	s.Cancel(req.ID)
	if !won {
		return
	}
	log.Info().Str("module", "app.supervisor").
		Str("request", string(req.ID)).
		Str("outcome", string(outcome)).
		Msg("request expired")
	if s.expired != nil {
		s.expired(req, outcome)
	}
}
