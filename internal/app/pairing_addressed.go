package app

import (
	"sync"

	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
	"github.com/rs/zerolog/log"
)

// AddressedPairing pairs against an explicitly named target. The target
// must resolve the stored request within the liveness window; the
// supervisor expires it otherwise.
type AddressedPairing struct {
	registry   *Registry
	sessions   *Lifecycle
	supervisor *Supervisor
	out        core.Outbound

	mu          sync.Mutex
	pending     map[domain.RequestID]*domain.ConnectRequest
	byRequester map[domain.EndpointID]domain.RequestID
	byTarget    map[domain.EndpointID][]domain.RequestID
}

func NewAddressedPairing(reg *Registry, lc *Lifecycle, sup *Supervisor, out core.Outbound) *AddressedPairing {
	a := &AddressedPairing{
		registry:    reg,
		sessions:    lc,
		supervisor:  sup,
		out:         out,
		pending:     make(map[domain.RequestID]*domain.ConnectRequest),
		byRequester: make(map[domain.EndpointID]domain.RequestID),
		byTarget:    make(map[domain.EndpointID][]domain.RequestID),
	}
	sup.OnExpired(a.onExpired)
	return a
}

func (a *AddressedPairing) Submit(requester, target domain.EndpointID) (SubmitResult, error) {
	if target == "" {
		return SubmitResult{}, core.ErrInvalidState
	}
	reqMeta, ok := a.registry.Lookup(requester)
	if !ok {
		return SubmitResult{}, core.ErrNotFound
	}
	tgtMeta, ok := a.registry.Lookup(target)
	if !ok {
		return SubmitResult{}, core.ErrNotFound
	}
	// Busy endpoints are rejected synchronously, before any timer is
	// started.
	if a.sessions.InSession(requester) || a.sessions.InSession(target) {
		return SubmitResult{}, core.ErrConflict
	}

	a.mu.Lock()
	if _, dup := a.byRequester[requester]; dup {
		a.mu.Unlock()
		return SubmitResult{}, core.ErrConflict
	}
	req := domain.NewConnectRequest(requester, target)
	a.pending[req.ID] = req
	a.byRequester[requester] = req.ID
	a.byTarget[target] = append(a.byTarget[target], req.ID)
	a.supervisor.Watch(req, true)
	a.mu.Unlock()

	log.Info().Str("module", "app.pairing").
		Str("request", string(req.ID)).
		Str("requester", string(requester)).
		Str("target", string(target)).
		Msg("addressed request pending")

	ev := core.Event{Type: core.EventRequestIncoming, RequestID: req.ID, PeerID: requester, FromDisplayName: reqMeta.DisplayName}
	if err := a.out.Deliver(target, ev); err != nil {
		log.Warn().Err(err).Str("module", "app.pairing").Str("target", string(tgtMeta.ID)).Msg("request_incoming delivery failed")
	}
	return SubmitResult{RequestID: req.ID, Pending: true}, nil
}

// Resolve is the target's decision. The status swap decides the single
// winner against the supervisor's timers; resolving an already expired
// request is a no-op reported as such.
func (a *AddressedPairing) Resolve(by domain.EndpointID, id domain.RequestID, accept bool) error {
	a.mu.Lock()
	req, ok := a.pending[id]
	a.mu.Unlock()
	if !ok {
		return core.ErrNotFound
	}
	if req.TargetID != by {
		return core.ErrNotFound
	}

	to := domain.RequestRejected
	if accept {
		to = domain.RequestAccepted
	}
	if !req.Resolve(to) {
		if req.Status() == domain.RequestExpired {
			return core.ErrExpired
		}
		return core.ErrInvalidState
	}
	a.supervisor.Cancel(id)
	a.remove(req)

	if !accept {
		log.Info().Str("module", "app.pairing").Str("request", string(id)).Msg("request declined")
		a.notifyRequester(req, domain.OutcomeDeclined)
		return nil
	}

	// Requester is initiator, target is responder. The session table
	// claims both atomically; a requester that got paired elsewhere in
	// the meantime surfaces as a conflict here.
	if _, err := a.sessions.Create(req.RequesterID, req.TargetID); err != nil {
		log.Warn().Err(err).Str("module", "app.pairing").Str("request", string(id)).Msg("accept pairing failed")
		a.notifyRequester(req, domain.OutcomePeerUnavailable)
		return err
	}
	a.notifyRequester(req, domain.OutcomeAccepted)
	return nil
}

// Pulse is the target's acknowledge-receipt signal; it suppresses only
// the short liveness timer, never the accept deadline.
func (a *AddressedPairing) Pulse(by domain.EndpointID, id domain.RequestID) {
	a.mu.Lock()
	req, ok := a.pending[id]
	a.mu.Unlock()
	if !ok || req.TargetID != by {
		return
	}
	a.supervisor.Pulse(id)
}

func (a *AddressedPairing) CancelFor(id domain.EndpointID) {
	a.mu.Lock()
	var involved []*domain.ConnectRequest
	if rid, ok := a.byRequester[id]; ok {
		if req, ok := a.pending[rid]; ok {
			involved = append(involved, req)
		}
	}
	for _, rid := range a.byTarget[id] {
		if req, ok := a.pending[rid]; ok {
			involved = append(involved, req)
		}
	}
	a.mu.Unlock()

	for _, req := range involved {
		if !req.Resolve(domain.RequestExpired) {
			continue
		}
		a.supervisor.Cancel(req.ID)
		a.remove(req)
		// The surviving side learns the peer is gone; the departed side
		// has no transport to notify.
		if req.RequesterID == id {
			a.notifyTarget(req, domain.OutcomePeerUnavailable)
		} else {
			a.notifyRequester(req, domain.OutcomePeerUnavailable)
		}
	}
}

func (a *AddressedPairing) onExpired(req *domain.ConnectRequest, outcome domain.Outcome) {
	a.remove(req)
	a.notifyRequester(req, outcome)
}

func (a *AddressedPairing) remove(req *domain.ConnectRequest) {
	a.mu.Lock()
	delete(a.pending, req.ID)
	if a.byRequester[req.RequesterID] == req.ID {
		delete(a.byRequester, req.RequesterID)
	}
	ids := a.byTarget[req.TargetID]
	for i, rid := range ids {
		if rid == req.ID {
			a.byTarget[req.TargetID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(a.byTarget[req.TargetID]) == 0 {
		delete(a.byTarget, req.TargetID)
	}
	a.mu.Unlock()
}

func (a *AddressedPairing) notifyRequester(req *domain.ConnectRequest, outcome domain.Outcome) {
	ev := core.Event{Type: core.EventRequestResolved, RequestID: req.ID, Outcome: outcome}
	if err := a.out.Deliver(req.RequesterID, ev); err != nil {
		log.Warn().Err(err).Str("module", "app.pairing").Str("request", string(req.ID)).Msg("requester notify failed")
	}
}

func (a *AddressedPairing) notifyTarget(req *domain.ConnectRequest, outcome domain.Outcome) {
	ev := core.Event{Type: core.EventRequestResolved, RequestID: req.ID, Outcome: outcome}
	if err := a.out.Deliver(req.TargetID, ev); err != nil {
		log.Warn().Err(err).Str("module", "app.pairing").Str("request", string(req.ID)).Msg("target notify failed")
	}
}
