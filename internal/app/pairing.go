package app

import (
	"sync"

	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
	"github.com/rs/zerolog/log"
)

// SubmitResult is what a submit call resolves to synchronously: either
// an immediately formed session or a pending request id.
type SubmitResult struct {
	SessionID domain.SessionID
	RequestID domain.RequestID
	Pending   bool
}

// PairingEngine matches two endpoints into a session. Two policies
// implement it: FIFO queues by role, and explicitly addressed requests.
type PairingEngine interface {
	Submit(requester, target domain.EndpointID) (SubmitResult, error)
	Resolve(by domain.EndpointID, id domain.RequestID, accept bool) error
	Pulse(by domain.EndpointID, id domain.RequestID)
	// CancelFor drops every pending request involving the endpoint.
	// Part of the synchronous disconnect cascade.
	CancelFor(id domain.EndpointID)
}

// QueuePairing keeps two FIFO queues (initiators, responders) and
// drains them pairwise. Draining runs under one mutex, so a submission
// can never be consumed by two drains.
type QueuePairing struct {
	registry   *Registry
	sessions   *Lifecycle
	supervisor *Supervisor
	out        core.Outbound

	mu          sync.Mutex
	initiators  []*domain.ConnectRequest
	responders  []*domain.ConnectRequest
	byRequester map[domain.EndpointID]*domain.ConnectRequest
}

func NewQueuePairing(reg *Registry, lc *Lifecycle, sup *Supervisor, out core.Outbound) *QueuePairing {
	q := &QueuePairing{
		registry:    reg,
		sessions:    lc,
		supervisor:  sup,
		out:         out,
		byRequester: make(map[domain.EndpointID]*domain.ConnectRequest),
	}
	sup.OnExpired(q.onExpired)
	return q
}

func (q *QueuePairing) Submit(requester, target domain.EndpointID) (SubmitResult, error) {
	if target != "" {
		return SubmitResult{}, core.ErrInvalidState
	}
	meta, ok := q.registry.Lookup(requester)
	if !ok {
		return SubmitResult{}, core.ErrNotFound
	}
	if meta.Role != domain.RoleInitiator && meta.Role != domain.RoleResponder {
		return SubmitResult{}, core.ErrInvalidState
	}
	if q.sessions.InSession(requester) {
		return SubmitResult{}, core.ErrConflict
	}

	q.mu.Lock()
	if _, dup := q.byRequester[requester]; dup {
		q.mu.Unlock()
		return SubmitResult{}, core.ErrConflict
	}
	req := domain.NewConnectRequest(requester, "")
	q.byRequester[requester] = req
	if meta.Role == domain.RoleInitiator {
		q.initiators = append(q.initiators, req)
	} else {
		q.responders = append(q.responders, req)
	}
	// Armed before the queue lock drops so a concurrent drain always
	// finds the watch it cancels.
	q.supervisor.Watch(req, false)
	q.mu.Unlock()

	log.Info().Str("module", "app.pairing").Str("requester", string(requester)).Str("role", string(meta.Role)).Msg("queued")

	q.drain()

	if sess, ok := q.sessions.SessionOf(requester); ok {
		return SubmitResult{SessionID: sess.ID, RequestID: req.ID}, nil
	}
	return SubmitResult{RequestID: req.ID, Pending: true}, nil
}

// drain pops matching heads while both queues are non-empty. Earliest
// waiting wins. Stale heads (expired, unregistered, already paired) are
// discarded as they surface. Claiming a head is a CAS on the request
// status, so a racing expiry timer loses the swap and becomes a no-op.
func (q *QueuePairing) drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.initiators) > 0 && len(q.responders) > 0 {
		ini, ok := q.claimHead(&q.initiators)
		if !ok {
			continue
		}
		rsp, ok := q.claimHead(&q.responders)
		if !ok {
			// The responder side went stale under the claimed
			// initiator; give the reservation back and retry on the
			// next submission.
			q.supervisor.Cancel(ini.ID)
			q.requeue(ini, &q.initiators)
			return
		}

		q.supervisor.Cancel(ini.ID)
		q.supervisor.Cancel(rsp.ID)
		if _, err := q.sessions.Create(ini.RequesterID, rsp.RequesterID); err != nil {
			// One side unregistered between the claim and the pairing;
			// whoever is still here goes back to the head.
			log.Warn().Err(err).Str("module", "app.pairing").Msg("drain pairing failed")
			q.requeue(ini, &q.initiators)
			q.requeue(rsp, &q.responders)
			return
		}
	}
}

// requeue rolls a claimed request back to the queue head. Must run
// under q.mu. Dropped silently when the endpoint is gone or got paired
// meanwhile; its accept deadline, recomputed from IssuedAt, is not
// extended by the round trip.
func (q *QueuePairing) requeue(req *domain.ConnectRequest, queue *[]*domain.ConnectRequest) {
	if _, ok := q.registry.Lookup(req.RequesterID); !ok {
		return
	}
	if q.sessions.InSession(req.RequesterID) {
		return
	}
	if !req.Reopen() {
		return
	}
	*queue = append([]*domain.ConnectRequest{req}, *queue...)
	q.byRequester[req.RequesterID] = req
	q.supervisor.Watch(req, false)
}

// claimHead pops entries until it reserves a live head. Must run under
// q.mu; reports false when the queue is exhausted.
func (q *QueuePairing) claimHead(queue *[]*domain.ConnectRequest) (*domain.ConnectRequest, bool) {
	for len(*queue) > 0 {
		head := (*queue)[0]
		*queue = (*queue)[1:]
		delete(q.byRequester, head.RequesterID)
		if _, ok := q.registry.Lookup(head.RequesterID); !ok {
			continue
		}
		if q.sessions.InSession(head.RequesterID) {
			continue
		}
		if head.Resolve(domain.RequestAccepted) {
			return head, true
		}
	}
	return nil, false
}

// Resolve has no meaning under the queue policy; matching is automatic.
func (q *QueuePairing) Resolve(domain.EndpointID, domain.RequestID, bool) error {
	return core.ErrInvalidState
}

func (q *QueuePairing) Pulse(domain.EndpointID, domain.RequestID) {}

func (q *QueuePairing) CancelFor(id domain.EndpointID) {
	q.mu.Lock()
	req, ok := q.byRequester[id]
	if ok {
		delete(q.byRequester, id)
		q.initiators = removeRequest(q.initiators, req.ID)
		q.responders = removeRequest(q.responders, req.ID)
	}
	q.mu.Unlock()
	if !ok {
		return
	}
	if req.Resolve(domain.RequestExpired) {
		q.supervisor.Cancel(req.ID)
	}
}

func (q *QueuePairing) onExpired(req *domain.ConnectRequest, outcome domain.Outcome) {
	q.mu.Lock()
	delete(q.byRequester, req.RequesterID)
	q.initiators = removeRequest(q.initiators, req.ID)
	q.responders = removeRequest(q.responders, req.ID)
	q.mu.Unlock()

	ev := core.Event{Type: core.EventRequestResolved, RequestID: req.ID, Outcome: outcome}
	if err := q.out.Deliver(req.RequesterID, ev); err != nil {
		log.Warn().Err(err).Str("module", "app.pairing").Str("request", string(req.ID)).Msg("expiry notify failed")
	}
}

func removeRequest(queue []*domain.ConnectRequest, id domain.RequestID) []*domain.ConnectRequest {
	for i, r := range queue {
		if r.ID == id {
			return append(queue[:i], queue[i+1:]...)
		}
	}
	return queue
}
