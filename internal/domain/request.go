package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type RequestID string

type RequestStatus int32

const (
	RequestPending RequestStatus = iota
	RequestAccepted
	RequestRejected
	RequestExpired
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestAccepted:
		return "accepted"
	case RequestRejected:
		return "rejected"
	case RequestExpired:
		return "expired"
	}
	return "unknown"
}

// Outcome is what the requester is told when a request leaves Pending
// without producing a session.
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeDeclined        Outcome = "declined"
	OutcomeNoResponder     Outcome = "no_responder"
	OutcomeTimedOut        Outcome = "timed_out"
	OutcomePeerUnavailable Outcome = "peer_unavailable"
)

// ConnectRequest is a proposal from one endpoint to pair with a
// counterpart. TargetID empty means queue mode.
type ConnectRequest struct {
	ID          RequestID
	RequesterID EndpointID
	TargetID    EndpointID
	IssuedAt    time.Time

	status atomic.Int32
}

func NewConnectRequest(requester, target EndpointID) *ConnectRequest {
	return &ConnectRequest{
		ID:          RequestID(uuid.NewString()),
		RequesterID: requester,
		TargetID:    target,
		IssuedAt:    time.Now(),
	}
}

func (r *ConnectRequest) Status() RequestStatus {
	return RequestStatus(r.status.Load())
}

// Resolve moves the request out of Pending exactly once. Timers and
// resolve calls are competing writers; whoever wins the swap owns the
// transition, everyone else gets false.
func (r *ConnectRequest) Resolve(to RequestStatus) bool {
	if to == RequestPending {
		return false
	}
	return r.status.CompareAndSwap(int32(RequestPending), int32(to))
}

// Reopen releases a drain reservation (Accepted back to Pending). Only
// the queue policy uses it, for a claimed head whose counterpart went
// stale before the match completed; nothing observable happened yet, so
// the externally visible transition out of Pending stays exactly-once.
func (r *ConnectRequest) Reopen() bool {
	return r.status.CompareAndSwap(int32(RequestAccepted), int32(RequestPending))
}
