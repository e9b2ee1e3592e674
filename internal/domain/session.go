package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type SessionID string

type SessionState int32

const (
	// Created is folded into Negotiating: a session only exists once
	// both endpoints are registered.
	SessionNegotiating SessionState = iota
	SessionConnected
	SessionTerminated
)

func (s SessionState) String() string {
	switch s {
	case SessionNegotiating:
		return "negotiating"
	case SessionConnected:
		return "connected"
	case SessionTerminated:
		return "terminated"
	}
	return "unknown"
}

type TerminateReason string

const (
	ReasonPeerLeft        TerminateReason = "peer_left"
	ReasonPeerDisconnect  TerminateReason = "peer_disconnected"
	ReasonTransportFailed TerminateReason = "transport_failed"
)

// Session is the paired relationship between two endpoints. State and
// activity are atomics so the relay path never takes the session lock
// just to stamp a timestamp.
type Session struct {
	ID          SessionID
	InitiatorID EndpointID
	ResponderID EndpointID
	CreatedAt   time.Time

	state        atomic.Int32
	lastActivity atomic.Int64

	initiatorSeq atomic.Uint64
	responderSeq atomic.Uint64

	sawOffer  atomic.Bool
	sawAnswer atomic.Bool
}

func NewSession(initiator, responder EndpointID) *Session {
	s := &Session{
		ID:          SessionID(uuid.NewString()),
		InitiatorID: initiator,
		ResponderID: responder,
		CreatedAt:   time.Now(),
	}
	s.lastActivity.Store(s.CreatedAt.UnixNano())
	return s
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Transition performs the compare-and-swap that makes Terminated
// absorbing and teardown exactly-once: only one caller ever wins the
// swap into Terminated.
func (s *Session) Transition(from, to SessionState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) LastActivityAt() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Peer returns the counterpart of id within the session.
func (s *Session) Peer(id EndpointID) (EndpointID, bool) {
	switch id {
	case s.InitiatorID:
		return s.ResponderID, true
	case s.ResponderID:
		return s.InitiatorID, true
	}
	return "", false
}

func (s *Session) Has(id EndpointID) bool {
	return id == s.InitiatorID || id == s.ResponderID
}

// NextSeq stamps per-direction monotonic sequence numbers.
func (s *Session) NextSeq(from EndpointID) uint64 {
	if from == s.InitiatorID {
		return s.initiatorSeq.Add(1)
	}
	return s.responderSeq.Add(1)
}

// MarkOffer records the first relayed Offer; reports whether an Offer
// was already seen.
func (s *Session) MarkOffer() (already bool) {
	return !s.sawOffer.CompareAndSwap(false, true)
}

func (s *Session) MarkAnswer() (already bool) {
	return !s.sawAnswer.CompareAndSwap(false, true)
}

func (s *Session) SawOffer() bool  { return s.sawOffer.Load() }
func (s *Session) SawAnswer() bool { return s.sawAnswer.Load() }
