package core

import "errors"

var (
	// ErrNotFound is a caller error: unknown endpoint, session or
	// request id. Reported immediately, never retried by the core.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an operation attempted outside its legal
	// state. The connection is not torn down.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict marks an attempt to pair an endpoint that is already
	// in an active session.
	ErrConflict = errors.New("conflict")

	// ErrOutOfOrder marks a negotiation message violating the
	// offer-before-answer protocol within a session.
	ErrOutOfOrder = errors.New("out of order")

	// ErrExpired marks a resolve against a request that already left
	// Pending via the supervisor.
	ErrExpired = errors.New("request expired")

	// ErrBackpressure is returned by TrySend when the outbound buffer
	// is full. The relay does not buffer; retransmission is on the
	// endpoint transport.
	ErrBackpressure = errors.New("backpressure")
)
