package core

import "github.com/dkeye/Handshake/internal/domain"

// SignalConnection abstracts the endpoint's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// EndpointSession binds domain.Endpoint and its transport connection.
// This is what the registry stores and the outbound path delivers to.
type EndpointSession interface {
	Meta() *domain.Endpoint
	Signal() SignalConnection
	UpdateSignal(SignalConnection) EndpointSession
}

// Outbound is the relay substrate: it delivers core events to an
// endpoint. Two backends exist, direct in-memory delivery and the
// store-backed mailbox; the protocol logic never knows which one is
// active.
type Outbound interface {
	Deliver(id domain.EndpointID, ev Event) error
	Close()
}

// EndpointDTO is a read-only view for APIs (no transport fields).
type EndpointDTO struct {
	ID          domain.EndpointID `json:"id"`
	Role        domain.Role       `json:"role"`
	DisplayName string            `json:"display_name"`
}

// SessionDTO is a read-only session view for APIs.
type SessionDTO struct {
	ID          domain.SessionID  `json:"id"`
	InitiatorID domain.EndpointID `json:"initiator_id"`
	ResponderID domain.EndpointID `json:"responder_id"`
	State       string            `json:"state"`
}
