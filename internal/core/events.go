package core

import (
	"encoding/json"

	"github.com/dkeye/Handshake/internal/domain"
)

// Frame is a raw encoded payload handed to a transport.
type Frame []byte

type EventType string

const (
	EventRequestIncoming    EventType = "request_incoming"
	EventRequestResolved    EventType = "request_resolved"
	EventSessionEstablished EventType = "session_established"
	EventNegotiation        EventType = "negotiation"
	EventSessionTerminated  EventType = "session_terminated"
)

// Event is everything the core ever pushes to an endpoint without an
// originating call from that endpoint. One flat envelope keeps both
// outbound substrates trivial: encode, deliver, done.
type Event struct {
	Type EventType `json:"type"`

	RequestID       domain.RequestID `json:"request_id,omitempty"`
	FromDisplayName string           `json:"from_display_name,omitempty"`
	Outcome         domain.Outcome   `json:"outcome,omitempty"`

	SessionID domain.SessionID       `json:"session_id,omitempty"`
	PeerID    domain.EndpointID      `json:"peer_id,omitempty"`
	Reason    domain.TerminateReason `json:"reason,omitempty"`

	Kind     domain.MessageKind `json:"kind,omitempty"`
	Payload  json.RawMessage    `json:"payload,omitempty"`
	Sequence uint64             `json:"sequence,omitempty"`
}

func (e Event) Encode() (Frame, error) {
	b, err := json.Marshal(e)
	return Frame(b), err
}
