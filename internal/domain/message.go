package domain

import "encoding/json"

type MessageKind string

const (
	KindOffer        MessageKind = "offer"
	KindAnswer       MessageKind = "answer"
	KindIceCandidate MessageKind = "candidate"
)

// NegotiationMessage is one relayed unit. Payload is opaque: the relay
// forwards it verbatim and never inspects SDP/ICE contents.
type NegotiationMessage struct {
	SessionID SessionID       `json:"session_id"`
	From      EndpointID      `json:"-"`
	Kind      MessageKind     `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Sequence  uint64          `json:"sequence"`
}
