package app

import "github.com/dkeye/Handshake/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropEvent
	KickEndpoint
)

// DeliveryPolicy decides what to do with an endpoint whose outbound
// buffer is full during event delivery.
type DeliveryPolicy interface {
	OnBackpressure(id domain.EndpointID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(domain.EndpointID) BackpressureAction {
	return KickEndpoint
}
