package core

import "github.com/dkeye/Handshake/internal/domain"

// endpointSession implements EndpointSession by pairing meta + transport.
type endpointSession struct {
	meta *domain.Endpoint
	sig  SignalConnection
}

func NewEndpointSession(meta *domain.Endpoint) EndpointSession {
	return &endpointSession{meta: meta}
}

func (s *endpointSession) Meta() *domain.Endpoint   { return s.meta }
func (s *endpointSession) Signal() SignalConnection { return s.sig }

func (s *endpointSession) UpdateSignal(conn SignalConnection) EndpointSession {
	s.sig = conn
	return s
}
