package app

import (
	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
	"github.com/rs/zerolog/log"
)

// Relay shuttles offer/answer/ICE payloads between the two endpoints of
// a session. Payloads pass through verbatim; ordering is enforced, the
// contents never inspected. Delivery is at-most-once per call; the
// relay does not buffer for an unreachable counterpart.
type Relay struct {
	sessions *Lifecycle
	out      core.Outbound
}

func NewRelay(lc *Lifecycle, out core.Outbound) *Relay {
	return &Relay{sessions: lc, out: out}
}

func (r *Relay) Relay(from domain.EndpointID, msg domain.NegotiationMessage) error {
	sess, ok := r.sessions.Get(msg.SessionID)
	if !ok {
		return core.ErrNotFound
	}
	if !sess.Has(from) {
		return core.ErrNotFound
	}
	switch sess.State() {
	case domain.SessionNegotiating, domain.SessionConnected:
	default:
		return core.ErrInvalidState
	}

	if err := r.checkOrder(sess, from, msg.Kind); err != nil {
		return err
	}

	seq := sess.NextSeq(from)
	sess.Touch()

	peer, _ := sess.Peer(from)
	ev := core.Event{
		Type:      core.EventNegotiation,
		SessionID: sess.ID,
		PeerID:    from,
		Kind:      msg.Kind,
		Payload:   msg.Payload,
		Sequence:  seq,
	}
	if err := r.out.Deliver(peer, ev); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").
			Str("session", string(sess.ID)).
			Str("peer", string(peer)).
			Str("kind", string(msg.Kind)).
			Msg("relay delivery failed")
		return err
	}
	log.Debug().Str("module", "app.relay").
		Str("session", string(sess.ID)).
		Str("kind", string(msg.Kind)).
		Uint64("seq", seq).
		Msg("relayed")
	return nil
}

// checkOrder enforces the offer/answer protocol: the offer originates
// from the initiator, the answer from the responder and only after an
// offer, candidates only after the offer. Renegotiation after a
// recorded answer is out of scope and rejected.
func (r *Relay) checkOrder(sess *domain.Session, from domain.EndpointID, kind domain.MessageKind) error {
	switch kind {
	case domain.KindOffer:
		if from != sess.InitiatorID {
			return core.ErrOutOfOrder
		}
		if sess.SawAnswer() {
			return core.ErrOutOfOrder
		}
		sess.MarkOffer()
	case domain.KindAnswer:
		if from != sess.ResponderID {
			return core.ErrOutOfOrder
		}
		if !sess.SawOffer() {
			return core.ErrOutOfOrder
		}
		if sess.MarkAnswer() {
			return core.ErrOutOfOrder
		}
	case domain.KindIceCandidate:
		if !sess.SawOffer() {
			return core.ErrOutOfOrder
		}
	default:
		return core.ErrInvalidState
	}
	return nil
}
