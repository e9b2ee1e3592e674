package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
)

func newAddressedEnv(t *testing.T, acceptTimeout, livenessPulse time.Duration) (*testEnv, *AddressedPairing) {
	t.Helper()
	env := newTestEnv(acceptTimeout, livenessPulse)
	a := NewAddressedPairing(env.registry, env.sessions, env.supervisor, env.out)
	env.wireCascade(a)
	return env, a
}

func TestAddressedSubmitNotifiesTarget(t *testing.T) {
	env, a := newAddressedEnv(t, time.Second, time.Second)
	caller := env.register("alice", domain.RoleInitiator)
	target := env.register("bob", domain.RoleResponder)

	res, err := a.Submit(caller, target)
	require.NoError(t, err)
	require.True(t, res.Pending)
	require.NotEmpty(t, res.RequestID)

	evs := env.out.eventsFor(target)
	require.Len(t, evs, 1)
	require.Equal(t, core.EventRequestIncoming, evs[0].Type)
	require.Equal(t, res.RequestID, evs[0].RequestID)
	require.Equal(t, "alice", evs[0].FromDisplayName)
}

func TestAddressedSubmitUnknownTarget(t *testing.T) {
	env, a := newAddressedEnv(t, time.Second, time.Second)
	caller := env.register("alice", domain.RoleInitiator)

	_, err := a.Submit(caller, "ghost")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestAddressedSubmitBusyTargetConflict(t *testing.T) {
	env, a := newAddressedEnv(t, time.Second, time.Second)
	caller := env.register("alice", domain.RoleInitiator)
	target := env.register("bob", domain.RoleResponder)
	other := env.register("carol", domain.RoleInitiator)

	_, err := env.sessions.Create(other, target)
	require.NoError(t, err)

	// Busy target is rejected synchronously, before any timer starts.
	_, err = a.Submit(caller, target)
	require.ErrorIs(t, err, core.ErrConflict)
	require.Empty(t, env.out.eventsFor(caller))
}

func TestAddressedAcceptCreatesSession(t *testing.T) {
	env, a := newAddressedEnv(t, time.Second, time.Second)
	caller := env.register("alice", domain.RoleInitiator)
	target := env.register("bob", domain.RoleResponder)

	res, err := a.Submit(caller, target)
	require.NoError(t, err)

	require.NoError(t, a.Resolve(target, res.RequestID, true))

	sess, ok := env.sessions.SessionOf(caller)
	require.True(t, ok)
	require.Equal(t, caller, sess.InitiatorID)
	require.Equal(t, target, sess.ResponderID)

	require.Equal(t, 1, env.out.countOf(caller, core.EventSessionEstablished))
	require.Equal(t, 1, env.out.countOf(target, core.EventSessionEstablished))
}

func TestAddressedDeclineResolvesImmediately(t *testing.T) {
	// Scenario: decline one second into a long window; no expiry
	// notification may follow.
	env, a := newAddressedEnv(t, 150*time.Millisecond, 100*time.Millisecond)
	caller := env.register("alice", domain.RoleInitiator)
	target := env.register("bob", domain.RoleResponder)

	res, err := a.Submit(caller, target)
	require.NoError(t, err)

	require.NoError(t, a.Resolve(target, res.RequestID, false))

	evs := env.out.eventsFor(caller)
	require.Len(t, evs, 1)
	require.Equal(t, core.EventRequestResolved, evs[0].Type)
	require.Equal(t, domain.OutcomeDeclined, evs[0].Outcome)

	// Wait past the accept deadline: still exactly one resolution.
	time.Sleep(250 * time.Millisecond)
	require.Equal(t, 1, env.out.countOf(caller, core.EventRequestResolved))
}

func TestAddressedExpiryNoResponder(t *testing.T) {
	env, a := newAddressedEnv(t, time.Second, 30*time.Millisecond)
	caller := env.register("alice", domain.RoleInitiator)
	target := env.register("bob", domain.RoleResponder)

	_, err := a.Submit(caller, target)
	require.NoError(t, err)

	// No pulse from the target: the short liveness timer expires the
	// request early with its distinct reason.
	require.Eventually(t, func() bool {
		return env.out.countOf(caller, core.EventRequestResolved) == 1
	}, time.Second, 5*time.Millisecond)
	evs := env.out.eventsFor(caller)
	require.Equal(t, domain.OutcomeNoResponder, evs[len(evs)-1].Outcome)
}

func TestAddressedPulseSuppressesOnlyLivenessTimer(t *testing.T) {
	env, a := newAddressedEnv(t, 120*time.Millisecond, 30*time.Millisecond)
	caller := env.register("alice", domain.RoleInitiator)
	target := env.register("bob", domain.RoleResponder)

	res, err := a.Submit(caller, target)
	require.NoError(t, err)

	a.Pulse(target, res.RequestID)

	// Outlives the liveness window...
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 0, env.out.countOf(caller, core.EventRequestResolved))

	// ...but not the accept deadline.
	require.Eventually(t, func() bool {
		return env.out.countOf(caller, core.EventRequestResolved) == 1
	}, time.Second, 5*time.Millisecond)
	evs := env.out.eventsFor(caller)
	require.Equal(t, domain.OutcomeTimedOut, evs[len(evs)-1].Outcome)
}

func TestAddressedResolveAfterExpiryIsNoOp(t *testing.T) {
	env, a := newAddressedEnv(t, 30*time.Millisecond, 20*time.Millisecond)
	caller := env.register("alice", domain.RoleInitiator)
	target := env.register("bob", domain.RoleResponder)

	res, err := a.Submit(caller, target)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return env.out.countOf(caller, core.EventRequestResolved) == 1
	}, time.Second, 5*time.Millisecond)

	err = a.Resolve(target, res.RequestID, true)
	require.Error(t, err)
	require.True(t, err == core.ErrExpired || err == core.ErrNotFound)

	// No session was formed.
	_, ok := env.sessions.SessionOf(caller)
	require.False(t, ok)
}

func TestAddressedResolveDeadlineRace(t *testing.T) {
	// Fire resolve and the deadline near-simultaneously, repeatedly:
	// exactly one outcome must win every time.
	for i := 0; i < 20; i++ {
		env, a := newAddressedEnv(t, 10*time.Millisecond, 8*time.Millisecond)
		caller := env.register("alice", domain.RoleInitiator)
		target := env.register("bob", domain.RoleResponder)

		res, err := a.Submit(caller, target)
		require.NoError(t, err)

		time.Sleep(9 * time.Millisecond)
		_ = a.Resolve(target, res.RequestID, false)

		require.Eventually(t, func() bool {
			return env.out.countOf(caller, core.EventRequestResolved) >= 1
		}, time.Second, time.Millisecond)
		// Give a late-firing timer every chance to double-notify.
		time.Sleep(30 * time.Millisecond)
		require.Equal(t, 1, env.out.countOf(caller, core.EventRequestResolved))
	}
}

func TestAddressedAcceptDisconnectRace(t *testing.T) {
	// Accept and requester disconnect race: whichever interleaving wins,
	// the target must never end up paired to a departed endpoint.
	for i := 0; i < 100; i++ {
		env, a := newAddressedEnv(t, time.Second, time.Second)
		caller := env.register("alice", domain.RoleInitiator)
		target := env.register("bob", domain.RoleResponder)

		res, err := a.Submit(caller, target)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.Resolve(target, res.RequestID, true)
		}()
		go func() {
			defer wg.Done()
			env.registry.Unregister(caller)
		}()
		wg.Wait()

		_, ok := env.registry.Lookup(caller)
		require.False(t, ok)
		require.False(t, env.sessions.InSession(caller))
		require.False(t, env.sessions.InSession(target), "target paired to a departed endpoint")
	}
}

func TestAddressedRequesterDisconnectClearsRequest(t *testing.T) {
	env, a := newAddressedEnv(t, time.Second, time.Second)
	caller := env.register("alice", domain.RoleInitiator)
	target := env.register("bob", domain.RoleResponder)

	res, err := a.Submit(caller, target)
	require.NoError(t, err)

	env.registry.Unregister(caller)

	// Target learns the requester is gone and the request is dead.
	require.Equal(t, 1, env.out.countOf(target, core.EventRequestResolved))
	err = a.Resolve(target, res.RequestID, true)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestAddressedResolveByWrongEndpoint(t *testing.T) {
	env, a := newAddressedEnv(t, time.Second, time.Second)
	caller := env.register("alice", domain.RoleInitiator)
	target := env.register("bob", domain.RoleResponder)
	stranger := env.register("mallory", domain.RoleResponder)

	res, err := a.Submit(caller, target)
	require.NoError(t, err)

	err = a.Resolve(stranger, res.RequestID, true)
	require.ErrorIs(t, err, core.ErrNotFound)
}
