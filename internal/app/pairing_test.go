package app

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
)

func newQueueEnv(t *testing.T) (*testEnv, *QueuePairing) {
	t.Helper()
	env := newTestEnv(time.Second, 100*time.Millisecond)
	q := NewQueuePairing(env.registry, env.sessions, env.supervisor, env.out)
	env.wireCascade(q)
	return env, q
}

func TestQueuePairingMatchesImmediately(t *testing.T) {
	env, q := newQueueEnv(t)
	ini := env.register("alice", domain.RoleInitiator)
	rsp := env.register("bob", domain.RoleResponder)

	res, err := q.Submit(ini, "")
	require.NoError(t, err)
	require.True(t, res.Pending, "no responder waiting yet")

	res2, err := q.Submit(rsp, "")
	require.NoError(t, err)
	require.False(t, res2.Pending)
	require.NotEmpty(t, res2.SessionID)

	// Both sides resolved to the same session.
	sess, ok := env.sessions.SessionOf(ini)
	require.True(t, ok)
	require.Equal(t, res2.SessionID, sess.ID)
	require.Equal(t, ini, sess.InitiatorID)
	require.Equal(t, rsp, sess.ResponderID)

	require.Equal(t, 1, env.out.countOf(ini, core.EventSessionEstablished))
	require.Equal(t, 1, env.out.countOf(rsp, core.EventSessionEstablished))
}

func TestQueuePairingFIFOOrder(t *testing.T) {
	env, q := newQueueEnv(t)

	var initiators []domain.EndpointID
	for i := 0; i < 3; i++ {
		id := env.register(fmt.Sprintf("ini-%d", i), domain.RoleInitiator)
		initiators = append(initiators, id)
		_, err := q.Submit(id, "")
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		rsp := env.register(fmt.Sprintf("rsp-%d", i), domain.RoleResponder)
		_, err := q.Submit(rsp, "")
		require.NoError(t, err)

		// Earliest-waiting initiator wins.
		sess, ok := env.sessions.SessionOf(rsp)
		require.True(t, ok)
		require.Equal(t, initiators[i], sess.InitiatorID)
	}
}

func TestQueuePairingNoDoubleMembership(t *testing.T) {
	env, q := newQueueEnv(t)
	ini := env.register("alice", domain.RoleInitiator)
	rsp := env.register("bob", domain.RoleResponder)

	_, err := q.Submit(ini, "")
	require.NoError(t, err)
	_, err = q.Submit(rsp, "")
	require.NoError(t, err)

	// Paired endpoints cannot submit again.
	_, err = q.Submit(ini, "")
	require.ErrorIs(t, err, core.ErrConflict)
	_, err = q.Submit(rsp, "")
	require.ErrorIs(t, err, core.ErrConflict)
}

func TestQueuePairingDuplicateSubmitRejected(t *testing.T) {
	env, q := newQueueEnv(t)
	ini := env.register("alice", domain.RoleInitiator)

	_, err := q.Submit(ini, "")
	require.NoError(t, err)
	_, err = q.Submit(ini, "")
	require.ErrorIs(t, err, core.ErrConflict)
}

func TestQueuePairingUnknownRequester(t *testing.T) {
	_, q := newQueueEnv(t)
	_, err := q.Submit("nobody", "")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestQueuePairingUnassignedRoleRejected(t *testing.T) {
	env, q := newQueueEnv(t)
	id := env.register("drifter", domain.RoleUnassigned)
	_, err := q.Submit(id, "")
	require.ErrorIs(t, err, core.ErrInvalidState)
}

func TestQueuePairingExpiresWaitingRequest(t *testing.T) {
	env := newTestEnv(50*time.Millisecond, 20*time.Millisecond)
	q := NewQueuePairing(env.registry, env.sessions, env.supervisor, env.out)
	ini := env.register("alice", domain.RoleInitiator)

	res, err := q.Submit(ini, "")
	require.NoError(t, err)
	require.True(t, res.Pending)

	require.Eventually(t, func() bool {
		return env.out.countOf(ini, core.EventRequestResolved) == 1
	}, time.Second, 10*time.Millisecond)

	evs := env.out.eventsFor(ini)
	require.Equal(t, domain.OutcomeTimedOut, evs[0].Outcome)

	// Expired head is discarded; a fresh responder pairs with nobody.
	rsp := env.register("bob", domain.RoleResponder)
	res2, err := q.Submit(rsp, "")
	require.NoError(t, err)
	require.True(t, res2.Pending)
}

func TestQueuePairingDisconnectRemovesFromQueue(t *testing.T) {
	env, q := newQueueEnv(t)
	ini := env.register("alice", domain.RoleInitiator)

	_, err := q.Submit(ini, "")
	require.NoError(t, err)

	env.registry.Unregister(ini)

	// The departed head never pairs.
	rsp := env.register("bob", domain.RoleResponder)
	res, err := q.Submit(rsp, "")
	require.NoError(t, err)
	require.True(t, res.Pending)
}

func TestQueuePairingDrainDisconnectRace(t *testing.T) {
	// A queued initiator disconnects while a responder submission drains
	// the queues: the responder must either stay pending or be released
	// by the teardown cascade, never sit in a session with the departed
	// initiator.
	for i := 0; i < 100; i++ {
		env, q := newQueueEnv(t)
		ini := env.register("alice", domain.RoleInitiator)
		_, err := q.Submit(ini, "")
		require.NoError(t, err)
		rsp := env.register("bob", domain.RoleResponder)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = q.Submit(rsp, "")
		}()
		go func() {
			defer wg.Done()
			env.registry.Unregister(ini)
		}()
		wg.Wait()

		_, ok := env.registry.Lookup(ini)
		require.False(t, ok)
		require.False(t, env.sessions.InSession(ini))
		require.False(t, env.sessions.InSession(rsp), "responder paired to a departed initiator")
	}
}

func TestQueuePairingResolveIsInvalid(t *testing.T) {
	env, q := newQueueEnv(t)
	id := env.register("alice", domain.RoleInitiator)
	err := q.Resolve(id, "whatever", true)
	require.ErrorIs(t, err, core.ErrInvalidState)
}
