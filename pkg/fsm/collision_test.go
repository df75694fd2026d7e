package fsm

import (
	"testing"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
	"github.com/stretchr/testify/require"

	"github.com/danl5/bgpfsm/pkg/model"
)

func TestResolveCollision_LocalHigherKeepsActive(t *testing.T) {
	local := newFakePeer("0.0.0.10", 65001, 90*time.Second)
	f := New(local, Options{Config: testConfig(), Logger: testLogger()})

	active := model.NewSession(1, model.DirectionActive, newFakeConn("192.0.2.1:179"))
	active.MarkOpenSeen(mustAddr("0.0.0.5"))
	passive := model.NewSession(2, model.DirectionPassive, newFakeConn("192.0.2.2:179"))
	passive.MarkOpenSeen(mustAddr("0.0.0.5"))

	winner, loser := f.resolveCollision(active, passive)
	require.Same(t, active, winner)
	require.Same(t, passive, loser)
}

func TestResolveCollision_PeerHigherKeepsPassive(t *testing.T) {
	local := newFakePeer("0.0.0.3", 65001, 90*time.Second)
	f := New(local, Options{Config: testConfig(), Logger: testLogger()})

	active := model.NewSession(1, model.DirectionActive, newFakeConn("192.0.2.1:179"))
	active.MarkOpenSeen(mustAddr("0.0.0.7"))
	passive := model.NewSession(2, model.DirectionPassive, newFakeConn("192.0.2.2:179"))
	passive.MarkOpenSeen(mustAddr("0.0.0.7"))

	winner, loser := f.resolveCollision(active, passive)
	require.Same(t, passive, winner)
	require.Same(t, active, loser)
}

func TestResolveCollision_EqualIDsIsATie(t *testing.T) {
	local := newFakePeer("0.0.0.9", 65001, 90*time.Second)
	f := New(local, Options{Config: testConfig(), Logger: testLogger()})

	active := model.NewSession(1, model.DirectionActive, newFakeConn("192.0.2.1:179"))
	active.MarkOpenSeen(mustAddr("0.0.0.9"))
	passive := model.NewSession(2, model.DirectionPassive, newFakeConn("192.0.2.2:179"))
	passive.MarkOpenSeen(mustAddr("0.0.0.9"))

	winner, loser := f.resolveCollision(active, passive)
	require.Nil(t, winner)
	require.Nil(t, loser)
}

// bringUpCollision drives f from Idle up through Connect with both an
// active dial and a passive accept live at once, stopping in OpenSent with
// both slots occupied — the precondition spec.md §8 scenarios 2 and 3 both
// start from.
func bringUpCollision(t *testing.T, f *FSM) (active, passive *model.Session) {
	t.Helper()
	waitState(t, f, model.StateConnect.String())

	passive = model.NewSession(2, model.DirectionPassive, newFakeConn("192.0.2.3:179"))
	f.queue.Enqueue(model.Event{Kind: model.EventTcpPassiveOpen, Session: passive})
	require.Eventually(t, func() bool {
		return f.passive == passive
	}, time.Second, 2*time.Millisecond, "passive accept was never recorded")

	active = model.NewSession(1, model.DirectionActive, newFakeConn("192.0.2.2:179"))
	f.queue.Enqueue(model.Event{Kind: model.EventTcpConnected, Session: active})
	waitState(t, f, model.StateOpenSent.String())
	require.Same(t, active, f.active)
	require.Same(t, passive, f.passive)
	return active, passive
}

// Scenario 2: collision, local wins (spec.md §8, scenario 2). Local router
// ID 10 beats the peer's 5, so the connection we initiated survives.
func TestScenario_CollisionLocalWins(t *testing.T) {
	local := newFakePeer("0.0.0.10", 65001, 90*time.Second)
	f := newHarness(t, local, nil)
	active, passive := bringUpCollision(t, f)

	open := bgp.NewBGPOpenMessage(65002, 90, "0.0.0.5", nil)
	f.OnMessage(passive, open)

	// Only one of the two sessions has exchanged OPEN so far: the FSM must
	// hold in OpenSent rather than race ahead to OpenConfirm.
	require.Eventually(t, func() bool {
		return passive.SeenOpen()
	}, time.Second, 2*time.Millisecond)
	require.Equal(t, model.StateOpenSent.String(), f.StateName())

	f.OnMessage(active, open)

	waitState(t, f, model.StateOpenConfirm.String())
	require.Same(t, active, f.active)
	require.Nil(t, f.passive)

	require.Eventually(t, func() bool {
		return passive.Closed()
	}, time.Second, 2*time.Millisecond, "collision loser was never closed")
}

// Scenario 3: collision, peer wins (spec.md §8, scenario 3). Local router
// ID 3 loses to the peer's 7, so the connection the peer initiated
// survives instead.
func TestScenario_CollisionPeerWins(t *testing.T) {
	local := newFakePeer("0.0.0.3", 65001, 90*time.Second)
	f := newHarness(t, local, nil)
	active, passive := bringUpCollision(t, f)

	open := bgp.NewBGPOpenMessage(65002, 90, "0.0.0.7", nil)
	f.OnMessage(active, open)
	f.OnMessage(passive, open)

	waitState(t, f, model.StateOpenConfirm.String())
	require.Same(t, passive, f.passive)
	require.Nil(t, f.active)

	require.Eventually(t, func() bool {
		return active.Closed()
	}, time.Second, 2*time.Millisecond, "collision loser was never closed")
}
