package fsm

import (
	"context"
	"testing"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
	"github.com/stretchr/testify/require"

	"github.com/danl5/bgpfsm/pkg/model"
)

func newHarness(t *testing.T, peer *fakePeer, dialer Dialer) *FSM {
	t.Helper()
	f := New(peer, Options{
		Config: testConfig(),
		Logger: testLogger(),
		Dialer: dialer,
	})
	ctx, cancel := context.WithCancel(context.Background())
	f.Run(ctx)
	t.Cleanup(func() {
		cancel()
		f.Shutdown()
	})
	return f
}

func waitState(t *testing.T, f *FSM, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.StateName() == want
	}, time.Second, 2*time.Millisecond, "never reached state %s, stuck in %s", want, f.StateName())
}

// Scenario 1: clean active establishment (spec.md §8, scenario 1).
func TestScenario_CleanActiveEstablishment(t *testing.T) {
	local := newFakePeer("10.0.0.1", 65001, 90*time.Second)
	dialer := &fakeDialer{remote: "192.0.2.2:179"}
	f := newHarness(t, local, dialer)

	waitState(t, f, model.StateConnect.String())
	waitState(t, f, model.StateOpenSent.String())

	require.NotNil(t, f.active)
	s := f.active

	open := bgp.NewBGPOpenMessage(65002, 90, "10.0.0.2", nil)
	f.OnMessage(s, open)

	waitState(t, f, model.StateOpenConfirm.String())

	f.OnMessage(s, bgp.NewBGPKeepAliveMessage())

	waitState(t, f, model.StateEstablished.String())

	require.Equal(t, model.IdleBackoff(0), f.idleHoldTime)
	require.True(t, f.timer.Hold.IsRunning())
	// §4.3 OpenSent negotiates hold = min(ours, theirs); testConfig's
	// HoldTime (300ms) is the smaller side against the peer's 90s offer.
	require.Equal(t, testConfig().HoldTime, f.holdTime)
}

// Scenario 4: hold timer expiry in Established (spec.md §8, scenario 4).
func TestScenario_HoldTimerExpiryInEstablished(t *testing.T) {
	local := newFakePeer("10.0.0.1", 65001, 90*time.Second)
	dialer := &fakeDialer{}
	f := newHarness(t, local, dialer)

	waitState(t, f, model.StateOpenSent.String())
	s := f.active
	f.OnMessage(s, bgp.NewBGPOpenMessage(65002, 90, "10.0.0.2", nil))
	waitState(t, f, model.StateOpenConfirm.String())
	f.OnMessage(s, bgp.NewBGPKeepAliveMessage())
	waitState(t, f, model.StateEstablished.String())

	// No further keepalive: the Hold timer (300ms in testConfig) must
	// expire and drop the peer back to Idle with a notification sent.
	waitState(t, f, model.StateIdle.String())

	out := f.LastNotificationOut()
	require.EqualValues(t, model.NotifCodeHoldTimerExpired, out.Code)
	require.Equal(t, testConfig().IdleHoldTimeInitial, f.idleHoldTime)
}

// Scenario 5: connect retry on failure (spec.md §8, scenario 5). The dial
// always fails, so the only way out of the Active/Connect cycle is the
// retry counter climbing and the FSM cycling back to Active.
func TestScenario_ConnectRetryOnFailure(t *testing.T) {
	local := newFakePeer("10.0.0.1", 65001, 90*time.Second)
	dialer := &fakeDialer{fail: true}
	f := newHarness(t, local, dialer)

	waitState(t, f, model.StateConnect.String())

	require.Eventually(t, func() bool {
		return f.connectAttempts >= 1
	}, time.Second, 2*time.Millisecond, "connect failure was never reported back")

	// TcpConnectFailed keeps the FSM in Connect; only the retried
	// ConnectTimer cycles it back to Active.
	waitState(t, f, model.StateActive.String())
}

// Scenario 6: a stale TcpClosed event loses the race against the FSM's own
// pseudo-delete of the same session (spec.md §8, scenario 6).
func TestScenario_StaleSessionEventAfterDelete(t *testing.T) {
	local := newFakePeer("10.0.0.1", 65001, 90*time.Second)
	f := New(local, Options{Config: testConfig(), Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.worker(ctx)

	s := model.NewSession(1, model.DirectionActive, newFakeConn("192.0.2.3:179"))
	f.active = s

	f.teardownSession(s, "scenario 6")
	// A duplicate close report for the same session, racing the
	// pseudo-delete event already queued ahead of it.
	f.OnSessionEvent(s, SessionClosed)

	require.Eventually(t, func() bool {
		return s.Closed()
	}, time.Second, 2*time.Millisecond)

	require.Nil(t, f.active)
	require.Equal(t, model.StateIdle.String(), f.StateName())
}
