package timerset

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fireRecorder collects FireFunc calls so a test can assert on them without
// racing the timer goroutine.
type fireRecorder struct {
	mu    sync.Mutex
	calls []struct {
		name Name
		gen  uint64
	}
}

func (r *fireRecorder) record(name Name, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, struct {
		name Name
		gen  uint64
	}{name, gen})
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fireRecorder) last() (Name, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.calls[len(r.calls)-1]
	return c.name, c.gen
}

func TestTimer_StartFiresWithCurrentGeneration(t *testing.T) {
	rec := &fireRecorder{}
	tm := New(Hold, 0, nil, rec.record)
	tm.Start(10 * time.Millisecond)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	name, gen := rec.last()
	assert.Equal(t, Hold, name)
	assert.Equal(t, tm.Generation(), gen)
}

func TestTimer_CancelPreventsFire(t *testing.T) {
	rec := &fireRecorder{}
	tm := New(Open, 0, nil, rec.record)
	tm.Start(20 * time.Millisecond)
	tm.Cancel()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
	assert.False(t, tm.IsRunning())
}

func TestTimer_RestartBumpsGenerationAndIgnoresStaleFire(t *testing.T) {
	rec := &fireRecorder{}
	tm := New(Connect, 0, nil, rec.record)

	tm.Start(5 * time.Millisecond)
	firstGen := tm.Generation()
	validAtFirst := tm.ValidAt(firstGen)

	// Restart before the first timer would have fired: its generation is
	// stale even though the underlying time.Timer might still race in.
	tm.Start(50 * time.Millisecond)
	require.False(t, validAtFirst(), "first generation's validator must be false after a restart")

	secondGen := tm.Generation()
	require.NotEqual(t, firstGen, secondGen)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	_, gen := rec.last()
	assert.Equal(t, secondGen, gen)
}

func TestTimer_ValidAtTracksCancel(t *testing.T) {
	rec := &fireRecorder{}
	tm := New(IdleHold, 0, nil, rec.record)
	tm.Start(time.Hour)
	valid := tm.ValidAt(tm.Generation())
	require.True(t, valid())

	tm.Cancel()
	require.False(t, valid())
}

func TestTimer_JitterStaysWithinBounds(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	tm := New(Connect, 0.1, rnd, func(Name, uint64) {})

	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := tm.jittered(base)
		assert.GreaterOrEqual(t, got, time.Duration(float64(base)*0.9))
		assert.LessOrEqual(t, got, base)
	}
}

func TestTimer_NoJitterReturnsExactDuration(t *testing.T) {
	tm := New(Hold, 0, nil, func(Name, uint64) {})
	assert.Equal(t, 250*time.Millisecond, tm.jittered(250*time.Millisecond))
}

func TestSet_CancelAllDisarmsEveryTimer(t *testing.T) {
	s := NewSet(0, nil, func(Name, uint64) {})
	s.Connect.Start(time.Hour)
	s.Open.Start(time.Hour)
	s.Hold.Start(time.Hour)
	s.IdleHold.Start(time.Hour)

	s.CancelAll()

	assert.False(t, s.Connect.IsRunning())
	assert.False(t, s.Open.IsRunning())
	assert.False(t, s.Hold.IsRunning())
	assert.False(t, s.IdleHold.IsRunning())
}

func TestNewSet_JitterOnlyOnConnectAndIdleHold(t *testing.T) {
	s := NewSet(0.5, rand.New(rand.NewSource(2)), func(Name, uint64) {})
	assert.Equal(t, 0.5, s.Connect.jitter)
	assert.Equal(t, 0.5, s.IdleHold.jitter)
	assert.Zero(t, s.Open.jitter)
	assert.Zero(t, s.Hold.jitter)
}
