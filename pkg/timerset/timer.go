// Package timerset implements the four named FSM timers from spec §4.4.
// Each timer's expiry never touches FSM state directly: it posts a
// generation-stamped event back through a callback, and the FSM's event
// validator checks the generation at dequeue time. This is what lets a
// racing Cancel win over an in-flight expiry without any shared lock
// between the timer goroutine and the FSM worker.
package timerset

import (
	"math/rand"
	"sync"
	"time"
)

// Name identifies one of the four timers a peer FSM owns.
type Name string

const (
	Connect  Name = "connect"
	Open     Name = "open"
	Hold     Name = "hold"
	IdleHold Name = "idle_hold"
)

// FireFunc is invoked when a timer expires, carrying the generation that
// was current at fire time. It must not block and must not mutate FSM
// state directly; its only job is to enqueue a *TimerExpired event.
type FireFunc func(name Name, generation uint64)

// Timer is a one-shot timer with a monotonically increasing generation,
// bumped on every Start and Cancel. Jitter, when enabled, multiplies the
// requested duration by a random factor in [1-jitter, 1.0] to de-synchronize
// peers that share a configured interval.
type Timer struct {
	name   Name
	jitter float64
	fire   FireFunc
	rand   *rand.Rand

	mu         sync.Mutex
	generation uint64
	running    bool
	t          *time.Timer
}

// New creates a Timer identified by name. jitter is the fractional
// de-synchronization to apply (0 disables it); rnd is the source of
// randomness, injectable so tests can make jitter deterministic.
func New(name Name, jitter float64, rnd *rand.Rand, fire FireFunc) *Timer {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Timer{name: name, jitter: jitter, rand: rnd, fire: fire}
}

// Start arms the timer for d, applying jitter if configured. Starting an
// already-running timer replaces it; the old generation can no longer fire.
func (t *Timer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		t.t.Stop()
	}
	t.generation++
	gen := t.generation
	t.running = true

	dur := t.jittered(d)
	t.t = time.AfterFunc(dur, func() {
		t.mu.Lock()
		stillCurrent := t.running && t.generation == gen
		t.mu.Unlock()
		if stillCurrent {
			t.fire(t.name, gen)
		}
	})
}

// Cancel disarms the timer. It is idempotent and safe to call from the FSM
// worker regardless of whether the timer is currently running.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	t.generation++
	t.running = false
}

// IsRunning reports whether the timer has been started and not cancelled
// since. It stays true after the timer fires, until the next Cancel, so the
// fired event's ValidAt check still holds at dequeue time.
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Generation returns the timer's current generation, for validator
// predicates built at Start time.
func (t *Timer) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

// ValidAt returns a validator predicate closing over generation, true only
// while the timer has not been restarted or cancelled since.
func (t *Timer) ValidAt(generation uint64) func() bool {
	return func() bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.running && t.generation == generation
	}
}

func (t *Timer) jittered(d time.Duration) time.Duration {
	if t.jitter <= 0 {
		return d
	}
	factor := 1 - t.jitter + t.rand.Float64()*t.jitter
	return time.Duration(float64(d) * factor)
}

// Set bundles the four named timers a peer FSM owns.
type Set struct {
	Connect  *Timer
	Open     *Timer
	Hold     *Timer
	IdleHold *Timer
}

// NewSet builds the four timers, wiring jitter onto Connect and IdleHold
// per spec §4.4 and leaving Open/Hold exact.
func NewSet(jitter float64, rnd *rand.Rand, fire FireFunc) *Set {
	return &Set{
		Connect:  New(Connect, jitter, rnd, fire),
		Open:     New(Open, 0, rnd, fire),
		Hold:     New(Hold, 0, rnd, fire),
		IdleHold: New(IdleHold, jitter, rnd, fire),
	}
}

// CancelAll disarms every timer in the set. Used on Shutdown and whenever a
// state entry requires tearing down timers it doesn't own (§4.3 table).
func (s *Set) CancelAll() {
	s.Connect.Cancel()
	s.Open.Cancel()
	s.Hold.Cancel()
	s.IdleHold.Cancel()
}
