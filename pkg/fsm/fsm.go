// Package fsm implements the BGP peer finite state machine from spec §4.3:
// the six states, their transition table, collision resolution and
// teardown. It is the single mutator of peer session state; everything
// else in this module only posts events to it or observes it.
package fsm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	lfsm "github.com/looplab/fsm"

	"github.com/danl5/bgpfsm/pkg/bgpmsg"
	"github.com/danl5/bgpfsm/pkg/config"
	"github.com/danl5/bgpfsm/pkg/metrics"
	"github.com/danl5/bgpfsm/pkg/model"
	"github.com/danl5/bgpfsm/pkg/queue"
	"github.com/danl5/bgpfsm/pkg/timerset"
)

// looplab transition names. Each names the state it lands in; the incoming
// src set covers every state §4.3 allows that destination from. Conditional
// logic (which concrete outcome a given model.Event produces) is decided in
// dispatch.go before one of these is fired — this file only owns the
// static graph and its per-state enter/leave side effects.
const (
	evToActive      = "to_active"
	evToConnect     = "to_connect"
	evToOpenSent    = "to_open_sent"
	evToOpenConfirm = "to_open_confirm"
	evToEstablished = "to_established"
	evToIdle        = "to_idle"
)

// Options configures a new FSM.
type Options struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Parser  bgpmsg.Parser
	Dialer  Dialer
	Rand    *rand.Rand // injectable for deterministic timer jitter in tests
	Index   uint64     // stable identity used as the worker's log field
}

// FSM drives one peer's lifecycle. All mutation of its fields happens on
// the single worker goroutine started by Run; collaborators only ever post
// events through the exported methods in public.go.
type FSM struct {
	index  uint64
	cfg    config.Config
	logger *slog.Logger
	metric *metrics.Collector
	parser bgpmsg.Parser
	dialer Dialer
	peer   model.PeerInfo

	queue *queue.Queue
	sm    *lfsm.FSM
	timer *timerset.Set

	active  *model.Session
	passive *model.Session

	connectAttempts int
	holdTime        model.HoldTime
	idleHoldTime    model.IdleBackoff

	adminDown atomic.Bool
	deleted   atomic.Bool

	startedAt time.Time

	lastEvent          string
	lastStateChangeAt  time.Time
	previousState      string
	lastNotificationIn model.Notification
	lastNotifyOut      model.Notification
	remote             netip.AddrPort

	mu sync.RWMutex // guards only the observability snapshot fields above

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an FSM for peer, starting in Idle. It does not start the
// worker goroutine; call Run for that.
func New(peer model.PeerInfo, opts Options) *FSM {
	cfg := opts.Config.WithDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "bgp_fsm", "peer_index", opts.Index)

	parser := opts.Parser
	if parser == nil {
		parser = bgpmsg.GoBGPParser{}
	}

	f := &FSM{
		index:        opts.Index,
		cfg:          cfg,
		logger:       logger,
		metric:       opts.Metrics,
		parser:       parser,
		dialer:       opts.Dialer,
		peer:         peer,
		queue:        queue.New(),
		holdTime:     cfg.HoldTime,
		idleHoldTime: cfg.IdleHoldTimeInitial,
		done:         make(chan struct{}),
	}
	f.timer = timerset.NewSet(cfg.Jitter, opts.Rand, f.onTimerFire)
	f.sm = f.buildStateMachine()
	f.adminDown.Store(peer.AdminDown())
	return f
}

// Visualize returns the state graph in Graphviz format, for the
// cmd/tool/visualize helper.
func (f *FSM) Visualize() string {
	return lfsm.Visualize(f.sm)
}

func (f *FSM) buildStateMachine() *lfsm.FSM {
	return lfsm.NewFSM(
		model.StateIdle.String(),
		lfsm.Events{
			{Name: evToActive, Src: []string{model.StateIdle.String(), model.StateConnect.String()}, Dst: model.StateActive.String()},
			{Name: evToConnect, Src: []string{model.StateActive.String()}, Dst: model.StateConnect.String()},
			{Name: evToOpenSent, Src: []string{model.StateActive.String(), model.StateConnect.String()}, Dst: model.StateOpenSent.String()},
			{Name: evToOpenConfirm, Src: []string{model.StateOpenSent.String()}, Dst: model.StateOpenConfirm.String()},
			{Name: evToEstablished, Src: []string{model.StateOpenConfirm.String()}, Dst: model.StateEstablished.String()},
			{
				Name: evToIdle,
				Src: []string{
					model.StateIdle.String(),
					model.StateActive.String(),
					model.StateConnect.String(),
					model.StateOpenSent.String(),
					model.StateOpenConfirm.String(),
					model.StateEstablished.String(),
				},
				Dst: model.StateIdle.String(),
			},
		},
		lfsm.Callbacks{
			"enter_" + model.StateIdle.String():        f.enterIdle,
			"enter_" + model.StateActive.String():      f.enterActive,
			"enter_" + model.StateConnect.String():     f.enterConnect,
			"enter_" + model.StateOpenSent.String():    f.enterOpenSent,
			"enter_" + model.StateOpenConfirm.String(): f.enterOpenConfirm,
			"enter_" + model.StateEstablished.String(): f.enterEstablished,
		},
	)
}

// Run starts the worker goroutine that drains the event queue and drives
// the state machine, and posts the initial Start event. It returns right
// after launching the worker; the worker keeps running until Shutdown or
// ctx is cancelled.
func (f *FSM) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.startedAt = time.Now()
	f.setLastStateChange()

	go f.worker(ctx)

	// Start is delivered like any other event so it goes through the
	// validator/dispatch path uniformly.
	f.queue.Enqueue(model.Event{Kind: model.EventStart})
}

func (f *FSM) worker(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case <-ctx.Done():
			f.drainOnShutdown()
			return
		case <-f.queue.Signal():
			for {
				ev, ok := f.queue.Dequeue()
				if !ok {
					break
				}
				if ev.Validate != nil && !ev.Validate() {
					f.logger.Debug("discarding stale event", "kind", ev.Kind)
					continue
				}
				f.dispatch(ctx, ev)
				f.syncRemoteSnapshot()
			}
			select {
			case <-ctx.Done():
				f.drainOnShutdown()
				return
			default:
			}
		}
	}
}

func (f *FSM) drainOnShutdown() {
	f.timer.CancelAll()
	for {
		s1, s2 := f.active, f.passive
		if s1 == nil && s2 == nil {
			break
		}
		f.teardownSession(s1, "shutdown")
		f.teardownSession(s2, "shutdown")
		break
	}
	// Drain any pseudo-delete events the teardown above just enqueued so
	// sessions are actually closed before the worker exits.
	for {
		ev, ok := f.queue.Dequeue()
		if !ok {
			break
		}
		if ev.Kind == model.EventTcpDeletePseudo {
			f.finalizeDeletion(ev.Session)
		}
	}
}

// Shutdown stops the worker, tears down any sessions and marks the FSM
// permanently deleted. It blocks until the worker has exited.
func (f *FSM) Shutdown() {
	f.queue.Close()
	if f.cancel != nil {
		f.cancel()
	}
	<-f.done
	f.deleted.Store(true)
}

// SetAdminState toggles the administrative down flag, posting an
// AdminDown event the worker will process in order with everything else.
func (f *FSM) SetAdminState(down bool) {
	f.queue.Enqueue(model.Event{Kind: model.EventAdminDown, AdminDown: down})
}

func (f *FSM) onTimerFire(name timerset.Name, generation uint64) {
	var kind model.EventKind
	switch name {
	case timerset.Connect:
		kind = model.EventConnectTimerExpired
	case timerset.Open:
		kind = model.EventOpenTimerExpired
	case timerset.Hold:
		kind = model.EventHoldTimerExpired
	case timerset.IdleHold:
		kind = model.EventIdleHoldTimerExpired
	}
	if f.metric != nil {
		f.metric.ObserveTimerFire(string(name))
	}
	t := f.timerFor(name)
	f.queue.Enqueue(model.Event{
		Kind:       kind,
		Generation: generation,
		Validate:   t.ValidAt(generation),
	})
}

func (f *FSM) timerFor(name timerset.Name) *timerset.Timer {
	switch name {
	case timerset.Connect:
		return f.timer.Connect
	case timerset.Open:
		return f.timer.Open
	case timerset.Hold:
		return f.timer.Hold
	default:
		return f.timer.IdleHold
	}
}

// fireTo drives the underlying state machine to a named transition,
// recording observability fields and metrics. It panics on an illegal
// transition: a dispatch.go bug that fires an event from a state the graph
// doesn't allow is a programming error, not a runtime condition to recover
// from, matching the teacher's "faulty state migration is unacceptable"
// stance.
func (f *FSM) fireTo(ctx context.Context, name string, args ...interface{}) {
	src := f.sm.Current()
	if !f.sm.Can(name) {
		panic(fmt.Sprintf("bgp fsm: illegal transition %q from state %s", name, src))
	}
	if err := f.sm.Event(ctx, name, args...); err != nil {
		panic(fmt.Sprintf("bgp fsm: transition %q from state %s failed: %v", name, src, err))
	}
	dst := f.sm.Current()
	f.mu.Lock()
	f.lastStateChangeAt = time.Now()
	f.previousState = src
	f.mu.Unlock()
	if f.metric != nil {
		f.metric.ObserveTransition(src, dst)
	}
	f.logger.Info("state transition", "src", src, "dst", dst)
	if dst == model.StateEstablished.String() && f.metric != nil {
		f.metric.ObserveConvergence(time.Since(f.startedAt))
	}
}

// syncRemoteSnapshot mirrors whichever session is currently bound into the
// mutex-guarded observability fields, so RemoteAddr (called from outside the
// worker goroutine) never touches f.active/f.passive directly. Called once
// per dispatched event, from the worker goroutine only.
func (f *FSM) syncRemoteSnapshot() {
	var addr netip.AddrPort
	switch {
	case f.active != nil:
		addr = f.active.RemoteAddr()
	case f.passive != nil:
		addr = f.passive.RemoteAddr()
	}
	f.mu.Lock()
	f.remote = addr
	f.mu.Unlock()
}

func (f *FSM) setLastStateChange() {
	f.mu.Lock()
	f.lastStateChangeAt = time.Now()
	f.mu.Unlock()
}

func (f *FSM) recordLastEvent(kind model.EventKind) {
	f.mu.Lock()
	f.lastEvent = string(kind)
	f.mu.Unlock()
}

// negotiateHoldTime applies the smaller-of rule from §4.3 OpenSent.
func negotiateHoldTime(ours, theirs model.HoldTime) model.HoldTime {
	if theirs < ours {
		return theirs
	}
	return ours
}

// compareRouterID returns -1, 0 or 1 comparing a and b as big-endian
// 32-bit BGP Identifiers.
func compareRouterID(a, b netip.Addr) int {
	ab, bb := a.As4(), b.As4()
	for i := 0; i < 4; i++ {
		if ab[i] != bb[i] {
			if ab[i] < bb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
