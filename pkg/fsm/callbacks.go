package fsm

import (
	"context"
	"time"

	lfsm "github.com/looplab/fsm"

	"github.com/danl5/bgpfsm/pkg/bgpmsg"
	"github.com/danl5/bgpfsm/pkg/model"
)

// The enter_* callbacks implement the "On entry: start / cancel" table from
// spec §4.3. Each is registered once in buildStateMachine and invoked by
// looplab on the matching transition, inside the single worker goroutine
// that also runs dispatch — no locking needed between the two.

func (f *FSM) enterIdle(ctx context.Context, e *lfsm.Event) {
	f.timer.Connect.Cancel()
	f.timer.Open.Cancel()
	f.timer.Hold.Cancel()
	f.teardownAll(ctx)

	args, _ := e.Args[0].(idleArgs)
	switch args.reason {
	case idleReasonAdminDown:
		f.timer.IdleHold.Cancel()
		return
	case idleReasonSendNotif:
		if args.notifySession != nil {
			n := bgpmsg.NewNotification(args.code, args.subcode, nil)
			_ = args.notifySession.Send(mustSerialize(n))
		}
		f.recordNotificationOut(args.code, args.subcode, args.message)
		if f.metric != nil {
			f.metric.ObserveNotificationSent(args.code, args.subcode)
		}
		f.bumpIdleBackoff()
	case idleReasonRecordNotif:
		if args.inbound != nil {
			f.recordNotificationIn(*args.inbound)
			if f.metric != nil {
				f.metric.ObserveNotificationRecv(args.inbound.Code, args.inbound.Subcode)
			}
		}
		f.bumpIdleBackoff()
	case idleReasonPlain:
		// keep the current backoff unchanged; this is a transport-level
		// drop, not a protocol error.
	}

	if f.adminDown.Load() {
		return
	}
	if f.idleHoldTime <= 0 {
		f.queue.Enqueue(model.Event{Kind: model.EventStart})
		return
	}
	f.timer.IdleHold.Start(f.idleHoldTime.Duration())
}

func (f *FSM) bumpIdleBackoff() {
	next := f.idleHoldTime * 2
	if next <= 0 {
		next = f.cfg.IdleHoldTimeInitial
	}
	if next > f.cfg.IdleHoldTimeMax {
		next = f.cfg.IdleHoldTimeMax
	}
	f.idleHoldTime = next
}

// enterActive starts the retry clock and otherwise just waits: the actual
// outbound dial only happens once ConnectTimer fires (see handleActive),
// matching "Active: waiting for inbound connect or for timer to trigger
// outbound retry". Passive accepts arrive independently through
// PassiveOpen/TcpPassiveOpen, driven by the listener, not by this callback.
func (f *FSM) enterActive(ctx context.Context, e *lfsm.Event) {
	f.timer.IdleHold.Cancel()
	f.timer.Open.Cancel()
	f.timer.Hold.Cancel()
	f.timer.Connect.Start(f.cfg.ConnectInterval)
}

func (f *FSM) enterConnect(ctx context.Context, e *lfsm.Event) {
	f.timer.Open.Cancel()
	f.timer.Hold.Cancel()
	f.timer.Connect.Start(f.cfg.ConnectInterval)
}

func (f *FSM) enterOpenSent(ctx context.Context, e *lfsm.Event) {
	f.timer.Connect.Cancel()
	f.timer.Hold.Start(f.cfg.OpenSentHoldTime.Duration())
}

func (f *FSM) enterOpenConfirm(ctx context.Context, e *lfsm.Event) {
	f.timer.Connect.Cancel()
	f.timer.Open.Cancel()
}

func (f *FSM) enterEstablished(ctx context.Context, e *lfsm.Event) {
	f.timer.Connect.Cancel()
	f.timer.Open.Cancel()
}

func (f *FSM) recordNotificationOut(code, subcode uint8, reason string) {
	f.mu.Lock()
	f.lastNotifyOut = model.Notification{Code: code, Subcode: subcode, Reason: reason, At: time.Now()}
	f.mu.Unlock()
}

func (f *FSM) recordNotificationIn(n model.Notification) {
	n.At = time.Now()
	f.mu.Lock()
	f.lastNotificationIn = n
	f.mu.Unlock()
}
