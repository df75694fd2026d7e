package fsm

import (
	"context"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"github.com/danl5/bgpfsm/pkg/bgpmsg"
	"github.com/danl5/bgpfsm/pkg/fsmerr"
	"github.com/danl5/bgpfsm/pkg/model"
)

// dispatch is the per-state transition table from spec §4.3, translated
// into the looplab event graph built in fsm.go. Every branch either calls
// fireTo (a real state change) or mutates same-state side effects directly
// (a self-loop the looplab graph doesn't need to know about).
func (f *FSM) dispatch(ctx context.Context, ev model.Event) {
	f.recordLastEvent(ev.Kind)

	switch f.sm.Current() {
	case model.StateIdle.String():
		f.handleIdle(ctx, ev)
	case model.StateActive.String():
		f.handleActive(ctx, ev)
	case model.StateConnect.String():
		f.handleConnect(ctx, ev)
	case model.StateOpenSent.String():
		f.handleOpenSent(ctx, ev)
	case model.StateOpenConfirm.String():
		f.handleOpenConfirm(ctx, ev)
	case model.StateEstablished.String():
		f.handleEstablished(ctx, ev)
	}
}

func (f *FSM) handleIdle(ctx context.Context, ev model.Event) {
	switch ev.Kind {
	case model.EventStart, model.EventIdleHoldTimerExpired:
		f.fireTo(ctx, evToActive)
	case model.EventAdminDown:
		f.adminDown.Store(ev.AdminDown)
		if ev.AdminDown {
			f.timer.IdleHold.Cancel()
			f.teardownAll(ctx)
		}
	case model.EventTcpDeletePseudo:
		f.finalizeDeletion(ev.Session)
	default:
		// Idle's own bullet list overrides the general stray-event rule:
		// "all other events: discard (log as stray)", not OnIdleError —
		// there is nowhere further down to go.
		f.strayEvent(ev)
	}
}

func (f *FSM) handleActive(ctx context.Context, ev model.Event) {
	switch ev.Kind {
	case model.EventConnectTimerExpired:
		if f.dialer != nil {
			f.dialer.Dial(f)
		}
		f.fireTo(ctx, evToConnect)
	case model.EventTcpPassiveOpen:
		f.passive = ev.Session
		f.timer.Open.Start(f.cfg.OpenTime)
		f.sendOpen(ev.Session)
		f.fireTo(ctx, evToOpenSent)
	case model.EventTcpClosed:
		if f.passive == ev.Session {
			f.passive = nil
		}
	case model.EventBgpNotification:
		f.onIdleNotification(ctx, ev)
	case model.EventBgpHeaderError, model.EventBgpOpenError, model.EventBgpUpdateError:
		f.onIdleErrorFromCtx(ctx, ev)
	case model.EventAdminDown:
		f.handleAdminDown(ctx, ev)
	case model.EventTcpDeletePseudo:
		f.finalizeDeletion(ev.Session)
	default:
		f.strayToIdle(ctx, ev)
	}
}

func (f *FSM) handleConnect(ctx context.Context, ev model.Event) {
	switch ev.Kind {
	case model.EventTcpConnected:
		f.active = ev.Session
		f.timer.Open.Start(f.cfg.OpenTime)
		f.sendOpen(ev.Session)
		f.fireTo(ctx, evToOpenSent)
	case model.EventTcpConnectFailed:
		f.connectAttempts++
		f.timer.Connect.Start(f.cfg.ConnectInterval)
	case model.EventTcpPassiveOpen:
		if f.passive != nil && f.passive != ev.Session {
			f.teardownSession(f.passive, "replaced by newer passive open")
		}
		f.passive = ev.Session
	case model.EventConnectTimerExpired:
		if f.active != nil {
			f.teardownSession(f.active, "connect retry")
			f.active = nil
		}
		if f.passive != nil {
			f.teardownSession(f.passive, "connect retry")
		}
		f.fireTo(ctx, evToActive)
	case model.EventAdminDown:
		f.handleAdminDown(ctx, ev)
	case model.EventTcpDeletePseudo:
		f.finalizeDeletion(ev.Session)
	default:
		f.strayToIdle(ctx, ev)
	}
}

func (f *FSM) handleOpenSent(ctx context.Context, ev model.Event) {
	switch ev.Kind {
	case model.EventBgpOpen:
		f.onOpenSentOpen(ctx, ev)
	case model.EventHoldTimerExpired, model.EventOpenTimerExpired:
		f.onIdleError(ctx, f.sessionFor(ev), model.NotifCodeHoldTimerExpired, 0, "hold timer expired in OpenSent")
	case model.EventTcpClosed:
		f.dropSession(ctx, ev.Session)
	case model.EventBgpHeaderError, model.EventBgpOpenError:
		f.onIdleErrorFromCtx(ctx, ev)
	case model.EventAdminDown:
		f.handleAdminDown(ctx, ev)
	case model.EventTcpDeletePseudo:
		f.finalizeDeletion(ev.Session)
	default:
		f.strayToIdle(ctx, ev)
	}
}

func (f *FSM) onOpenSentOpen(ctx context.Context, ev model.Event) {
	s := ev.Session
	open, ok := ev.Msg.Body.(*bgp.BGPOpen)
	if !ok || s == nil {
		f.strayToIdle(ctx, ev)
		return
	}
	routerID, _, theirHold := bgpmsg.OpenFields(open)
	if theirHold > 0 && theirHold < 3*time.Second {
		f.onIdleError(ctx, s, model.NotifCodeOpenMessageError, 6, fsmerr.ErrUnacceptableHoldTime.Error())
		return
	}
	s.MarkOpenSeen(routerID)
	f.holdTime = negotiateHoldTime(f.cfg.HoldTime, model.HoldTime(theirHold))
	if err := s.Send(mustSerialize(bgpmsg.NewKeepalive())); err != nil {
		f.dropSession(ctx, s)
		return
	}
	f.timer.Hold.Start(f.holdTime.Duration())

	// Both slots live: hold here in OpenSent until the other session has
	// also exchanged OPEN, so collision resolution always sees both sides
	// rather than racing the first arrival straight through to OpenConfirm.
	if f.active != nil && f.passive != nil {
		if !f.active.SeenOpen() || !f.passive.SeenOpen() {
			return
		}
		winner, loser := f.resolveCollision(f.active, f.passive)
		if winner == nil {
			f.onIdleError(ctx, s, model.NotifCodeCease, 0, fsmerr.ErrRouterIDTie.Error())
			return
		}
		_ = loser.Send(mustSerialize(bgpmsg.NewNotification(model.NotifCodeCease, 0, nil)))
		f.teardownSession(loser, "collision loser")
		f.assignSession(winner)
	}
	f.fireTo(ctx, evToOpenConfirm)
}

func (f *FSM) handleOpenConfirm(ctx context.Context, ev model.Event) {
	switch ev.Kind {
	case model.EventBgpKeepalive:
		f.idleHoldTime = 0
		f.timer.Hold.Start(f.holdTime.Duration())
		f.fireTo(ctx, evToEstablished)
	case model.EventHoldTimerExpired:
		f.onIdleError(ctx, f.sessionFor(ev), model.NotifCodeHoldTimerExpired, 0, "hold timer expired in OpenConfirm")
	case model.EventBgpNotification:
		f.onIdleNotification(ctx, ev)
	case model.EventTcpClosed:
		f.dropSession(ctx, ev.Session)
	case model.EventAdminDown:
		f.handleAdminDown(ctx, ev)
	case model.EventTcpDeletePseudo:
		f.finalizeDeletion(ev.Session)
	default:
		f.strayToIdle(ctx, ev)
	}
}

func (f *FSM) handleEstablished(ctx context.Context, ev model.Event) {
	switch ev.Kind {
	case model.EventBgpKeepalive:
		f.timer.Hold.Start(f.holdTime.Duration())
	case model.EventBgpUpdate:
		f.timer.Hold.Start(f.holdTime.Duration())
		if update, ok := ev.Msg.Body.(*bgp.BGPUpdate); ok {
			f.peer.DeliverUpdate(update)
		}
	case model.EventBgpNotification:
		f.onIdleNotification(ctx, ev)
	case model.EventHoldTimerExpired:
		f.onIdleError(ctx, f.sessionFor(ev), model.NotifCodeHoldTimerExpired, 0, "hold timer expired in Established")
	case model.EventTcpClosed:
		f.onIdle(ctx)
	case model.EventAdminDown:
		f.handleAdminDown(ctx, ev)
	case model.EventTcpDeletePseudo:
		f.finalizeDeletion(ev.Session)
	default:
		f.strayToIdle(ctx, ev)
	}
}

func (f *FSM) handleAdminDown(ctx context.Context, ev model.Event) {
	f.adminDown.Store(ev.AdminDown)
	if !ev.AdminDown {
		return
	}
	f.fireTo(ctx, evToIdle, idleArgs{reason: idleReasonAdminDown})
}

// dropSession implements the OpenSent/OpenConfirm "TcpClosed(s): drop s; if
// no sessions remain, go Idle; else stay on the other" rule.
func (f *FSM) dropSession(ctx context.Context, s *model.Session) {
	if s == nil {
		return
	}
	if f.active == s {
		f.active = nil
	}
	if f.passive == s {
		f.passive = nil
	}
	f.teardownSession(s, "tcp closed")
	if f.active == nil && f.passive == nil {
		f.onIdle(ctx)
	}
}

// onIdle is the uniform OnIdle helper: standard drop, no notification.
func (f *FSM) onIdle(ctx context.Context) {
	f.fireTo(ctx, evToIdle, idleArgs{reason: idleReasonPlain})
}

// onIdleError is the uniform OnIdleError helper: send a notification on s
// before dropping to Idle.
func (f *FSM) onIdleError(ctx context.Context, s *model.Session, code, subcode uint8, message string) {
	f.fireTo(ctx, evToIdle, idleArgs{
		reason:        idleReasonSendNotif,
		notifySession: s,
		code:          code,
		subcode:       subcode,
		message:       message,
	})
}

// onIdleErrorFromCtx adapts a parser-reported ErrorContext into the uniform
// OnIdleError helper.
func (f *FSM) onIdleErrorFromCtx(ctx context.Context, ev model.Event) {
	code, subcode := model.NotifCodeFSMError, uint8(0)
	if ev.ErrCtx != nil {
		code, subcode = ev.ErrCtx.Code, ev.ErrCtx.Subcode
	}
	f.onIdleError(ctx, f.sessionFor(ev), code, subcode, "message parse error")
}

// onIdleNotification is the uniform OnIdleNotification helper: record the
// inbound notification, send nothing, drop to Idle.
func (f *FSM) onIdleNotification(ctx context.Context, ev model.Event) {
	var n model.Notification
	if nmsg, ok := ev.Msg.Body.(*bgp.BGPNotification); ok {
		n = model.Notification{Code: nmsg.ErrorCode, Subcode: nmsg.ErrorSubcode}
	}
	f.fireTo(ctx, evToIdle, idleArgs{reason: idleReasonRecordNotif, inbound: &n})
}

// teardownAll detaches both slots immediately, then closes whichever
// sessions were bound concurrently, so neither Close() blocks the other. It
// runs on every entry to Idle (enterIdle) and on AdminDown while in Idle;
// Shutdown instead goes through teardownSession and the pseudo-delete path.
func (f *FSM) teardownAll(ctx context.Context) {
	active, passive := f.active, f.passive
	f.active, f.passive = nil, nil
	if active == nil && passive == nil {
		return
	}
	if err := teardownConcurrently(ctx, active, passive); err != nil {
		f.logger.Debug("session teardown returned error", "err", err)
	}
}

func (f *FSM) strayEvent(ev model.Event) {
	f.logger.Warn("stray event discarded", "state", f.sm.Current(), "kind", ev.Kind)
}

// strayToIdle implements error class 3 from §7: an event that doesn't match
// the current state's transition table is logged as an FSM Error and
// treated as OnIdleError(code 5), everywhere except Idle itself.
func (f *FSM) strayToIdle(ctx context.Context, ev model.Event) {
	f.strayEvent(ev)
	f.onIdleError(ctx, f.sessionFor(ev), model.NotifCodeFSMError, 0, "unexpected event "+string(ev.Kind))
}

func (f *FSM) sessionFor(ev model.Event) *model.Session {
	if ev.Session != nil {
		return ev.Session
	}
	if f.active != nil {
		return f.active
	}
	return f.passive
}

func (f *FSM) sendOpen(s *model.Session) {
	msg := bgpmsg.NewOpen(f.peer.LocalAS(), f.peer.ConfiguredHoldTime(), f.peer.RouterID())
	_ = s.Send(mustSerialize(msg))
}

func mustSerialize(msg *bgp.BGPMessage) []byte {
	b, err := bgpmsg.Serialize(msg)
	if err != nil {
		return nil
	}
	return b
}
