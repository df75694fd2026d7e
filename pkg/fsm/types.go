package fsm

import "github.com/danl5/bgpfsm/pkg/model"

// SessionEventKind is the outcome a transport reports for a session through
// SessionSink, matching the TcpConnected/TcpConnectFailed/TcpClosed events
// of spec §3.
type SessionEventKind int

const (
	SessionConnected SessionEventKind = iota
	SessionConnectFailed
	SessionClosed
)

// SessionSink is the collaborator-facing surface a transport implementation
// reports outcomes through (§6 "Exposed to collaborators"). The FSM itself
// implements it.
type SessionSink interface {
	// OnSessionEvent reports a connected/connect-failed/closed outcome for
	// an existing session (or, for ConnectFailed, the in-flight dial).
	OnSessionEvent(s *model.Session, ev SessionEventKind)
	// PassiveOpen hands the FSM a newly accepted inbound session.
	PassiveOpen(s *model.Session)
}

// Dialer is the consumed "Transport: Connect(endpoint)" collaborator from
// §6. Dial must not block; the outcome is reported asynchronously through
// sink.OnSessionEvent.
type Dialer interface {
	Dial(sink SessionSink)
}

// idleReason distinguishes the three uniform Idle-entry helpers from §4.3.
type idleReason int

const (
	idleReasonPlain        idleReason = iota // OnIdle: no notification sent
	idleReasonSendNotif                      // OnIdleError: send a notification before dropping
	idleReasonRecordNotif                    // OnIdleNotification: record an inbound notification
	idleReasonAdminDown                       // administrative shutdown: no backoff timer armed
)

// idleArgs is passed as the looplab fsm.Event Args[0] for the "to_idle"
// transition, carrying everything the enter_Idle callback needs to decide
// which of OnIdle/OnIdleError/OnIdleNotification applies.
type idleArgs struct {
	reason idleReason

	// for idleReasonSendNotif: who to notify and with what.
	notifySession *model.Session
	code, subcode uint8
	message       string

	// for idleReasonRecordNotif: the notification the peer sent us.
	inbound *model.Notification
}
