package model

import "github.com/osrg/gobgp/v3/pkg/packet/bgp"

// EventKind identifies the tagged variant carried by an Event.
type EventKind string

const (
	EventStart                EventKind = "start"
	EventStop                 EventKind = "stop"
	EventAdminDown            EventKind = "admin_down"
	EventTcpConnected         EventKind = "tcp_connected"
	EventTcpConnectFailed     EventKind = "tcp_connect_failed"
	EventTcpClosed            EventKind = "tcp_closed"
	EventTcpPassiveOpen       EventKind = "tcp_passive_open"
	EventTcpDeletePseudo      EventKind = "tcp_delete_pseudo"
	EventBgpOpen              EventKind = "bgp_open"
	EventBgpKeepalive         EventKind = "bgp_keepalive"
	EventBgpUpdate            EventKind = "bgp_update"
	EventBgpNotification      EventKind = "bgp_notification"
	EventBgpHeaderError       EventKind = "bgp_header_error"
	EventBgpOpenError         EventKind = "bgp_open_error"
	EventBgpUpdateError       EventKind = "bgp_update_error"
	EventConnectTimerExpired  EventKind = "connect_timer_expired"
	EventOpenTimerExpired     EventKind = "open_timer_expired"
	EventHoldTimerExpired     EventKind = "hold_timer_expired"
	EventIdleHoldTimerExpired EventKind = "idle_hold_timer_expired"
)

func (k EventKind) String() string {
	return string(k)
}

// ErrorContext describes a parse failure reported by the message parser
// collaborator; it never carries raw bytes, only what the FSM needs to pick
// a notification code/subcode.
type ErrorContext struct {
	Code    uint8
	Subcode uint8
	Data    []byte
}

// Event is a tagged variant over everything that can drive the FSM.
// Only the fields relevant to Kind are populated; the rest are zero.
//
// Validate is the validator predicate from §4.2: if non-nil, it is
// evaluated at dequeue time and the event is discarded when it returns
// false. It must be cheap and free of side effects.
type Event struct {
	Kind EventKind

	Session *Session

	AdminDown bool

	Msg *bgp.BGPMessage

	ErrCtx *ErrorContext

	// Generation ties a *TimerExpired event to the timer generation that
	// was current when the timer fired; the validator checks it against
	// the timer's current generation.
	Generation uint64

	Validate func() bool
}
