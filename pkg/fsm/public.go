package fsm

import (
	"net/netip"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"github.com/danl5/bgpfsm/pkg/fsmerr"
	"github.com/danl5/bgpfsm/pkg/model"
)

// SetDialer installs the transport used to make outbound connections. It
// must be called before Run; it exists separately from Options because a
// transport's constructor typically needs the FSM itself as its message
// sink, creating an unavoidable construction-order cycle the caller breaks
// by building the FSM first and wiring the dialer in afterward.
func (f *FSM) SetDialer(d Dialer) {
	f.dialer = d
}

// Initialize posts a Start event. Run already posts the initial Start when
// it launches the worker, so Initialize adds a further one: it moves the FSM
// from Idle to Active, and in any other state it is dispatched as a stray
// event. It returns ErrShutdown if the FSM has already been torn down.
func (f *FSM) Initialize() error {
	if f.deleted.Load() {
		return fsmerr.ErrShutdown
	}
	f.queue.Enqueue(model.Event{Kind: model.EventStart})
	return nil
}

// OnSessionEvent implements SessionSink: a transport reports a connect
// outcome for an in-flight dial, or a close for a session already bound.
func (f *FSM) OnSessionEvent(s *model.Session, ev SessionEventKind) {
	switch ev {
	case SessionConnected:
		f.queue.Enqueue(model.Event{Kind: model.EventTcpConnected, Session: s})
	case SessionConnectFailed:
		f.queue.Enqueue(model.Event{Kind: model.EventTcpConnectFailed, Session: s})
	case SessionClosed:
		gen := s.Generation()
		f.queue.Enqueue(model.Event{
			Kind:     model.EventTcpClosed,
			Session:  s,
			Validate: func() bool { return s.Generation() == gen && !s.Closed() },
		})
	}
}

// PassiveOpen hands the FSM a newly accepted inbound session.
func (f *FSM) PassiveOpen(s *model.Session) {
	f.queue.Enqueue(model.Event{Kind: model.EventTcpPassiveOpen, Session: s})
}

// OnMessage delivers a parsed BGP message received on s.
func (f *FSM) OnMessage(s *model.Session, msg *bgp.BGPMessage) {
	gen := s.Generation()
	f.queue.Enqueue(model.Event{
		Kind:     msgKind(msg),
		Session:  s,
		Msg:      msg,
		Validate: func() bool { return s.Generation() == gen && !s.Closed() },
	})
}

// OnMessageError delivers a parse failure observed on s.
func (f *FSM) OnMessageError(s *model.Session, errCtx model.ErrorContext) {
	gen := s.Generation()
	kind := model.EventBgpHeaderError
	switch errCtx.Code {
	case model.NotifCodeOpenMessageError:
		kind = model.EventBgpOpenError
	case model.NotifCodeUpdateMessageError:
		kind = model.EventBgpUpdateError
	}
	f.queue.Enqueue(model.Event{
		Kind:     kind,
		Session:  s,
		ErrCtx:   &errCtx,
		Validate: func() bool { return s.Generation() == gen && !s.Closed() },
	})
}

func msgKind(msg *bgp.BGPMessage) model.EventKind {
	switch msg.Body.(type) {
	case *bgp.BGPOpen:
		return model.EventBgpOpen
	case *bgp.BGPUpdate:
		return model.EventBgpUpdate
	case *bgp.BGPNotification:
		return model.EventBgpNotification
	case *bgp.BGPKeepAlive:
		return model.EventBgpKeepalive
	default:
		return model.EventBgpHeaderError
	}
}

// StateName returns the FSM's current state.
func (f *FSM) StateName() string {
	return f.sm.Current()
}

// PreviousState returns the name of the state the FSM occupied immediately
// before its current one, or the empty string before the first transition.
func (f *FSM) PreviousState() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.previousState
}

// LastEvent returns the kind of the most recently dispatched event.
func (f *FSM) LastEvent() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastEvent
}

// LastStateChangeAt returns the timestamp of the most recent transition.
func (f *FSM) LastStateChangeAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastStateChangeAt
}

// LastNotificationIn returns the most recently recorded inbound
// notification, zero-valued if none has been received yet.
func (f *FSM) LastNotificationIn() model.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastNotificationIn
}

// LastNotificationOut returns the most recently recorded outbound
// notification, zero-valued if none has been sent yet.
func (f *FSM) LastNotificationOut() model.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastNotifyOut
}

// AdminDown reports the current administrative state.
func (f *FSM) AdminDown() bool {
	return f.adminDown.Load()
}

// RemoteAddr returns the endpoint of whichever session is currently bound
// (active takes priority over passive), or ErrNoSession if neither slot is
// occupied, e.g. while Idle or Active/Connect before a TCP session exists.
func (f *FSM) RemoteAddr() (netip.AddrPort, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.remote.IsValid() {
		return netip.AddrPort{}, fsmerr.ErrNoSession
	}
	return f.remote, nil
}
