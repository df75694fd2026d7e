package model

import (
	"errors"
	"net/netip"
	"sync/atomic"
)

// ErrSessionClosed is returned by Send once Close has run on the session.
var ErrSessionClosed = errors.New("model: session is closed")

// Direction records which side of the peering initiated the TCP session.
type Direction int

const (
	// DirectionActive is a session the local side initiated.
	DirectionActive Direction = iota
	// DirectionPassive is a session accepted from the remote side.
	DirectionPassive
)

func (d Direction) String() string {
	if d == DirectionActive {
		return "active"
	}
	return "passive"
}

// Conn is the minimal socket surface a Session needs from the transport
// collaborator: a non-blocking write, a close, and the remote endpoint.
// The transport itself (dialing, accepting, framing) is out of scope for
// this module; Conn is the seam a caller's transport implementation fills.
type Conn interface {
	Send(b []byte) error
	Close() error
	RemoteAddr() netip.AddrPort
}

// Session represents one TCP connection to the peer, owned exclusively by
// the FSM from the moment it is bound into an active/passive slot until
// the FSM posts a delete-session pseudo-event for it.
//
// A Session carries a generation: the counter value assigned when it was
// created. Transport callbacks that fire after the FSM has already detached
// the session (see teardownSession in pkg/fsm) hold only this pointer and
// the generation they captured; the FSM's dequeue-time validator re-checks
// that generation and whether the session has been closed, rather than
// trusting the callback's notion of "still valid".
type Session struct {
	generation uint64
	dir        Direction
	conn       Conn
	remote     netip.AddrPort

	closed atomic.Bool

	// seenOpen and peerRouterID are set once this session has completed
	// an OPEN exchange, for use by collision resolution.
	seenOpen     atomic.Bool
	peerRouterID netip.Addr
}

// NewSession wraps conn as a new owned session with the given generation
// and direction. The generation is assigned by the caller (the transport
// that created the connection, e.g. from its own monotonic counter).
func NewSession(generation uint64, dir Direction, conn Conn) *Session {
	return &Session{
		generation: generation,
		dir:        dir,
		conn:       conn,
		remote:     conn.RemoteAddr(),
	}
}

// Generation returns the identity stamp assigned at creation.
func (s *Session) Generation() uint64 { return s.generation }

// Direction reports whether this is the active or passive session.
func (s *Session) Direction() Direction { return s.dir }

// RemoteAddr returns the peer's TCP endpoint.
func (s *Session) RemoteAddr() netip.AddrPort { return s.remote }

// MarkOpenSeen records the router ID carried by an OPEN received on this
// session, for use by collision resolution.
func (s *Session) MarkOpenSeen(routerID netip.Addr) {
	s.peerRouterID = routerID
	s.seenOpen.Store(true)
}

// SeenOpen reports whether an OPEN has been received on this session.
func (s *Session) SeenOpen() bool { return s.seenOpen.Load() }

// PeerRouterID returns the router ID learned from this session's OPEN.
// Only meaningful once SeenOpen is true.
func (s *Session) PeerRouterID() netip.Addr { return s.peerRouterID }

// Send writes a serialized BGP message to the underlying connection. It is
// a non-blocking call into the transport's buffered socket, never the send
// itself.
func (s *Session) Send(b []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.conn.Send(b)
}

// Close tears down the underlying connection. It is idempotent.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}

// Closed reports whether Close has already run.
func (s *Session) Closed() bool { return s.closed.Load() }
