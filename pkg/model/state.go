// Package model holds the types shared by the FSM core and its
// collaborators: states, events, sessions and peer identity.
package model

// State is one of the six states of the BGP peer FSM (RFC 4271 §8).
type State int

const (
	// StateIdle is the quiescent state; no sessions are held.
	StateIdle State = iota
	// StateActive is waiting for an inbound connect, or for the connect
	// timer to trigger an outbound retry.
	StateActive
	// StateConnect has an outbound TCP connect in flight.
	StateConnect
	// StateOpenSent has sent our OPEN and is awaiting the peer's OPEN.
	StateOpenSent
	// StateOpenConfirm has exchanged OPEN and awaits a KEEPALIVE.
	StateOpenConfirm
	// StateEstablished is the steady state.
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateActive:
		return "Active"
	case StateConnect:
		return "Connect"
	case StateOpenSent:
		return "OpenSent"
	case StateOpenConfirm:
		return "OpenConfirm"
	case StateEstablished:
		return "Established"
	default:
		return "Unknown"
	}
}
