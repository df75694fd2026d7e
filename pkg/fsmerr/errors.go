// Package fsmerr collects the sentinel errors the FSM and its collaborators
// can return, so callers can branch with errors.Is/errors.As instead of
// string matching.
package fsmerr

import "errors"

var (
	// ErrShutdown is returned by operations attempted after Shutdown.
	ErrShutdown = errors.New("fsm: peer is shut down")
	// ErrRouterIDTie is recorded when collision resolution finds the
	// local and peer router IDs equal; RFC 4271 treats this as a
	// configuration error.
	ErrRouterIDTie = errors.New("fsm: local and peer router IDs are equal, collision resolution undefined")
	// ErrNoSession is returned when an operation needs a bound session
	// but neither active nor passive is set.
	ErrNoSession = errors.New("fsm: no session bound")
	// ErrUnacceptableHoldTime is the validation failure for an OPEN that
	// advertises a hold time in (0, 3) seconds, per RFC 4271 §6.2.
	ErrUnacceptableHoldTime = errors.New("fsm: peer advertised an unacceptable hold time")
)
