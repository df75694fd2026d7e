package model

import "time"

// HoldTime is a BGP hold time: the negotiated or configured interval a
// session tolerates without a KEEPALIVE/UPDATE before the Hold timer
// expires it (RFC 4271 §4.2, §4.4). It is a distinct type from IdleBackoff
// so the two can never be compared or added together without an explicit
// conversion — a negotiated hold time and an Idle retry delay mean
// different things even when their underlying durations happen to match.
type HoldTime time.Duration

// Duration returns h as a time.Duration, e.g. to arm a timerset.Timer.
func (h HoldTime) Duration() time.Duration { return time.Duration(h) }

// IdleBackoff is the Idle-state retry delay from the doubling backoff rule
// (idle_hold_time, §4.3/§4.4): how long the FSM waits in Idle before
// automatically retrying, doubling on every protocol-error-driven drop up
// to a configured ceiling.
type IdleBackoff time.Duration

// Duration returns b as a time.Duration, e.g. to arm a timerset.Timer.
func (b IdleBackoff) Duration() time.Duration { return time.Duration(b) }
