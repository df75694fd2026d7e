package config

import (
	"time"

	"github.com/danl5/bgpfsm/pkg/model"
)

// Config holds the FSM timing constants from spec §4.3. Fields left at
// their zero value are replaced by the RFC 4271 defaults in Default() when
// the config is applied.
type Config struct {
	// OpenTime bounds how long OpenSent waits for the peer's OPEN.
	OpenTime time.Duration `json:"open_time,omitempty"`
	// ConnectInterval is the base duration of the Connect timer.
	ConnectInterval time.Duration `json:"connect_interval,omitempty"`
	// HoldTime is our side of the hold-time negotiation in OpenSent: the
	// negotiated value is the smaller of this and the peer's offer. The
	// OPEN we send advertises PeerInfo.ConfiguredHoldTime instead.
	HoldTime model.HoldTime `json:"hold_time,omitempty"`
	// OpenSentHoldTime is the fixed hold time used while in OpenSent,
	// before a hold time has been negotiated with the peer.
	OpenSentHoldTime model.HoldTime `json:"open_sent_hold_time,omitempty"`
	// IdleHoldTimeInitial is the first backoff duration spent in Idle.
	IdleHoldTimeInitial model.IdleBackoff `json:"idle_hold_time_initial,omitempty"`
	// IdleHoldTimeMax is the ceiling the backoff doubles up to.
	IdleHoldTimeMax model.IdleBackoff `json:"idle_hold_time_max,omitempty"`
	// Jitter is the fractional de-synchronization applied to the
	// Connect and IdleHold timers: their durations are multiplied by a
	// random factor in [1-Jitter, 1.0], e.g. [0.9, 1.0] for 0.1.
	Jitter float64 `json:"jitter,omitempty"`
}

// Default returns the RFC 4271 base constants from spec §4.3.
func Default() Config {
	return Config{
		OpenTime:            15 * time.Second,
		ConnectInterval:     30 * time.Second,
		HoldTime:            model.HoldTime(90 * time.Second),
		OpenSentHoldTime:    model.HoldTime(240 * time.Second),
		IdleHoldTimeInitial: model.IdleBackoff(5 * time.Second),
		IdleHoldTimeMax:     model.IdleBackoff(100 * time.Second),
		Jitter:              0.1,
	}
}

// WithDefaults fills any zero-valued field of c with the RFC 4271 default,
// leaving explicit overrides untouched.
func (c Config) WithDefaults() Config {
	d := Default()
	if c.OpenTime == 0 {
		c.OpenTime = d.OpenTime
	}
	if c.ConnectInterval == 0 {
		c.ConnectInterval = d.ConnectInterval
	}
	if c.HoldTime == 0 {
		c.HoldTime = d.HoldTime
	}
	if c.OpenSentHoldTime == 0 {
		c.OpenSentHoldTime = d.OpenSentHoldTime
	}
	if c.IdleHoldTimeInitial == 0 {
		c.IdleHoldTimeInitial = d.IdleHoldTimeInitial
	}
	if c.IdleHoldTimeMax == 0 {
		c.IdleHoldTimeMax = d.IdleHoldTimeMax
	}
	if c.Jitter == 0 {
		c.Jitter = d.Jitter
	}
	return c
}
