package model

import "time"

// Notification records one inbound or outbound BGP NOTIFICATION, kept for
// the observability accessors in §6 and for the round-trip law in §8: a
// query of the observer interface must return the same (code, subcode,
// reason) triple that was last recorded.
type Notification struct {
	Code    uint8
	Subcode uint8
	Reason  string
	At      time.Time
}

// RFC 4271 §6 notification error codes.
const (
	NotifCodeMessageHeaderError uint8 = 1
	NotifCodeOpenMessageError   uint8 = 2
	NotifCodeUpdateMessageError uint8 = 3
	NotifCodeHoldTimerExpired   uint8 = 4
	NotifCodeFSMError           uint8 = 5
	NotifCodeCease              uint8 = 6
)
