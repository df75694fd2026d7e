package model

import (
	"net/netip"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
)

// PeerInfo is the "Peer object" collaborator from §6: it supplies the
// local identity and policy the FSM needs, and is the sink for
// route-bearing UPDATEs. Route processing itself is out of scope (§1
// Non-goals); DeliverUpdate only needs to hand the message upward.
type PeerInfo interface {
	// RouterID is this node's own BGP identifier.
	RouterID() netip.Addr
	// LocalAS is this node's autonomous system number.
	LocalAS() uint16
	// ConfiguredHoldTime is the operator-configured hold time to offer
	// in our OPEN.
	ConfiguredHoldTime() time.Duration
	// AdminDown reports the current administrative state.
	AdminDown() bool
	// DeliverUpdate forwards a parsed UPDATE to route processing.
	DeliverUpdate(msg *bgp.BGPUpdate)
}
