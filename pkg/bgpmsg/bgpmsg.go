// Package bgpmsg is the seam between the FSM core and the "parser"
// collaborator from spec §1/§6: BGP message encoding and decoding is
// assumed available, not reimplemented here. This package wraps
// github.com/osrg/gobgp/v3's wire codec so the FSM only ever deals in
// typed *bgp.BGPMessage values, never raw bytes.
package bgpmsg

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"github.com/danl5/bgpfsm/pkg/model"
)

// Parser decodes a byte stream on a session into typed BGP messages. It is
// the sole producer of BgpOpen/Keepalive/Update/Notification events; parse
// failures are returned as an error instead of a message.
type Parser interface {
	Parse(raw []byte) (*bgp.BGPMessage, error)
}

// GoBGPParser implements Parser on top of gobgp's wire codec.
type GoBGPParser struct{}

// Parse decodes one complete BGP message from raw.
func (GoBGPParser) Parse(raw []byte) (*bgp.BGPMessage, error) {
	msg, err := bgp.ParseBGPMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("bgpmsg: parse: %w", err)
	}
	return msg, nil
}

// NewOpen builds an OPEN message advertising localAS, holdTime (truncated
// to whole seconds, as the wire format requires) and routerID.
func NewOpen(localAS uint16, holdTime time.Duration, routerID netip.Addr) *bgp.BGPMessage {
	return bgp.NewBGPOpenMessage(localAS, uint16(holdTime/time.Second), routerID.String(), nil)
}

// NewKeepalive builds a KEEPALIVE message.
func NewKeepalive() *bgp.BGPMessage {
	return bgp.NewBGPKeepAliveMessage()
}

// NewNotification builds a NOTIFICATION carrying code/subcode and an
// optional diagnostic payload.
func NewNotification(code, subcode uint8, data []byte) *bgp.BGPMessage {
	return bgp.NewBGPNotificationMessage(code, subcode, data)
}

// Serialize encodes msg to its wire form using gobgp's codec.
func Serialize(msg *bgp.BGPMessage) ([]byte, error) {
	b, err := msg.Serialize()
	if err != nil {
		return nil, fmt.Errorf("bgpmsg: serialize: %w", err)
	}
	return b, nil
}

// Kind classifies a decoded message by its header type, matching the
// *bgp.BGPOpen / *bgp.BGPUpdate / *bgp.BGPNotification / *bgp.BGPKeepAlive
// body types gobgp produces.
func Kind(msg *bgp.BGPMessage) model.EventKind {
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
		return ""
	}
}

// OpenFields extracts the router ID, AS and hold time a peer advertised in
// its OPEN, for the negotiation step in OpenSent (§4.3).
func OpenFields(open *bgp.BGPOpen) (routerID netip.Addr, as uint16, holdTime time.Duration) {
	addr, _ := netip.AddrFromSlice(open.ID.To4())
	return addr, open.MyAS, time.Duration(open.HoldTime) * time.Second
}
