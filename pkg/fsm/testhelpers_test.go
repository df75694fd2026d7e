package fsm

import (
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"github.com/danl5/bgpfsm/pkg/config"
	"github.com/danl5/bgpfsm/pkg/model"
)

// fakeConn is an in-memory model.Conn: it records every frame written to it
// instead of touching a real socket, and becomes permanently unwritable
// once Close runs.
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	remote netip.AddrPort
}

func newFakeConn(remote string) *fakeConn {
	return &fakeConn{remote: netip.MustParseAddrPort(remote)}
}

func (c *fakeConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return model.ErrSessionClosed
	}
	cp := append([]byte(nil), b...)
	c.sent = append(c.sent, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) RemoteAddr() netip.AddrPort { return c.remote }

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) last() *bgp.BGPMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	msg, _ := bgp.ParseBGPMessage(c.sent[len(c.sent)-1])
	return msg
}

// fakePeer is the simplest model.PeerInfo: fixed identity, never
// administratively down, and it stashes delivered UPDATEs on a channel a
// test can drain.
type fakePeer struct {
	routerID netip.Addr
	as       uint16
	hold     time.Duration
	updates  chan *bgp.BGPUpdate
}

func newFakePeer(routerID string, as uint16, hold time.Duration) *fakePeer {
	return &fakePeer{
		routerID: netip.MustParseAddr(routerID),
		as:       as,
		hold:     hold,
		updates:  make(chan *bgp.BGPUpdate, 4),
	}
}

func (p *fakePeer) RouterID() netip.Addr              { return p.routerID }
func (p *fakePeer) LocalAS() uint16                   { return p.as }
func (p *fakePeer) ConfiguredHoldTime() time.Duration { return p.hold }
func (p *fakePeer) AdminDown() bool                   { return false }
func (p *fakePeer) DeliverUpdate(msg *bgp.BGPUpdate)  { p.updates <- msg }

var _ model.PeerInfo = (*fakePeer)(nil)

// fakeDialer hands back a pre-built fakeConn wrapped as an active session,
// or reports a connect failure, without touching the network.
type fakeDialer struct {
	fail   bool
	remote string
}

func (d *fakeDialer) Dial(sink SessionSink) {
	go func() {
		if d.fail {
			sink.OnSessionEvent(nil, SessionConnectFailed)
			return
		}
		remote := d.remote
		if remote == "" {
			remote = "192.0.2.2:179"
		}
		s := model.NewSession(1, model.DirectionActive, newFakeConn(remote))
		sink.OnSessionEvent(s, SessionConnected)
	}()
}

// testConfig scales every §4.3/§4.4 timing constant down to millisecond
// range so scenario tests don't block on real-world hold/connect timers,
// and disables jitter for determinism except where a test opts in.
func testConfig() config.Config {
	return config.Config{
		OpenTime:            200 * time.Millisecond,
		ConnectInterval:     40 * time.Millisecond,
		HoldTime:            model.HoldTime(300 * time.Millisecond),
		OpenSentHoldTime:    model.HoldTime(500 * time.Millisecond),
		IdleHoldTimeInitial: model.IdleBackoff(30 * time.Millisecond),
		IdleHoldTimeMax:     model.IdleBackoff(200 * time.Millisecond),
		Jitter:              0,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mustAddr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}
