// Package tcp provides a concrete net.TCPConn-backed implementation of the
// Transport/Session collaborators consumed by pkg/fsm (§6), so the module
// is runnable end-to-end without every caller writing their own socket
// layer.
package tcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
	"github.com/silenceper/pool"

	"github.com/danl5/bgpfsm/pkg/bgpmsg"
	"github.com/danl5/bgpfsm/pkg/fsm"
	"github.com/danl5/bgpfsm/pkg/model"
)

const (
	bufPoolInitCap    = 0
	bufPoolMaxIdle    = 8
	bufPoolMaxIdleSec = 60
	bufPoolMaxCap     = 32

	headerLen = 19 // RFC 4271 §4.1: 16-byte marker + 2-byte length + 1-byte type
)

// MessageSink receives decoded BGP messages and parse failures read off a
// session's socket. *fsm.FSM implements it through OnMessage/OnMessageError.
type MessageSink interface {
	OnMessage(s *model.Session, msg *bgp.BGPMessage)
	OnMessageError(s *model.Session, ctx model.ErrorContext)
}

// Transport dials and accepts BGP sessions for one peer endpoint, and pumps
// each connection's byte stream through parser into sink. It implements
// fsm.Dialer; PassiveOpen deliveries come from Listen running in a
// caller-owned goroutine.
type Transport struct {
	endpoint netip.AddrPort
	dialer   net.Dialer
	logger   *slog.Logger
	bufPool  pool.Pool
	parser   bgpmsg.Parser
	sink     MessageSink
	gen      atomic.Uint64
}

// New builds a Transport for endpoint. dialTimeout bounds outbound connect
// attempts; logger may be nil. sink is typically the *fsm.FSM this
// transport serves.
func New(endpoint netip.AddrPort, dialTimeout time.Duration, parser bgpmsg.Parser, sink MessageSink, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if parser == nil {
		parser = bgpmsg.GoBGPParser{}
	}
	bufPool, err := pool.NewChannelPool(&pool.Config{
		InitialCap:  bufPoolInitCap,
		MaxIdle:     bufPoolMaxIdle,
		MaxCap:      bufPoolMaxCap,
		IdleTimeout: bufPoolMaxIdleSec * time.Second,
		Factory:     func() (interface{}, error) { return new(bytes.Buffer), nil },
		Close:       func(v interface{}) error { return nil },
		Ping:        func(interface{}) error { return nil },
	})
	if err != nil {
		return nil, fmt.Errorf("tcp: build write-buffer pool: %w", err)
	}
	return &Transport{
		endpoint: endpoint,
		dialer:   net.Dialer{Timeout: dialTimeout},
		logger:   logger.With("component", "bgp_tcp_transport", "endpoint", endpoint),
		bufPool:  bufPool,
		parser:   parser,
		sink:     sink,
	}, nil
}

// Dial implements fsm.Dialer. It never blocks the caller; the outcome is
// reported asynchronously through sessionSink.
func (t *Transport) Dial(sessionSink fsm.SessionSink) {
	go func() {
		raw, err := t.dialer.DialContext(context.Background(), "tcp", t.endpoint.String())
		if err != nil {
			t.logger.Debug("outbound connect failed", "err", err)
			sessionSink.OnSessionEvent(nil, fsm.SessionConnectFailed)
			return
		}
		c := t.wrap(raw)
		s := model.NewSession(t.gen.Add(1), model.DirectionActive, c)
		go t.pump(s, c)
		sessionSink.OnSessionEvent(s, fsm.SessionConnected)
	}()
}

// Listen accepts inbound connections on laddr until ctx is cancelled,
// handing each one to sessionSink.PassiveOpen. Callers run this in its own
// goroutine; it blocks until ctx is done or the listener errors.
func (t *Transport) Listen(ctx context.Context, laddr string, sessionSink fsm.SessionSink) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", laddr)
	if err != nil {
		return fmt.Errorf("tcp: listen %s: %w", laddr, err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				t.logger.Warn("accept failed", "err", err)
				continue
			}
		}
		c := t.wrap(raw)
		s := model.NewSession(t.gen.Add(1), model.DirectionPassive, c)
		go t.pump(s, c)
		sessionSink.PassiveOpen(s)
	}
}

// pump reads framed BGP messages off c until it errors or s is closed,
// handing each to the Transport's parser and reporting the result to sink.
func (t *Transport) pump(s *model.Session, c *conn) {
	var hdr [headerLen]byte
	for {
		if _, err := io.ReadFull(c.reader, hdr[:]); err != nil {
			return
		}
		length := binary.BigEndian.Uint16(hdr[16:18])
		if int(length) < headerLen {
			t.sink.OnMessageError(s, model.ErrorContext{Code: model.NotifCodeMessageHeaderError, Subcode: 2})
			return
		}
		body := make([]byte, length)
		copy(body, hdr[:])
		if _, err := io.ReadFull(c.reader, body[headerLen:]); err != nil {
			return
		}
		msg, err := t.parser.Parse(body)
		if err != nil {
			t.sink.OnMessageError(s, model.ErrorContext{Code: model.NotifCodeMessageHeaderError, Subcode: 1})
			continue
		}
		t.sink.OnMessage(s, msg)
	}
}

func (t *Transport) wrap(raw net.Conn) *conn {
	return &conn{raw: raw, bufPool: t.bufPool, reader: bufio.NewReader(raw)}
}

// conn implements model.Conn over a net.Conn, drawing its outbound write
// buffer from the pooled set rather than allocating fresh on every Send —
// BGP keepalive traffic sends small frames at a steady cadence, so reusing
// buffers avoids per-message garbage.
type conn struct {
	raw     net.Conn
	bufPool pool.Pool
	reader  *bufio.Reader
}

func (c *conn) Send(b []byte) error {
	pooled, err := c.bufPool.Get()
	if err != nil {
		_, werr := c.raw.Write(b)
		return werr
	}
	buf, ok := pooled.(*bytes.Buffer)
	if !ok {
		_, werr := c.raw.Write(b)
		return werr
	}
	buf.Reset()
	buf.Write(b)
	_, err = c.raw.Write(buf.Bytes())
	c.bufPool.Put(buf)
	return err
}

func (c *conn) Close() error {
	return c.raw.Close()
}

func (c *conn) RemoteAddr() netip.AddrPort {
	tcpAddr, ok := c.raw.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}
	}
	addr, ok := netip.AddrFromSlice(tcpAddr.IP)
	if !ok {
		return netip.AddrPort{}
	}
	return netip.AddrPortFrom(addr, uint16(tcpAddr.Port))
}
