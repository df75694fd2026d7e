// Package bgpfsm is the top-level entry point: it wires together a peer's
// config, transport and the per-peer state machine in pkg/fsm into one
// runnable Peer, the way the teacher's root package wires a node's config,
// RPC transport and consensus state machine into one runnable Elect.
package bgpfsm

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/danl5/bgpfsm/pkg/config"
	"github.com/danl5/bgpfsm/pkg/fsm"
	"github.com/danl5/bgpfsm/pkg/metrics"
	"github.com/danl5/bgpfsm/pkg/model"
	"github.com/danl5/bgpfsm/pkg/transport/tcp"
)

// PeerConfig describes one BGP peering session end to end: local identity,
// the remote endpoint to dial, the local address to listen on for the
// peer's own outbound connect, and the FSM timing constants.
type PeerConfig struct {
	// RouterID is this node's own BGP identifier.
	RouterID netip.Addr
	// LocalAS is this node's autonomous system number.
	LocalAS uint16
	// HoldTime is the hold time offered in our OPEN.
	HoldTime time.Duration
	// Remote is the peer's TCP endpoint to dial.
	Remote netip.AddrPort
	// ListenAddr is the local address to accept the peer's passive
	// connect on, e.g. "0.0.0.0:179".
	ListenAddr string
	// ConnectTimeout bounds an individual outbound dial attempt.
	ConnectTimeout time.Duration
	// FSM carries the §4.3 timing constants; zero fields take RFC 4271
	// defaults.
	FSM config.Config
	// Index is this peer's stable numeric identity, used as the FSM
	// worker's log field so multiple peers are distinguishable. Metrics are
	// labelled with RouterID instead.
	Index uint64
	// Registry, if non-nil, receives this peer's Prometheus metrics.
	Registry prometheus.Registerer
}

// Peer runs one peer's FSM against a live TCP transport. Construct with
// NewPeer, start with Run, stop with Shutdown.
type Peer struct {
	cfg       PeerConfig
	logger    *slog.Logger
	fsm       *fsm.FSM
	transport *tcp.Transport
	metrics   *metrics.Collector
	errChan   chan error
}

// NewPeer builds a Peer from cfg. It does not start any goroutines or
// network I/O; call Run for that.
func NewPeer(cfg PeerConfig, updateSink func(*bgp.BGPUpdate), logger *slog.Logger) (*Peer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.RouterID.IsValid() {
		return nil, fmt.Errorf("bgpfsm: new peer, router id is required")
	}
	if updateSink == nil {
		updateSink = func(*bgp.BGPUpdate) {}
	}

	var collector *metrics.Collector
	if cfg.Registry != nil {
		collector = metrics.NewCollector(cfg.RouterID.String())
		if err := collector.Register(cfg.Registry); err != nil {
			return nil, fmt.Errorf("bgpfsm: register metrics: %w", err)
		}
	}

	peerInfo := &staticPeerInfo{
		routerID: cfg.RouterID,
		localAS:  cfg.LocalAS,
		holdTime: cfg.HoldTime,
		deliver:  updateSink,
	}

	f := fsm.New(peerInfo, fsm.Options{
		Config:  cfg.FSM,
		Logger:  logger,
		Metrics: collector,
		Index:   cfg.Index,
	})

	transport, err := tcp.New(cfg.Remote, cfg.ConnectTimeout, nil, f, logger)
	if err != nil {
		return nil, fmt.Errorf("bgpfsm: new transport: %w", err)
	}

	p := &Peer{
		cfg:       cfg,
		logger:    logger.With("component", "bgp_peer", "index", cfg.Index),
		fsm:       f,
		transport: transport,
		metrics:   collector,
		errChan:   make(chan error, 10),
	}
	f.SetDialer(transport)
	return p, nil
}

// Run starts the peer's FSM worker, its passive listener, and posts the
// initial Start event (fsm.Run posts it).
func (p *Peer) Run(ctx context.Context) error {
	p.fsm.Run(ctx)

	go func() {
		if err := p.transport.Listen(ctx, p.cfg.ListenAddr, p.fsm); err != nil {
			p.logger.Error("listen failed", "err", err)
			p.sendError(err)
		}
	}()

	p.logger.Info("peer started")
	return nil
}

// Shutdown stops the FSM worker and tears down any live sessions.
func (p *Peer) Shutdown() {
	p.fsm.Shutdown()
	if p.metrics != nil && p.cfg.Registry != nil {
		p.metrics.Unregister(p.cfg.Registry)
	}
}

// Errors returns a receive-only channel of asynchronous transport errors.
func (p *Peer) Errors() <-chan error {
	return p.errChan
}

// CurrentState returns the FSM's current state name.
func (p *Peer) CurrentState() string {
	return p.fsm.StateName()
}

// SetAdminState toggles the peer's administrative state.
func (p *Peer) SetAdminState(down bool) {
	p.fsm.SetAdminState(down)
}

func (p *Peer) sendError(err error) {
	select {
	case p.errChan <- err:
	default:
	}
}

// staticPeerInfo is the simplest possible model.PeerInfo: fixed identity
// and policy, no live admin-state source beyond what SetAdminState pushes
// into the FSM directly.
type staticPeerInfo struct {
	routerID netip.Addr
	localAS  uint16
	holdTime time.Duration
	deliver  func(*bgp.BGPUpdate)
}

func (p *staticPeerInfo) RouterID() netip.Addr              { return p.routerID }
func (p *staticPeerInfo) LocalAS() uint16                   { return p.localAS }
func (p *staticPeerInfo) ConfiguredHoldTime() time.Duration { return p.holdTime }
func (p *staticPeerInfo) AdminDown() bool                   { return false }
func (p *staticPeerInfo) DeliverUpdate(msg *bgp.BGPUpdate)  { p.deliver(msg) }

var _ model.PeerInfo = (*staticPeerInfo)(nil)
