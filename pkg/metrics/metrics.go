// Package metrics exposes Prometheus instrumentation for a peer FSM. It is
// purely observational: the FSM never reads its own metrics back to decide
// anything.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the per-peer metric vectors. One Collector is created per
// FSM instance and registered against a caller-supplied registry.
type Collector struct {
	Transitions       *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec
	NotificationsRecv *prometheus.CounterVec
	TimerFires        *prometheus.CounterVec
	ConvergenceTime   prometheus.Histogram

	peer string
}

// NewCollector builds a Collector labeled with peerID, the stable identity
// used to distinguish this peer's series from others registered against
// the same registry.
func NewCollector(peerID string) *Collector {
	return &Collector{
		peer: peerID,
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bgp_fsm",
			Name:      "transitions_total",
			Help:      "Number of FSM state transitions, by source and destination state.",
		}, []string{"peer", "src", "dst"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bgp_fsm",
			Name:      "notifications_sent_total",
			Help:      "Number of NOTIFICATION messages sent, by code and subcode.",
		}, []string{"peer", "code", "subcode"}),
		NotificationsRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bgp_fsm",
			Name:      "notifications_received_total",
			Help:      "Number of NOTIFICATION messages received, by code and subcode.",
		}, []string{"peer", "code", "subcode"}),
		TimerFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bgp_fsm",
			Name:      "timer_fires_total",
			Help:      "Number of timer expirations delivered to the FSM, by timer name.",
		}, []string{"peer", "timer"}),
		ConvergenceTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bgp_fsm",
			Name:      "convergence_seconds",
			Help:      "Elapsed time from Start to the first Established transition.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Register adds every metric to reg. Register is idempotent-unsafe by
// design, matching prometheus.Registerer semantics: callers must call it at
// most once per Collector.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.Transitions, c.NotificationsSent, c.NotificationsRecv, c.TimerFires, c.ConvergenceTime} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes every metric from reg, used on Shutdown.
func (c *Collector) Unregister(reg prometheus.Registerer) {
	for _, col := range []prometheus.Collector{c.Transitions, c.NotificationsSent, c.NotificationsRecv, c.TimerFires, c.ConvergenceTime} {
		reg.Unregister(col)
	}
}

func (c *Collector) ObserveTransition(src, dst string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(c.peer, src, dst).Inc()
}

func (c *Collector) ObserveNotificationSent(code, subcode uint8) {
	if c == nil {
		return
	}
	c.NotificationsSent.WithLabelValues(c.peer, strconv.Itoa(int(code)), strconv.Itoa(int(subcode))).Inc()
}

func (c *Collector) ObserveNotificationRecv(code, subcode uint8) {
	if c == nil {
		return
	}
	c.NotificationsRecv.WithLabelValues(c.peer, strconv.Itoa(int(code)), strconv.Itoa(int(subcode))).Inc()
}

func (c *Collector) ObserveTimerFire(name string) {
	if c == nil {
		return
	}
	c.TimerFires.WithLabelValues(c.peer, name).Inc()
}

func (c *Collector) ObserveConvergence(d time.Duration) {
	if c == nil {
		return
	}
	c.ConvergenceTime.Observe(d.Seconds())
}
