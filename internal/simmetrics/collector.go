// Package simmetrics exposes Prometheus instrumentation for a running
// simulation: ticks executed, messages delivered per protocol, and
// messages dropped per reason.
package simmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/elvis/internal/core"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "elvis"
	subsystem = "sim"
)

// Label names for simulation metrics.
const (
	labelProtocol = "protocol"
	labelReason   = "reason"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Simulation Metrics
// -------------------------------------------------------------------------

// Collector holds all simulation Prometheus metrics.
//
//   - Ticks counts how many rounds Internet.Run has driven.
//   - MessagesDelivered counts messages successfully demultiplexed, per
//     protocol.
//   - MessagesDropped counts messages that could not be delivered, per
//     reason (the error each drop is attributed to).
type Collector struct {
	// Ticks counts completed simulation ticks.
	Ticks prometheus.Counter

	// MessagesDelivered counts messages a protocol's Demux accepted,
	// labeled by the protocol's name.
	MessagesDelivered *prometheus.CounterVec

	// MessagesDropped counts messages that a protocol's Demux rejected
	// or that a network could not place, labeled by a short reason string.
	MessagesDropped *prometheus.CounterVec
}

// NewCollector creates a Collector with all simulation metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Ticks,
		c.MessagesDelivered,
		c.MessagesDropped,
	)

	return c
}

// newMetrics creates all Prometheus metrics without registering them.
func newMetrics() *Collector {
	return &Collector{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ticks_total",
			Help:      "Total simulation ticks completed by Internet.Run.",
		}),

		MessagesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_delivered_total",
			Help:      "Total messages successfully demultiplexed, by protocol.",
		}, []string{labelProtocol}),

		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_dropped_total",
			Help:      "Total messages that could not be delivered, by reason.",
		}, []string{labelReason}),
	}
}

// -------------------------------------------------------------------------
// Recording
// -------------------------------------------------------------------------

// IncTicks increments the completed-ticks counter by one.
func (c *Collector) IncTicks() {
	c.Ticks.Inc()
}

// IncMessagesDelivered increments the delivered-messages counter for the
// given protocol identity.
func (c *Collector) IncMessagesDelivered(id core.ProtocolId) {
	c.MessagesDelivered.WithLabelValues(id.String()).Inc()
}

// IncMessagesDropped increments the dropped-messages counter for the given
// reason. reason should be a short, low-cardinality label (e.g. an error
// sentinel's message), never raw error text that varies per call.
func (c *Collector) IncMessagesDropped(reason string) {
	c.MessagesDropped.WithLabelValues(reason).Inc()
}
