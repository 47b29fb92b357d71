// Package steeringmetrics provides a Prometheus implementation of
// steering.Metrics.
package steeringmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cococomm/steerd/internal/steering"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "steerd"
	subsystem = "steering"
)

// Label names for steering metrics.
const (
	labelState     = "state"
	labelTLVType   = "tlv_type"
	labelFromState = "from_state"
	labelToState   = "to_state"
)

// TLV type label values, matching the wire type constants in
// internal/steering/packet.go.
const (
	tlvLabelScore        = "score"
	tlvLabelCloseClient  = "close_client"
	tlvLabelClosedClient = "closed_client"
	tlvLabelUnknown      = "unknown"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Steering Metrics
// -------------------------------------------------------------------------

// Collector holds all steering Prometheus metrics and implements
// steering.Metrics so a *Context can report directly into it.
type Collector struct {
	// ClientsTotal counts every client entry ever created.
	ClientsTotal prometheus.Counter

	// ClientsByState tracks the number of client entries currently in
	// each FSM state.
	ClientsByState *prometheus.GaugeVec

	// FramesSent counts outbound TLV frames by type.
	FramesSent *prometheus.CounterVec

	// FramesDropped counts inbound frames that failed to decode or
	// carried an unrecognized TLV type.
	FramesDropped prometheus.Counter

	// StateTransitions counts FSM transitions labeled by from/to state.
	StateTransitions *prometheus.CounterVec
}

// NewCollector creates a Collector with all steering metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.ClientsTotal,
		c.ClientsByState,
		c.FramesSent,
		c.FramesDropped,
		c.StateTransitions,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		ClientsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "clients_total",
			Help:      "Total client entries created since startup.",
		}),

		ClientsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "clients_by_state",
			Help:      "Number of client entries currently in each FSM state.",
		}, []string{labelState}),

		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Total steering TLV frames transmitted, by TLV type.",
		}, []string{labelTLVType}),

		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Total inbound frames dropped due to decode failure or unknown TLV type.",
		}),

		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total client FSM state transitions, labeled by from/to state.",
		}, []string{labelFromState, labelToState}),
	}
}

// -------------------------------------------------------------------------
// steering.Metrics implementation
// -------------------------------------------------------------------------

var _ steering.Metrics = (*Collector)(nil)

// ClientCreated implements steering.Metrics.
func (c *Collector) ClientCreated() {
	c.ClientsTotal.Inc()
	c.ClientsByState.WithLabelValues(steering.StateIdle.String()).Inc()
}

// FrameDropped implements steering.Metrics.
func (c *Collector) FrameDropped() {
	c.FramesDropped.Inc()
}

// FrameSent implements steering.Metrics.
func (c *Collector) FrameSent(tlvType uint8) {
	c.FramesSent.WithLabelValues(tlvTypeLabel(tlvType)).Inc()
}

// StateTransition implements steering.Metrics.
func (c *Collector) StateTransition(from, to steering.State) {
	c.ClientsByState.WithLabelValues(from.String()).Dec()
	c.ClientsByState.WithLabelValues(to.String()).Inc()
	c.StateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// tlvTypeLabel maps a wire TLV type byte to its Prometheus label value.
func tlvTypeLabel(tlvType uint8) string {
	switch tlvType {
	case steering.TLVScore:
		return tlvLabelScore
	case steering.TLVCloseClient:
		return tlvLabelCloseClient
	case steering.TLVClosedClient:
		return tlvLabelClosedClient
	default:
		return tlvLabelUnknown
	}
}
