// Package metrics reports bus activity to Prometheus.
package metrics

import (
	"time"

	"github.com/progrium/postbus-go/bus"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements bus.Metrics with Prometheus collectors. One
// Collector can be shared by any number of buses.
type Collector struct {
	sent          *prometheus.CounterVec
	received      *prometheus.CounterVec
	discarded     *prometheus.CounterVec
	unmatched     prometheus.Counter
	unimplemented prometheus.Counter
	pending       prometheus.Gauge
	duration      *prometheus.HistogramVec
}

var _ bus.Metrics = (*Collector)(nil)

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postbus_envelopes_sent_total",
				Help: "Envelopes posted, by kind",
			},
			[]string{"kind"},
		),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postbus_envelopes_received_total",
				Help: "Envelopes dispatched, by kind",
			},
			[]string{"kind"},
		),
		discarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postbus_envelopes_discarded_total",
				Help: "Messages dropped before dispatch, by reason",
			},
			[]string{"reason"},
		),
		unmatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postbus_unmatched_responses_total",
				Help: "Responses that matched no pending call",
			},
		),
		unimplemented: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "postbus_unimplemented_commands_total",
				Help: "Requests for commands without a handler",
			},
		),
		pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "postbus_pending_calls",
				Help: "Calls waiting for a response",
			},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postbus_call_duration_seconds",
				Help:    "Time from request to response, by command",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}
	if reg != nil {
		reg.MustRegister(c.sent, c.received, c.discarded, c.unmatched, c.unimplemented, c.pending, c.duration)
	}
	return c
}

func (c *Collector) EnvelopeSent(k bus.Kind) { c.sent.WithLabelValues(string(k)).Inc() }

func (c *Collector) EnvelopeReceived(k bus.Kind) { c.received.WithLabelValues(string(k)).Inc() }

func (c *Collector) EnvelopeDiscarded(reason string) { c.discarded.WithLabelValues(reason).Inc() }

func (c *Collector) UnmatchedResponse() { c.unmatched.Inc() }

func (c *Collector) UnimplementedCommand() { c.unimplemented.Inc() }

// CallStarted counts the call as pending.
func (c *Collector) CallStarted(command string) { c.pending.Inc() }

// CallFinished observes the call duration, whether it succeeded or not.
func (c *Collector) CallFinished(command string, d time.Duration) {
	c.pending.Dec()
	c.duration.WithLabelValues(command).Observe(d.Seconds())
}
