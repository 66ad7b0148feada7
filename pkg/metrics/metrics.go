package metrics

import (
	"errors"

	"github.com/open-teleop/handpose/pkg/handpose"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Error kinds used as the "reason" label.
const (
	ReasonMalformed   = "malformed"
	ReasonIncomplete  = "incomplete"
	ReasonReadFailed  = "read_failed"
	ReasonWriteFailed = "write_failed"
	ReasonOther       = "other"
)

// Collector holds the Prometheus metrics of the relay and producer
type Collector struct {
	registry *prometheus.Registry

	recordsReceived *prometheus.CounterVec
	recordsSent     *prometheus.CounterVec
	recordErrors    *prometheus.CounterVec
	nonFinite       *prometheus.CounterVec
	activeStreams   *prometheus.GaugeVec
	viewers         prometheus.Gauge
	droppedFrames   prometheus.Counter
}

// NewCollector creates and registers all metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		recordsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handpose_records_received_total",
				Help: "Hand pose records decoded, by topic",
			},
			[]string{"topic"},
		),
		recordsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handpose_records_sent_total",
				Help: "Hand pose records written, by transport",
			},
			[]string{"transport"},
		),
		recordErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handpose_record_errors_total",
				Help: "Record codec and stream errors, by transport and reason",
			},
			[]string{"transport", "reason"},
		),
		nonFinite: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handpose_records_non_finite_total",
				Help: "Decoded records carrying NaN or infinite fields, by topic",
			},
			[]string{"topic"},
		),
		activeStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "handpose_active_streams",
				Help: "Open producer streams, by transport",
			},
			[]string{"transport"},
		),
		viewers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "handpose_viewers",
				Help: "Connected websocket viewers",
			},
		),
		droppedFrames: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "handpose_viewer_frames_dropped_total",
				Help: "Records not delivered to a slow viewer",
			},
		),
	}
}

// Gatherer exposes the registry for the /metrics endpoint.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

func (c *Collector) RecordReceived(topic string, rec handpose.Record) {
	c.recordsReceived.WithLabelValues(topic).Inc()
	if !rec.Finite() {
		c.nonFinite.WithLabelValues(topic).Inc()
	}
}

func (c *Collector) RecordSent(transport string) {
	c.recordsSent.WithLabelValues(transport).Inc()
}

func (c *Collector) RecordError(transport string, err error) {
	c.recordErrors.WithLabelValues(transport, Reason(err)).Inc()
}

func (c *Collector) StreamOpened(transport string) {
	c.activeStreams.WithLabelValues(transport).Inc()
}

func (c *Collector) StreamClosed(transport string) {
	c.activeStreams.WithLabelValues(transport).Dec()
}

func (c *Collector) ViewerConnected()    { c.viewers.Inc() }
func (c *Collector) ViewerDisconnected() { c.viewers.Dec() }
func (c *Collector) FrameDropped()       { c.droppedFrames.Inc() }

// Reason classifies a codec error into a metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, handpose.ErrMalformedRecord):
		return ReasonMalformed
	case errors.Is(err, handpose.ErrIncompleteRecord):
		return ReasonIncomplete
	case errors.Is(err, handpose.ErrStreamReadFailed):
		return ReasonReadFailed
	case errors.Is(err, handpose.ErrStreamWriteFailed):
		return ReasonWriteFailed
	default:
		return ReasonOther
	}
}
