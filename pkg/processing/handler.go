package processing

import (
	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/open-teleop/handpose/pkg/metrics"
)

// RecordSink receives every successfully decoded record
type RecordSink interface {
	HandleRecord(meta RecordMeta, record handpose.Record)
}

// SinkFunc adapts a function to a RecordSink
type SinkFunc func(meta RecordMeta, record handpose.Record)

// HandleRecord calls f
func (f SinkFunc) HandleRecord(meta RecordMeta, record handpose.Record) {
	f(meta, record)
}

// FanoutResultHandler logs processing results and hands records to its sinks
type FanoutResultHandler struct {
	logger    customlog.Logger
	collector *metrics.Collector
	registry  *TopicRegistry
	sinks     []RecordSink
}

// NewFanoutResultHandler creates a result handler. collector may be nil.
func NewFanoutResultHandler(logger customlog.Logger, collector *metrics.Collector, sinks ...RecordSink) *FanoutResultHandler {
	return &FanoutResultHandler{
		logger:    logger,
		collector: collector,
		sinks:     sinks,
	}
}

// WithTopicRegistry folds topics missing from registry into OtherTopic for
// metrics and sinks that key by RecordMeta.StatsKey.
func (h *FanoutResultHandler) WithTopicRegistry(registry *TopicRegistry) *FanoutResultHandler {
	h.registry = registry
	return h
}

// HandleResult handles a processed envelope result
func (h *FanoutResultHandler) HandleResult(result *ProcessResult) {
	if result.Error != nil {
		h.logger.Warnf("Dropping record for topic '%s' (session %s): %v",
			result.Meta.Topic, result.Meta.SessionID, result.Error)
		if h.collector != nil {
			h.collector.RecordError("pipeline", result.Error)
		}
		return
	}

	meta := result.Meta
	if h.registry != nil {
		meta.StatsTopic = h.registry.Label(meta.Topic)
	}

	if h.collector != nil {
		h.collector.RecordReceived(meta.StatsKey(), result.Record)
	}

	for _, sink := range h.sinks {
		sink.HandleRecord(meta, result.Record)
	}
}

// CreateHandlerFunc creates a ResultHandler function for the ProcessingPool
func (h *FanoutResultHandler) CreateHandlerFunc() ResultHandler {
	return func(processResult *ProcessResult) {
		if processResult == nil {
			h.logger.Errorf("Received nil ProcessResult")
			return
		}
		h.HandleResult(processResult)
	}
}
