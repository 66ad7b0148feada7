package processing

import (
	"fmt"

	"github.com/open-teleop/handpose/pkg/config"
	"github.com/open-teleop/handpose/pkg/flatbuffers/handpose/message"
	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
)

// PoseProcessor decodes the record carried by a PoseEnvelope
type PoseProcessor struct {
	logger        customlog.Logger
	codec         handpose.Codec
	topicRegistry *TopicRegistry
}

// NewPoseProcessor creates a processor decoding payloads with codec
func NewPoseProcessor(logger customlog.Logger, codec handpose.Codec, topicRegistry *TopicRegistry) *PoseProcessor {
	return &PoseProcessor{
		logger:        logger,
		codec:         codec,
		topicRegistry: topicRegistry,
	}
}

// ProcessMessage decodes the envelope payload. Wrong-length payloads fail
// with handpose.ErrMalformedRecord.
func (p *PoseProcessor) ProcessMessage(env *message.PoseEnvelope) (handpose.Record, error) {
	topic := string(env.Topic())

	if ct := env.ContentType(); ct != message.ContentTypeHAND_POSE {
		return handpose.Record{}, fmt.Errorf("unsupported content type %s for topic '%s'", ct, topic)
	}

	if p.topicRegistry != nil {
		if info, ok := p.topicRegistry.GetTopicInfo(topic); ok && info.Direction == config.DirectionOutbound {
			return handpose.Record{}, fmt.Errorf("topic '%s' is outbound only", topic)
		}
	}

	record, err := p.codec.Decode(env.PayloadBytes())
	if err != nil {
		return handpose.Record{}, fmt.Errorf("topic '%s': %w", topic, err)
	}

	p.logger.Debugf("Decoded record on topic '%s': %s", topic, record)
	return record, nil
}

// Func adapts the processor to a MessageProcessor
func (p *PoseProcessor) Func() MessageProcessor {
	return p.ProcessMessage
}
