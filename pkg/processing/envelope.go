package processing

import (
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/open-teleop/handpose/pkg/flatbuffers/handpose/message"
	"github.com/open-teleop/handpose/pkg/handpose"
)

// EnvelopeVersion is the PoseEnvelope schema version written by this package.
const EnvelopeVersion byte = 1

// GetCurrentTimestamp gets the current timestamp in nanoseconds
func GetCurrentTimestamp() int64 {
	return time.Now().UnixNano()
}

// BuildEnvelope serializes a PoseEnvelope and returns the finished buffer.
func BuildEnvelope(topic, sessionID string, contentType message.ContentType, timestampNs int64, payload []byte) []byte {
	builder := flatbuffers.NewBuilder(64 + len(topic) + len(sessionID) + len(payload))

	topicOffset := builder.CreateString(topic)
	sessionOffset := builder.CreateString(sessionID)
	payloadOffset := builder.CreateByteVector(payload)

	message.PoseEnvelopeStart(builder)
	message.PoseEnvelopeAddVersion(builder, EnvelopeVersion)
	message.PoseEnvelopeAddTopic(builder, topicOffset)
	message.PoseEnvelopeAddTimestampNs(builder, timestampNs)
	message.PoseEnvelopeAddContentType(builder, contentType)
	message.PoseEnvelopeAddSessionId(builder, sessionOffset)
	message.PoseEnvelopeAddPayload(builder, payloadOffset)
	builder.Finish(message.PoseEnvelopeEnd(builder))

	return builder.FinishedBytes()
}

// NewPoseEnvelope wraps an already encoded record payload, stamped now.
// The payload is not validated here; the processor rejects malformed ones.
func NewPoseEnvelope(topic, sessionID string, payload []byte) *message.PoseEnvelope {
	buf := BuildEnvelope(topic, sessionID, message.ContentTypeHAND_POSE, GetCurrentTimestamp(), payload)
	return message.GetRootAsPoseEnvelope(buf, 0)
}

// NewRecordEnvelope encodes rec with codec and wraps it in an envelope.
func NewRecordEnvelope(topic, sessionID string, codec handpose.Codec, rec handpose.Record) *message.PoseEnvelope {
	return NewPoseEnvelope(topic, sessionID, codec.Encode(rec))
}
