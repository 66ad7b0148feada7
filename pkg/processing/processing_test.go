package processing

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/open-teleop/handpose/pkg/config"
	"github.com/open-teleop/handpose/pkg/flatbuffers/handpose/message"
	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/open-teleop/handpose/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	mu      sync.Mutex
	metas   []RecordMeta
	records []handpose.Record
}

func (s *collectingSink) HandleRecord(meta RecordMeta, record handpose.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas = append(s.metas, meta)
	s.records = append(s.records, record)
}

func (s *collectingSink) snapshot() ([]RecordMeta, []handpose.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordMeta(nil), s.metas...), append([]handpose.Record(nil), s.records...)
}

func testConfig() *config.Config {
	return &config.Config{
		Version:  "1.0",
		ConfigID: "test",
		DeviceID: "desk",
		TopicMappings: []config.TopicMapping{
			{Topic: "handpose.hand", Source: "tcp", Priority: PriorityHigh, Direction: config.DirectionInbound},
			{Topic: "handpose.replay", Source: "zmq", Priority: PriorityLow},
			{Topic: "handpose.viewer", Source: "websocket", Direction: config.DirectionOutbound},
		},
		Defaults: config.DefaultsConfig{Priority: PriorityStandard, Direction: config.DirectionInbound, Source: "tcp"},
	}
}

func newPipeline(t *testing.T, sink RecordSink) (*MessageDirector, *TopicRegistry) {
	t.Helper()
	logger := customlog.NewDiscardLogger()

	registry := NewTopicRegistry(logger)
	registry.LoadFromConfig(testConfig())

	director := NewMessageDirectorFromBootstrap(config.ProcessingConfig{
		HighPriorityWorkers:     3,
		StandardPriorityWorkers: 2,
		LowPriorityWorkers:      1,
		QueueSize:               512,
	}, logger, registry)
	director.SetProcessor(NewPoseProcessor(logger, handpose.NewCodec(nil), registry).Func())
	director.SetResultHandler(NewFanoutResultHandler(logger, metrics.NewCollector(), sink).CreateHandlerFunc())
	return director, registry
}

func TestEnvelopeRoundTrip(t *testing.T) {
	rec := handpose.Record{X: 1, Y: 2, Z: 3, Pitch: 4, Yaw: 5, Roll: 6}
	env := NewRecordEnvelope("handpose.hand", "sess-1", handpose.NewCodec(nil), rec)

	assert.Equal(t, EnvelopeVersion, env.Version())
	assert.Equal(t, "handpose.hand", string(env.Topic()))
	assert.Equal(t, "sess-1", string(env.SessionId()))
	assert.Equal(t, message.ContentTypeHAND_POSE, env.ContentType())
	assert.NotZero(t, env.TimestampNs())
	assert.Equal(t, handpose.Encode(rec), env.PayloadBytes())
}

func TestPoseProcessor(t *testing.T) {
	logger := customlog.NewDiscardLogger()
	registry := NewTopicRegistry(logger)
	registry.LoadFromConfig(testConfig())
	processor := NewPoseProcessor(logger, handpose.NewCodec(nil), registry)

	rec := handpose.Record{X: -1.5, Roll: 0.25}
	got, err := processor.ProcessMessage(NewPoseEnvelope("handpose.hand", "s", handpose.Encode(rec)))
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = processor.ProcessMessage(NewPoseEnvelope("handpose.hand", "s", make([]byte, 23)))
	assert.ErrorIs(t, err, handpose.ErrMalformedRecord)

	_, err = processor.ProcessMessage(NewPoseEnvelope("handpose.viewer", "s", handpose.Encode(rec)))
	assert.ErrorContains(t, err, "outbound only")

	buf := BuildEnvelope("handpose.hand", "s", message.ContentTypeJSON_COMMAND, 1, []byte(`{}`))
	_, err = processor.ProcessMessage(message.GetRootAsPoseEnvelope(buf, 0))
	assert.ErrorContains(t, err, "unsupported content type")
}

func TestDirectorPreservesPerTopicOrder(t *testing.T) {
	sink := &collectingSink{}
	director, _ := newPipeline(t, sink)
	director.Start()

	const n = 200
	for i := 0; i < n; i++ {
		rec := handpose.Record{X: float32(i)}
		require.NoError(t, director.RouteMessage(NewPoseEnvelope("handpose.hand", "a", handpose.Encode(rec))))
		require.NoError(t, director.RouteMessage(NewPoseEnvelope("handpose.other", "b", handpose.Encode(rec))))
	}
	director.Stop()

	metas, records := sink.snapshot()
	require.Len(t, records, 2*n)

	next := map[string]float32{}
	for i, meta := range metas {
		assert.Equal(t, next[meta.Topic], records[i].X, "topic %s out of order", meta.Topic)
		next[meta.Topic]++
	}

	poolMetrics := director.GetPoolMetrics()
	assert.Equal(t, int64(n), poolMetrics[PriorityHigh].ProcessedCount)
	assert.Equal(t, int64(n), poolMetrics[PriorityStandard].ProcessedCount)
	assert.Zero(t, poolMetrics[PriorityLow].ProcessedCount)
}

func TestDirectorDropsMalformedPayload(t *testing.T) {
	sink := &collectingSink{}
	director, registry := newPipeline(t, sink)
	director.Start()

	require.NoError(t, director.RouteMessage(NewPoseEnvelope("handpose.replay", "s", []byte{1, 2, 3})))
	require.NoError(t, director.RouteMessage(NewPoseEnvelope("handpose.replay", "s", handpose.Encode(handpose.Record{Yaw: 9}))))
	director.Stop()

	_, records := sink.snapshot()
	require.Len(t, records, 1)
	assert.Equal(t, float32(9), records[0].Yaw)

	low := director.GetPoolMetrics()[PriorityLow]
	assert.Equal(t, int64(2), low.ProcessedCount)
	assert.Equal(t, int64(1), low.ErrorCount)

	info, ok := registry.GetTopicInfo("handpose.replay")
	require.True(t, ok)
	assert.Equal(t, int64(2), info.StatCount)
}

func TestDirectorRejectsWhenStopped(t *testing.T) {
	director, _ := newPipeline(t, &collectingSink{})
	err := director.RouteMessage(NewPoseEnvelope("handpose.hand", "s", handpose.Encode(handpose.Record{})))
	assert.True(t, errors.Is(err, ErrDirectorStopped))
}

func TestDirectorReportsQueueFull(t *testing.T) {
	logger := customlog.NewDiscardLogger()
	registry := NewTopicRegistry(logger)
	registry.LoadFromConfig(testConfig())

	director := NewMessageDirector(logger, registry, &DirectorOptions{DefaultQueueSize: 1})
	director.Initialize(1, 1, 1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	director.SetProcessor(func(env *message.PoseEnvelope) (handpose.Record, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return handpose.Record{}, nil
	})
	director.Start()

	env := func() *message.PoseEnvelope {
		return NewPoseEnvelope("handpose.replay", "s", handpose.Encode(handpose.Record{}))
	}
	require.NoError(t, director.RouteMessage(env()))
	<-started
	require.NoError(t, director.RouteMessage(env()))

	err := director.RouteMessage(env())
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.ErrorContains(t, err, "priority LOW")

	close(release)
	director.Stop()
	assert.Equal(t, int64(1), director.GetPoolMetrics()[PriorityLow].DroppedCount)
}

func TestPoolQueueFull(t *testing.T) {
	logger := customlog.NewDiscardLogger()
	pool := NewProcessingPool("TEST", 1, 1, logger)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool.SetProcessor(func(env *message.PoseEnvelope) (handpose.Record, error) {
		started <- struct{}{}
		<-release
		return handpose.Record{}, nil
	})
	pool.Start()

	env := NewPoseEnvelope("t", "s", handpose.Encode(handpose.Record{}))
	require.True(t, pool.ProcessMessage(env))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker did not pick up the first envelope")
	}
	require.True(t, pool.ProcessMessage(env))
	assert.False(t, pool.ProcessMessage(env))
	assert.Equal(t, 1, pool.GetQueueLength())

	close(release)
	pool.Stop()

	m := pool.GetMetrics()
	assert.Equal(t, int64(2), m.ProcessedCount)
	assert.Equal(t, int64(1), m.DroppedCount)
	assert.False(t, pool.ProcessMessage(env))
}

func TestTopicRegistry(t *testing.T) {
	registry := NewTopicRegistry(customlog.NewDiscardLogger())
	registry.LoadFromConfig(testConfig())

	priority, ok := registry.GetTopicPriority("handpose.viewer")
	require.True(t, ok)
	assert.Equal(t, PriorityStandard, priority)

	_, ok = registry.GetTopicPriority("handpose.unknown")
	assert.False(t, ok)

	registry.UpdateTopicStats("handpose.unknown", 42)
	registry.UpdateTopicStats("client.chosen", 43)
	_, ok = registry.GetTopicInfo("handpose.unknown")
	assert.False(t, ok, "unconfigured topics are not registered by name")
	info, ok := registry.GetTopicInfo(OtherTopic)
	require.True(t, ok)
	assert.Equal(t, PriorityStandard, info.Priority)
	assert.Equal(t, int64(2), info.StatCount)
	assert.Equal(t, int64(43), info.LastReceived)

	assert.Equal(t, "handpose.hand", registry.Label("handpose.hand"))
	assert.Equal(t, OtherTopic, registry.Label("client.chosen"))

	registry.UpdateTopicStats("handpose.hand", 7)
	registry.LoadFromConfig(testConfig())
	info, _ = registry.GetTopicInfo("handpose.hand")
	assert.Equal(t, int64(1), info.StatCount, "stats survive reload")
	info, _ = registry.GetTopicInfo(OtherTopic)
	assert.Equal(t, int64(2), info.StatCount, "other survives reload")
	assert.Len(t, registry.GetAllTopics(), 4)
	assert.Len(t, registry.GetTopicStats(), 4)
}

func TestRegistryStaysBoundedUnderManyTopics(t *testing.T) {
	registry := NewTopicRegistry(customlog.NewDiscardLogger())
	registry.LoadFromConfig(testConfig())

	for i := 0; i < 1000; i++ {
		registry.UpdateTopicStats(fmt.Sprintf("client.%d", i), int64(i))
	}

	assert.Len(t, registry.GetAllTopics(), 4)
	info, ok := registry.GetTopicInfo(OtherTopic)
	require.True(t, ok)
	assert.Equal(t, int64(1000), info.StatCount)
}

func TestFanoutFoldsUnconfiguredTopics(t *testing.T) {
	logger := customlog.NewDiscardLogger()
	registry := NewTopicRegistry(logger)
	registry.LoadFromConfig(testConfig())

	collector := metrics.NewCollector()
	sink := &collectingSink{}
	handler := NewFanoutResultHandler(logger, collector, sink).WithTopicRegistry(registry)

	for i := 0; i < 50; i++ {
		handler.HandleResult(&ProcessResult{Meta: RecordMeta{Topic: fmt.Sprintf("client.%d", i)}})
	}
	handler.HandleResult(&ProcessResult{Meta: RecordMeta{Topic: "handpose.hand", SessionID: "s1"}})

	series, err := testutil.GatherAndCount(collector.Gatherer(), "handpose_records_received_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one series for handpose.hand and one for other")

	metas, _ := sink.snapshot()
	require.Len(t, metas, 51)
	assert.Equal(t, "client.0", metas[0].Topic)
	assert.Equal(t, OtherTopic, metas[0].StatsKey())
	assert.Equal(t, "handpose.hand", metas[50].StatsKey())
	assert.Equal(t, "s1", metas[50].SessionID)
}

func TestWorkerAffinityIsStable(t *testing.T) {
	pool := NewProcessingPool("TEST", 4, 1, customlog.NewDiscardLogger())
	first := pool.workerFor([]byte("handpose.hand"))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, pool.workerFor([]byte("handpose.hand")))
	}
	assert.Less(t, first, 4)
}
