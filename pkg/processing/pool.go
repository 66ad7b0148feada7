package processing

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/open-teleop/handpose/pkg/flatbuffers/handpose/message"
	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
)

// RecordMeta identifies where a decoded record came from
type RecordMeta struct {
	Topic       string `json:"topic"`
	SessionID   string `json:"session_id"`
	TimestampNs int64  `json:"timestamp_ns"`

	// StatsTopic is Topic folded to the registered topics, see TopicRegistry.Label
	StatsTopic string `json:"-"`
}

// StatsKey returns the topic to key statistics and metric labels by
func (m RecordMeta) StatsKey() string {
	if m.StatsTopic != "" {
		return m.StatsTopic
	}
	return m.Topic
}

// ProcessResult is the result of processing one envelope
type ProcessResult struct {
	Meta   RecordMeta
	Record handpose.Record
	Error  error
}

// ResultHandler is a function that handles processed results
type ResultHandler func(result *ProcessResult)

// MessageProcessor turns an envelope into a record in a worker
type MessageProcessor func(env *message.PoseEnvelope) (handpose.Record, error)

// ProcessingPool is a priority level's worker set. Each worker owns a bounded
// queue and every topic hashes to one worker, so records of a topic are
// processed in the order they were enqueued.
type ProcessingPool struct {
	name          string
	workerCount   int
	logger        customlog.Logger
	queues        []chan *message.PoseEnvelope
	running       bool
	wg            sync.WaitGroup
	mu            sync.RWMutex
	processor     MessageProcessor
	resultHandler ResultHandler
	queueSize     int

	metricsMu sync.Mutex
	metrics   PoolMetrics
}

// PoolMetrics tracks metrics for a processing pool
type PoolMetrics struct {
	ProcessedCount    int64 `json:"processed"`
	ErrorCount        int64 `json:"errors"`
	QueuedCount       int64 `json:"queued"`
	DroppedCount      int64 `json:"dropped"`
	LastProcessedTime int64 `json:"last_processed"`
	ProcessingTimeAvg int64 `json:"processing_time_avg_us"`
	ProcessingTimeMax int64 `json:"processing_time_max_us"`
}

// NewProcessingPool creates a new processing pool. queueSize bounds each
// worker's queue.
func NewProcessingPool(
	name string,
	workerCount int,
	queueSize int,
	logger customlog.Logger,
) *ProcessingPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &ProcessingPool{
		name:        name,
		workerCount: workerCount,
		queueSize:   queueSize,
		logger:      logger,
	}
}

// SetProcessor sets the message processor function
func (p *ProcessingPool) SetProcessor(processor MessageProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processor = processor
}

// SetResultHandler sets the result handler function
func (p *ProcessingPool) SetResultHandler(handler ResultHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resultHandler = handler
}

// workerFor maps a topic to a worker index.
func (p *ProcessingPool) workerFor(topic []byte) int {
	h := fnv.New32a()
	h.Write(topic)
	return int(mix32(h.Sum32()) % uint32(p.workerCount))
}

// mix32 is a murmur-style finalizer spreading short topic hashes over workers.
func mix32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}

// ProcessMessage queues an envelope without blocking. It returns false when
// the pool is stopped or the topic's worker queue is full.
func (p *ProcessingPool) ProcessMessage(env *message.PoseEnvelope) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		p.logger.Warnf("%s pool not running, discarding message", p.name)
		return false
	}

	queue := p.queues[p.workerFor(env.Topic())]

	select {
	case queue <- env:
		p.metricsMu.Lock()
		p.metrics.QueuedCount++
		p.metricsMu.Unlock()
		return true
	default:
		p.metricsMu.Lock()
		p.metrics.DroppedCount++
		p.metricsMu.Unlock()
		p.logger.Warnf("%s pool queue is full, discarding message for topic '%s'", p.name, env.Topic())
		return false
	}
}

// Start starts the processing pool workers
func (p *ProcessingPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.queues = make([]chan *message.PoseEnvelope, p.workerCount)
	p.logger.Infof("Starting %s priority pool with %d workers", p.name, p.workerCount)

	for i := range p.queues {
		p.queues[i] = make(chan *message.PoseEnvelope, p.queueSize)
		p.wg.Add(1)
		go p.worker(i, p.queues[i])
	}
}

// Stop stops the pool after the queued envelopes are processed
func (p *ProcessingPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	for _, queue := range p.queues {
		close(queue)
	}
	p.mu.Unlock()

	p.logger.Infof("Stopping %s priority pool", p.name)

	p.wg.Wait()
	p.logger.Infof("%s priority pool stopped", p.name)

	p.logMetrics()
}

// worker processes messages from its queue
func (p *ProcessingPool) worker(id int, queue <-chan *message.PoseEnvelope) {
	defer p.wg.Done()

	p.logger.Debugf("%s pool worker %d started", p.name, id)

	for env := range queue {
		p.mu.RLock()
		processor := p.processor
		resultHandler := p.resultHandler
		p.mu.RUnlock()

		if processor == nil {
			p.logger.Errorf("No message processor set for %s pool", p.name)
			continue
		}

		startTime := time.Now()
		record, err := processor(env)
		processingTime := time.Since(startTime).Microseconds()

		p.metricsMu.Lock()
		p.metrics.ProcessedCount++
		p.metrics.LastProcessedTime = time.Now().UnixNano()
		if p.metrics.ProcessingTimeAvg == 0 {
			p.metrics.ProcessingTimeAvg = processingTime
		} else {
			p.metrics.ProcessingTimeAvg = (p.metrics.ProcessingTimeAvg + processingTime) / 2
		}
		if processingTime > p.metrics.ProcessingTimeMax {
			p.metrics.ProcessingTimeMax = processingTime
		}
		if err != nil {
			p.metrics.ErrorCount++
		}
		p.metricsMu.Unlock()

		if resultHandler != nil {
			resultHandler(&ProcessResult{
				Meta: RecordMeta{
					Topic:       string(env.Topic()),
					SessionID:   string(env.SessionId()),
					TimestampNs: env.TimestampNs(),
				},
				Record: record,
				Error:  err,
			})
		}
	}

	p.logger.Debugf("%s pool worker %d stopped", p.name, id)
}

// GetMetrics returns a copy of the current metrics
func (p *ProcessingPool) GetMetrics() PoolMetrics {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()
	return p.metrics
}

// logMetrics logs the current metrics
func (p *ProcessingPool) logMetrics() {
	metrics := p.GetMetrics()

	p.logger.Infof("%s pool metrics: processed=%d, errors=%d, dropped=%d, avg_time=%dµs, max_time=%dµs",
		p.name, metrics.ProcessedCount, metrics.ErrorCount, metrics.DroppedCount,
		metrics.ProcessingTimeAvg, metrics.ProcessingTimeMax)
}

// GetName returns the pool name
func (p *ProcessingPool) GetName() string {
	return p.name
}

// GetQueueLength returns the number of envelopes waiting across all workers
func (p *ProcessingPool) GetQueueLength() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := 0
	for _, queue := range p.queues {
		total += len(queue)
	}
	return total
}

// GetQueueCapacity returns the total queue capacity of the pool
func (p *ProcessingPool) GetQueueCapacity() int {
	return p.queueSize * p.workerCount
}
