package processing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/open-teleop/handpose/pkg/config"
	"github.com/open-teleop/handpose/pkg/flatbuffers/handpose/message"
	customlog "github.com/open-teleop/handpose/pkg/log"
)

// Topic priorities. Each has its own pool.
const (
	PriorityHigh     = "HIGH"
	PriorityStandard = "STANDARD"
	PriorityLow      = "LOW"
)

var priorities = []string{PriorityHigh, PriorityStandard, PriorityLow}

var (
	// ErrDirectorStopped is returned when routing to a director that is not running.
	ErrDirectorStopped = errors.New("message director is not running")
	// ErrQueueFull is returned when the pool of the envelope's priority is saturated.
	ErrQueueFull = errors.New("processing queue full")
)

// MessageDirector routes envelopes to the pool of their topic's priority.
type MessageDirector struct {
	logger        customlog.Logger
	topicRegistry *TopicRegistry
	queueSize     int

	mu      sync.RWMutex
	pools   map[string]*ProcessingPool
	running bool
}

// DirectorOptions holds configuration options for the MessageDirector
type DirectorOptions struct {
	DefaultQueueSize int
}

// NewMessageDirector creates a director. Call Initialize before Start.
func NewMessageDirector(logger customlog.Logger, topicRegistry *TopicRegistry, options *DirectorOptions) *MessageDirector {
	queueSize := 100
	if options != nil && options.DefaultQueueSize > 0 {
		queueSize = options.DefaultQueueSize
	}
	return &MessageDirector{
		logger:        logger,
		topicRegistry: topicRegistry,
		queueSize:     queueSize,
		pools:         make(map[string]*ProcessingPool, len(priorities)),
	}
}

// NewMessageDirectorFromBootstrap builds and initializes a director with the
// worker counts and queue size of the bootstrap processing section.
func NewMessageDirectorFromBootstrap(cfg config.ProcessingConfig, logger customlog.Logger, topicRegistry *TopicRegistry) *MessageDirector {
	d := NewMessageDirector(logger, topicRegistry, &DirectorOptions{DefaultQueueSize: cfg.QueueSize})
	d.Initialize(cfg.HighPriorityWorkers, cfg.StandardPriorityWorkers, cfg.LowPriorityWorkers)
	return d
}

// Initialize creates one pool per priority.
func (d *MessageDirector) Initialize(highWorkers, standardWorkers, lowWorkers int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	workers := map[string]int{
		PriorityHigh:     highWorkers,
		PriorityStandard: standardWorkers,
		PriorityLow:      lowWorkers,
	}
	for _, priority := range priorities {
		d.pools[priority] = NewProcessingPool(priority, workers[priority], d.queueSize, d.logger)
	}

	d.logger.Infof("Message Director initialized with pools: HIGH(%d), STANDARD(%d), LOW(%d), queue size %d",
		highWorkers, standardWorkers, lowWorkers, d.queueSize)
}

func (d *MessageDirector) eachPool(fn func(*ProcessingPool)) {
	for _, priority := range priorities {
		if pool, ok := d.pools[priority]; ok {
			fn(pool)
		}
	}
}

// SetProcessor installs the decoder on every pool.
func (d *MessageDirector) SetProcessor(processor MessageProcessor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.eachPool(func(p *ProcessingPool) { p.SetProcessor(processor) })
}

// SetResultHandler installs the result handler on every pool.
func (d *MessageDirector) SetResultHandler(handler ResultHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.eachPool(func(p *ProcessingPool) { p.SetResultHandler(handler) })
}

// RouteMessage enqueues env on the pool matching its topic priority.
// Topics missing from the registry go to the STANDARD pool.
func (d *MessageDirector) RouteMessage(env *message.PoseEnvelope) error {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()
	if !running {
		return ErrDirectorStopped
	}

	topic := string(env.Topic())
	priority, exists := d.topicRegistry.GetTopicPriority(topic)
	if !exists {
		d.logger.Debugf("No priority found for topic '%s', using STANDARD", topic)
		priority = PriorityStandard
	}
	d.topicRegistry.UpdateTopicStats(topic, env.TimestampNs())

	d.mu.RLock()
	pool, ok := d.pools[priority]
	if !ok {
		pool = d.pools[PriorityStandard]
	}
	d.mu.RUnlock()

	if !pool.ProcessMessage(env) {
		return fmt.Errorf("%w: topic '%s' (priority %s)", ErrQueueFull, topic, priority)
	}
	return nil
}

// Start starts all processing pools
func (d *MessageDirector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	d.logger.Infof("Starting Message Director")
	d.eachPool((*ProcessingPool).Start)
}

// Stop stops all pools after draining what is already queued.
func (d *MessageDirector) Stop() {
	d.mu.Lock()
	running := d.running
	d.running = false
	d.mu.Unlock()

	if !running {
		return
	}
	d.logger.Infof("Stopping Message Director")
	d.eachPool((*ProcessingPool).Stop)
	d.logger.Infof("Message Director stopped")
}

// GetPoolMetrics returns a snapshot per pool, keyed by priority.
func (d *MessageDirector) GetPoolMetrics() map[string]PoolMetrics {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]PoolMetrics, len(d.pools))
	d.eachPool(func(p *ProcessingPool) { out[p.GetName()] = p.GetMetrics() })
	return out
}

// TopicRegistry returns the registry the director routes by
func (d *MessageDirector) TopicRegistry() *TopicRegistry {
	return d.topicRegistry
}
