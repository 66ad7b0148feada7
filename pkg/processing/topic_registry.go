package processing

import (
	"sync"

	"github.com/open-teleop/handpose/pkg/config"
	customlog "github.com/open-teleop/handpose/pkg/log"
)

// OtherTopic collects the statistics of every topic missing from the stream
// config, so client-chosen topic names cannot grow the registry.
const OtherTopic = "other"

// TopicInfo holds metadata and receive statistics for a pose topic
type TopicInfo struct {
	Topic        string `json:"topic"`
	Source       string `json:"source"`
	Priority     string `json:"priority"`
	Direction    string `json:"direction"`
	StatCount    int64  `json:"count"`
	LastReceived int64  `json:"last_received"`
}

// TopicRegistry maintains information about topics
type TopicRegistry struct {
	logger customlog.Logger
	topics map[string]*TopicInfo
	mu     sync.RWMutex
}

// NewTopicRegistry creates a new topic registry
func NewTopicRegistry(logger customlog.Logger) *TopicRegistry {
	return &TopicRegistry{
		logger: logger,
		topics: make(map[string]*TopicInfo),
	}
}

// LoadFromConfig replaces the registered topics with the config's mappings.
// Statistics of topics that survive the reload are kept.
func (r *TopicRegistry) LoadFromConfig(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.topics
	r.topics = make(map[string]*TopicInfo, len(cfg.TopicMappings))

	for _, mapping := range cfg.TopicMappings {
		mapping, _ = cfg.GetTopicMappingByTopic(mapping.Topic)

		info := &TopicInfo{
			Topic:     mapping.Topic,
			Source:    mapping.Source,
			Priority:  mapping.Priority,
			Direction: mapping.Direction,
		}
		if old, ok := previous[mapping.Topic]; ok {
			info.StatCount = old.StatCount
			info.LastReceived = old.LastReceived
		}
		r.topics[mapping.Topic] = info
	}
	if other, ok := previous[OtherTopic]; ok {
		if _, configured := r.topics[OtherTopic]; !configured {
			r.topics[OtherTopic] = other
		}
	}

	r.logger.Infof("Loaded %d topics into registry", len(r.topics))
}

// GetTopicPriority gets the priority for a topic
func (r *TopicRegistry) GetTopicPriority(topic string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.topics[topic]
	if !exists || info.Priority == "" {
		return "", false
	}

	return info.Priority, true
}

// GetTopicInfo returns a copy of the information for a topic
func (r *TopicRegistry) GetTopicInfo(topic string) (TopicInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.topics[topic]
	if !exists {
		return TopicInfo{}, false
	}

	return *info, true
}

// Label returns topic when it is registered and OtherTopic otherwise. Use it
// for anything keyed by topic name.
func (r *TopicRegistry) Label(topic string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.topics[topic]; exists {
		return topic
	}
	return OtherTopic
}

// UpdateTopicStats counts a received envelope. Unregistered topics are
// counted under OtherTopic.
func (r *TopicRegistry) UpdateTopicStats(topic string, timestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, exists := r.topics[topic]
	if !exists {
		info, exists = r.topics[OtherTopic]
	}
	if !exists {
		info = &TopicInfo{
			Topic:     OtherTopic,
			Priority:  PriorityStandard,
			Direction: config.DirectionInbound,
		}
		r.topics[OtherTopic] = info
	}

	info.StatCount++
	info.LastReceived = timestamp
}

// GetAllTopics returns a list of all registered topics
func (r *TopicRegistry) GetAllTopics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}

	return topics
}

// GetTopicStats returns a snapshot of every topic
func (r *TopicRegistry) GetTopicStats() map[string]TopicInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]TopicInfo, len(r.topics))
	for topic, info := range r.topics {
		stats[topic] = *info
	}

	return stats
}
