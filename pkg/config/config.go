package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Directions of a topic relative to this process.
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Config represents the operational stream configuration
type Config struct {
	Version       string         `yaml:"version" json:"version"`
	ConfigID      string         `yaml:"config_id" json:"config_id"`
	LastUpdated   string         `yaml:"lastUpdated" json:"lastUpdated"`
	DeviceID      string         `yaml:"device_id" json:"device_id"`
	TopicMappings []TopicMapping `yaml:"topic_mappings" json:"topic_mappings"`
	Defaults      DefaultsConfig `yaml:"defaults" json:"defaults"`
	ThrottleRates ThrottleConfig `yaml:"throttle_rates" json:"throttle_rates"`
}

// TopicMapping binds a pose topic to the transport it arrives on or leaves by
type TopicMapping struct {
	TopicID   string `yaml:"topic_id" json:"topic_id"`
	Topic     string `yaml:"topic" json:"topic"`
	Source    string `yaml:"source" json:"source"` // "tcp", "zmq" or "websocket"
	Priority  string `yaml:"priority" json:"priority"`
	Direction string `yaml:"direction" json:"direction"`
}

// DefaultsConfig holds default values for topic mappings
type DefaultsConfig struct {
	Priority  string `yaml:"priority" json:"priority"`
	Direction string `yaml:"direction" json:"direction"`
	Source    string `yaml:"source" json:"source"`
}

// ThrottleConfig holds the maximum publish rate per priority level. Zero means unthrottled.
type ThrottleConfig struct {
	HighHz     int `yaml:"high_hz" json:"high_hz"`
	StandardHz int `yaml:"standard_hz" json:"standard_hz"`
	LowHz      int `yaml:"low_hz" json:"low_hz"`
}

// LoadConfig loads configuration from the specified file path
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses and validates operational configuration YAML.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the fields every operational config must carry.
func (c *Config) Validate() error {
	if c.ConfigID == "" || c.Version == "" || c.DeviceID == "" {
		return fmt.Errorf("validation failed: missing required fields (ConfigID, Version, DeviceID)")
	}
	for i, mapping := range c.TopicMappings {
		if mapping.Topic == "" {
			return fmt.Errorf("validation failed: topic_mappings[%d] has no topic", i)
		}
	}
	return nil
}

// GetTopicMappingsByDirection returns topic mappings filtered by direction
func (c *Config) GetTopicMappingsByDirection(direction string) []TopicMapping {
	var result []TopicMapping

	for _, mapping := range c.TopicMappings {
		mappingWithDefaults := applyDefaults(mapping, c.Defaults)
		if mappingWithDefaults.Direction == direction {
			result = append(result, mappingWithDefaults)
		}
	}

	return result
}

// GetTopicMappingByTopic returns the mapping for a topic with defaults applied
func (c *Config) GetTopicMappingByTopic(topic string) (TopicMapping, bool) {
	for _, mapping := range c.TopicMappings {
		if mapping.Topic == topic {
			return applyDefaults(mapping, c.Defaults), true
		}
	}

	return TopicMapping{}, false
}

// ThrottleInterval returns the minimum spacing between records of the given
// priority, or zero when the priority is unthrottled.
func (c *Config) ThrottleInterval(priority string) time.Duration {
	var hz int
	switch priority {
	case "HIGH":
		hz = c.ThrottleRates.HighHz
	case "LOW":
		hz = c.ThrottleRates.LowHz
	default:
		hz = c.ThrottleRates.StandardHz
	}
	if hz <= 0 {
		return 0
	}
	return time.Second / time.Duration(hz)
}

// applyDefaults merges default values into a topic mapping where fields are empty
func applyDefaults(mapping TopicMapping, defaults DefaultsConfig) TopicMapping {
	result := mapping

	if result.Priority == "" {
		result.Priority = defaults.Priority
	}

	if result.Direction == "" {
		result.Direction = defaults.Direction
	}

	if result.Source == "" {
		result.Source = defaults.Source
	}

	return result
}
