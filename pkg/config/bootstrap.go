package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/open-teleop/handpose/pkg/handpose"
	"gopkg.in/yaml.v3"
)

// BootstrapFileName is the bootstrap config file looked up in the config directory.
const BootstrapFileName = "handpose_config.yaml"

// Environment overrides applied after the bootstrap file is parsed.
const (
	EnvLogLevel = "HANDPOSE_LOG_LEVEL"
	EnvHTTPPort = "HANDPOSE_HTTP_PORT"
)

// BootstrapConfig holds the initial configuration loaded from handpose_config.yaml
type BootstrapConfig struct {
	Logging    LoggingConfig         `yaml:"logging"`
	Server     BootstrapServerConfig `yaml:"server"`
	Stream     StreamBootstrap       `yaml:"stream"`
	ZeroMQ     ZeroMQBootstrap       `yaml:"zeromq"`
	Wire       WireConfig            `yaml:"wire"`
	Data       DataConfig            `yaml:"data"`
	Processing ProcessingConfig      `yaml:"processing"`
}

// LoggingConfig holds logging settings from bootstrap
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// BootstrapServerConfig holds HTTP server settings
type BootstrapServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// StreamBootstrap holds the record stream transport settings.
// The receiver listens on ListenAddress, the producer dials DialAddress.
type StreamBootstrap struct {
	ListenAddress       string  `yaml:"listen_address"`
	DialAddress         string  `yaml:"dial_address"`
	ReconnectInitialMs  int     `yaml:"reconnect_initial_ms"`
	ReconnectMaxMs      int     `yaml:"reconnect_max_ms"`
	ReconnectMultiplier float64 `yaml:"reconnect_multiplier"`
	ReconnectJitter     bool    `yaml:"reconnect_jitter"`
}

// ZeroMQBootstrap holds the broadcast channel settings. An empty
// PublishBindAddress disables the broadcast.
type ZeroMQBootstrap struct {
	RequestBindAddress string `yaml:"request_bind_address"`
	PublishBindAddress string `yaml:"publish_bind_address"`
	SubscribeAddress   string `yaml:"subscribe_address"`
	PoseTopic          string `yaml:"pose_topic"`
}

// WireConfig selects the record byte order.
type WireConfig struct {
	ByteOrder string `yaml:"byte_order"`
}

// ProcessingConfig holds message processing worker configuration from bootstrap
type ProcessingConfig struct {
	HighPriorityWorkers     int `yaml:"high_priority_workers"`
	StandardPriorityWorkers int `yaml:"standard_priority_workers"`
	LowPriorityWorkers      int `yaml:"low_priority_workers"`
	QueueSize               int `yaml:"queue_size"`
}

// DataConfig holds data directory settings from bootstrap
type DataConfig struct {
	Directory            string `yaml:"directory"`
	StreamConfigFilename string `yaml:"stream_config_file"`
}

// StreamConfigPath returns the full path of the operational stream config.
func (c *BootstrapConfig) StreamConfigPath() string {
	return filepath.Join(c.Data.Directory, c.Data.StreamConfigFilename)
}

// ReconnectInitial returns the first reconnect delay.
func (s StreamBootstrap) ReconnectInitial() time.Duration {
	return time.Duration(s.ReconnectInitialMs) * time.Millisecond
}

// ReconnectMax returns the reconnect delay ceiling.
func (s StreamBootstrap) ReconnectMax() time.Duration {
	return time.Duration(s.ReconnectMaxMs) * time.Millisecond
}

// LoadBootstrapConfig loads the bootstrap configuration from handpose_config.yaml
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, BootstrapFileName)

	data, err := os.ReadFile(bootstrapConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	var bootstrapCfg BootstrapConfig
	if err := yaml.Unmarshal(data, &bootstrapCfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	applyBootstrapDefaults(&bootstrapCfg)
	if err := applyEnvOverrides(&bootstrapCfg); err != nil {
		return nil, err
	}

	if bootstrapCfg.Stream.ListenAddress == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: stream.listen_address")
	}
	if bootstrapCfg.Data.Directory == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: data.directory")
	}
	if bootstrapCfg.Data.StreamConfigFilename == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: data.stream_config_file")
	}
	if _, err := handpose.ParseByteOrder(bootstrapCfg.Wire.ByteOrder); err != nil {
		return nil, fmt.Errorf("invalid wire.byte_order in bootstrap config: %w", err)
	}

	return &bootstrapCfg, nil
}

func applyBootstrapDefaults(cfg *BootstrapConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Stream.ReconnectInitialMs == 0 {
		cfg.Stream.ReconnectInitialMs = 250
	}
	if cfg.Stream.ReconnectMaxMs == 0 {
		cfg.Stream.ReconnectMaxMs = 5000
	}
	if cfg.Stream.ReconnectMultiplier == 0 {
		cfg.Stream.ReconnectMultiplier = 2.0
	}
	if cfg.ZeroMQ.PoseTopic == "" {
		cfg.ZeroMQ.PoseTopic = "handpose.hand"
	}
	if cfg.Wire.ByteOrder == "" {
		cfg.Wire.ByteOrder = "little"
	}
	if cfg.Processing.HighPriorityWorkers == 0 {
		cfg.Processing.HighPriorityWorkers = 2
	}
	if cfg.Processing.StandardPriorityWorkers == 0 {
		cfg.Processing.StandardPriorityWorkers = 1
	}
	if cfg.Processing.LowPriorityWorkers == 0 {
		cfg.Processing.LowPriorityWorkers = 1
	}
	if cfg.Processing.QueueSize == 0 {
		cfg.Processing.QueueSize = 256
	}
}

func applyEnvOverrides(cfg *BootstrapConfig) error {
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if raw := os.Getenv(EnvHTTPPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvHTTPPort, raw, err)
		}
		cfg.Server.HTTPPort = port
	}
	return nil
}
