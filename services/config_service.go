package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/open-teleop/handpose/pkg/config"
	customlog "github.com/open-teleop/handpose/pkg/log"
)

// ErrInvalidConfig marks updates rejected because the YAML did not parse or validate.
var ErrInvalidConfig = errors.New("invalid stream configuration")

// ConfigPublisher announces configuration changes to remote peers.
type ConfigPublisher interface {
	PublishConfigUpdatedNotification() error
}

// ApplyFunc is called with every configuration that becomes current.
type ApplyFunc func(cfg *config.Config)

// StreamConfigService manages the operational stream configuration.
type StreamConfigService interface {
	LoadConfig() error
	GetConfig() *config.Config
	GetCurrentConfigYAML() ([]byte, error)
	UpdateConfig(newConfigYAML []byte) error
	PersistConfig(yamlData []byte) error
	SetPublisher(p ConfigPublisher)
	OnApply(fn ApplyFunc)
}

type streamConfigService struct {
	operationalConfigPath string
	logger                customlog.Logger
	configPublisher       ConfigPublisher
	appliers              []ApplyFunc
	currentConfig         *config.Config
	mu                    sync.RWMutex
}

// NewStreamConfigService creates the service and attempts an initial load.
// A missing or invalid file is logged; the config can then be set via UpdateConfig.
func NewStreamConfigService(operationalConfigPath string, logger customlog.Logger) (StreamConfigService, error) {
	if operationalConfigPath == "" {
		return nil, fmt.Errorf("operational configuration path cannot be empty")
	}
	if logger == nil {
		logger = customlog.NewDiscardLogger()
	}

	service := &streamConfigService{
		operationalConfigPath: operationalConfigPath,
		logger:                logger,
	}

	if err := service.LoadConfig(); err != nil {
		logger.Warnf("Initial load of stream config '%s' failed: %v. Service created, but config is nil.", operationalConfigPath, err)
		return service, nil
	}

	logger.Infof("StreamConfigService initialized for path: %s", operationalConfigPath)
	return service, nil
}

// LoadConfig reads and validates the config file and makes it current.
func (s *streamConfigService) LoadConfig() error {
	s.mu.Lock()

	s.logger.Infof("Loading stream configuration from: %s", s.operationalConfigPath)
	cfg, err := config.LoadConfig(s.operationalConfigPath)
	if err != nil {
		s.currentConfig = nil
		s.mu.Unlock()
		return fmt.Errorf("error loading stream config file '%s': %w", s.operationalConfigPath, err)
	}

	s.currentConfig = cfg
	appliers := append([]ApplyFunc(nil), s.appliers...)
	s.mu.Unlock()

	s.logger.Infof("Loaded stream configuration ID: %s, Version: %s", cfg.ConfigID, cfg.Version)
	for _, apply := range appliers {
		apply(cfg)
	}
	return nil
}

// GetConfig returns the current configuration, or nil. Treat it as read-only.
func (s *streamConfigService) GetConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentConfig
}

// GetCurrentConfigYAML returns the raw YAML on disk.
func (s *streamConfigService) GetCurrentConfigYAML() ([]byte, error) {
	data, err := os.ReadFile(s.operationalConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading stream config file '%s': %w", s.operationalConfigPath, err)
	}
	return data, nil
}

// UpdateConfig validates, persists and applies new YAML, then publishes a
// notification in the background.
func (s *streamConfigService) UpdateConfig(newConfigYAML []byte) error {
	newCfg, err := config.ParseConfig(newConfigYAML)
	if err != nil {
		s.logger.Warnf("Rejected stream configuration update: %v", err)
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	s.mu.Lock()
	if err := s.persistConfigUnlocked(newConfigYAML); err != nil {
		s.mu.Unlock()
		return err
	}

	oldID := "N/A"
	if s.currentConfig != nil {
		oldID = s.currentConfig.ConfigID
	}
	s.currentConfig = newCfg
	appliers := append([]ApplyFunc(nil), s.appliers...)
	publisher := s.configPublisher
	s.mu.Unlock()

	s.logger.Infof("Updated stream configuration. ID %s -> %s, Version: %s", oldID, newCfg.ConfigID, newCfg.Version)

	for _, apply := range appliers {
		apply(newCfg)
	}

	if publisher != nil {
		go func() {
			if err := publisher.PublishConfigUpdatedNotification(); err != nil {
				s.logger.Warnf("Failed to publish config update notification: %v", err)
			}
		}()
	}

	return nil
}

// PersistConfig writes YAML to the config path without applying it.
func (s *streamConfigService) PersistConfig(yamlData []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistConfigUnlocked(yamlData)
}

// persistConfigUnlocked replaces the file through a rename so readers never
// see a partial write. The caller holds mu.
func (s *streamConfigService) persistConfigUnlocked(yamlData []byte) error {
	dir := filepath.Dir(s.operationalConfigPath)
	tmp, err := os.CreateTemp(dir, ".stream_config-*.yaml")
	if err != nil {
		return fmt.Errorf("error writing stream config file '%s': %w", s.operationalConfigPath, err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(yamlData)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error writing stream config file '%s': %w", s.operationalConfigPath, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error writing stream config file '%s': %w", s.operationalConfigPath, err)
	}
	if err := os.Rename(tmpName, s.operationalConfigPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error writing stream config file '%s': %w", s.operationalConfigPath, err)
	}

	s.logger.Debugf("Persisted stream configuration to %s", s.operationalConfigPath)
	return nil
}

// SetPublisher injects the publisher after construction.
func (s *streamConfigService) SetPublisher(p ConfigPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configPublisher = p
}

// OnApply registers fn and calls it at once with the current config, if any.
func (s *streamConfigService) OnApply(fn ApplyFunc) {
	s.mu.Lock()
	s.appliers = append(s.appliers, fn)
	current := s.currentConfig
	s.mu.Unlock()

	if current != nil {
		fn(current)
	}
}
