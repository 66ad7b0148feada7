package zeromq

import (
	"encoding/json"
	"fmt"

	"github.com/open-teleop/handpose/pkg/config"
	customlog "github.com/open-teleop/handpose/pkg/log"
)

// ConfigProvider returns the current operational config
type ConfigProvider interface {
	GetConfig() *config.Config
}

// ConfigHandler handles CONFIG_REQUEST messages
type ConfigHandler struct {
	provider ConfigProvider
	logger   customlog.Logger
}

// NewConfigHandler creates a new handler for configuration requests
func NewConfigHandler(provider ConfigProvider, logger customlog.Logger) *ConfigHandler {
	return &ConfigHandler{
		provider: provider,
		logger:   logger,
	}
}

// HandleMessage processes a CONFIG_REQUEST message and returns a CONFIG_RESPONSE
func (h *ConfigHandler) HandleMessage(data []byte) ([]byte, error) {
	var msg ZeroMQMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Type != MsgTypeConfigRequest {
		return nil, fmt.Errorf("%w: unexpected message type %s", ErrInvalidMessage, msg.Type)
	}

	cfg := h.provider.GetConfig()
	if cfg == nil {
		return nil, fmt.Errorf("no stream configuration loaded")
	}

	responseData, err := json.Marshal(newMessage(MsgTypeConfigResponse, cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize response: %w", err)
	}

	h.logger.Debugf("Sending configuration response (%d bytes)", len(responseData))
	return responseData, nil
}

// StatsHandler answers STATS_REQUEST with a snapshot from its source
type StatsHandler struct {
	snapshot func() interface{}
}

// NewStatsHandler creates a handler replying with snapshot()
func NewStatsHandler(snapshot func() interface{}) *StatsHandler {
	return &StatsHandler{snapshot: snapshot}
}

// HandleMessage returns a STATS_RESPONSE
func (h *StatsHandler) HandleMessage(data []byte) ([]byte, error) {
	return json.Marshal(newMessage(MsgTypeStatsResponse, h.snapshot()))
}
