package api

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/gofiber/fiber/v2"
	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/open-teleop/handpose/services"
)

const yamlContentType = "application/x-yaml"

// ConfigHandler serves the operational stream config as YAML.
type ConfigHandler struct {
	configService services.StreamConfigService
	logger        customlog.Logger
}

// NewConfigHandler panics on nil dependencies; it is only called during wiring.
func NewConfigHandler(configService services.StreamConfigService, logger customlog.Logger) *ConfigHandler {
	if configService == nil || logger == nil {
		panic("api: NewConfigHandler needs a config service and a logger")
	}
	return &ConfigHandler{configService: configService, logger: logger}
}

// RegisterConfigRoutes mounts GET and PUT /api/v1/config/stream.
func RegisterConfigRoutes(router fiber.Router, configService services.StreamConfigService, logger customlog.Logger) {
	h := NewConfigHandler(configService, logger)

	group := router.Group("/api/v1/config")
	group.Get("/stream", h.getStreamConfig)
	group.Put("/stream", h.putStreamConfig)

	logger.Debugf("Registered stream configuration API endpoints under /api/v1/config")
}

func (h *ConfigHandler) getStreamConfig(c *fiber.Ctx) error {
	data, err := h.configService.GetCurrentConfigYAML()
	switch {
	case errors.Is(err, fs.ErrNotExist), err == nil && len(data) == 0:
		return fiber.NewError(http.StatusNotFound, "stream configuration has not been set")
	case err != nil:
		h.logger.Errorf("Reading stream config failed: %v", err)
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, yamlContentType)
	return c.Send(data)
}

// putStreamConfig replaces the stream config. The body is parsed as YAML
// whatever its declared content type.
func (h *ConfigHandler) putStreamConfig(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return fiber.NewError(http.StatusBadRequest, "request body cannot be empty")
	}

	if err := h.configService.UpdateConfig(body); err != nil {
		if errors.Is(err, services.ErrInvalidConfig) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		h.logger.Errorf("Stream config update failed: %v", err)
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	cfg := h.configService.GetConfig()
	return c.JSON(fiber.Map{
		"message":   "stream configuration updated",
		"config_id": cfg.ConfigID,
		"version":   cfg.Version,
	})
}
