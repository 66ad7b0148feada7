package zeromq

import (
	"strings"

	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/open-teleop/handpose/pkg/metrics"
	"github.com/open-teleop/handpose/pkg/processing"
)

// Topics published by the service
const (
	TopicConfigNotification = "configuration.notification"
	TopicConfigUpdate       = "configuration.update"
)

// TransportZMQ labels metrics of the broadcast channel.
const TransportZMQ = "zmq"

// Publisher is the part of ZeroMQService the publishers use
type Publisher interface {
	PublishMessage(topic string, payload []byte) error
	PublishJSON(topic string, messageType string, data interface{}) error
}

// ConfigPublisher announces operational config changes
type ConfigPublisher struct {
	service  Publisher
	provider ConfigProvider
	logger   customlog.Logger
}

// NewConfigPublisher creates a new publisher for configuration updates
func NewConfigPublisher(service Publisher, provider ConfigProvider, logger customlog.Logger) *ConfigPublisher {
	return &ConfigPublisher{
		service:  service,
		provider: provider,
		logger:   logger,
	}
}

// PublishConfigUpdate publishes the full current configuration
func (p *ConfigPublisher) PublishConfigUpdate() error {
	cfg := p.provider.GetConfig()
	p.logger.Infof("Publishing configuration update (ID: %s)", cfg.ConfigID)
	return p.service.PublishJSON(TopicConfigUpdate, MsgTypeConfigResponse, cfg)
}

// PublishConfigUpdatedNotification publishes a notification that the config has been updated
func (p *ConfigPublisher) PublishConfigUpdatedNotification() error {
	cfg := p.provider.GetConfig()
	p.logger.Infof("Publishing configuration update notification")

	notification := map[string]interface{}{
		"config_id":    cfg.ConfigID,
		"version":      cfg.Version,
		"last_updated": cfg.LastUpdated,
	}
	return p.service.PublishJSON(TopicConfigNotification, MsgTypeConfigUpdated, notification)
}

// RegisterConfigHandlers registers the config request handler and returns the publisher
func RegisterConfigHandlers(service *ZeroMQService, provider ConfigProvider, logger customlog.Logger) *ConfigPublisher {
	service.RegisterHandler(MsgTypeConfigRequest, NewConfigHandler(provider, logger))
	return NewConfigPublisher(service, provider, logger)
}

// PosePublisher broadcasts records, one 24-byte record per message, on a topic.
// Delivery is best-effort: subscribers that are not connected miss records.
type PosePublisher struct {
	service   Publisher
	topic     string
	codec     handpose.Codec
	logger    customlog.Logger
	collector *metrics.Collector
}

// NewPosePublisher creates a publisher for topic. collector may be nil.
func NewPosePublisher(service Publisher, topic string, codec handpose.Codec, logger customlog.Logger, collector *metrics.Collector) *PosePublisher {
	return &PosePublisher{
		service:   service,
		topic:     topic,
		codec:     codec,
		logger:    logger,
		collector: collector,
	}
}

// PublishRecord broadcasts one record
func (p *PosePublisher) PublishRecord(record handpose.Record) error {
	if err := p.service.PublishMessage(p.topic, p.codec.Encode(record)); err != nil {
		if p.collector != nil {
			p.collector.RecordError(TransportZMQ, err)
		}
		return err
	}
	if p.collector != nil {
		p.collector.RecordSent(TransportZMQ)
	}
	return nil
}

// HandleRecord relays records decoded by the pipeline. Records received by a
// PoseListener are not echoed back onto the broadcast channel.
func (p *PosePublisher) HandleRecord(meta processing.RecordMeta, record handpose.Record) {
	if strings.HasPrefix(meta.SessionID, ListenerSessionPrefix) {
		return
	}
	if err := p.PublishRecord(record); err != nil {
		p.logger.Debugf("Relay of record from '%s' failed: %v", meta.Topic, err)
	}
}
