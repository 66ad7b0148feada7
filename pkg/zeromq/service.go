package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/open-teleop/handpose/pkg/config"
	"github.com/open-teleop/handpose/pkg/flatbuffers/handpose/message"
	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/pebbe/zmq4"
)

// Common errors
var (
	ErrServiceClosed      = errors.New("zeromq service is closed")
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrNoPublisher        = errors.New("zeromq publish socket not configured")
)

// Message types
const (
	MsgTypeConfigRequest  = "CONFIG_REQUEST"
	MsgTypeConfigResponse = "CONFIG_RESPONSE"
	MsgTypeConfigUpdated  = "CONFIG_UPDATED"
	MsgTypeStatsRequest   = "STATS_REQUEST"
	MsgTypeStatsResponse  = "STATS_RESPONSE"
	MsgTypeAck            = "ACK"
	MsgTypeError          = "ERROR"
)

const pollInterval = 250 * time.Millisecond

// ZeroMQMessage represents a generic message structure for ZeroMQ communication
type ZeroMQMessage struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// ErrorResponse represents an error response message
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// MessageHandler defines the interface for handlers that process specific message types
type MessageHandler interface {
	HandleMessage(data []byte) ([]byte, error)
}

// HandlerFunc is a function type that implements MessageHandler
type HandlerFunc func(data []byte) ([]byte, error)

// HandleMessage calls the function
func (f HandlerFunc) HandleMessage(data []byte) ([]byte, error) {
	return f(data)
}

// EnvelopeRouter takes raw PoseEnvelopes received on the request socket.
type EnvelopeRouter interface {
	RouteMessage(env *message.PoseEnvelope) error
}

func newMessage(msgType string, data interface{}) ZeroMQMessage {
	return ZeroMQMessage{
		Type:      msgType,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Data:      data,
	}
}

// MessageReceiver answers requests on a REP socket
type MessageReceiver struct {
	socket     *zmq4.Socket
	address    string
	dispatcher *MessageDispatcher
	logger     customlog.Logger
	running    atomic.Bool
	started    bool
	wg         *sync.WaitGroup
}

func newMessageReceiver(ctx *zmq4.Context, address string, dispatcher *MessageDispatcher, logger customlog.Logger, wg *sync.WaitGroup) (*MessageReceiver, error) {
	socket, err := ctx.NewSocket(zmq4.REP)
	if err != nil {
		return nil, fmt.Errorf("failed to create REP socket: %w", err)
	}

	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.SetSndtimeo(time.Second); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set send timeout: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	logger.Infof("MessageReceiver initialized on %s", address)

	return &MessageReceiver{
		socket:     socket,
		address:    address,
		dispatcher: dispatcher,
		logger:     logger,
		wg:         wg,
	}, nil
}

// Start begins the message receiving loop. The socket is owned by the loop
// goroutine and closed when it exits.
func (r *MessageReceiver) Start() {
	if r.started {
		return
	}
	r.started = true
	r.running.Store(true)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.socket.Close()

		poller := zmq4.NewPoller()
		poller.Add(r.socket, zmq4.POLLIN)
		r.logger.Debugf("MessageReceiver started")

		for r.running.Load() {
			sockets, err := poller.Poll(pollInterval)
			if err != nil {
				if r.running.Load() {
					r.logger.Warnf("Error polling socket: %v", err)
				}
				continue
			}
			if len(sockets) == 0 {
				continue
			}

			msg, err := r.socket.RecvBytes(0)
			if err != nil {
				r.logger.Warnf("Error receiving message: %v", err)
				continue
			}

			response, err := r.dispatcher.Dispatch(msg)
			if err != nil {
				r.logger.Warnf("Error dispatching message: %v", err)
				response, _ = json.Marshal(newMessage(MsgTypeError, ErrorResponse{
					Message: err.Error(),
					Code:    errorCode(err),
				}))
			}

			if _, err := r.socket.SendBytes(response, 0); err != nil {
				r.logger.Warnf("Error sending response: %v", err)
			}
		}
	}()
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, ErrUnknownMessageType):
		return 404
	case errors.Is(err, ErrInvalidMessage):
		return 400
	default:
		return 500
	}
}

// Stop halts the receive loop; the loop closes the socket on exit
func (r *MessageReceiver) Stop() {
	r.running.Store(false)
}

// MessageSender publishes on a PUB socket
type MessageSender struct {
	socket  *zmq4.Socket
	running bool
	mu      sync.Mutex
}

func newMessageSender(ctx *zmq4.Context, address string, logger customlog.Logger) (*MessageSender, error) {
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}

	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	logger.Infof("MessageSender initialized on %s", address)

	return &MessageSender{
		socket:  socket,
		running: true,
	}, nil
}

// PublishMessage sends a two-frame message: topic, then payload
func (s *MessageSender) PublishMessage(topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServiceClosed
	}

	if _, err := s.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := s.socket.SendBytes(payload, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// Close cleans up resources
func (s *MessageSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if s.socket != nil {
		s.socket.Close()
		s.socket = nil
	}
}

// MessageDispatcher routes requests to the handler of their type. Requests
// that are not JSON are treated as raw PoseEnvelope flatbuffers.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	router   EnvelopeRouter
	logger   customlog.Logger
	mu       sync.RWMutex
}

// NewMessageDispatcher creates a new message dispatcher
func NewMessageDispatcher(logger customlog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
}

// RegisterHandler adds a handler for a specific message type
func (d *MessageDispatcher) RegisterHandler(messageType string, handler MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[messageType] = handler
	d.logger.Debugf("Registered handler for message type: %s", messageType)
}

// SetRouter sets where raw envelopes go
func (d *MessageDispatcher) SetRouter(router EnvelopeRouter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.router = router
}

// Dispatch processes a request and returns the reply
func (d *MessageDispatcher) Dispatch(data []byte) ([]byte, error) {
	var msg ZeroMQMessage
	if err := json.Unmarshal(data, &msg); err == nil {
		d.mu.RLock()
		handler, exists := d.handlers[msg.Type]
		d.mu.RUnlock()

		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type)
		}
		return handler.HandleMessage(data)
	}

	return d.handleRawEnvelope(data)
}

func (d *MessageDispatcher) handleRawEnvelope(data []byte) (reply []byte, err error) {
	d.mu.RLock()
	router := d.router
	d.mu.RUnlock()

	if router == nil {
		return nil, fmt.Errorf("%w: raw envelopes are not accepted", ErrInvalidMessage)
	}

	// flatbuffers accessors index the buffer without bounds checks of their own
	defer func() {
		if r := recover(); r != nil {
			reply, err = nil, fmt.Errorf("%w: corrupt envelope (%d bytes)", ErrInvalidMessage, len(data))
		}
	}()

	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d bytes is too short for an envelope", ErrInvalidMessage, len(data))
	}

	env := message.GetRootAsPoseEnvelope(data, 0)
	topic := string(env.Topic())
	if topic == "" {
		return nil, fmt.Errorf("%w: envelope has no topic", ErrInvalidMessage)
	}

	d.logger.Debugf("Raw envelope: topic='%s' type=%s payload=%d bytes", topic, env.ContentType(), env.PayloadLength())

	if err := router.RouteMessage(env); err != nil {
		return nil, err
	}

	return json.Marshal(newMessage(MsgTypeAck, map[string]interface{}{
		"status": "OK",
		"topic":  topic,
	}))
}

// ZeroMQService owns the ZeroMQ context, the request socket and the publish socket
type ZeroMQService struct {
	ctx        *zmq4.Context
	receiver   *MessageReceiver
	sender     *MessageSender
	dispatcher *MessageDispatcher
	logger     customlog.Logger
	running    bool
	mu         sync.Mutex
	wg         sync.WaitGroup
}

// NewZeroMQService creates the sockets named in cfg. An empty address leaves
// that socket out.
func NewZeroMQService(cfg config.ZeroMQBootstrap, logger customlog.Logger) (*ZeroMQService, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	s := &ZeroMQService{
		ctx:        ctx,
		dispatcher: NewMessageDispatcher(logger),
		logger:     logger,
	}

	if cfg.RequestBindAddress != "" {
		s.receiver, err = newMessageReceiver(ctx, cfg.RequestBindAddress, s.dispatcher, logger, &s.wg)
		if err != nil {
			ctx.Term()
			return nil, err
		}
	}

	if cfg.PublishBindAddress != "" {
		s.sender, err = newMessageSender(ctx, cfg.PublishBindAddress, logger)
		if err != nil {
			if s.receiver != nil {
				s.receiver.socket.Close()
			}
			ctx.Term()
			return nil, err
		}
	}

	return s, nil
}

// RegisterHandler adds a handler for a specific message type
func (s *ZeroMQService) RegisterHandler(messageType string, handler MessageHandler) {
	s.dispatcher.RegisterHandler(messageType, handler)
}

// RegisterHandlerFunc adds a handler function for a specific message type
func (s *ZeroMQService) RegisterHandlerFunc(messageType string, handler func([]byte) ([]byte, error)) {
	s.dispatcher.RegisterHandler(messageType, HandlerFunc(handler))
}

// SetRouter routes raw envelopes received on the request socket
func (s *ZeroMQService) SetRouter(router EnvelopeRouter) {
	s.dispatcher.SetRouter(router)
}

// Start begins the ZeroMQ service
func (s *ZeroMQService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.logger.Infof("Starting ZeroMQ service")

	if s.receiver != nil {
		s.receiver.Start()
	}
	return nil
}

// Stop halts the service and terminates the context
func (s *ZeroMQService) Stop() {
	s.mu.Lock()
	if !s.running && s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Infof("Stopping ZeroMQ service")

	if s.receiver != nil {
		s.receiver.Stop()
	}
	s.wg.Wait()
	if s.receiver != nil && !s.receiver.started {
		// never started, so the loop did not take ownership of the socket
		s.receiver.socket.Close()
	}

	if s.sender != nil {
		s.sender.Close()
	}

	if s.ctx != nil {
		s.ctx.Term()
		s.ctx = nil
	}

	s.logger.Infof("ZeroMQ service stopped")
}

// PublishMessage sends a message with the given topic
func (s *ZeroMQService) PublishMessage(topic string, payload []byte) error {
	if s.sender == nil {
		return ErrNoPublisher
	}
	return s.sender.PublishMessage(topic, payload)
}

// PublishJSON publishes a JSON-serializable message with the given topic
func (s *ZeroMQService) PublishJSON(topic string, messageType string, data interface{}) error {
	msgData, err := json.Marshal(newMessage(messageType, data))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return s.PublishMessage(topic, msgData)
}
