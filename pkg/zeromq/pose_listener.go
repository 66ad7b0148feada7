package zeromq

import (
	"fmt"
	"sync"
	"sync/atomic"

	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/open-teleop/handpose/pkg/processing"
	"github.com/pebbe/zmq4"
)

// ListenerSessionPrefix prefixes the session id of every envelope a
// PoseListener routes. PosePublisher does not relay those sessions.
const ListenerSessionPrefix = "zmq:"

// PoseListener subscribes to a PosePublisher and routes every message as a
// PoseEnvelope. The payload is decoded and validated by the pipeline.
type PoseListener struct {
	address string
	topic   string
	router  EnvelopeRouter
	logger  customlog.Logger

	ctx     *zmq4.Context
	running atomic.Bool
	wg      sync.WaitGroup

	received atomic.Int64
}

// NewPoseListener creates a listener for topic at address. An empty topic
// subscribes to everything.
func NewPoseListener(address, topic string, router EnvelopeRouter, logger customlog.Logger) *PoseListener {
	return &PoseListener{
		address: address,
		topic:   topic,
		router:  router,
		logger:  logger,
	}
}

// Start connects and begins receiving
func (l *PoseListener) Start() error {
	if l.running.Load() {
		return nil
	}

	ctx, err := zmq4.NewContext()
	if err != nil {
		return fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	socket, err := ctx.NewSocket(zmq4.SUB)
	if err != nil {
		ctx.Term()
		return fmt.Errorf("failed to create SUB socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		ctx.Term()
		return fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.SetSubscribe(l.topic); err != nil {
		socket.Close()
		ctx.Term()
		return fmt.Errorf("failed to subscribe to '%s': %w", l.topic, err)
	}
	if err := socket.Connect(l.address); err != nil {
		socket.Close()
		ctx.Term()
		return fmt.Errorf("failed to connect to %s: %w", l.address, err)
	}

	l.ctx = ctx
	l.running.Store(true)
	l.wg.Add(1)
	go l.receiveLoop(socket)

	l.logger.Infof("Pose listener subscribed to '%s' on %s", l.topic, l.address)
	return nil
}

// Stop stops receiving and releases the socket
func (l *PoseListener) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	l.wg.Wait()
	l.ctx.Term()
	l.logger.Infof("Pose listener stopped after %d messages", l.received.Load())
}

// Received returns the number of messages taken off the socket
func (l *PoseListener) Received() int64 {
	return l.received.Load()
}

func (l *PoseListener) receiveLoop(socket *zmq4.Socket) {
	defer l.wg.Done()
	defer socket.Close()

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	for l.running.Load() {
		sockets, err := poller.Poll(pollInterval)
		if err != nil || len(sockets) == 0 {
			continue
		}

		frames, err := socket.RecvMessageBytes(0)
		if err != nil {
			l.logger.Warnf("Error receiving pose message: %v", err)
			continue
		}
		if len(frames) != 2 {
			l.logger.Warnf("Dropping pose message with %d frames", len(frames))
			continue
		}
		l.received.Add(1)

		env := processing.NewPoseEnvelope(string(frames[0]), ListenerSessionPrefix+l.address, frames[1])
		if err := l.router.RouteMessage(env); err != nil {
			l.logger.Debugf("Failed to route pose message: %v", err)
		}
	}
}
