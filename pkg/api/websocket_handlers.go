package api

import (
	"encoding/json"
	"errors"
	"syscall"

	"github.com/gofiber/contrib/websocket"
	"github.com/open-teleop/handpose/domain/pose"
	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/open-teleop/handpose/pkg/metrics"
	"github.com/open-teleop/handpose/pkg/processing"
	"github.com/open-teleop/handpose/pkg/transport"
	"github.com/segmentio/ksuid"
)

// TransportWebSocket labels metrics of websocket producers.
const TransportWebSocket = "websocket"

func logClose(logger customlog.Logger, err error) {
	switch {
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		logger.Warnf("WebSocket read error: %v", err)
	case errors.Is(err, websocket.ErrCloseSent), errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET):
		logger.Infof("WebSocket closed normally")
	default:
		logger.Infof("WebSocket closed: %v", err)
	}
}

// PoseViewerHandler pushes every decoded record to the viewer as one binary
// 24-byte message. Messages from the viewer are read and discarded.
func PoseViewerHandler(conn *websocket.Conn, hub *pose.Hub, logger customlog.Logger) {
	viewer := hub.Register()
	defer hub.Unregister(viewer)

	logger = logger.WithField("viewer", viewer.ID)
	logger.Infof("Viewer connected: %s", conn.RemoteAddr())

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				logClose(logger, err)
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case frame, ok := <-viewer.Frames():
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				logger.Infof("Viewer write failed: %v", err)
				return
			}
		}
	}
}

// IngestWebSocketHandler accepts records from a producer. Each binary message
// must hold exactly one record; anything else is dropped by the pipeline as
// malformed. Text messages are JSON records.
func IngestWebSocketHandler(conn *websocket.Conn, topic string, codec handpose.Codec, router transport.Router, collector *metrics.Collector, logger customlog.Logger) {
	session := ksuid.New().String()
	logger = logger.WithField("session", session)
	logger.Infof("Ingest WebSocket connected: %s", conn.RemoteAddr())

	if collector != nil {
		collector.StreamOpened(TransportWebSocket)
		defer collector.StreamClosed(TransportWebSocket)
	}

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			logClose(logger, err)
			return
		}

		var payload []byte
		switch mt {
		case websocket.BinaryMessage:
			payload = msg
		case websocket.TextMessage:
			var record handpose.Record
			if err := json.Unmarshal(msg, &record); err != nil {
				logger.Warnf("Dropping unparsable JSON record: %v", err)
				continue
			}
			payload = codec.Encode(record)
		default:
			continue
		}

		if err := router.RouteMessage(processing.NewPoseEnvelope(topic, session, payload)); err != nil {
			logger.Warnf("Failed to route record: %v", err)
		}
	}
}
