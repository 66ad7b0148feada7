package pose

import (
	"sync"

	"github.com/open-teleop/handpose/pkg/handpose"
	"github.com/open-teleop/handpose/pkg/metrics"
	"github.com/open-teleop/handpose/pkg/processing"
	"github.com/segmentio/ksuid"
)

// Viewer is one subscribed AR viewer. Frames carries encoded records.
type Viewer struct {
	ID     string
	frames chan []byte
}

// Frames returns the viewer's record channel. It is closed on Unregister.
func (v *Viewer) Frames() <-chan []byte {
	return v.frames
}

// Hub fans decoded records out to viewers. A viewer whose buffer is full
// misses records instead of slowing the pipeline.
type Hub struct {
	mu        sync.RWMutex
	viewers   map[*Viewer]struct{}
	buffer    int
	codec     handpose.Codec
	collector *metrics.Collector
}

// NewHub creates a hub with a per-viewer buffer of size buffer. collector may be nil.
func NewHub(buffer int, codec handpose.Codec, collector *metrics.Collector) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		viewers:   make(map[*Viewer]struct{}),
		buffer:    buffer,
		codec:     codec,
		collector: collector,
	}
}

// Register adds a viewer
func (h *Hub) Register() *Viewer {
	v := &Viewer{
		ID:     ksuid.New().String(),
		frames: make(chan []byte, h.buffer),
	}

	h.mu.Lock()
	h.viewers[v] = struct{}{}
	h.mu.Unlock()

	if h.collector != nil {
		h.collector.ViewerConnected()
	}
	return v
}

// Unregister removes a viewer and closes its channel
func (h *Hub) Unregister(v *Viewer) {
	h.mu.Lock()
	_, ok := h.viewers[v]
	if ok {
		delete(h.viewers, v)
		close(v.frames)
	}
	h.mu.Unlock()

	if ok && h.collector != nil {
		h.collector.ViewerDisconnected()
	}
}

// Count returns the number of connected viewers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// HandleRecord encodes the record once and offers it to every viewer
func (h *Hub) HandleRecord(_ processing.RecordMeta, record handpose.Record) {
	frame := h.codec.Encode(record)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for v := range h.viewers {
		select {
		case v.frames <- frame:
		default:
			if h.collector != nil {
				h.collector.FrameDropped()
			}
		}
	}
}
