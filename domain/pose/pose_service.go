package pose

import (
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/open-teleop/handpose/pkg/handpose"
	"github.com/open-teleop/handpose/pkg/processing"
)

// LatestPose is the most recent record seen on any topic
type LatestPose struct {
	Record     handpose.Record       `json:"record"`
	Meta       processing.RecordMeta `json:"meta"`
	ReceivedAt time.Time             `json:"received_at"`
}

// SourceStats counts records per topic. Topics missing from the stream config
// share one entry when the pipeline folds them, see processing.RecordMeta.StatsKey.
type SourceStats struct {
	Topic           string    `json:"topic"`
	Count           int64     `json:"count"`
	NonFinite       int64     `json:"non_finite"`
	LastSession     string    `json:"last_session"`
	LastTimestampNs int64     `json:"last_timestamp_ns"`
	LastReceived    time.Time `json:"last_received"`
}

// PoseService keeps the latest pose and per-topic statistics
type PoseService struct {
	mu      sync.RWMutex
	latest  *LatestPose
	sources map[string]*SourceStats
	codec   handpose.Codec
	now     func() time.Time
}

// NewPoseService creates a new pose service instance. codec renders the wire
// hex of the latest pose in the receiver's byte order.
func NewPoseService(codec handpose.Codec) *PoseService {
	return &PoseService{
		sources: make(map[string]*SourceStats),
		codec:   codec,
		now:     time.Now,
	}
}

// HandleRecord stores a decoded record
func (s *PoseService) HandleRecord(meta processing.RecordMeta, record handpose.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.latest = &LatestPose{Record: record, Meta: meta, ReceivedAt: now}

	key := meta.StatsKey()
	stats, ok := s.sources[key]
	if !ok {
		stats = &SourceStats{Topic: key}
		s.sources[key] = stats
	}
	stats.Count++
	if !record.Finite() {
		stats.NonFinite++
	}
	stats.LastSession = meta.SessionID
	stats.LastTimestampNs = meta.TimestampNs
	stats.LastReceived = now
}

// Latest returns the most recent pose, if any
func (s *PoseService) Latest() (LatestPose, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		return LatestPose{}, false
	}
	return *s.latest, true
}

// Stats returns per-topic statistics sorted by topic
func (s *PoseService) Stats() []SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make([]SourceStats, 0, len(s.sources))
	for _, st := range s.sources {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Topic < stats[j].Topic })
	return stats
}

// GetLatestHandler handles API requests for the latest pose
func (s *PoseService) GetLatestHandler(c *fiber.Ctx) error {
	latest, ok := s.Latest()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no pose received yet",
		})
	}

	// JSON has no NaN or Inf, so non-finite records are only given as wire hex
	finite := latest.Record.Finite()
	pose := fiber.Map{
		"meta":        latest.Meta,
		"received_at": latest.ReceivedAt,
		"finite":      finite,
		"wire":        hex.EncodeToString(s.codec.Encode(latest.Record)),
	}
	if finite {
		pose["record"] = latest.Record
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"pose":   pose,
	})
}

// GetStatsHandler handles API requests for per-topic statistics
func (s *PoseService) GetStatsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"sources": s.Stats(),
	})
}
