package sensor

import (
	"context"
	"errors"
	"time"

	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
)

// RecordWriter delivers records to the receiver. *transport.Stream implements it.
type RecordWriter interface {
	Send(ctx context.Context, record handpose.Record) error
}

// Broadcaster is the secondary best-effort channel.
type Broadcaster interface {
	PublishRecord(record handpose.Record) error
}

// Producer reads a Source and writes one record per accepted frame.
type Producer struct {
	Source      Source
	Writer      RecordWriter
	Broadcaster Broadcaster // optional

	// Interval is the minimum spacing between records. Zero sends every frame.
	Interval time.Duration
	// MinConfidence skips frames whose hand confidence is at or below it.
	MinConfidence float32

	Logger customlog.Logger
}

// ProducerStats counts what Run did with the frames it read.
type ProducerStats struct {
	Frames     int64
	Sent       int64
	Skipped    int64
	Throttled  int64
	SendErrors int64
}

// Run pumps frames until ctx is done. Send failures are logged and the frame
// dropped; the writer reconnects on its next Send.
func (p *Producer) Run(ctx context.Context) (ProducerStats, error) {
	var stats ProducerStats
	var last time.Time

	for {
		hand, ok, err := p.Source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return stats, nil
			}
			return stats, err
		}
		stats.Frames++

		if !ok || !hand.Valid || hand.Confidence <= p.MinConfidence {
			stats.Skipped++
			continue
		}

		now := time.Now()
		if p.Interval > 0 && !last.IsZero() && now.Sub(last) < p.Interval {
			stats.Throttled++
			continue
		}
		last = now

		record := PoseFromHand(hand)

		if err := p.Writer.Send(ctx, record); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, nil
			}
			stats.SendErrors++
			p.Logger.Warnf("Dropping record %s: %v", record, err)
		} else {
			stats.Sent++
		}

		if p.Broadcaster != nil {
			if err := p.Broadcaster.PublishRecord(record); err != nil {
				p.Logger.Debugf("Broadcast failed: %v", err)
			}
		}
	}
}
