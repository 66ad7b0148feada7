package transport

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/open-teleop/handpose/pkg/metrics"
)

// DialFunc opens a connection. net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Dialer opens producer streams to a receiver, retrying with backoff.
type Dialer struct {
	Address   string
	Backoff   BackoffConfig
	Codec     handpose.Codec
	Logger    customlog.Logger
	Collector *metrics.Collector
	DialFunc  DialFunc
}

// Stream is a producer connection that redials after a failed write.
// It is safe for concurrent use.
type Stream struct {
	dialer *Dialer
	rng    *rand.Rand

	mu   sync.Mutex
	conn net.Conn
}

// NewStream returns a Stream that connects on first Send.
func (d *Dialer) NewStream() *Stream {
	return &Stream{
		dialer: d,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Dial returns a connected Stream, retrying until ctx is done.
func (d *Dialer) Dial(ctx context.Context) (*Stream, error) {
	s := d.NewStream()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connectLocked(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stream) connectLocked(ctx context.Context) error {
	d := s.dialer
	dial := d.DialFunc
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}

	for attempt := 1; ; attempt++ {
		conn, err := dial(ctx, "tcp", d.Address)
		if err == nil {
			d.Logger.Infof("Connected to receiver %s", d.Address)
			if d.Collector != nil {
				d.Collector.StreamOpened(TransportTCP)
			}
			s.conn = conn
			return nil
		}

		delay := NextBackoffDelay(d.Backoff, attempt, s.rng)
		d.Logger.Warnf("Dial %s failed (attempt %d), retrying in %v: %v", d.Address, attempt, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("dial %s: %w", d.Address, ctx.Err())
		case <-timer.C:
		}
	}
}

// Send writes one record, connecting first if needed. A failed write drops
// the connection; the next Send redials. The record is not retried.
func (s *Stream) Send(ctx context.Context, record handpose.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.connectLocked(ctx); err != nil {
			return err
		}
	}

	if err := s.dialer.Codec.WriteRecord(s.conn, record); err != nil {
		s.dialer.Logger.Warnf("Write to %s failed, dropping connection: %v", s.dialer.Address, err)
		if s.dialer.Collector != nil {
			s.dialer.Collector.RecordError(TransportTCP, err)
		}
		s.closeLocked()
		return err
	}

	if s.dialer.Collector != nil {
		s.dialer.Collector.RecordSent(TransportTCP)
	}
	return nil
}

// Connected reports whether the stream holds an open connection.
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close closes the current connection, if any.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Stream) closeLocked() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
	if s.dialer.Collector != nil {
		s.dialer.Collector.StreamClosed(TransportTCP)
	}
}
