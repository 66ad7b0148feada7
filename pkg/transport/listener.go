package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/open-teleop/handpose/pkg/flatbuffers/handpose/message"
	"github.com/open-teleop/handpose/pkg/handpose"
	customlog "github.com/open-teleop/handpose/pkg/log"
	"github.com/open-teleop/handpose/pkg/metrics"
	"github.com/open-teleop/handpose/pkg/processing"
	"github.com/segmentio/ksuid"
)

// TransportTCP labels metrics of the TCP record stream.
const TransportTCP = "tcp"

// Router accepts envelopes for processing. *processing.MessageDirector implements it.
type Router interface {
	RouteMessage(env *message.PoseEnvelope) error
}

// ListenerOptions configures a Listener. Collector may be nil.
type ListenerOptions struct {
	Topic     string
	Codec     handpose.Codec
	Router    Router
	Logger    customlog.Logger
	Collector *metrics.Collector
}

// Listener accepts producer connections and reads one record stream from each.
type Listener struct {
	opts ListenerOptions
	ln   net.Listener

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Listen opens a TCP listener on addr.
func Listen(addr string, opts ListenerOptions) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewListener(ln, opts), nil
}

// NewListener serves record streams accepted from ln.
func NewListener(ln net.Listener, opts ListenerOptions) *Listener {
	return &Listener{
		opts:  opts,
		ln:    ln,
		conns: make(map[net.Conn]struct{}),
	}
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until ctx is done or Close is called.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	l.opts.Logger.Infof("Record stream listening on %s", l.ln.Addr())

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if closed {
				l.wg.Wait()
				return nil
			}
			return err
		}

		if !l.track(conn) {
			_ = conn.Close()
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.untrack(conn)
			l.handleConn(conn)
		}()
	}
}

// Close stops accepting and closes every open stream, unblocking their reads.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for conn := range l.conns {
		_ = conn.Close()
	}
	l.mu.Unlock()

	return l.ln.Close()
}

func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
	_ = conn.Close()
}

func (l *Listener) handleConn(conn net.Conn) {
	session := ksuid.New().String()
	logger := l.opts.Logger.WithField("session", session).WithField("peer", conn.RemoteAddr().String())
	logger.Infof("Producer connected")

	if l.opts.Collector != nil {
		l.opts.Collector.StreamOpened(TransportTCP)
		defer l.opts.Collector.StreamClosed(TransportTCP)
	}

	var count int64
	for {
		record, err := l.opts.Codec.ReadRecord(conn)
		if err != nil {
			l.logReadError(logger, err, count)
			return
		}
		count++

		env := processing.NewRecordEnvelope(l.opts.Topic, session, l.opts.Codec, record)
		if err := l.opts.Router.RouteMessage(env); err != nil {
			logger.Warnf("Failed to route record: %v", err)
		}
	}
}

func (l *Listener) logReadError(logger customlog.Logger, err error, count int64) {
	switch {
	case errors.Is(err, io.EOF):
		logger.Infof("Producer disconnected after %d records", count)
		return
	case errors.Is(err, handpose.ErrIncompleteRecord):
		logger.Warnf("Producer closed mid-record after %d records: %v", count, err)
	default:
		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			logger.Debugf("Stream closed by shutdown after %d records", count)
			return
		}
		logger.Errorf("Record stream failed after %d records: %v", count, err)
	}
	if l.opts.Collector != nil {
		l.opts.Collector.RecordError(TransportTCP, err)
	}
}
