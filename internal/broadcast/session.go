package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/contestops/contestfeed/internal/feed"
)

// Sink is the output channel for one connected subscriber. A sink is owned
// exclusively by its session; writes and Close are never concurrent with
// each other (the engine serializes them).
type Sink interface {
	// WriteLine delivers one event line. The sink owns framing (trailing
	// newline, flush).
	WriteLine(line []byte) error
	// WriteKeepAlive delivers the idle keep-alive token. Not an event:
	// never logged, never consumes an id.
	WriteKeepAlive() error
	Close() error
}

// SessionState is the lifecycle position of a subscription.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateReplaying
	StateLive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReplaying:
		return "replaying"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the per-connection subscription state. Created on connect,
// registered with the engine after replay, closed exactly once on write
// failure, explicit disconnect, or contest finalization.
type Session struct {
	ID     string
	sink   Sink
	filter feed.Filter

	state atomic.Int32

	// lastActivity is written under the engine mutex.
	lastActivity time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wraps a sink and filter into a fresh CONNECTING session.
func NewSession(sink Sink, filter feed.Filter) *Session {
	return &Session{
		ID:     uuid.New().String(),
		sink:   sink,
		filter: filter,
		done:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// Done is closed when the session reaches CLOSED. Connection handlers
// block on it to keep the transport open for the session's lifetime.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// close transitions to CLOSED and releases the sink. Idempotent; a CLOSED
// session never transitions back.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		s.sink.Close()
		close(s.done)
	})
}
