package server

import (
	"errors"
	"net/http"
	"sync"
	"time"
)

const (
	// Time allowed to push one message onto the wire.
	sinkWriteWait = 10 * time.Second

	// Queued lines per subscriber. Replay bursts fill this fastest, so it
	// is sized above the WebSocket send buffer.
	sinkBufferSize = 1024
)

var (
	// errSlowSubscriber reports a full send queue; the subscriber cannot
	// keep up and is disconnected rather than allowed to apply
	// backpressure to the broadcast path.
	errSlowSubscriber = errors.New("subscriber send buffer full")

	// errSinkClosed reports a write to a sink whose pump has stopped.
	errSinkClosed = errors.New("stream sink closed")
)

// streamSink delivers feed lines to a chunked HTTP response. Writes are
// queued and drained by a single pump goroutine, so a peer that stops
// reading its socket never blocks the caller; once the queue fills the
// sink reports the subscriber as stalled and the engine removes it.
type streamSink struct {
	w    http.ResponseWriter
	rc   *http.ResponseController
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	pumpDone  chan struct{}
}

func newStreamSink(w http.ResponseWriter) *streamSink {
	s := &streamSink{
		w:        w,
		rc:       http.NewResponseController(w),
		send:     make(chan []byte, sinkBufferSize),
		closed:   make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	go s.writePump()
	return s
}

// WriteLine queues one event line for delivery, framing it with the
// trailing newline. Never blocks.
func (s *streamSink) WriteLine(line []byte) error {
	msg := make([]byte, 0, len(line)+1)
	msg = append(msg, line...)
	msg = append(msg, '\n')
	return s.enqueue(msg)
}

// WriteKeepAlive queues the bare keep-alive token.
func (s *streamSink) WriteKeepAlive() error {
	return s.enqueue([]byte("\n"))
}

func (s *streamSink) enqueue(msg []byte) error {
	select {
	case <-s.closed:
		return errSinkClosed
	case <-s.pumpDone:
		return errSinkClosed
	default:
	}

	select {
	case s.send <- msg:
		return nil
	default:
		return errSlowSubscriber
	}
}

// Close stops the pump. Idempotent; lines still queued are dropped.
func (s *streamSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}

// wait blocks until the pump has stopped touching the response. The
// connection handler must not return to the server before this.
func (s *streamSink) wait() {
	<-s.pumpDone
}

// writePump writes queued messages to the response, flushing after each
// one. Every write carries a deadline so a dead peer cannot hold the
// pump past sinkWriteWait.
func (s *streamSink) writePump() {
	defer close(s.pumpDone)

	for {
		select {
		case msg := <-s.send:
			s.rc.SetWriteDeadline(time.Now().Add(sinkWriteWait))
			if _, err := s.w.Write(msg); err != nil {
				return
			}
			s.rc.Flush()

		case <-s.closed:
			return
		}
	}
}
