// Package gateway bridges synchronous request handlers to the contest's
// asynchronous mutation pipeline: trigger a mutation, wait for its own
// event to come back through the feed, return the correlated result.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/contestops/contestfeed/internal/broadcast"
	"github.com/contestops/contestfeed/internal/feed"
)

// ErrTimedOut reports that the correlated event never arrived within the
// deadline. Distinct from hard errors so callers map it to a server-side
// failure instead of hanging or silently succeeding.
var ErrTimedOut = errors.New("confirmation timed out")

// Gateway correlates mutation triggers with their resulting feed events.
type Gateway struct {
	engine *broadcast.Engine
	poll   time.Duration
	logger *zap.Logger
}

// New creates a gateway polling at the given interval.
func New(engine *broadcast.Engine, poll time.Duration, logger *zap.Logger) *Gateway {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Gateway{engine: engine, poll: poll, logger: logger}
}

// resultSlot is the shared rendezvous between the observer callback and
// the polling request goroutine; the two run on independent threads whose
// synchronization primitives are not ours to block on.
type resultSlot struct {
	mu  sync.Mutex
	ev  feed.Event
	set bool
}

func (r *resultSlot) put(ev feed.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.set {
		r.ev = ev
		r.set = true
	}
}

func (r *resultSlot) get() (feed.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ev, r.set
}

// SubmitAndWait registers a temporary observer, fires the trigger, and
// polls until the first event matching the predicate arrives or the
// timeout elapses. The observer is deregistered on every exit path.
func (g *Gateway) SubmitAndWait(ctx context.Context, trigger func(), match func(feed.Event) bool, timeout time.Duration) (feed.Event, error) {
	slot := &resultSlot{}

	handle := g.engine.AddObserver(func(ev feed.Event) {
		if match(ev) {
			slot.put(ev)
		}
	})
	defer g.engine.RemoveObserver(handle)

	trigger()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		if ev, ok := slot.get(); ok {
			g.logger.Debug("mutation confirmed", zap.String("eventID", ev.ID))
			return ev, nil
		}
		select {
		case <-ctx.Done():
			return feed.Event{}, ctx.Err()
		case <-deadline.C:
			g.logger.Warn("mutation confirmation timed out",
				zap.Duration("timeout", timeout),
			)
			return feed.Event{}, ErrTimedOut
		case <-ticker.C:
		}
	}
}
