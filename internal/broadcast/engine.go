// Package broadcast owns the authoritative event sequence: id assignment,
// durable logging, and fan-out to every live subscription.
package broadcast

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/contestops/contestfeed/internal/eventlog"
	"github.com/contestops/contestfeed/internal/feed"
	"github.com/contestops/contestfeed/internal/model"
	"github.com/contestops/contestfeed/internal/snapshot"
)

// Observer receives every published event. Used by the confirmation
// gateway for short-lived correlation listeners.
type Observer func(feed.Event)

// Engine serializes all publishes, session attaches and heartbeats under
// one critical section. The id counter and the session registry are the
// only shared state; the log append rides inside the same section so the
// log order and the delivery order can never diverge.
type Engine struct {
	log    *eventlog.Log
	logger *zap.Logger

	// onStorageFailure is invoked (outside the lock) when a durable
	// append fails. Optional.
	onStorageFailure func(error)

	mu            sync.Mutex
	nextID        int64
	sessions      map[string]*Session
	lastBroadcast time.Time
	lastState     []byte
	observers     map[int64]Observer
	observerSeq   int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithStorageFailureHook installs a callback fired after a failed durable
// append. The event is still broadcast best-effort first.
func WithStorageFailureHook(fn func(error)) Option {
	return func(e *Engine) { e.onStorageFailure = fn }
}

// New creates an engine over an opened event log, recovering the id
// counter and the state-dedup baseline from the log's contents.
func New(log *eventlog.Log, logger *zap.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		log:       log,
		logger:    logger,
		sessions:  make(map[string]*Session),
		observers: make(map[int64]Observer),
	}
	for _, opt := range opts {
		opt(e)
	}

	last, err := log.LastID()
	if err != nil {
		return nil, fmt.Errorf("recovering id counter: %w", err)
	}
	e.nextID = last

	if last > 0 {
		lines, err := log.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("recovering state baseline: %w", err)
		}
		for _, line := range lines {
			ev, err := feed.ParseLine(line)
			if err != nil {
				continue
			}
			if ev.Type == feed.TypeState {
				e.lastState = append([]byte(nil), ev.Data...)
			}
		}
	}

	logger.Info("broadcast engine ready", zap.Int64("lastID", last))
	return e, nil
}

// Seed publishes a full batched snapshot of the contest, but only when the
// log is empty. Restarting against an existing log must not re-seed;
// id assignment simply continues from the recovered counter.
func (e *Engine) Seed(c model.Contest, builder *snapshot.Builder) error {
	if !e.log.Empty() {
		e.logger.Info("event log not empty, skipping snapshot seed",
			zap.Int("events", e.log.Len()),
		)
		return nil
	}

	drafts, err := builder.Build(c, snapshot.Options{Mode: snapshot.Batched})
	if err != nil {
		return fmt.Errorf("building seed snapshot: %w", err)
	}
	for _, d := range drafts {
		e.Publish(d)
	}
	e.logger.Info("event log seeded", zap.Int("events", len(drafts)))
	return nil
}

// Publish is the single path by which a draft becomes a real event: the
// next id is assigned, the line is durably appended, and every matching
// live session receives it. Returns the assigned event and whether it was
// actually published (state payloads identical to the previous one are
// suppressed).
func (e *Engine) Publish(d feed.Draft) (feed.Event, bool) {
	e.mu.Lock()

	if d.Type == feed.TypeState && bytes.Equal(d.Data, e.lastState) {
		e.mu.Unlock()
		return feed.Event{}, false
	}

	e.nextID++
	ev := d.WithID(e.nextID)

	line, err := feed.MarshalLine(ev)
	if err != nil {
		// Roll the counter back so ids stay gapless.
		e.nextID--
		e.mu.Unlock()
		e.logger.Error("dropping unencodable event", zap.Error(err))
		return feed.Event{}, false
	}

	var storageErr error
	if err := e.log.Append(line); err != nil {
		// Fatal for this event: logged, never retried. A retry could
		// duplicate delivery for subscribers that already saw the line.
		storageErr = err
		e.logger.Error("durable append failed, broadcasting best-effort",
			zap.String("id", ev.ID),
			zap.Error(err),
		)
	}

	e.fanOutLocked(line)
	e.lastBroadcast = time.Now()
	if d.Type == feed.TypeState {
		e.lastState = append([]byte(nil), d.Data...)
	}

	observers := make([]Observer, 0, len(e.observers))
	for _, obs := range e.observers {
		observers = append(observers, obs)
	}
	e.mu.Unlock()

	if storageErr != nil && e.onStorageFailure != nil {
		e.onStorageFailure(storageErr)
	}
	for _, obs := range observers {
		obs(ev)
	}
	return ev, true
}

// fanOutLocked writes the line to every matching live session. A failing
// sink terminates only its own session; delivery to the others proceeds.
// Caller holds e.mu.
func (e *Engine) fanOutLocked(line []byte) {
	now := time.Now()
	for id, s := range e.sessions {
		if !s.filter.Matches(line) {
			continue
		}
		if err := s.sink.WriteLine(line); err != nil {
			e.logger.Debug("subscriber write failed, removing session",
				zap.String("sessionID", id),
				zap.Error(err),
			)
			delete(e.sessions, id)
			s.close()
			continue
		}
		s.lastActivity = now
	}
}

// Attach replays the log through the session's filter and registers the
// session for live delivery. Replay and registration happen inside the
// same critical section Publish uses, so a concurrent publish can neither
// be missed nor delivered twice across the join point.
func (e *Engine) Attach(s *Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s.setState(StateReplaying)

	lines, err := e.log.ReadAll()
	if err != nil {
		s.close()
		return fmt.Errorf("reading log for replay: %w", err)
	}
	for _, line := range lines {
		if !s.filter.Matches(line) {
			continue
		}
		if err := s.sink.WriteLine(line); err != nil {
			s.close()
			return fmt.Errorf("replay write: %w", err)
		}
	}

	s.setState(StateLive)
	s.lastActivity = time.Now()
	e.sessions[s.ID] = s

	e.logger.Debug("session live",
		zap.String("sessionID", s.ID),
		zap.Int("replayed", len(lines)),
	)
	return nil
}

// Detach removes and closes the session. Safe to call for sessions the
// engine already dropped.
func (e *Engine) Detach(s *Session) {
	e.mu.Lock()
	delete(e.sessions, s.ID)
	e.mu.Unlock()
	s.close()
}

// CloseAll terminates every live session, used at contest finalization
// and shutdown.
func (e *Engine) CloseAll() {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessions = make(map[string]*Session)
	e.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	if len(sessions) > 0 {
		e.logger.Info("closed all sessions", zap.Int("count", len(sessions)))
	}
}

// SessionInfo is a point-in-time description of one live session.
type SessionInfo struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	LastActivity time.Time `json:"last_activity"`
}

// SessionInfos describes every live session, for status reporting.
func (e *Engine) SessionInfos() []SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]SessionInfo, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, SessionInfo{
			ID:           s.ID,
			State:        s.State().String(),
			LastActivity: s.lastActivity,
		})
	}
	return out
}

// SessionCount returns the number of live sessions.
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// LastBroadcast reports when the engine last wrote to subscribers.
func (e *Engine) LastBroadcast() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastBroadcast
}

// KeepAlive writes the idle keep-alive token to every live session,
// following the same isolated-removal rule as event fan-out.
func (e *Engine) KeepAlive() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for id, s := range e.sessions {
		if err := s.sink.WriteKeepAlive(); err != nil {
			e.logger.Debug("keep-alive write failed, removing session",
				zap.String("sessionID", id),
				zap.Error(err),
			)
			delete(e.sessions, id)
			s.close()
			continue
		}
		s.lastActivity = now
	}
	e.lastBroadcast = now
}

// AddObserver registers a publish observer and returns its handle.
func (e *Engine) AddObserver(obs Observer) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observerSeq++
	e.observers[e.observerSeq] = obs
	return e.observerSeq
}

// RemoveObserver deregisters an observer. Unknown handles are ignored.
func (e *Engine) RemoveObserver(handle int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.observers, handle)
}

// ObserverCount returns the number of registered observers.
func (e *Engine) ObserverCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.observers)
}
