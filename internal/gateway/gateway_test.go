package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/contestops/contestfeed/internal/broadcast"
	"github.com/contestops/contestfeed/internal/eventlog"
	"github.com/contestops/contestfeed/internal/feed"
)

func newTestGateway(t *testing.T) (*Gateway, *broadcast.Engine) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	log, err := eventlog.Open(t.TempDir(), "demo", logger)
	if err != nil {
		t.Fatalf("eventlog.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	engine, err := broadcast.New(log, logger)
	if err != nil {
		t.Fatalf("broadcast.New: %v", err)
	}
	return New(engine, 10*time.Millisecond, logger), engine
}

func clarDraft(id string) feed.Draft {
	return feed.Draft{
		Type: feed.TypeClarifications,
		Op:   feed.OpCreate,
		Data: json.RawMessage(`{"id":"` + id + `"}`),
	}
}

func TestSubmitAndWaitSuccess(t *testing.T) {
	g, engine := newTestGateway(t)

	trigger := func() {
		go func() {
			time.Sleep(30 * time.Millisecond)
			engine.Publish(clarDraft("clar-1"))
		}()
	}
	match := func(ev feed.Event) bool {
		return ev.Type == feed.TypeClarifications
	}

	ev, err := g.SubmitAndWait(context.Background(), trigger, match, 2*time.Second)
	if err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if ev.Type != feed.TypeClarifications {
		t.Errorf("correlated wrong event: %+v", ev)
	}
	if engine.ObserverCount() != 0 {
		t.Errorf("observer leaked after success: %d", engine.ObserverCount())
	}
}

func TestSubmitAndWaitTimeout(t *testing.T) {
	g, engine := newTestGateway(t)

	neverMatch := func(feed.Event) bool { return false }

	start := time.Now()
	_, err := g.SubmitAndWait(context.Background(), func() {}, neverMatch, 100*time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}

	if engine.ObserverCount() != 0 {
		t.Errorf("observer leaked after timeout: %d", engine.ObserverCount())
	}

	// Unrelated traffic after the timeout must not crash or resurrect
	// the removed observer.
	engine.Publish(clarDraft("clar-later"))
}

func TestSubmitAndWaitContextCancel(t *testing.T) {
	g, engine := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := g.SubmitAndWait(ctx, func() {}, func(feed.Event) bool { return false }, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if engine.ObserverCount() != 0 {
		t.Errorf("observer leaked after cancel: %d", engine.ObserverCount())
	}
}

func TestSubmitAndWaitIgnoresNonMatching(t *testing.T) {
	g, engine := newTestGateway(t)

	trigger := func() {
		go func() {
			engine.Publish(feed.Draft{Type: feed.TypeTeams, Op: feed.OpCreate, Data: json.RawMessage(`{"id":"t1"}`)})
			time.Sleep(20 * time.Millisecond)
			engine.Publish(clarDraft("clar-9"))
		}()
	}
	match := func(ev feed.Event) bool {
		if ev.Type != feed.TypeClarifications {
			return false
		}
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return false
		}
		return payload.ID == "clar-9"
	}

	ev, err := g.SubmitAndWait(context.Background(), trigger, match, 2*time.Second)
	if err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if ev.Type != feed.TypeClarifications {
		t.Errorf("matched wrong event: %+v", ev)
	}
}
