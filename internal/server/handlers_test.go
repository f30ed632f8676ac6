package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/contestops/contestfeed/internal/broadcast"
	"github.com/contestops/contestfeed/internal/config"
	"github.com/contestops/contestfeed/internal/eventlog"
	"github.com/contestops/contestfeed/internal/feed"
	"github.com/contestops/contestfeed/internal/gateway"
	"github.com/contestops/contestfeed/internal/model"
	"github.com/contestops/contestfeed/internal/snapshot"
)

type fixture struct {
	model  *model.Memory
	engine *broadcast.Engine
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	cfg := &config.Config{}
	cfg.Contest.ID = "demo"
	cfg.Feed.LogDir = t.TempDir()
	cfg.Feed.HeartbeatPeriodSec = 30
	cfg.Feed.IdleThresholdSec = 120
	cfg.Feed.ConfirmTimeoutSec = 2
	cfg.Feed.ConfirmPollMillis = 10
	cfg.Feed.SnapshotMode = "batched"
	cfg.Feed.SubmitPerMinute = 600
	cfg.Feed.SubmitBurst = 100

	m := model.NewMemory(model.Info{ID: "demo", Name: "Demo", Duration: "5:00:00"})
	m.AddTeam(model.Team{ID: "t1", Name: "Team One", DisplayOnScoreboard: true})
	m.AddProblem(model.Problem{ID: "p1", Label: "A", Name: "Sorting", Ordinal: 1})

	log, err := eventlog.Open(cfg.Feed.LogDir, cfg.Contest.ID, logger)
	if err != nil {
		t.Fatalf("eventlog.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	engine, err := broadcast.New(log, logger)
	if err != nil {
		t.Fatalf("broadcast.New: %v", err)
	}
	builder := snapshot.New(logger)
	if err := engine.Seed(m, builder); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	dispatcher := broadcast.NewDispatcher(engine, logger, nil)
	remove := m.AddListener(dispatcher.Listen)
	t.Cleanup(remove)

	gw := gateway.New(engine, cfg.Feed.ConfirmPoll(), logger)
	srv := NewServer(m, m, engine, log, builder, gw, cfg, logger)

	return &fixture{
		model:  m,
		engine: engine,
		router: NewRouter(srv, logger),
	}
}

func TestEventFeedRejectsBadParams(t *testing.T) {
	f := newFixture(t)

	cases := []string{
		"/contests/demo/event-feed?since=abc",
		"/contests/demo/event-feed?since=pc2-x",
		"/contests/demo/event-feed?types=bogus",
		"/contests/demo/event-feed?types=teams,nope",
	}
	for _, url := range cases {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest("GET", url, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", url, rec.Code)
		}
	}
}

func TestEventFeedUnknownContest(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/contests/other/event-feed", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown contest, got %d", rec.Code)
	}
}

func TestEventFeedStreamsReplayAndLive(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.router)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/contests/demo/event-feed", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET event-feed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type: %s", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var replayed []feed.Event
	for len(replayed) < 3 && scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		ev, err := feed.ParseLine(line)
		if err != nil {
			t.Fatalf("bad line %q: %v", line, err)
		}
		replayed = append(replayed, ev)
	}
	// Seeded snapshot: contests, state, problems, teams.
	if len(replayed) < 3 {
		t.Fatalf("replay delivered only %d events", len(replayed))
	}
	if replayed[0].Type != feed.TypeContests {
		t.Errorf("first replayed event should be contests, got %s", replayed[0].Type)
	}

	// A live mutation must arrive on the open stream.
	f.model.AddTeam(model.Team{ID: "t2", Name: "Late", DisplayOnScoreboard: true})

	found := false
	deadline := time.After(3 * time.Second)
	lineCh := make(chan []byte)
	go func() {
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			lineCh <- line
		}
		close(lineCh)
	}()
	for !found {
		select {
		case line, ok := <-lineCh:
			if !ok {
				t.Fatal("stream ended before live event arrived")
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			ev, err := feed.ParseLine(line)
			if err != nil {
				t.Fatalf("bad live line: %v", err)
			}
			if ev.Type == feed.TypeTeams && strings.Contains(string(ev.Data), `"t2"`) {
				found = true
			}
		case <-deadline:
			t.Fatal("live event never arrived")
		}
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/contests/demo/snapshot", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status: %d", rec.Code)
	}

	var types []feed.EntityType
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var line struct {
			Type feed.EntityType `json:"type"`
			ID   *string         `json:"id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("bad snapshot line: %v", err)
		}
		if line.ID != nil {
			t.Error("one-shot snapshot lines must not carry ids")
		}
		types = append(types, line.Type)
	}
	if len(types) < 4 {
		t.Errorf("expected at least contests/state/problems/teams, got %v", types)
	}

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/contests/demo/snapshot?types=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type should 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/contests/demo/snapshot?mode=bulk", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mode should 400, got %d", rec.Code)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/contests/demo/event-feed/archive", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("archive status: %d", rec.Code)
	}

	zr, err := zstd.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}

	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	if len(lines) < 4 {
		t.Fatalf("expected seeded events in archive, got %d lines", len(lines))
	}
	for i, line := range lines {
		ev, err := feed.ParseLine(line)
		if err != nil {
			t.Fatalf("archive line %d unparseable: %v", i, err)
		}
		if ev.ID != fmt.Sprintf("pc2-%d", i+1) {
			t.Errorf("archive line %d has id %s", i, ev.ID)
		}
	}
}

func TestSubmitClarification(t *testing.T) {
	f := newFixture(t)

	body := `{"from_team_id":"t1","problem_id":"p1","text":"is input sorted?"}`
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("POST", "/contests/demo/clarifications", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID      string `json:"id"`
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ID == "" || resp.EventID == "" {
		t.Errorf("missing ids in response: %+v", resp)
	}
}

func TestSubmitClarificationValidation(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("POST", "/contests/demo/clarifications", strings.NewReader(`{"text":""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty text should 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("POST", "/contests/demo/clarifications", strings.NewReader(`not json`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body should 400, got %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	var st struct {
		ContestID string `json:"contest_id"`
		Events    int    `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if st.ContestID != "demo" {
		t.Errorf("contest id: %s", st.ContestID)
	}
	if st.Events < 4 {
		t.Errorf("expected seeded events, got %d", st.Events)
	}
}
