package broadcast

import (
	"testing"

	"go.uber.org/zap"

	"github.com/contestops/contestfeed/internal/feed"
	"github.com/contestops/contestfeed/internal/model"
	"github.com/contestops/contestfeed/internal/snapshot"
)

func TestDispatcherPublishesModelChanges(t *testing.T) {
	e, log := newTestEngine(t)
	logger, _ := zap.NewDevelopment()

	m := model.NewMemory(model.Info{ID: "demo"})
	d := NewDispatcher(e, logger, nil)
	remove := m.AddListener(d.Listen)
	defer remove()

	m.AddTeam(model.Team{ID: "t1", DisplayOnScoreboard: true})
	m.AddSubmission(model.Submission{ID: "s1", TeamID: "t1"})

	lines, err := log.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 events, got %d", len(lines))
	}

	first, _ := feed.ParseLine(lines[0])
	if first.Type != feed.TypeTeams || first.Op != feed.OpCreate || first.ID != "pc2-1" {
		t.Errorf("unexpected first event: %+v", first)
	}
}

func TestDispatcherFinalizationClosesSessions(t *testing.T) {
	e, _ := newTestEngine(t)
	logger, _ := zap.NewDevelopment()

	finalized := false
	d := NewDispatcher(e, logger, func() { finalized = true })

	m := model.NewMemory(model.Info{ID: "demo"})
	remove := m.AddListener(d.Listen)
	defer remove()

	sink := &testSink{}
	s := NewSession(sink, mustFilter(t, "", ""))
	if err := e.Attach(s); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	now := "2026-08-31T12:00:00Z"
	m.SetState(model.State{Started: &now, Ended: &now, Finalized: &now})

	if e.SessionCount() != 0 {
		t.Errorf("finalization should close all sessions, %d left", e.SessionCount())
	}
	if s.State() != StateClosed {
		t.Errorf("session should be CLOSED, is %s", s.State())
	}
	if !finalized {
		t.Error("finalization hook not fired")
	}
}

func TestSeedOnlyWhenLogEmpty(t *testing.T) {
	e, log := newTestEngine(t)
	logger, _ := zap.NewDevelopment()
	builder := snapshot.New(logger)

	m := model.NewMemory(model.Info{ID: "demo", Name: "Demo"})
	m.AddTeam(model.Team{ID: "t1", DisplayOnScoreboard: true})
	m.AddProblem(model.Problem{ID: "p1", Label: "A"})

	if err := e.Seed(m, builder); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	seeded := log.Len()
	if seeded == 0 {
		t.Fatal("seed produced no events")
	}

	// A second engine over the same log must not re-seed.
	e2, err := New(log, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e2.Seed(m, builder); err != nil {
		t.Fatalf("Seed again: %v", err)
	}
	if log.Len() != seeded {
		t.Errorf("re-seed appended events: %d -> %d", seeded, log.Len())
	}
}
