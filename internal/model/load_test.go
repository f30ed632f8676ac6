package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	bundle := `{
		"contest": {"id": "demo", "name": "Demo Contest", "duration": "5:00:00"},
		"problems": [{"id": "p1", "label": "A", "name": "Sorting", "ordinal": 1}],
		"teams": [
			{"id": "t1", "name": "Visible"},
			{"id": "t2", "name": "Hidden"}
		],
		"hidden_teams": ["t2"]
	}`
	path := filepath.Join(t.TempDir(), "contest.json")
	if err := os.WriteFile(path, []byte(bundle), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if got := m.Info().ID; got != "demo" {
		t.Errorf("contest id: %s", got)
	}
	if got := len(m.Teams()); got != 2 {
		t.Fatalf("teams: %d", got)
	}
	if !m.DisplayedOnScoreboard("t1") {
		t.Error("t1 should be displayed")
	}
	if m.DisplayedOnScoreboard("t2") {
		t.Error("t2 should be hidden")
	}
	if got := len(m.Problems()); got != 1 {
		t.Errorf("problems: %d", got)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("missing file should error")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(bad, []byte("{not json"), 0644)
	if _, err := LoadFile(bad); err == nil {
		t.Error("malformed bundle should error")
	}

	noID := filepath.Join(t.TempDir(), "noid.json")
	os.WriteFile(noID, []byte(`{"contest":{"name":"x"}}`), 0644)
	if _, err := LoadFile(noID); err == nil {
		t.Error("bundle without contest id should error")
	}
}
