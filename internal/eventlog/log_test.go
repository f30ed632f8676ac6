package eventlog

import (
	"fmt"
	"os"
	"testing"

	"go.uber.org/zap"
)

func eventLine(n int64) []byte {
	return []byte(fmt.Sprintf(`{"type":"teams","id":"pc2-%d","op":"CREATE","data":null}`, n))
}

func openTestLog(t *testing.T, dir string) *Log {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	l, err := Open(dir, "demo", logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func TestAppendReadAll(t *testing.T) {
	dir := t.TempDir()
	l := openTestLog(t, dir)
	defer l.Close()

	for i := int64(1); i <= 3; i++ {
		if err := l.Append(eventLine(i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	lines, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if string(lines[0]) != string(eventLine(1)) {
		t.Errorf("first line mismatch: %s", lines[0])
	}

	last, err := l.LastID()
	if err != nil {
		t.Fatalf("LastID: %v", err)
	}
	if last != 3 {
		t.Errorf("expected last id 3, got %d", last)
	}
}

func TestEmptyLog(t *testing.T) {
	l := openTestLog(t, t.TempDir())
	defer l.Close()

	if !l.Empty() {
		t.Error("fresh log should be empty")
	}
	last, err := l.LastID()
	if err != nil || last != 0 {
		t.Errorf("empty log LastID = %d, %v; want 0, nil", last, err)
	}
}

func TestReopenRecoversState(t *testing.T) {
	dir := t.TempDir()

	l := openTestLog(t, dir)
	for i := int64(1); i <= 5; i++ {
		if err := l.Append(eventLine(i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	l.Close()

	reopened := openTestLog(t, dir)
	defer reopened.Close()

	if reopened.Empty() {
		t.Fatal("reopened log should not be empty")
	}
	last, err := reopened.LastID()
	if err != nil {
		t.Fatalf("LastID: %v", err)
	}
	if last != 5 {
		t.Errorf("expected last id 5 after reopen, got %d", last)
	}
}

func TestDetectsExternalGrowth(t *testing.T) {
	dir := t.TempDir()
	l := openTestLog(t, dir)
	defer l.Close()

	if err := l.Append(eventLine(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Simulate another writer appending behind our back.
	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for external append: %v", err)
	}
	if _, err := f.Write(append(eventLine(2), '\n')); err != nil {
		t.Fatalf("external write: %v", err)
	}
	f.Close()

	lines, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected external growth to be picked up, got %d lines", len(lines))
	}
	if string(lines[1]) != string(eventLine(2)) {
		t.Errorf("tail line mismatch: %s", lines[1])
	}
}

func TestIncompleteTrailingLineIgnored(t *testing.T) {
	dir := t.TempDir()
	l := openTestLog(t, dir)
	defer l.Close()

	if err := l.Append(eventLine(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// A crashed writer leaves a partial line with no newline.
	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for external append: %v", err)
	}
	if _, err := f.Write([]byte(`{"type":"teams","id":"pc2`)); err != nil {
		t.Fatalf("external write: %v", err)
	}
	f.Close()

	lines, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(lines) != 1 {
		t.Errorf("partial line must not surface, got %d lines", len(lines))
	}
}

func TestRejectsBadContestID(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	if _, err := Open(t.TempDir(), "../escape", logger); err == nil {
		t.Error("expected error for path-escaping contest id")
	}
}
