package eventlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/contestops/contestfeed/internal/feed"
)

// ErrClosed is returned for operations on a closed log.
var ErrClosed = errors.New("event log closed")

var contestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Log is the append-only, durable record of one contest's event feed:
// one JSON object per line, written once, never rewritten. It is the
// source of truth for id sequencing across restarts.
//
// Reads are served from an in-memory cache of lines. ReadAll re-reads
// only when the file on disk grew past the tracked size, so a connect
// against a large, stable log costs a single stat.
type Log struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	file  *os.File
	size  int64    // bytes of complete lines known to this process
	lines [][]byte // cached lines, append order
}

// Open opens (creating if needed) the log for one contest under dir.
func Open(dir, contestID string, logger *zap.Logger) (*Log, error) {
	if !contestIDPattern.MatchString(contestID) {
		return nil, fmt.Errorf("invalid contest id %q", contestID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	path := filepath.Join(dir, contestID+".ndjson")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}

	l := &Log{
		path:   path,
		logger: logger,
		file:   file,
	}
	if err := l.readTail(); err != nil {
		file.Close()
		return nil, err
	}

	logger.Info("event log opened",
		zap.String("path", path),
		zap.Int("events", len(l.lines)),
	)
	return l, nil
}

// Append durably writes one line. The write is flushed to stable storage
// before returning so a broadcast is never acknowledged ahead of the log.
func (l *Log) Append(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrClosed
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if _, err := l.file.WriteAt(buf, l.size); err != nil {
		return fmt.Errorf("appending event line: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing event log: %w", err)
	}

	stored := make([]byte, len(line))
	copy(stored, line)
	l.lines = append(l.lines, stored)
	l.size += int64(len(buf))
	return nil
}

// ReadAll returns every line recorded so far, in append order. If the file
// on disk grew beyond the tracked size (another writer, or manual repair),
// only the grown tail is read.
func (l *Log) ReadAll() ([][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil, ErrClosed
	}
	if err := l.readTail(); err != nil {
		return nil, err
	}

	out := make([][]byte, len(l.lines))
	copy(out, l.lines)
	return out, nil
}

// LastID returns the sequence number of the most recent event, 0 when the
// log is empty.
func (l *Log) LastID() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.lines) == 0 {
		return 0, nil
	}
	ev, err := feed.ParseLine(l.lines[len(l.lines)-1])
	if err != nil {
		return 0, fmt.Errorf("recovering last event: %w", err)
	}
	return feed.ParseID(ev.ID)
}

// Empty reports whether the log has no recorded events.
func (l *Log) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines) == 0
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// Path returns the backing file path.
func (l *Log) Path() string { return l.path }

// Close releases the file handle. The log file itself is never removed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// readTail reads any complete lines on disk past the tracked size into the
// cache. A trailing line with no newline is left for a later read; it is
// an append still in flight or the residue of a crashed writer.
// Caller holds l.mu.
func (l *Log) readTail() error {
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("stat event log: %w", err)
	}
	if info.Size() <= l.size {
		return nil
	}

	l.logger.Debug("event log grew, reading tail",
		zap.Int64("from", l.size),
		zap.Int64("to", info.Size()),
	)

	section := io.NewSectionReader(l.file, l.size, info.Size()-l.size)
	reader := bufio.NewReader(section)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// Incomplete trailing line, do not advance past it.
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading event log tail: %w", err)
		}
		l.size += int64(len(line))
		trimmed := bytes.TrimRight(line, "\n")
		if len(trimmed) == 0 {
			continue
		}
		l.lines = append(l.lines, trimmed)
	}
}
