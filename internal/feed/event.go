package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Op is the kind of change an event describes.
type Op string

const (
	OpCreate Op = "CREATE"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// idPrefix is the fixed prefix of every assigned event id.
const idPrefix = "pc2-"

var (
	ErrBadID       = errors.New("malformed event id")
	ErrUnknownType = errors.New("unknown event type")
	ErrBadSince    = errors.New("malformed since token")
)

// Event is one fully assigned feed event, serialized as a single JSON line.
type Event struct {
	Type EntityType      `json:"type"`
	ID   string          `json:"id"`
	Op   Op              `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Draft is an event whose content is known but whose position in the feed
// has not been assigned yet. Only the broadcast engine turns a Draft into
// an Event, so an unassigned id can never leak onto the wire.
type Draft struct {
	Type EntityType
	Op   Op
	Data json.RawMessage
}

// WithID assigns a sequence number to the draft, producing a wire-ready event.
func (d Draft) WithID(n int64) Event {
	return Event{
		Type: d.Type,
		ID:   FormatID(n),
		Op:   d.Op,
		Data: d.Data,
	}
}

// FormatID renders sequence number n as a wire id.
func FormatID(n int64) string {
	return idPrefix + strconv.FormatInt(n, 10)
}

// ParseID extracts the sequence number from a wire id.
func ParseID(s string) (int64, error) {
	rest, ok := strings.CutPrefix(s, idPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadID, s)
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrBadID, s)
	}
	return n, nil
}

// MarshalLine serializes the event as one JSON line, without the trailing
// newline. Writers append the newline themselves.
func MarshalLine(ev Event) ([]byte, error) {
	line, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshaling event %s: %w", ev.ID, err)
	}
	return line, nil
}

// ParseLine deserializes one JSON line back into an event.
func ParseLine(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("parsing event line: %w", err)
	}
	return ev, nil
}
