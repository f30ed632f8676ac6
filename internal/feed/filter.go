package feed

import (
	"encoding/json"
	"fmt"
)

// Filter is a per-subscription predicate over serialized event lines.
// Immutable once built; safe for concurrent use.
type Filter struct {
	types map[EntityType]struct{} // nil means all types
	minID int64                   // deliver only id > minID; 0 means no floor
}

// NewFilter builds a filter from the raw subscription parameters.
// typesParam is a comma-separated whitelist ("" = all); sinceParam is a
// wire id ("" = from the beginning). Both are validated here so a bad
// request fails before any streaming begins.
func NewFilter(typesParam, sinceParam string) (Filter, error) {
	types, err := ParseTypeList(typesParam)
	if err != nil {
		return Filter{}, err
	}
	var minID int64
	if sinceParam != "" {
		minID, err = ParseID(sinceParam)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: %q", ErrBadSince, sinceParam)
		}
	}
	return Filter{types: types, minID: minID}, nil
}

// lineHeader is the subset of an event line the filter needs. Decoding just
// these two fields keeps the per-(event x subscriber) cost independent of
// payload size.
type lineHeader struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

// Matches reports whether the serialized line passes this filter.
// Unparseable lines never match.
func (f Filter) Matches(line []byte) bool {
	var h lineHeader
	if err := json.Unmarshal(line, &h); err != nil {
		return false
	}
	if f.types != nil {
		if _, ok := f.types[h.Type]; !ok {
			return false
		}
	}
	if f.minID > 0 {
		n, err := ParseID(h.ID)
		if err != nil || n <= f.minID {
			return false
		}
	}
	return true
}

// MinID returns the id floor, 0 when none was requested.
func (f Filter) MinID() int64 { return f.minID }
