package feed

import (
	"fmt"
	"strings"
)

// EntityType names one entity collection of the contest. The set is closed;
// consumers rely on never seeing a name outside this enumeration.
type EntityType string

const (
	TypeContests       EntityType = "contests"
	TypeState          EntityType = "state"
	TypeJudgementTypes EntityType = "judgement-types"
	TypeLanguages      EntityType = "languages"
	TypeProblems       EntityType = "problems"
	TypeGroups         EntityType = "groups"
	TypeOrganizations  EntityType = "organizations"
	TypeTeams          EntityType = "teams"
	TypeTeamMembers    EntityType = "team-members"
	TypeSubmissions    EntityType = "submissions"
	TypeJudgements     EntityType = "judgements"
	TypeRuns           EntityType = "runs"
	TypeClarifications EntityType = "clarifications"
	TypeAwards         EntityType = "awards"
)

// EmissionOrder is the fixed order snapshots walk the collections in.
// It mirrors referential dependency: a consumer building a mirror
// incrementally must never see a submission before the team, problem
// and language it references.
var EmissionOrder = []EntityType{
	TypeContests,
	TypeState,
	TypeJudgementTypes,
	TypeLanguages,
	TypeProblems,
	TypeGroups,
	TypeOrganizations,
	TypeTeams,
	TypeTeamMembers,
	TypeSubmissions,
	TypeJudgements,
	TypeRuns,
	TypeClarifications,
	TypeAwards,
}

var knownTypes = func() map[EntityType]struct{} {
	m := make(map[EntityType]struct{}, len(EmissionOrder))
	for _, t := range EmissionOrder {
		m[t] = struct{}{}
	}
	return m
}()

// Known reports whether t is part of the closed type set.
func Known(t EntityType) bool {
	_, ok := knownTypes[t]
	return ok
}

// ParseTypeList parses a comma-separated whitelist of type names.
// An empty string means "all types" and yields a nil set. Any unrecognized
// name rejects the whole list; a partial whitelist would silently change
// what the subscriber receives.
func ParseTypeList(s string) (map[EntityType]struct{}, error) {
	if s == "" {
		return nil, nil
	}
	set := make(map[EntityType]struct{})
	for _, name := range strings.Split(s, ",") {
		t := EntityType(strings.TrimSpace(name))
		if !Known(t) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
		}
		set[t] = struct{}{}
	}
	return set, nil
}
