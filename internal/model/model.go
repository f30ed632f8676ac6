// Package model defines the contest-model collaborator the feed core
// observes: a read API over the current collections, typed change
// notifications, and asynchronous mutation triggers. The feed never
// mutates the model; it only reads snapshots and reacts to changes.
package model

import "github.com/contestops/contestfeed/internal/feed"

// Change is one model mutation, tagged with the entity collection it
// touched. A single variant type keeps the listener surface to one
// dispatch point instead of one callback interface per entity kind.
type Change struct {
	Kind   feed.EntityType
	Op     feed.Op
	Entity any
}

// Listener receives every model change, in mutation order. Callbacks run
// on the mutating goroutine and must not block for long.
type Listener func(Change)

// Contest is the read side of the contest model.
type Contest interface {
	Info() Info
	State() State
	JudgementTypes() []JudgementType
	Languages() []Language
	Problems() []Problem
	Groups() []Group
	Organizations() []Organization
	Teams() []Team
	TeamMembers() []TeamMember
	Submissions() []Submission
	Judgements() []Judgement
	Runs() []Run
	Clarifications() []Clarification
	Awards() []Award

	// DisplayedOnScoreboard reports whether the team may appear in any
	// public output. Unknown teams are not displayed.
	DisplayedOnScoreboard(teamID string) bool

	// AddListener registers a change listener and returns a function
	// that removes it again.
	AddListener(Listener) (remove func())
}

// Mutator is the asynchronous mutation trigger surface. Calls return
// without a result; the outcome is observable only through listener
// callbacks, which is what the confirmation gateway correlates on.
type Mutator interface {
	SubmitClarification(fromTeamID, problemID, text string)
}
