// Package snapshot turns the current contest model into an ordered
// sequence of creation events, applying the scoreboard visibility rules.
package snapshot

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/contestops/contestfeed/internal/feed"
	"github.com/contestops/contestfeed/internal/model"
)

// Mode selects how collections are emitted.
type Mode int

const (
	// Batched emits one event per type whose data is the JSON array of
	// every current member. Minimizes id consumption for bulk hydration.
	Batched Mode = iota
	// PerEntity emits one event per individual entity, so each entity is
	// independently addressable for later targeted update or delete.
	PerEntity
)

// ParseMode parses the mode request parameter. Empty selects Batched.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "batched":
		return Batched, nil
	case "entity":
		return PerEntity, nil
	default:
		return 0, fmt.Errorf("unknown snapshot mode %q", s)
	}
}

// Options controls one build.
type Options struct {
	Mode  Mode
	Types map[feed.EntityType]struct{} // nil means all types
}

// Builder walks the contest collections in dependency order.
type Builder struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Builder {
	return &Builder{logger: logger}
}

// suppression holds the entities a build must not emit. Computed once by
// the visibility pass and threaded explicitly through the later passes,
// so builds stay reentrant.
type suppression struct {
	teams  map[string]struct{}
	groups map[string]struct{}
}

// Build produces the snapshot drafts for the contest's current state, in
// the fixed emission order. Empty collections yield no draft at all.
func (b *Builder) Build(c model.Contest, opts Options) ([]feed.Draft, error) {
	sup := computeSuppression(c)
	if len(sup.teams) > 0 {
		b.logger.Debug("snapshot suppressing hidden teams",
			zap.Int("teams", len(sup.teams)),
			zap.Int("groups", len(sup.groups)),
		)
	}

	var drafts []feed.Draft
	for _, t := range feed.EmissionOrder {
		if opts.Types != nil {
			if _, ok := opts.Types[t]; !ok {
				continue
			}
		}
		typed, err := b.buildType(c, t, opts.Mode, sup)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, typed...)
	}
	return drafts, nil
}

// computeSuppression derives the hidden-team and hidden-group sets. It must
// run before the submission, judgement and clarification passes; those
// suppress by submitter.
func computeSuppression(c model.Contest) suppression {
	sup := suppression{
		teams:  make(map[string]struct{}),
		groups: make(map[string]struct{}),
	}

	teams := c.Teams()
	visibleMembers := make(map[string]int)
	for _, team := range teams {
		if !c.DisplayedOnScoreboard(team.ID) {
			sup.teams[team.ID] = struct{}{}
			continue
		}
		for _, gid := range team.GroupIDs {
			visibleMembers[gid]++
		}
	}

	for _, g := range c.Groups() {
		if g.Hidden || visibleMembers[g.ID] == 0 {
			sup.groups[g.ID] = struct{}{}
		}
	}
	return sup
}

func (b *Builder) buildType(c model.Contest, t feed.EntityType, mode Mode, sup suppression) ([]feed.Draft, error) {
	switch t {
	case feed.TypeContests:
		// Singleton object regardless of mode.
		return b.single(t, c.Info())
	case feed.TypeState:
		return b.single(t, c.State())
	case feed.TypeJudgementTypes:
		return b.collection(t, mode, asAny(c.JudgementTypes()))
	case feed.TypeLanguages:
		return b.collection(t, mode, asAny(c.Languages()))
	case feed.TypeProblems:
		return b.collection(t, mode, asAny(c.Problems()))
	case feed.TypeGroups:
		var visible []any
		for _, g := range c.Groups() {
			if _, hidden := sup.groups[g.ID]; !hidden {
				visible = append(visible, g)
			}
		}
		return b.collection(t, mode, visible)
	case feed.TypeOrganizations:
		return b.collection(t, mode, asAny(c.Organizations()))
	case feed.TypeTeams:
		var visible []any
		for _, team := range c.Teams() {
			if _, hidden := sup.teams[team.ID]; !hidden {
				visible = append(visible, team)
			}
		}
		return b.collection(t, mode, visible)
	case feed.TypeTeamMembers:
		var visible []any
		for _, tm := range c.TeamMembers() {
			if _, hidden := sup.teams[tm.TeamID]; !hidden {
				visible = append(visible, tm)
			}
		}
		return b.collection(t, mode, visible)
	case feed.TypeSubmissions:
		var visible []any
		for _, s := range c.Submissions() {
			if _, hidden := sup.teams[s.TeamID]; !hidden {
				visible = append(visible, s)
			}
		}
		return b.collection(t, mode, visible)
	case feed.TypeJudgements:
		hiddenSubs := hiddenSubmissions(c, sup)
		var visible []any
		for _, j := range c.Judgements() {
			if _, hidden := hiddenSubs[j.SubmissionID]; !hidden {
				visible = append(visible, j)
			}
		}
		return b.collection(t, mode, visible)
	case feed.TypeRuns:
		hiddenJudg := hiddenJudgements(c, sup)
		var visible []any
		for _, r := range c.Runs() {
			if _, hidden := hiddenJudg[r.JudgementID]; !hidden {
				visible = append(visible, r)
			}
		}
		return b.collection(t, mode, visible)
	case feed.TypeClarifications:
		var visible []any
		for _, cl := range c.Clarifications() {
			if cl.FromTeamID != nil {
				if _, hidden := sup.teams[*cl.FromTeamID]; hidden {
					continue
				}
			}
			visible = append(visible, cl)
		}
		return b.collection(t, mode, visible)
	case feed.TypeAwards:
		return b.collection(t, mode, asAny(c.Awards()))
	default:
		return nil, fmt.Errorf("%w: %q", feed.ErrUnknownType, t)
	}
}

// hiddenSubmissions maps every submission by a suppressed team.
func hiddenSubmissions(c model.Contest, sup suppression) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range c.Submissions() {
		if _, hidden := sup.teams[s.TeamID]; hidden {
			out[s.ID] = struct{}{}
		}
	}
	return out
}

// hiddenJudgements maps every judgement of a hidden submission.
func hiddenJudgements(c model.Contest, sup suppression) map[string]struct{} {
	hiddenSubs := hiddenSubmissions(c, sup)
	out := make(map[string]struct{})
	for _, j := range c.Judgements() {
		if _, hidden := hiddenSubs[j.SubmissionID]; hidden {
			out[j.ID] = struct{}{}
		}
	}
	return out
}

func (b *Builder) single(t feed.EntityType, entity any) ([]feed.Draft, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s snapshot: %w", t, err)
	}
	return []feed.Draft{{Type: t, Op: feed.OpCreate, Data: data}}, nil
}

func (b *Builder) collection(t feed.EntityType, mode Mode, members []any) ([]feed.Draft, error) {
	if len(members) == 0 {
		return nil, nil
	}

	if mode == Batched {
		data, err := json.Marshal(members)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s snapshot: %w", t, err)
		}
		return []feed.Draft{{Type: t, Op: feed.OpCreate, Data: data}}, nil
	}

	drafts := make([]feed.Draft, 0, len(members))
	for _, entity := range members {
		data, err := json.Marshal(entity)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s entity: %w", t, err)
		}
		drafts = append(drafts, feed.Draft{Type: t, Op: feed.OpCreate, Data: data})
	}
	return drafts, nil
}

func asAny[T any](in []T) []any {
	if len(in) == 0 {
		return nil
	}
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
