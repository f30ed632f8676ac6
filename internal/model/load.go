package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Bundle is the on-disk JSON shape for loading a contest into memory.
// Teams default to scoreboard-visible; ids in HiddenTeams are marked
// hidden after loading.
type Bundle struct {
	Info           Info            `json:"contest"`
	State          *State          `json:"state,omitempty"`
	JudgementTypes []JudgementType `json:"judgement_types,omitempty"`
	Languages      []Language      `json:"languages,omitempty"`
	Problems       []Problem       `json:"problems,omitempty"`
	Groups         []Group         `json:"groups,omitempty"`
	Organizations  []Organization  `json:"organizations,omitempty"`
	Teams          []Team          `json:"teams,omitempty"`
	TeamMembers    []TeamMember    `json:"team_members,omitempty"`
	Submissions    []Submission    `json:"submissions,omitempty"`
	Judgements     []Judgement     `json:"judgements,omitempty"`
	Runs           []Run           `json:"runs,omitempty"`
	Awards         []Award         `json:"awards,omitempty"`
	HiddenTeams    []string        `json:"hidden_teams,omitempty"`
}

// LoadFile reads a contest bundle from path and materializes it as an
// in-memory model. No listeners exist yet at load time, so the Add calls
// populate state without emitting changes anywhere.
func LoadFile(path string) (*Memory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading contest bundle: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parsing contest bundle %s: %w", path, err)
	}
	if b.Info.ID == "" {
		return nil, fmt.Errorf("contest bundle %s: missing contest.id", path)
	}

	hidden := make(map[string]struct{}, len(b.HiddenTeams))
	for _, id := range b.HiddenTeams {
		hidden[id] = struct{}{}
	}

	m := NewMemory(b.Info)
	if b.State != nil {
		m.SetState(*b.State)
	}
	for _, jt := range b.JudgementTypes {
		m.AddJudgementType(jt)
	}
	for _, lang := range b.Languages {
		m.AddLanguage(lang)
	}
	for _, p := range b.Problems {
		m.AddProblem(p)
	}
	for _, g := range b.Groups {
		m.AddGroup(g)
	}
	for _, o := range b.Organizations {
		m.AddOrganization(o)
	}
	for _, team := range b.Teams {
		_, isHidden := hidden[team.ID]
		team.DisplayOnScoreboard = !isHidden
		m.AddTeam(team)
	}
	for _, tm := range b.TeamMembers {
		m.AddTeamMember(tm)
	}
	for _, s := range b.Submissions {
		m.AddSubmission(s)
	}
	for _, j := range b.Judgements {
		m.AddJudgement(j)
	}
	for _, r := range b.Runs {
		m.AddRun(r)
	}
	for _, a := range b.Awards {
		m.AddAward(a)
	}

	return m, nil
}
