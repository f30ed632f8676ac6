package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/contestops/contestfeed/internal/feed"
)

// Memory is an in-memory contest model. It backs the server wiring and the
// tests; a multi-site deployment would substitute a synchronized model
// behind the same interfaces.
type Memory struct {
	mu sync.RWMutex

	info  Info
	state State

	judgementTypes []JudgementType
	languages      []Language
	problems       []Problem
	groups         []Group
	organizations  []Organization
	teams          []Team
	teamMembers    []TeamMember
	submissions    []Submission
	judgements     []Judgement
	runs           []Run
	clarifications []Clarification
	awards         []Award

	teamIndex map[string]int

	listenerSeq int64
	listeners   []registeredListener

	clarSeq int64
	start   time.Time
}

type registeredListener struct {
	id int64
	fn Listener
}

var (
	_ Contest = (*Memory)(nil)
	_ Mutator = (*Memory)(nil)
)

// NewMemory creates an empty in-memory contest with the given metadata.
func NewMemory(info Info) *Memory {
	return &Memory{
		info:      info,
		teamIndex: make(map[string]int),
		start:     time.Now(),
	}
}

func (m *Memory) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info
}

func (m *Memory) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Memory) JudgementTypes() []JudgementType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]JudgementType(nil), m.judgementTypes...)
}

func (m *Memory) Languages() []Language {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Language(nil), m.languages...)
}

func (m *Memory) Problems() []Problem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Problem(nil), m.problems...)
}

func (m *Memory) Groups() []Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Group(nil), m.groups...)
}

func (m *Memory) Organizations() []Organization {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Organization(nil), m.organizations...)
}

func (m *Memory) Teams() []Team {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Team(nil), m.teams...)
}

func (m *Memory) TeamMembers() []TeamMember {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TeamMember(nil), m.teamMembers...)
}

func (m *Memory) Submissions() []Submission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Submission(nil), m.submissions...)
}

func (m *Memory) Judgements() []Judgement {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Judgement(nil), m.judgements...)
}

func (m *Memory) Runs() []Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Run(nil), m.runs...)
}

func (m *Memory) Clarifications() []Clarification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Clarification(nil), m.clarifications...)
}

func (m *Memory) Awards() []Award {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Award(nil), m.awards...)
}

func (m *Memory) DisplayedOnScoreboard(teamID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.teamIndex[teamID]
	if !ok {
		return false
	}
	return m.teams[idx].DisplayOnScoreboard
}

func (m *Memory) AddListener(fn Listener) (remove func()) {
	m.mu.Lock()
	m.listenerSeq++
	id := m.listenerSeq
	m.listeners = append(m.listeners, registeredListener{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// notify invokes all listeners outside the model lock, in registration order.
func (m *Memory) notify(ch Change) {
	m.mu.RLock()
	listeners := append([]registeredListener(nil), m.listeners...)
	m.mu.RUnlock()

	for _, l := range listeners {
		l.fn(ch)
	}
}

// Mutation API. Each call applies the change and then notifies listeners on
// the calling goroutine, matching the callback threading the feed expects.

func (m *Memory) SetInfo(info Info) {
	m.mu.Lock()
	m.info = info
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeContests, Op: feed.OpUpdate, Entity: info})
}

func (m *Memory) SetState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeState, Op: feed.OpUpdate, Entity: state})
}

func (m *Memory) AddJudgementType(jt JudgementType) {
	m.mu.Lock()
	m.judgementTypes = append(m.judgementTypes, jt)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeJudgementTypes, Op: feed.OpCreate, Entity: jt})
}

func (m *Memory) AddLanguage(lang Language) {
	m.mu.Lock()
	m.languages = append(m.languages, lang)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeLanguages, Op: feed.OpCreate, Entity: lang})
}

func (m *Memory) AddProblem(p Problem) {
	m.mu.Lock()
	m.problems = append(m.problems, p)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeProblems, Op: feed.OpCreate, Entity: p})
}

func (m *Memory) AddGroup(g Group) {
	m.mu.Lock()
	m.groups = append(m.groups, g)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeGroups, Op: feed.OpCreate, Entity: g})
}

func (m *Memory) AddOrganization(o Organization) {
	m.mu.Lock()
	m.organizations = append(m.organizations, o)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeOrganizations, Op: feed.OpCreate, Entity: o})
}

func (m *Memory) AddTeam(team Team) {
	m.mu.Lock()
	m.teamIndex[team.ID] = len(m.teams)
	m.teams = append(m.teams, team)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeTeams, Op: feed.OpCreate, Entity: team})
}

func (m *Memory) AddTeamMember(tm TeamMember) {
	m.mu.Lock()
	m.teamMembers = append(m.teamMembers, tm)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeTeamMembers, Op: feed.OpCreate, Entity: tm})
}

func (m *Memory) AddSubmission(s Submission) {
	m.mu.Lock()
	m.submissions = append(m.submissions, s)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeSubmissions, Op: feed.OpCreate, Entity: s})
}

func (m *Memory) AddJudgement(j Judgement) {
	m.mu.Lock()
	m.judgements = append(m.judgements, j)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeJudgements, Op: feed.OpCreate, Entity: j})
}

func (m *Memory) UpdateJudgement(j Judgement) {
	m.mu.Lock()
	for i := range m.judgements {
		if m.judgements[i].ID == j.ID {
			m.judgements[i] = j
			break
		}
	}
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeJudgements, Op: feed.OpUpdate, Entity: j})
}

func (m *Memory) AddRun(r Run) {
	m.mu.Lock()
	m.runs = append(m.runs, r)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeRuns, Op: feed.OpCreate, Entity: r})
}

func (m *Memory) AddClarification(c Clarification) {
	m.mu.Lock()
	m.clarifications = append(m.clarifications, c)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeClarifications, Op: feed.OpCreate, Entity: c})
}

func (m *Memory) AddAward(a Award) {
	m.mu.Lock()
	m.awards = append(m.awards, a)
	m.mu.Unlock()
	m.notify(Change{Kind: feed.TypeAwards, Op: feed.OpCreate, Entity: a})
}

// SubmitClarification enqueues a clarification asynchronously. The assigned
// identity surfaces only through the resulting listener callback.
func (m *Memory) SubmitClarification(fromTeamID, problemID, text string) {
	m.mu.Lock()
	m.clarSeq++
	id := fmt.Sprintf("clar-%d", m.clarSeq)
	elapsed := time.Since(m.start)
	m.mu.Unlock()

	clar := Clarification{
		ID:          id,
		Text:        text,
		Time:        time.Now().UTC().Format(time.RFC3339),
		ContestTime: formatContestTime(elapsed),
	}
	if fromTeamID != "" {
		clar.FromTeamID = &fromTeamID
	}
	if problemID != "" {
		clar.ProblemID = &problemID
	}

	go m.AddClarification(clar)
}

// formatContestTime renders a duration in the H:MM:SS.mmm contest-relative
// form used on the wire.
func formatContestTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, mnt, sec, ms)
}
