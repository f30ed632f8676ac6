package model

// Entity structs mirror the CLICS contest-data shapes. They are serialized
// verbatim into event payloads; field names follow the wire convention.

// Info is the contest metadata object ("contests" collection).
type Info struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	FormalName  string  `json:"formal_name,omitempty"`
	StartTime   *string `json:"start_time"`
	Duration    string  `json:"duration"`
	FreezeTime  string  `json:"scoreboard_freeze_duration,omitempty"`
	PenaltyTime int     `json:"penalty_time"`
}

// State holds the contest clock milestones. Nil means "has not happened".
type State struct {
	Started      *string `json:"started"`
	Ended        *string `json:"ended"`
	Frozen       *string `json:"frozen"`
	Thawed       *string `json:"thawed"`
	Finalized    *string `json:"finalized"`
	EndOfUpdates *string `json:"end_of_updates"`
}

type JudgementType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Penalty bool   `json:"penalty"`
	Solved  bool   `json:"solved"`
}

type Language struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Problem struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Name    string `json:"name"`
	Ordinal int    `json:"ordinal"`
	RGB     string `json:"rgb,omitempty"`
}

type Group struct {
	ID     string `json:"id"`
	ICPCID string `json:"icpc_id,omitempty"`
	Name   string `json:"name"`
	Hidden bool   `json:"hidden,omitempty"`
}

type Organization struct {
	ID         string `json:"id"`
	ICPCID     string `json:"icpc_id,omitempty"`
	Name       string `json:"name"`
	FormalName string `json:"formal_name,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Team struct {
	ID             string   `json:"id"`
	ICPCID         string   `json:"icpc_id,omitempty"`
	Name           string   `json:"name"`
	DisplayName    string   `json:"display_name,omitempty"`
	GroupIDs       []string `json:"group_ids,omitempty"`
	OrganizationID string   `json:"organization_id,omitempty"`

	// DisplayOnScoreboard gates every public appearance of the team.
	DisplayOnScoreboard bool `json:"-"`
}

type TeamMember struct {
	ID        string `json:"id"`
	TeamID    string `json:"team_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role,omitempty"`
}

type Submission struct {
	ID          string `json:"id"`
	TeamID      string `json:"team_id"`
	ProblemID   string `json:"problem_id"`
	LanguageID  string `json:"language_id"`
	Time        string `json:"time"`
	ContestTime string `json:"contest_time"`
	EntryPoint  string `json:"entry_point,omitempty"`
}

type Judgement struct {
	ID              string  `json:"id"`
	SubmissionID    string  `json:"submission_id"`
	JudgementTypeID *string `json:"judgement_type_id"`
	StartTime       string  `json:"start_time,omitempty"`
	EndTime         *string `json:"end_time"`
}

// Run is one test-case result within a judgement.
type Run struct {
	ID              string `json:"id"`
	JudgementID     string `json:"judgement_id"`
	Ordinal         int    `json:"ordinal"`
	JudgementTypeID string `json:"judgement_type_id"`
	Time            string `json:"time,omitempty"`
	ContestTime     string `json:"contest_time,omitempty"`
}

type Clarification struct {
	ID          string  `json:"id"`
	FromTeamID  *string `json:"from_team_id"`
	ToTeamID    *string `json:"to_team_id"`
	ReplyToID   *string `json:"reply_to_id"`
	ProblemID   *string `json:"problem_id"`
	Text        string  `json:"text"`
	Time        string  `json:"time"`
	ContestTime string  `json:"contest_time,omitempty"`
}

type Award struct {
	ID       string   `json:"id"`
	Citation string   `json:"citation"`
	TeamIDs  []string `json:"team_ids"`
}
