// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SessionState is a refinement controller state.
type SessionState string

const (
	StateDrafting      SessionState = "drafting"
	StateCritiquing    SessionState = "critiquing"
	StateAwaitingHuman SessionState = "awaiting_human"
	StateAccepted      SessionState = "accepted"
	StateExhausted     SessionState = "exhausted"
	StateFailed        SessionState = "failed"
	StateCancelled     SessionState = "cancelled"
)

// Terminal reports whether no further transition can occur from s.
func (s SessionState) Terminal() bool {
	switch s {
	case StateAccepted, StateExhausted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// DraftCandidate is the draft produced by one iteration.
type DraftCandidate struct {
	Iteration int    `json:"iteration" yaml:"iteration"`
	Text      string `json:"text" yaml:"text"`

	// Passages lists the chunk ids the draft was seeded with.
	Passages []int `json:"passages" yaml:"passages"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Critique is the structured review of one draft.
type Critique struct {
	// Score is a continuous quality signal in [0, 10].
	Score float64 `json:"score" yaml:"score"`

	Strengths    []string `json:"strengths" yaml:"strengths"`
	Improvements []string `json:"improvements" yaml:"improvements"`

	// Raw is the unparsed reviewer response.
	Raw string `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// HumanFeedback is what the editor said at the end of an iteration.
type HumanFeedback struct {
	Iteration int    `json:"iteration" yaml:"iteration"`
	Text      string `json:"text" yaml:"text"`
	Accepted  bool   `json:"accepted" yaml:"accepted"`
}

// Iteration pairs a candidate with its critique and any editor feedback.
type Iteration struct {
	Candidate DraftCandidate `json:"candidate" yaml:"candidate"`
	Critique  *Critique      `json:"critique,omitempty" yaml:"critique,omitempty"`
	Human     *HumanFeedback `json:"human,omitempty" yaml:"human,omitempty"`
}

// SessionResult is the final disposition of a refinement session.
type SessionResult struct {
	SessionID  string       `json:"session_id" yaml:"session_id"`
	Brief      string       `json:"brief" yaml:"brief"`
	State      SessionState `json:"state" yaml:"state"`
	FinalText  string       `json:"final_text" yaml:"final_text"`
	FinalScore float64      `json:"final_score" yaml:"final_score"`

	// FinalIteration is the iteration the final text came from, or -1.
	FinalIteration int `json:"final_iteration" yaml:"final_iteration"`

	// Cause is the error that ended a failed or cancelled session.
	Cause error `json:"-" yaml:"-"`

	Iterations []Iteration `json:"iterations" yaml:"iterations"`
	Passages   []Passage   `json:"passages" yaml:"passages"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// CauseMessage returns the cause text, or "" when there is none.
func (r SessionResult) CauseMessage() string {
	if r.Cause == nil {
		return ""
	}
	return r.Cause.Error()
}

// DraftRequest is everything a drafting step is seeded with.
type DraftRequest struct {
	Iteration int
	Brief     string
	Plan      string
	Passages  []Passage

	// Feedback is the merged critique and editor guidance from the previous
	// iteration; empty on iteration 0.
	Feedback string
}
