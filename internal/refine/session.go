// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refine

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pdiddy/newsdesk/pkg/types"
)

// Request is the input of one refinement session.
type Request struct {
	Brief    string
	Plan     string
	Passages []types.Passage
}

// Session is the bookkeeping of one draft/critique run. Only the Controller
// mutates it; other goroutines may read snapshots and call Cancel.
type Session struct {
	ID  string
	req Request

	threshold     float64
	maxIterations int
	humanInLoop   bool

	cancelled atomic.Bool

	mu         sync.Mutex
	state      types.SessionState
	candidates []types.DraftCandidate
	critiques  []types.Critique
	human      []types.HumanFeedback
	startedAt  time.Time
}

// Cancel asks the session to stop before its next generation step. A step
// already in flight completes first.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// State returns the current state.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Candidates returns a copy of the drafts produced so far, oldest first.
func (s *Session) Candidates() []types.DraftCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.DraftCandidate(nil), s.candidates...)
}

// Critiques returns a copy of the critiques produced so far, oldest first.
func (s *Session) Critiques() []types.Critique {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Critique(nil), s.critiques...)
}

// HumanFeedback returns a copy of the editor feedback supplied so far.
func (s *Session) HumanFeedback() []types.HumanFeedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.HumanFeedback(nil), s.human...)
}

func (s *Session) setState(state types.SessionState) types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = state
	return prev
}

func (s *Session) addCandidate(c types.DraftCandidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, c)
}

func (s *Session) addCritique(c types.Critique) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.critiques = append(s.critiques, c)
}

func (s *Session) addHuman(fb types.HumanFeedback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.human = append(s.human, fb)
}

// feedbackFor merges the critique and editor feedback left by iteration i.
func (s *Session) feedbackFor(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i <= 0 || i > len(s.critiques) {
		return ""
	}
	var human *types.HumanFeedback
	for k := range s.human {
		if s.human[k].Iteration == i-1 {
			human = &s.human[k]
		}
	}
	return MergeFeedback(s.critiques[i-1], human)
}

// best returns the index of the highest-scoring critiqued candidate, the
// earliest on ties, or -1 when nothing carries a usable score.
func (s *Session) best() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := -1
	for i, c := range s.critiques {
		if math.IsNaN(c.Score) {
			continue
		}
		if best < 0 || c.Score > s.critiques[best].Score {
			best = i
		}
	}
	return best
}

// result snapshots the session into its hand-off value. final is the
// candidate index carried as the final text, or -1.
func (s *Session) result(final int, cause error, finished time.Time) types.SessionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := types.SessionResult{
		SessionID:      s.ID,
		Brief:          s.req.Brief,
		State:          s.state,
		FinalIteration: -1,
		Cause:          cause,
		Passages:       s.req.Passages,
		StartedAt:      s.startedAt,
		FinishedAt:     finished,
	}
	if final >= 0 && final < len(s.candidates) {
		res.FinalText = s.candidates[final].Text
		res.FinalIteration = s.candidates[final].Iteration
		if final < len(s.critiques) {
			res.FinalScore = s.critiques[final].Score
		}
	}

	res.Iterations = make([]types.Iteration, len(s.candidates))
	for i, c := range s.candidates {
		res.Iterations[i].Candidate = c
		if i < len(s.critiques) {
			crit := s.critiques[i]
			res.Iterations[i].Critique = &crit
		}
	}
	for _, fb := range s.human {
		if fb.Iteration >= 0 && fb.Iteration < len(res.Iterations) {
			h := fb
			res.Iterations[fb.Iteration].Human = &h
		}
	}
	return res
}
