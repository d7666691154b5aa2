// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/newsdesk/internal/generate"
	"github.com/pdiddy/newsdesk/internal/metrics"
	"github.com/pdiddy/newsdesk/pkg/types"
)

func init() {
	backoffBase = time.Millisecond
}

// scriptedDrafter numbers its drafts and records every request.
type scriptedDrafter struct {
	requests []types.DraftRequest
	errs     []error
}

func (d *scriptedDrafter) Draft(_ context.Context, req types.DraftRequest) (string, error) {
	d.requests = append(d.requests, req)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("draft %d", req.Iteration), nil
}

// scriptedCritic returns scores in order; the last one repeats.
type scriptedCritic struct {
	scores []float64
	errs   []error
	calls  int
	seen   []string
}

func (c *scriptedCritic) Critique(_ context.Context, draft string) (types.Critique, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return types.Critique{}, err
		}
	}
	c.seen = append(c.seen, draft)
	score := c.scores[min(len(c.seen)-1, len(c.scores)-1)]
	return types.Critique{Score: score, Improvements: []string{"fix " + draft}}, nil
}

// invariantObserver asserts the candidate/critique length invariant at every
// transition and records the states visited.
func invariantObserver(t *testing.T, states *[]types.SessionState) Option {
	return WithObserver(func(s *Session, _, to types.SessionState) {
		n, m := len(s.Candidates()), len(s.Critiques())
		assert.True(t, m == n || m == n-1, "critiques %d vs candidates %d", m, n)
		*states = append(*states, to)
	})
}

func newController(t *testing.T, d Drafter, c Critic, cfg types.RefinementConfig, opts ...Option) *Controller {
	t.Helper()
	ctl, err := NewController(d, c, cfg, opts...)
	require.NoError(t, err)
	return ctl
}

func iterationsOf(res types.SessionResult) []int {
	out := make([]int, len(res.Iterations))
	for i, it := range res.Iterations {
		out[i] = it.Candidate.Iteration
	}
	return out
}

var request = Request{
	Brief:    "offshore wind",
	Plan:     "1. Intro",
	Passages: []types.Passage{{ChunkID: 4, Source: "wind.html", Text: "Capacity grew."}},
}

func TestRun_AcceptsOnThreshold(t *testing.T) {
	d := &scriptedDrafter{}
	c := &scriptedCritic{scores: []float64{6, 8, 9.5}}
	var states []types.SessionState
	ctl := newController(t, d, c, types.RefinementConfig{Threshold: 8, MaxIterations: 5}, invariantObserver(t, &states))

	s := ctl.NewSession("s1", request)
	res := ctl.Run(context.Background(), s)

	assert.Equal(t, types.StateAccepted, res.State)
	assert.Equal(t, "draft 1", res.FinalText)
	assert.Equal(t, 8.0, res.FinalScore)
	assert.Equal(t, 1, res.FinalIteration)
	assert.Len(t, d.requests, 2, "no drafting after acceptance")
	assert.Equal(t, []int{0, 1}, iterationsOf(res))
	assert.Equal(t, []types.SessionState{
		types.StateCritiquing, types.StateDrafting, types.StateCritiquing, types.StateAccepted,
	}, states)
	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, request.Passages, res.Passages)
	assert.Equal(t, []int{4}, res.Iterations[0].Candidate.Passages)
}

func TestRun_SeedsFeedbackFromPreviousCritique(t *testing.T) {
	d := &scriptedDrafter{}
	c := &scriptedCritic{scores: []float64{5, 9}}
	ctl := newController(t, d, c, types.RefinementConfig{Threshold: 8, MaxIterations: 5})

	ctl.Run(context.Background(), ctl.NewSession("", request))

	require.Len(t, d.requests, 2)
	assert.Empty(t, d.requests[0].Feedback)
	assert.Equal(t, "Improvements requested by the reviewer:\n- fix draft 0", d.requests[1].Feedback)
	assert.Equal(t, request.Plan, d.requests[1].Plan)
	assert.Equal(t, request.Passages, d.requests[1].Passages)
}

func TestRun_ExhaustedReturnsBestCandidate(t *testing.T) {
	t.Run("equal scores keep the earliest", func(t *testing.T) {
		d := &scriptedDrafter{}
		c := &scriptedCritic{scores: []float64{5}}
		m := metrics.New()
		ctl := newController(t, d, c, types.RefinementConfig{Threshold: 8, MaxIterations: 3}, WithMetrics(m))

		res := ctl.Run(context.Background(), ctl.NewSession("", request))

		assert.Equal(t, types.StateExhausted, res.State)
		assert.Len(t, d.requests, 3)
		assert.Equal(t, 3, c.calls)
		assert.Equal(t, "draft 0", res.FinalText)
		assert.Equal(t, 5.0, res.FinalScore)
		assert.Equal(t, []int{0, 1, 2}, iterationsOf(res))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsTotal.WithLabelValues("exhausted")))
	})

	t.Run("best is not the last", func(t *testing.T) {
		c := &scriptedCritic{scores: []float64{4, 7, 6}}
		ctl := newController(t, &scriptedDrafter{}, c, types.RefinementConfig{Threshold: 8, MaxIterations: 3})

		res := ctl.Run(context.Background(), ctl.NewSession("", request))

		assert.Equal(t, types.StateExhausted, res.State)
		assert.Equal(t, "draft 1", res.FinalText)
		assert.Equal(t, 7.0, res.FinalScore)
		assert.Equal(t, 1, res.FinalIteration)
	})

	t.Run("unscored critique never wins", func(t *testing.T) {
		c := &scriptedCritic{scores: []float64{math.NaN(), 7, 6}}
		ctl := newController(t, &scriptedDrafter{}, c, types.RefinementConfig{Threshold: 8, MaxIterations: 3})

		res := ctl.Run(context.Background(), ctl.NewSession("", request))

		assert.Equal(t, types.StateExhausted, res.State)
		assert.Equal(t, "draft 1", res.FinalText)
		assert.Equal(t, 7.0, res.FinalScore)
		assert.Equal(t, 1, res.FinalIteration)
	})
}

func TestRun_CritiqueRetriedWithoutDuplicates(t *testing.T) {
	d := &scriptedDrafter{}
	c := &scriptedCritic{
		scores: []float64{9},
		errs:   []error{generate.ErrUnavailable, generate.ErrRejected},
	}
	m := metrics.New()
	ctl := newController(t, d, c, types.RefinementConfig{Threshold: 8, MaxIterations: 5, StepRetries: 2}, WithMetrics(m))

	res := ctl.Run(context.Background(), ctl.NewSession("", request))

	assert.Equal(t, types.StateAccepted, res.State)
	assert.NoError(t, res.Cause)
	assert.Equal(t, 3, c.calls)
	assert.Len(t, d.requests, 1)
	require.Len(t, res.Iterations, 1)
	assert.NotNil(t, res.Iterations[0].Critique)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.StepRetriesTotal.WithLabelValues("critique")))
}

func TestRun_FailsAfterRetries(t *testing.T) {
	d := &scriptedDrafter{errs: []error{generate.ErrUnavailable, generate.ErrUnavailable, generate.ErrUnavailable}}
	c := &scriptedCritic{scores: []float64{9}}
	ctl := newController(t, d, c, types.RefinementConfig{Threshold: 8, MaxIterations: 5, StepRetries: 2})

	res := ctl.Run(context.Background(), ctl.NewSession("", request))

	assert.Equal(t, types.StateFailed, res.State)
	assert.ErrorIs(t, res.Cause, generate.ErrUnavailable)
	assert.Contains(t, res.CauseMessage(), "draft failed after 3 attempts")
	assert.Len(t, d.requests, 3)
	assert.Zero(t, c.calls)
	assert.Equal(t, -1, res.FinalIteration)
	assert.Empty(t, res.Iterations)
}

func TestRun_FailedCritiqueKeepsBestSoFar(t *testing.T) {
	c := &scriptedCritic{scores: []float64{6}}
	ctl := newController(t, &scriptedDrafter{}, c, types.RefinementConfig{Threshold: 8, MaxIterations: 5, StepRetries: 1})
	s := ctl.NewSession("", request)

	// First critique succeeds; every later one is rejected.
	c.errs = []error{nil, generate.ErrRejected, generate.ErrRejected}
	res := ctl.Run(context.Background(), s)

	assert.Equal(t, types.StateFailed, res.State)
	assert.ErrorIs(t, res.Cause, generate.ErrRejected)
	assert.Equal(t, "draft 0", res.FinalText)
	require.Len(t, res.Iterations, 2)
	assert.Nil(t, res.Iterations[1].Critique, "the last draft never got a critique")
}

func TestRun_HumanInLoop(t *testing.T) {
	t.Run("editor accepts below threshold", func(t *testing.T) {
		var reviews []Review
		human := ReviewerFunc(func(_ context.Context, r Review) (types.HumanFeedback, error) {
			reviews = append(reviews, r)
			return types.HumanFeedback{Text: "good enough", Accepted: true}, nil
		})
		d := &scriptedDrafter{}
		ctl := newController(t, d, &scriptedCritic{scores: []float64{3}},
			types.RefinementConfig{Threshold: 8, MaxIterations: 5, HumanInLoop: true}, WithHuman(human))

		res := ctl.Run(context.Background(), ctl.NewSession("", request))

		assert.Equal(t, types.StateAccepted, res.State)
		assert.Equal(t, "draft 0", res.FinalText)
		assert.Equal(t, 3.0, res.FinalScore)
		assert.Len(t, d.requests, 1)
		require.Len(t, reviews, 1)
		assert.Equal(t, 0, reviews[0].Iteration)
		require.NotNil(t, res.Iterations[0].Human)
		assert.True(t, res.Iterations[0].Human.Accepted)
	})

	t.Run("editor guidance follows machine feedback", func(t *testing.T) {
		human := ReviewerFunc(func(_ context.Context, r Review) (types.HumanFeedback, error) {
			return types.HumanFeedback{Text: "shorter intro"}, nil
		})
		d := &scriptedDrafter{}
		ctl := newController(t, d, &scriptedCritic{scores: []float64{3, 9}},
			types.RefinementConfig{Threshold: 8, MaxIterations: 5, HumanInLoop: true}, WithHuman(human))

		res := ctl.Run(context.Background(), ctl.NewSession("", request))

		assert.Equal(t, types.StateAccepted, res.State)
		require.Len(t, d.requests, 2)
		assert.Equal(t,
			"Improvements requested by the reviewer:\n- fix draft 0\n\nAdditional guidance from the editor:\nshorter intro",
			d.requests[1].Feedback)
	})

	t.Run("reviewer error fails the session", func(t *testing.T) {
		boom := errors.New("stdin closed")
		human := ReviewerFunc(func(context.Context, Review) (types.HumanFeedback, error) {
			return types.HumanFeedback{}, boom
		})
		ctl := newController(t, &scriptedDrafter{}, &scriptedCritic{scores: []float64{3}},
			types.RefinementConfig{Threshold: 8, MaxIterations: 5, HumanInLoop: true}, WithHuman(human))

		res := ctl.Run(context.Background(), ctl.NewSession("", request))
		assert.Equal(t, types.StateFailed, res.State)
		assert.ErrorIs(t, res.Cause, boom)
	})

	t.Run("reviewer is required", func(t *testing.T) {
		_, err := NewController(&scriptedDrafter{}, &scriptedCritic{}, types.RefinementConfig{HumanInLoop: true})
		assert.Error(t, err)
	})
}

func TestRun_CancelBetweenIterations(t *testing.T) {
	d := &scriptedDrafter{}
	c := &scriptedCritic{scores: []float64{5}}
	var s *Session
	ctl := newController(t, d, c, types.RefinementConfig{Threshold: 8, MaxIterations: 5},
		WithObserver(func(sess *Session, _, to types.SessionState) {
			if to == types.StateDrafting {
				sess.Cancel()
			}
		}))
	s = ctl.NewSession("", request)

	res := ctl.Run(context.Background(), s)

	assert.Equal(t, types.StateCancelled, res.State)
	assert.ErrorIs(t, res.Cause, ErrCancelled)
	assert.Len(t, d.requests, 1, "no generation after cancel")
	assert.Equal(t, "draft 0", res.FinalText)
}

func TestRun_ContextCancelled(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d := &scriptedDrafter{}
		ctl := newController(t, d, &scriptedCritic{scores: []float64{9}}, types.RefinementConfig{Threshold: 8})

		res := ctl.Run(ctx, ctl.NewSession("", request))
		assert.Equal(t, types.StateCancelled, res.State)
		assert.ErrorIs(t, res.Cause, context.Canceled)
		assert.Empty(t, d.requests)
	})

	t.Run("during a step is not retried", func(t *testing.T) {
		d := &scriptedDrafter{errs: []error{fmt.Errorf("drafting: %w", context.DeadlineExceeded)}}
		ctl := newController(t, d, &scriptedCritic{scores: []float64{9}}, types.RefinementConfig{Threshold: 8})

		res := ctl.Run(context.Background(), ctl.NewSession("", request))
		assert.Equal(t, types.StateCancelled, res.State)
		assert.ErrorIs(t, res.Cause, context.DeadlineExceeded)
		assert.Len(t, d.requests, 1)
	})
}

func TestNewController_Validation(t *testing.T) {
	_, err := NewController(nil, &scriptedCritic{}, types.RefinementConfig{})
	assert.Error(t, err)
	_, err = NewController(&scriptedDrafter{}, &scriptedCritic{}, types.RefinementConfig{Threshold: 11})
	assert.Error(t, err)

	ctl, err := NewController(&scriptedDrafter{}, &scriptedCritic{}, types.RefinementConfig{Threshold: 8})
	require.NoError(t, err)
	s := ctl.NewSession("", request)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, types.StateDrafting, s.State())
	assert.Equal(t, types.DefaultMaxIterations, s.maxIterations)
}

func TestNewController_ZeroStepRetries(t *testing.T) {
	d := &scriptedDrafter{errs: []error{generate.ErrUnavailable}}
	ctl := newController(t, d, &scriptedCritic{scores: []float64{9}},
		types.RefinementConfig{Threshold: 0, MaxIterations: 3, StepRetries: 0})

	res := ctl.Run(context.Background(), ctl.NewSession("", request))

	assert.Equal(t, types.StateFailed, res.State)
	assert.ErrorIs(t, res.Cause, generate.ErrUnavailable)
	assert.Len(t, d.requests, 1)
}

func TestMergeFeedback(t *testing.T) {
	crit := types.Critique{Improvements: []string{"add data", "cite sources"}}
	assert.Equal(t, "Improvements requested by the reviewer:\n- add data\n- cite sources", MergeFeedback(crit, nil))
	assert.Equal(t, "Additional guidance from the editor:\nmore quotes",
		MergeFeedback(types.Critique{}, &types.HumanFeedback{Text: " more quotes "}))
	assert.Empty(t, MergeFeedback(types.Critique{}, &types.HumanFeedback{Text: "  "}))
}
