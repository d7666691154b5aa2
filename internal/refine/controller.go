// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package refine drives the draft, critique and editor-review loop of one
// article to a terminal state.
package refine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/newsdesk/internal/metrics"
	"github.com/pdiddy/newsdesk/pkg/types"
)

// backoffBase is the delay before the first step retry. Tests shorten it.
var backoffBase = time.Second

// ErrCancelled is the cause of a session stopped through Session.Cancel.
var ErrCancelled = errors.New("session cancelled")

// Drafter writes one candidate article.
type Drafter interface {
	Draft(ctx context.Context, req types.DraftRequest) (string, error)
}

// Critic scores a candidate article.
type Critic interface {
	Critique(ctx context.Context, draft string) (types.Critique, error)
}

// Review is what the editor sees when the loop pauses.
type Review struct {
	SessionID string
	Iteration int
	Draft     string
	Critique  types.Critique
	Threshold float64
}

// HumanReviewer supplies editor feedback between iterations.
type HumanReviewer interface {
	Review(ctx context.Context, r Review) (types.HumanFeedback, error)
}

// ReviewerFunc adapts a function to HumanReviewer.
type ReviewerFunc func(ctx context.Context, r Review) (types.HumanFeedback, error)

// Review calls f.
func (f ReviewerFunc) Review(ctx context.Context, r Review) (types.HumanFeedback, error) {
	return f(ctx, r)
}

// Option configures a Controller.
type Option func(*Controller)

// WithHuman sets the editor consulted when human-in-the-loop is enabled.
func WithHuman(h HumanReviewer) Option {
	return func(c *Controller) { c.human = h }
}

// WithLogger sets the controller logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics records retries and session outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithObserver is called after every state transition.
func WithObserver(fn func(s *Session, from, to types.SessionState)) Option {
	return func(c *Controller) { c.observe = fn }
}

// Controller runs refinement sessions. Sessions run one step at a time; a
// single Controller may run several sessions concurrently.
type Controller struct {
	drafter Drafter
	critic  Critic
	human   HumanReviewer
	cfg     types.RefinementConfig
	log     zerolog.Logger
	metrics *metrics.Metrics
	observe func(s *Session, from, to types.SessionState)
	now     func() time.Time
}

// NewController validates cfg and builds a Controller.
func NewController(d Drafter, c Critic, cfg types.RefinementConfig, opts ...Option) (*Controller, error) {
	if d == nil || c == nil {
		return nil, errors.New("drafter and critic are required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = types.DefaultMaxIterations
	}
	if cfg.StepRetries < 0 {
		cfg.StepRetries = types.DefaultStepRetries
	}
	if cfg.Threshold < 0 || cfg.Threshold > 10 {
		return nil, fmt.Errorf("threshold %.2f outside [0, 10]", cfg.Threshold)
	}

	ctl := &Controller{
		drafter: d,
		critic:  c,
		cfg:     cfg,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(ctl)
	}
	if cfg.HumanInLoop && ctl.human == nil {
		return nil, errors.New("human-in-the-loop requires a reviewer")
	}
	return ctl, nil
}

// NewSession starts a session in the drafting state. An empty id gets a
// random UUID.
func (c *Controller) NewSession(id string, req Request) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		ID:            id,
		req:           req,
		threshold:     c.cfg.Threshold,
		maxIterations: c.cfg.MaxIterations,
		humanInLoop:   c.cfg.HumanInLoop,
		state:         types.StateDrafting,
		startedAt:     c.now(),
	}
}

// Run drives s until it reaches a terminal state and returns the result.
// It never returns without an explicit terminal state.
func (c *Controller) Run(ctx context.Context, s *Session) types.SessionResult {
	log := c.log.With().Str("session", s.ID).Logger()
	final := -1
	var cause error

	for !s.State().Terminal() {
		switch s.State() {
		case types.StateDrafting:
			if err := c.interrupted(ctx, s); err != nil {
				cause = err
				c.transition(s, types.StateCancelled)
				final = s.best()
				continue
			}
			i := len(s.Candidates())
			req := types.DraftRequest{
				Iteration: i,
				Brief:     s.req.Brief,
				Plan:      s.req.Plan,
				Passages:  s.req.Passages,
				Feedback:  s.feedbackFor(i),
			}
			log.Info().Int("iteration", i).Msg("drafting")
			text, err := retryStep(ctx, c, log, "draft", func(ctx context.Context) (string, error) {
				return c.drafter.Draft(ctx, req)
			})
			if err != nil {
				cause = c.abort(s, err)
				final = s.best()
				continue
			}
			s.addCandidate(types.DraftCandidate{
				Iteration: i,
				Text:      text,
				Passages:  passageIDs(s.req.Passages),
				CreatedAt: c.now(),
			})
			c.transition(s, types.StateCritiquing)

		case types.StateCritiquing:
			if err := c.interrupted(ctx, s); err != nil {
				cause = err
				c.transition(s, types.StateCancelled)
				final = s.best()
				continue
			}
			cands := s.Candidates()
			latest := cands[len(cands)-1]
			crit, err := retryStep(ctx, c, log, "critique", func(ctx context.Context) (types.Critique, error) {
				return c.critic.Critique(ctx, latest.Text)
			})
			if err != nil {
				cause = c.abort(s, err)
				final = s.best()
				continue
			}
			s.addCritique(crit)
			log.Info().Int("iteration", latest.Iteration).Float64("score", crit.Score).Msg("critiqued")

			switch {
			case crit.Score >= s.threshold:
				final = latest.Iteration
				c.transition(s, types.StateAccepted)
			case latest.Iteration+1 >= s.maxIterations:
				final = s.best()
				c.transition(s, types.StateExhausted)
			case s.humanInLoop:
				c.transition(s, types.StateAwaitingHuman)
			default:
				c.transition(s, types.StateDrafting)
			}

		case types.StateAwaitingHuman:
			if err := c.interrupted(ctx, s); err != nil {
				cause = err
				c.transition(s, types.StateCancelled)
				final = s.best()
				continue
			}
			cands := s.Candidates()
			crits := s.Critiques()
			i := len(cands) - 1
			fb, err := c.human.Review(ctx, Review{
				SessionID: s.ID,
				Iteration: i,
				Draft:     cands[i].Text,
				Critique:  crits[i],
				Threshold: s.threshold,
			})
			if err != nil {
				cause = c.abort(s, fmt.Errorf("editor review: %w", err))
				final = s.best()
				continue
			}
			fb.Iteration = i
			s.addHuman(fb)
			if fb.Accepted {
				log.Info().Int("iteration", i).Msg("accepted by editor")
				final = i
				c.transition(s, types.StateAccepted)
				continue
			}
			c.transition(s, types.StateDrafting)
		}
	}

	res := s.result(final, cause, c.now())
	c.metrics.SessionFinished(string(res.State), len(res.Iterations))
	ev := log.Info()
	if res.State == types.StateFailed {
		ev = log.Error().Err(cause)
	}
	ev.Str("state", string(res.State)).
		Int("drafts", len(res.Iterations)).
		Float64("score", res.FinalScore).
		Msg("session finished")
	return res
}

func (c *Controller) transition(s *Session, to types.SessionState) {
	from := s.setState(to)
	if c.observe != nil {
		c.observe(s, from, to)
	}
}

// interrupted reports why the session must stop before its next step, or nil.
func (c *Controller) interrupted(ctx context.Context, s *Session) error {
	if s.cancelled.Load() {
		return ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// abort ends s after a failed step: cancelled when the context caused it,
// failed otherwise. It returns the cause.
func (c *Controller) abort(s *Session, err error) error {
	if isContextErr(err) {
		c.transition(s, types.StateCancelled)
	} else {
		c.transition(s, types.StateFailed)
	}
	return err
}

// retryStep calls fn until it succeeds or StepRetries extra attempts have
// failed. Context errors end the step at once.
func retryStep[T any](ctx context.Context, c *Controller, log zerolog.Logger, step string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= c.cfg.StepRetries; attempt++ {
		if attempt > 0 {
			delay := backoffBase * time.Duration(1<<(attempt-1))
			c.metrics.StepRetried(step)
			log.Warn().Err(lastErr).Str("step", step).Int("attempt", attempt+1).Dur("backoff", delay).Msg("retrying step")
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if isContextErr(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", step, c.cfg.StepRetries+1, lastErr)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func passageIDs(passages []types.Passage) []int {
	ids := make([]int, len(passages))
	for i, p := range passages {
		ids[i] = p.ChunkID
	}
	return ids
}
