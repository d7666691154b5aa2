// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package editorial

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/newsdesk/internal/generate"
	"github.com/pdiddy/newsdesk/pkg/types"
)

// Desk bundles the editorial steps that share one generation port.
type Desk struct {
	Rewriter *QueryRewriter
	Planner  *Planner
	Drafter  *Drafter
	Critic   *Critic
}

// NewDesk loads every prompt from promptsDir (defaults where no override
// exists) and binds the steps to port.
func NewDesk(port generate.Port, promptsDir string) (*Desk, error) {
	load := func(name string) (*Prompt, error) {
		p, err := LoadPrompt(promptsDir, name)
		if err != nil {
			return nil, fmt.Errorf("loading %s prompt: %w", name, err)
		}
		return p, nil
	}

	q, err := load(PromptQuery)
	if err != nil {
		return nil, err
	}
	pl, err := load(PromptPlanner)
	if err != nil {
		return nil, err
	}
	dr, err := load(PromptDrafter)
	if err != nil {
		return nil, err
	}
	cr, err := load(PromptCritic)
	if err != nil {
		return nil, err
	}

	return &Desk{
		Rewriter: &QueryRewriter{Port: port, Prompt: q},
		Planner:  &Planner{Port: port, Prompt: pl},
		Drafter:  &Drafter{Port: port, Prompt: dr},
		Critic:   &Critic{Port: port, Prompt: cr},
	}, nil
}

// QueryRewriter condenses a brief into a keyword query for retrieval.
type QueryRewriter struct {
	Port   generate.Port
	Prompt *Prompt
}

// Rewrite returns the keyword query, or the brief itself when the model
// answers with nothing usable.
func (q *QueryRewriter) Rewrite(ctx context.Context, brief string) (string, error) {
	text, err := run(ctx, q.Port, q.Prompt, map[string]any{"Brief": brief}, 200)
	if err != nil {
		return "", fmt.Errorf("rewriting query: %w", err)
	}
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(text), "\n", 2)[0])
	if line == "" {
		return brief, nil
	}
	return line, nil
}

// Planner outlines the article.
type Planner struct {
	Port   generate.Port
	Prompt *Prompt
}

// Plan returns a structured outline for brief grounded in passages.
func (p *Planner) Plan(ctx context.Context, brief string, passages []types.Passage) (string, error) {
	text, err := run(ctx, p.Port, p.Prompt, map[string]any{"Brief": brief, "Passages": passages}, 0)
	if err != nil {
		return "", fmt.Errorf("planning article: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Drafter writes a full article.
type Drafter struct {
	Port   generate.Port
	Prompt *Prompt
}

// Draft writes one candidate for req.
func (d *Drafter) Draft(ctx context.Context, req types.DraftRequest) (string, error) {
	text, err := run(ctx, d.Port, d.Prompt, req, 0)
	if err != nil {
		return "", fmt.Errorf("drafting iteration %d: %w", req.Iteration, err)
	}
	return strings.TrimSpace(text), nil
}

func run(ctx context.Context, port generate.Port, prompt *Prompt, data any, maxTokens int) (string, error) {
	system, user, err := prompt.Render(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", generate.ErrRejected, err)
	}
	return port.Generate(ctx, generate.Request{System: system, User: user, MaxTokens: maxTokens})
}
