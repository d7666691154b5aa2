// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/newsdesk/internal/refine"
	"github.com/pdiddy/newsdesk/pkg/types"
)

func TestTerminalReviewer(t *testing.T) {
	review := refine.Review{
		Iteration: 1,
		Draft:     "Offshore wind grew fast.",
		Critique:  types.Critique{Score: 6, Strengths: []string{"clear"}, Improvements: []string{"add figures"}},
		Threshold: 8,
	}

	tests := []struct {
		name  string
		input string
		want  types.HumanFeedback
	}{
		{"accept", "accept\n", types.HumanFeedback{Accepted: true}},
		{"accept is case insensitive", "  Yes \n", types.HumanFeedback{Accepted: true}},
		{"multi-line feedback", "shorter intro\nquote the minister\n\nignored\n", types.HumanFeedback{Text: "shorter intro\nquote the minister"}},
		{"empty line continues", "\n", types.HumanFeedback{}},
		{"feedback at EOF", "more numbers", types.HumanFeedback{Text: "more numbers"}},
		{"accept after feedback is text", "tighten\naccept\n\n", types.HumanFeedback{Text: "tighten\naccept"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			r := newTerminalReviewer(strings.NewReader(tt.input), &out)
			got, err := r.Review(context.Background(), review)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "add figures")
			assert.Contains(t, out.String(), "Draft 2")
		})
	}
}

func TestTerminalReviewer_ContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTerminalReviewer(pr, io.Discard).Review(ctx, refine.Review{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "abc", excerpt("  abc ", 5))
	assert.Equal(t, "ab…", excerpt("abcdef", 2))
}
