// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pdiddy/newsdesk/internal/refine"
	"github.com/pdiddy/newsdesk/pkg/types"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle = lipgloss.NewStyle().Faint(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// terminalReviewer asks the editor for feedback on the terminal. An answer
// of "accept" (or "ok", "yes") approves the draft; other lines are feedback
// and an empty line ends the input.
type terminalReviewer struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalReviewer(in io.Reader, out io.Writer) *terminalReviewer {
	return &terminalReviewer{in: bufio.NewReader(in), out: out}
}

func (r *terminalReviewer) Review(ctx context.Context, rv refine.Review) (types.HumanFeedback, error) {
	fmt.Fprintln(r.out, renderReview(rv))
	fmt.Fprintln(r.out, mutedStyle.Render("Feedback for the next draft (empty line to continue, \"accept\" to approve):"))

	type answer struct {
		fb  types.HumanFeedback
		err error
	}
	done := make(chan answer, 1)
	go func() {
		fb, err := r.read()
		done <- answer{fb, err}
	}()

	select {
	case <-ctx.Done():
		return types.HumanFeedback{}, ctx.Err()
	case a := <-done:
		return a.fb, a.err
	}
}

func (r *terminalReviewer) read() (types.HumanFeedback, error) {
	var lines []string
	for {
		line, err := r.in.ReadString('\n')
		line = strings.TrimSpace(line)
		if len(lines) == 0 && isAccept(line) {
			return types.HumanFeedback{Accepted: true}, nil
		}
		if line != "" {
			lines = append(lines, line)
		}
		if err == io.EOF || (err == nil && line == "") {
			return types.HumanFeedback{Text: strings.Join(lines, "\n")}, nil
		}
		if err != nil {
			return types.HumanFeedback{}, fmt.Errorf("reading feedback: %w", err)
		}
	}
}

func isAccept(s string) bool {
	switch strings.ToLower(s) {
	case "accept", "ok", "yes", "y":
		return true
	}
	return false
}

func renderReview(rv refine.Review) string {
	score := fmt.Sprintf("%.1f / %.1f", rv.Critique.Score, rv.Threshold)
	if rv.Critique.Score >= rv.Threshold {
		score = goodStyle.Render(score)
	} else {
		score = badStyle.Render(score)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  score %s\n", titleStyle.Render(fmt.Sprintf("Draft %d", rv.Iteration+1)), score)
	writeList(&b, "Strengths", rv.Critique.Strengths)
	writeList(&b, "Improvements", rv.Critique.Improvements)
	fmt.Fprintf(&b, "\n%s", mutedStyle.Render(excerpt(rv.Draft, 600)))
	return boxStyle.Render(b.String())
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n", titleStyle.Render(title))
	for _, it := range items {
		fmt.Fprintf(b, "  • %s\n", it)
	}
}

func excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
