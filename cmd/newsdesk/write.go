// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pdiddy/newsdesk/internal/article"
	"github.com/pdiddy/newsdesk/internal/editorial"
	"github.com/pdiddy/newsdesk/internal/journal"
	"github.com/pdiddy/newsdesk/internal/logger"
	"github.com/pdiddy/newsdesk/internal/refine"
	"github.com/pdiddy/newsdesk/pkg/types"
)

var writeCmd = &cobra.Command{
	Use:   "write [brief]",
	Short: "Write an article from a brief",
	Long: `Write retrieves passages for the brief, plans the article, then drafts
and critiques it until the critique score reaches the threshold or the
iteration budget runs out. With --human the editor reviews every draft that
falls short and may approve it or add guidance for the next draft.

The article is written as Markdown to --output and the whole session is
recorded in the journal. Press Ctrl-C once to stop after the current step,
twice to abort it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
	brief := strings.Join(args, " ")
	cfg := appConfig
	if cmd.Flags().Changed("threshold") {
		cfg.Refinement.Threshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.Refinement.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")
	}
	if cmd.Flags().Changed("human") {
		cfg.Refinement.HumanInLoop, _ = cmd.Flags().GetBool("human")
	}
	if cmd.Flags().Changed("top-k") {
		cfg.Retrieval.TopK, _ = cmd.Flags().GetInt("top-k")
	}
	if cmd.Flags().Changed("rewrite-query") {
		cfg.Retrieval.RewriteQuery, _ = cmd.Flags().GetBool("rewrite-query")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	embedder := newEmbedder()
	defer embedder.Close()

	svc, _, err := openRetrieval(embedder, cfg.Retrieval)
	if err != nil {
		return err
	}
	port, err := newPort()
	if err != nil {
		return err
	}
	desk, err := editorial.NewDesk(port, cfg.AI.PromptsDir)
	if err != nil {
		return err
	}

	query := brief
	if cfg.Retrieval.RewriteQuery {
		if query, err = desk.Rewriter.Rewrite(ctx, brief); err != nil {
			return err
		}
		appLog.Info().Str("query", query).Msg("rewrote brief")
	}
	passages, err := svc.Search(ctx, query)
	if err != nil {
		return err
	}
	appLog.Info().Int("passages", len(passages)).Msg("retrieved passages")

	plan, err := desk.Planner.Plan(ctx, brief, passages)
	if err != nil {
		return err
	}

	opts := []refine.Option{
		refine.WithLogger(logger.Component(appLog, "refine")),
		refine.WithMetrics(appMetrics),
	}
	if cfg.Refinement.HumanInLoop {
		opts = append(opts, refine.WithHuman(newTerminalReviewer(os.Stdin, os.Stderr)))
	}
	ctl, err := refine.NewController(desk.Drafter, desk.Critic, cfg.Refinement, opts...)
	if err != nil {
		return err
	}

	session := ctl.NewSession(uuid.NewString(), refine.Request{Brief: brief, Plan: plan, Passages: passages})
	stop := interruptSession(session, cancel)
	defer stop()

	res := ctl.Run(ctx, session)

	store, err := journal.Open(cfg.Journal.Dir)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(context.Background(), res); err != nil {
		return fmt.Errorf("recording session: %w", err)
	}

	if res.FinalText != "" {
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = filepath.Join("output", "articles", res.SessionID+".md")
		}
		cites, err := article.WriteFile(output, res)
		if err != nil {
			return err
		}
		if len(cites.Unknown) > 0 {
			appLog.Warn().Strs("citations", cites.Unknown).Msg("article cites sources that were not retrieved")
		}
		fmt.Fprintf(os.Stderr, "%s %s\n", titleStyle.Render("Article:"), output)
	}
	printOutcome(res)

	switch res.State {
	case types.StateFailed:
		return fmt.Errorf("session %s failed: %w", res.SessionID, res.Cause)
	case types.StateCancelled:
		return fmt.Errorf("session %s cancelled: %w", res.SessionID, res.Cause)
	}
	return nil
}

// interruptSession cancels the session at the next step boundary on the
// first interrupt and aborts the running step on the second.
func interruptSession(s *refine.Session, abort context.CancelFunc) (stop func()) {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sig:
			appLog.Warn().Msg("stopping after the current step, interrupt again to abort")
			s.Cancel()
		case <-done:
			return
		}
		select {
		case <-sig:
			abort()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}

func printOutcome(res types.SessionResult) {
	state := string(res.State)
	if res.State == types.StateAccepted {
		state = goodStyle.Render(state)
	} else {
		state = badStyle.Render(state)
	}
	line := fmt.Sprintf("%s %s  drafts %d  score %.1f  session %s",
		titleStyle.Render("Session:"), state, len(res.Iterations), res.FinalScore, res.SessionID)
	if res.Cause != nil && !errors.Is(res.Cause, refine.ErrCancelled) {
		line += "\n" + mutedStyle.Render(res.CauseMessage())
	}
	fmt.Fprintln(os.Stderr, line)
}

func init() {
	writeCmd.Flags().Float64("threshold", types.DefaultThreshold, "critique score that accepts a draft (0-10)")
	writeCmd.Flags().Int("max-iterations", types.DefaultMaxIterations, "maximum number of drafts")
	writeCmd.Flags().Bool("human", false, "ask the editor for feedback after each draft below the threshold")
	writeCmd.Flags().Int("top-k", types.DefaultTopK, "maximum number of passages to ground the article in")
	writeCmd.Flags().Bool("rewrite-query", false, "turn the brief into a keyword query before retrieval")
	writeCmd.Flags().String("output", "", "Markdown output path (default: output/articles/<session>.md)")

	rootCmd.AddCommand(writeCmd)
}
