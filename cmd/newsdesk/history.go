// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/newsdesk/internal/article"
	"github.com/pdiddy/newsdesk/internal/journal"
	"github.com/pdiddy/newsdesk/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse recorded sessions (list, show, export)",
	Long: `History reads the session journal: every draft, critique and editor note
of past sessions, searchable by brief and article text.`,
}

// --- list subcommand ---

var historyListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List recorded sessions",
	RunE:  runHistoryList,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := journal.Open(appConfig.Journal.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	sums, err := store.List(cmd.Context(), listOptsFromFlags(cmd, args))
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sums)
	}
	if len(sums) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-14s  %-5s  %-6s  %-16s  %s\n", "Session", "State", "Score", "Drafts", "Finished", "Brief")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 120))
	for _, s := range sums {
		brief := []rune(s.Brief)
		if len(brief) > 35 {
			brief = append(brief[:32], []rune("...")...)
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-14s  %-5.1f  %-6d  %-16s  %s\n",
			s.ID, s.State, s.FinalScore, s.Drafts, s.FinishedAt.Local().Format("2006-01-02 15:04"), string(brief))
	}
	fmt.Fprintf(os.Stdout, "\n%d sessions\n", len(sums))
	return nil
}

// --- show subcommand ---

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session",
	Long: `Show prints the final article of a session as Markdown. With --format
yaml or json it prints the full record including every iteration.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryShow,
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := journal.Open(appConfig.Journal.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	entry := journal.ExportEntry{SessionResult: res, Cause: res.CauseMessage()}
	switch format {
	case "markdown", "md", "":
		_, err := article.Render(os.Stdout, res)
		return err
	case "yaml":
		data, err := yaml.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	default:
		return fmt.Errorf("unsupported format %q: use markdown, yaml or json", format)
	}
}

// --- export subcommand ---

var historyExportCmd = &cobra.Command{
	Use:   "export [query]",
	Short: "Export recorded sessions to YAML or JSON",
	Long: `Export writes every matching session with its full iteration history to
export.yaml or export.json in the journal directory.`,
	RunE: runHistoryExport,
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := journal.Open(appConfig.Journal.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := listOptsFromFlags(cmd, args)
	var path string
	switch format {
	case "yaml", "":
		path, err = store.ExportYAML(cmd.Context(), opts)
	case "json":
		path, err = store.ExportJSON(cmd.Context(), opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Println("Exported to", path)
	return nil
}

// --- shared helpers ---

func listOptsFromFlags(cmd *cobra.Command, args []string) journal.ListOptions {
	state, _ := cmd.Flags().GetString("state")
	limit, _ := cmd.Flags().GetInt("limit")
	return journal.ListOptions{
		Query: strings.Join(args, " "),
		State: types.SessionState(state),
		Limit: limit,
	}
}

func init() {
	for _, c := range []*cobra.Command{historyListCmd, historyExportCmd} {
		c.Flags().String("state", "", "filter by terminal state: accepted, exhausted, failed, cancelled")
		c.Flags().Int("limit", 0, "maximum sessions (0 = default)")
	}
	historyListCmd.Flags().Bool("json", false, "output as JSON")
	historyShowCmd.Flags().String("format", "markdown", "output format: markdown, yaml or json")
	historyExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)

	rootCmd.AddCommand(historyCmd)
}
