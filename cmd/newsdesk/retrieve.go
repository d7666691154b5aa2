// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/newsdesk/pkg/types"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Search the corpus for passages matching a query",
	Long: `Retrieve embeds the query, ranks every corpus chunk by cosine similarity,
and prints the best passages above the similarity floor. Passages whose source
document cannot be read are dropped and logged.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRetrieve,
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	embedder := newEmbedder()
	defer embedder.Close()

	svc, _, err := openRetrieval(embedder, appConfig.Retrieval)
	if err != nil {
		return err
	}

	q := types.RetrievalQuery{
		Text:  strings.Join(args, " "),
		TopK:  appConfig.Retrieval.TopK,
		Floor: appConfig.Retrieval.Floor,
	}
	if cmd.Flags().Changed("top-k") {
		q.TopK, _ = cmd.Flags().GetInt("top-k")
	}
	if cmd.Flags().Changed("floor") {
		q.Floor, _ = cmd.Flags().GetFloat64("floor")
	}

	passages, err := svc.Query(cmd.Context(), q)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatPassages(passages, jsonOutput)
}

func formatPassages(passages []types.Passage, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(passages)
	}

	if len(passages) == 0 {
		fmt.Println("No passages found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-6s  %-7s  %-30s  %s\n", "Rank", "Chunk", "Score", "Source", "Text")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for i, p := range passages {
		source := p.Source
		if len(source) > 30 {
			source = "..." + source[len(source)-27:]
		}
		text := []rune(p.Text)
		if len(text) > 55 {
			text = append(text[:52], []rune("...")...)
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-6d  %-7.4f  %-30s  %s\n", i+1, p.ChunkID, p.Score, source, string(text))
	}
	fmt.Fprintf(os.Stdout, "\n%d passages\n", len(passages))
	return nil
}

func init() {
	retrieveCmd.Flags().Int("top-k", types.DefaultTopK, "maximum number of passages")
	retrieveCmd.Flags().Float64("floor", types.DefaultFloor, "minimum cosine similarity in [-1, 1]")
	retrieveCmd.Flags().Bool("json", false, "output passages as JSON")

	rootCmd.AddCommand(retrieveCmd)
}
