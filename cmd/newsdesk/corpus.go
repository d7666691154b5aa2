// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/newsdesk/internal/corpus"
	"github.com/pdiddy/newsdesk/internal/logger"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Build and inspect the embedding corpus",
	Long: `Corpus manages the embedding artifacts: a .npy matrix with one row per
chunk and a JSON-lines metadata file row-aligned with it.`,
}

// --- index subcommand ---

var corpusIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk and embed every document in the raw directory",
	Long: `Index walks the raw directory (.html, .htm, .txt, .md), reduces each
document to plain text, splits it into overlapping token windows and embeds
every window. The matrix and metadata are written to the configured paths.`,
	RunE: runCorpusIndex,
}

func runCorpusIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cc := appConfig.Corpus
	reader, err := corpus.NewDirReader(cc.RawDir, cc.DocumentCacheSize)
	if err != nil {
		return err
	}
	embedder := newEmbedder()
	defer embedder.Close()

	keepText, _ := cmd.Flags().GetBool("keep-text")
	workers, _ := cmd.Flags().GetInt("workers")

	ix := &corpus.Indexer{
		Reader:       reader,
		Embedder:     embedder,
		Log:          logger.Component(appLog, "index"),
		ChunkTokens:  cc.ChunkTokens,
		ChunkOverlap: cc.ChunkOverlap,
		KeepText:     keepText,
		Workers:      workers,
	}
	stats, err := ix.Index(ctx, cc.EmbeddingsPath, cc.MetadataPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Indexed %d documents (%d skipped) into %d chunks of dimension %d\n",
		stats.Documents, stats.Skipped, stats.Chunks, stats.Dimension)
	fmt.Fprintf(os.Stdout, "  vectors:  %s\n  metadata: %s\n", cc.EmbeddingsPath, cc.MetadataPath)
	return nil
}

// --- info subcommand ---

var corpusInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print statistics about the embedding corpus",
	RunE:  runCorpusInfo,
}

type corpusInfo struct {
	EmbeddingsPath string `json:"embeddings_path"`
	MetadataPath   string `json:"metadata_path"`
	Vectors        int    `json:"vectors"`
	Dimension      int    `json:"dimension"`
	Documents      int    `json:"documents"`
}

func runCorpusInfo(cmd *cobra.Command, args []string) error {
	cc := appConfig.Corpus
	store, err := corpus.Load(cc.EmbeddingsPath, cc.MetadataPath)
	if err != nil {
		return err
	}

	info := corpusInfo{
		EmbeddingsPath: cc.EmbeddingsPath,
		MetadataPath:   cc.MetadataPath,
		Vectors:        store.VectorCount(),
		Dimension:      store.Dimension(),
		Documents:      len(store.Sources()),
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintf(os.Stdout, "Embeddings: %s\nMetadata:   %s\nVectors:    %d\nDimension:  %d\nDocuments:  %d\n",
		info.EmbeddingsPath, info.MetadataPath, info.Vectors, info.Dimension, info.Documents)
	return nil
}

func init() {
	corpusIndexCmd.Flags().Bool("keep-text", false, "store chunk text in the metadata file")
	corpusIndexCmd.Flags().Int("workers", 4, "concurrent embedding requests")

	corpusInfoCmd.Flags().Bool("json", false, "output as JSON")

	corpusCmd.AddCommand(corpusIndexCmd)
	corpusCmd.AddCommand(corpusInfoCmd)

	rootCmd.AddCommand(corpusCmd)
}
