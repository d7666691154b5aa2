// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the newsdesk CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/newsdesk/internal/logger"
	"github.com/pdiddy/newsdesk/internal/metrics"
	"github.com/pdiddy/newsdesk/internal/secrets"
	"github.com/pdiddy/newsdesk/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets map[string]string

	// appConfig is the merged file, environment and default configuration.
	appConfig types.Config

	appLog     zerolog.Logger
	appMetrics *metrics.Metrics
)

// rootCmd is the base command for the newsdesk CLI.
var rootCmd = &cobra.Command{
	Use:   "newsdesk",
	Short: "Write long-form articles grounded in a reference corpus",
	Long: `newsdesk turns a short editorial brief into a long-form article. It
retrieves passages from a local corpus through exact nearest-neighbour search
over precomputed embeddings, plans the article, then drafts and critiques it
until the reviewer score reaches the threshold or the iteration budget runs out.

Subcommands: corpus (index, info), retrieve, write, history, version.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		level, _ := cmd.Flags().GetString("log-level")
		pretty, _ := cmd.Flags().GetBool("log-pretty")
		appLog = logger.New(logger.Config{Level: level, Pretty: pretty})

		s, err := secrets.Load(".secrets/", appLog)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			appLog.Debug().Strs("keys", keys).Msg("loaded secrets")
		}

		if err := viper.Unmarshal(&appConfig); err != nil {
			return fmt.Errorf("decoding config: %w", err)
		}
		appConfig.ApplyDefaults()

		appMetrics = metrics.New()
		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			go func() {
				if err := appMetrics.Serve(cmd.Context(), addr); err != nil {
					appLog.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
				}
			}()
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./newsdesk.yaml or ~/.config/newsdesk/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable console logs")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("newsdesk")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "newsdesk"))
		}
	}

	// Defaults make every key visible to AutomaticEnv during Unmarshal.
	viper.SetDefault("corpus.embeddings_path", "data/vectors/embeddings.npy")
	viper.SetDefault("corpus.metadata_path", "data/vectors/metadata.jsonl")
	viper.SetDefault("corpus.raw_dir", "data/raw")
	viper.SetDefault("corpus.chunk_tokens", types.DefaultChunkTokens)
	viper.SetDefault("corpus.chunk_overlap", types.DefaultChunkOverlap)
	viper.SetDefault("corpus.document_cache_size", 256)
	viper.SetDefault("retrieval.top_k", types.DefaultTopK)
	viper.SetDefault("retrieval.floor", types.DefaultFloor)
	viper.SetDefault("retrieval.rewrite_query", false)
	viper.SetDefault("embedding.base_url", "")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 0)
	viper.SetDefault("embedding.api_key", "")
	viper.SetDefault("ai.provider", "auto")
	viper.SetDefault("ai.fallback", "")
	viper.SetDefault("ai.model", types.DefaultModel)
	viper.SetDefault("ai.base_url", "")
	viper.SetDefault("ai.timeout", "2m")
	viper.SetDefault("ai.requests_per_minute", 0)
	viper.SetDefault("ai.prompts_dir", "prompts")
	viper.SetDefault("refinement.threshold", types.DefaultThreshold)
	viper.SetDefault("refinement.max_iterations", types.DefaultMaxIterations)
	viper.SetDefault("refinement.human_in_loop", false)
	viper.SetDefault("refinement.step_retries", types.DefaultStepRetries)
	viper.SetDefault("journal.dir", "output/journal")

	viper.SetEnvPrefix("NEWSDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
