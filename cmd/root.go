// Package cmd implements the cratesearch command line interface.
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cratespro/cratesearch/internal/config"
	"github.com/cratespro/cratesearch/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "cratesearch",
	Short: "Semantic and keyword search over crate metadata, with RAG chat",
	Long: `cratesearch indexes crate metadata into PostgreSQL with pgvector
embeddings and answers questions about crates.

Commands:
  index     embed crates that have not been indexed yet
  search    keyword or semantic search over the index
  ask       one-shot question answered with retrieved crate context
  chat      interactive conversation grounded in the index`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	logger := log.New(log.Config{
		Level: logLevelFromEnv(),
		JSON:  false,
	})
	slog.SetDefault(logger)

	return rootCmd.Execute()
}

// logLevelFromEnv reads CRATESEARCH_LOG_LEVEL (debug, info, warn, error).
func logLevelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("CRATESEARCH_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig loads and validates the application configuration.
func loadConfig() (*config.Config, error) {
	return config.Load()
}
