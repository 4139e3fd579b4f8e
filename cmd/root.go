// Package cmd contains the calagem command line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/calagem/calagem/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "calagem",
	Short: "Calagem - dual-corpus retrieval chatbot",
	Long: `Calagem answers questions from two knowledge bases: the Terraria
Calamity mod wiki and a set of GeM government bid documents. It classifies
each question, retrieves from the matching corpus, and generates a grounded
answer.

Run "calagem ingest" to build the indexes, then "calagem serve" to start
the HTTP API or "calagem ask" for a one-shot question.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogger builds the process logger. DEBUG in the environment switches
// to debug level.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}
