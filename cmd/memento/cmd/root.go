// Package cmd provides the CLI commands for memento.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bgconley/memento/internal/logging"
	"github.com/bgconley/memento/pkg/version"
)

var logLevel string

// NewRootCmd creates the root command for the memento CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memento",
		Short: "Project-scoped memory and hybrid-retrieval engine",
		Long: `memento durably stores authored memory items, versions every change,
chunks and embeds them, and serves hybrid lexical + semantic search over
a Postgres store with pgvector and full-text search.`,
		Version: version.Version,
	}
	cmd.SetVersionTemplate("memento version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func rootLogger(component string) zerolog.Logger {
	return logging.New(component, logLevel)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
