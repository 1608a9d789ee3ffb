// Package logging builds the zerolog.Logger every long-running process
// (server, worker, migrate) shares: JSON to stdout, level from env, and a
// handful of conventional field names (component, project_id, worker_id)
// so log aggregation can filter across the outbox worker and commit
// coordinator consistently.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the base logger at levelName (debug, info, warn, error;
// unrecognized or empty falls back to info) with a component field set to
// name so every log line is attributable to its subsystem.
func New(name, levelName string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", name).Logger()
	return logger.Level(parseLevel(levelName))
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "silent":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
