package rlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger; the With* helpers derive scoped children
// from it.
var Logger zerolog.Logger

// Level selects the minimum severity that gets emitted.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the root logger. JSON output is meant for collectors;
// the console writer is for interactive use.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithRepositoryID creates a child logger scoped to a repository.
func WithRepositoryID(repositoryID string) zerolog.Logger {
	return Logger.With().Str("repository_id", repositoryID).Logger()
}

// WithBranchID creates a child logger scoped to a branch.
func WithBranchID(branchID string) zerolog.Logger {
	return Logger.With().Str("branch_id", branchID).Logger()
}

// WithCommitID creates a child logger scoped to a commit.
func WithCommitID(commitID string) zerolog.Logger {
	return Logger.With().Str("commit_id", commitID).Logger()
}
