package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger. Output is a console writer on stderr
// unless SCENECHAIN_LOG_FORMAT=json, which emits one JSON object per line
// for log collectors.
func Init(verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if os.Getenv("SCENECHAIN_LOG_FORMAT") != "json" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	log.Logger = logger
}

// WithJob scopes a logger to a single generation job
func WithJob(logger zerolog.Logger, jobID, folder string) zerolog.Logger {
	return logger.With().Str("job_id", jobID).Str("folder", folder).Logger()
}
