// Package logger configures the process-wide zerolog logger used by
// every component in the trading pipeline.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls log level and output format.
type Config struct {
	Level  string
	Pretty bool
}

// New builds a zerolog.Logger from cfg and sets the package-global
// level so every sub-logger derived via log.With() respects it.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output = os.Stdout
	var writer = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}

	logger := zerolog.New(output).With().Timestamp().Caller().Logger()
	if cfg.Pretty {
		logger = zerolog.New(writer).With().Timestamp().Caller().Logger()
	}

	return logger
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetGlobalLogger installs logger as zerolog's package-level default,
// so code that calls log.Logger() without holding a reference still
// emits through the configured sink.
func SetGlobalLogger(logger zerolog.Logger) {
	log.Logger = logger
}
