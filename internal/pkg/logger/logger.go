package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"crm/internal/platform/config"
)

// ParseLevel maps the configured level name onto zerolog, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	switch name {
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

// Init configures the global logger. The returned closer releases the log
// file when output is "file"; it is a no-op otherwise.
func Init(cfg config.LoggingConfig) io.Closer {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	if cfg.Output == "file" && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			log.Error().Err(err).Str("path", cfg.FilePath).Msg("failed to create log directory, logging to stdout")
			log.Logger = New(os.Stdout, cfg.Format)
			return nopCloser{}
		}

		file, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.FilePath).Msg("failed to open log file, logging to stdout")
			log.Logger = New(os.Stdout, cfg.Format)
			return nopCloser{}
		}
		log.Logger = New(file, "json")
		return file
	}

	log.Logger = New(os.Stdout, cfg.Format)
	return nopCloser{}
}

// New builds a timestamped logger writing JSON, or human readable lines
// when format is "text".
func New(w io.Writer, format string) zerolog.Logger {
	if format == "text" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
