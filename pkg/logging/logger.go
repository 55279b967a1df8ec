package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log output formats.
const (
	FormatCLI  = "cli"
	FormatText = "text"
	FormatJSON = "json"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "cli", "text", "json"
	Writer io.Writer
}

// InitLogger builds the logger for cfg and makes it the default. The CLI
// format is used when none is set; output goes to stderr unless a Writer is
// provided.
func InitLogger(cfg LogConfig) *slog.Logger {
	level := ParseLogLevel(cfg.Level)
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	case FormatText:
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = NewCLIHandler(w, level)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
