// Package logging provides the structured logger used by the command-line
// tools. It wraps log/slog with level parsing and a choice of text or JSON
// output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the logger's level, format and destination.
type Config struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: text.
	Format string `yaml:"format"`

	// Output is "stdout" or "stderr". Default: stderr.
	Output string `yaml:"output"`
}

// Logger wraps slog.Logger. It satisfies the Logger interfaces of the
// library's packages.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the configuration.
func New(cfg Config) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	default:
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// With returns a new Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default creates a text logger at info level on stderr, for use before
// configuration is loaded.
func Default() *Logger {
	return New(Config{})
}

// parseLevel converts a string log level to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
