// Package logging configures the slog loggers of the txnotify commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables read by FromEnv.
const (
	EnvLevel  = "TXNOTIFY_LOG_LEVEL"
	EnvFormat = "TXNOTIFY_LOG_FORMAT"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config holds logging configuration options.
type Config struct {
	Level  slog.Level
	Format Format
	// Output defaults to os.Stderr so stdout stays clean for parse and export output.
	Output io.Writer
}

// FromEnv returns the configuration set by TXNOTIFY_LOG_LEVEL (debug, info,
// warn or error; info when unset) and TXNOTIFY_LOG_FORMAT (text or json).
// Invalid values are reported and the defaults kept.
func FromEnv() (Config, error) {
	cfg := Config{Level: slog.LevelInfo, Format: FormatText, Output: os.Stderr}

	var errs []string
	if v := os.Getenv(EnvLevel); v != "" {
		level, err := ParseLevel(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", EnvLevel, err))
		} else {
			cfg.Level = level
		}
	}
	if v := os.Getenv(EnvFormat); v != "" {
		format, err := ParseFormat(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", EnvFormat, err))
		} else {
			cfg.Format = format
		}
	}
	if len(errs) > 0 {
		return cfg, fmt.Errorf("logging config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// ParseLevel converts a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// ParseFormat converts a format name to Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON:
		return f, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q", s)
	}
}

// New returns a logger for cfg.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}
	return slog.New(handler)
}

// Setup returns a logger for cfg and installs it as the slog default.
func Setup(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

// Component scopes logger to one part of the pipeline, such as kind "source"
// and name "gmail". A nil logger means the slog default.
func Component(logger *slog.Logger, kind, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", kind, "name", name)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
