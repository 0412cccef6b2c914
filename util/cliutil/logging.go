package cliutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type LogOptions struct {
	// path to append to; "" or "-" for stdout
	LogPath string

	// text|json
	LogFormat string

	// info|debug|warn|error
	LogLevel string
}

func firstenv(names ...string) string {
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			return val
		}
	}
	return ""
}

// SetupSlog builds the process logger from the passed options, falling back to env vars, and installs it as the slog default.
//
// passing default cliutil.LogOptions{} is ok.
//
// ANTIGCAST_LOG_LEVEL=info|debug|warn|error
//
// ANTIGCAST_LOG_FMT=text|json
//
// ANTIGCAST_LOG_FILE=path (or "-" or "" for stdout)
func SetupSlog(options LogOptions) (*slog.Logger, error) {
	hopts := slog.HandlerOptions{AddSource: true}
	level, err := ParseLogLevel(firstNonEmpty(options.LogLevel, firstenv("ANTIGCAST_LOG_LEVEL", "LOG_LEVEL")))
	if err != nil {
		return nil, err
	}
	hopts.Level = level

	format := strings.ToLower(firstNonEmpty(options.LogFormat, firstenv("ANTIGCAST_LOG_FMT", "LOG_FMT"), "text"))
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("invalid log format: %#v", format)
	}

	var out io.Writer = os.Stdout
	path := firstNonEmpty(options.LogPath, os.Getenv("ANTIGCAST_LOG_FILE"))
	if path != "" && path != "-" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = f
	}

	logger := slog.New(newHandler(out, format, &hopts))
	slog.SetDefault(logger)
	return logger, nil
}

func newHandler(out io.Writer, format string, hopts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(out, hopts)
	}
	return slog.NewTextHandler(out, hopts)
}

// Parses a level name; empty means info.
func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %#v", raw)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
