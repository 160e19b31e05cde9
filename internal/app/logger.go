package app

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger. LOG_FORMAT=json selects the JSON
// handler for production-style deployments; anything else logs as text.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel(cfg), AddSource: true}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func logLevel(cfg *Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
