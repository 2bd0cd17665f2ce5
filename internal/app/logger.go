package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production logs at Info; every other
// environment logs at Debug so dispatcher routing is visible while developing.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelDebug}
	env := "development"
	if cfg != nil {
		env = cfg.AppEnv
		if cfg.IsProduction() {
			opts.Level = slog.LevelInfo
		}
	}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", "odyssey-books"), slog.String("env", env))
}
