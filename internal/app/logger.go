package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production defaults to JSON so log
// shippers can parse permission-denial events; anything else gets text.
func NewLogger(cfg *Config) *slog.Logger {
	format := ""
	if cfg != nil {
		format = cfg.LogFormat
	}
	switch {
	case format == "json", format == "" && cfg.IsProduction():
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
}
