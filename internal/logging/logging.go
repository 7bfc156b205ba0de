// Package logging builds the slog logger shared by the CLI and handed to each
// component. Core packages take a *slog.Logger explicitly and never touch the
// process default themselves.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/treykane/alias-tunnel/internal/util"
)

// Setup creates a logger on stderr and sets it as the process-wide default.
func Setup(level string) *slog.Logger {
	logger := New(os.Stderr, ResolveLevel(level))
	slog.SetDefault(logger)
	return logger
}

// New returns a text logger writing to w at level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ResolveLevel maps a level name to slog.Level. The ALIAS_TUNNEL_LOG_LEVEL
// environment variable wins over the configured name.
func ResolveLevel(configured string) slog.Level {
	name := configured
	if env := strings.TrimSpace(os.Getenv(util.LogLevelEnv)); env != "" {
		name = env
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
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
