package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/homesim/internal/infrastructure/config"
)

const serviceName = "homesim"

// Logger is a *slog.Logger carrying the service and version fields. The
// embedded methods satisfy the Logger interfaces declared by the domain
// packages, so a *Logger can be handed to any of their SetLogger calls.
type Logger struct {
	*slog.Logger
}

// New writes to the destination named by cfg.Output: stdout (default),
// stderr, or discard.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, destination(cfg.Output))
}

func destination(name string) io.Writer {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "stderr":
		return os.Stderr
	case "discard", "none":
		return io.Discard
	}
	return os.Stdout
}

// NewWithWriter builds a JSON or text handler on w at cfg.Level.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h).With("service", serviceName, "version", version)}
}

// parseLevel accepts slog's level names in any case plus "warning".
// Anything unrecognised is info.
func parseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if s == "" || lvl.UnmarshalText([]byte(s)) != nil {
		return slog.LevelInfo
	}
	return lvl
}

// With returns a child logger with extra fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags records with the subsystem that wrote them, e.g.
// log.Component("scheduler").
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is used before configuration has been loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}
