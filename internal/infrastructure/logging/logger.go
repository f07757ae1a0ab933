package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/soundmesh/soundmesh-core/internal/infrastructure/config"
)

// Logger is the process-wide structured logger. It embeds *slog.Logger, so
// call sites use the usual Info/Debug/Warn/Error with key-value pairs; every
// record additionally carries the service name and build version.
//
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the configuration.
//
// Format selects the handler: "text" for human-readable development output,
// anything else means JSON for log shipping. Output selects stdout or
// stderr. Unknown level strings fall back to info rather than failing, so a
// typo in config never silences the process.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: levelFromString(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "soundmesh"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
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

// With returns a derived Logger carrying extra default attributes, typically
// a component tag:
//
//	queueLog := log.With("component", "notify")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON/info/stdout logger for the window between process
// start and config load, when the real logging settings are not yet known.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
