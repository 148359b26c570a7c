// internal/platform/logger/logger.go
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger and installs it as the slog default.
// format is "json" or "text"; level is one of debug, info, warn, error.
func New(level, format string) *slog.Logger {
	l := build(os.Stdout, level, format)
	slog.SetDefault(l)
	return l
}

func build(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
