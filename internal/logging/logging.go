// Package logging provides the structured diagnostic log shared by hooks and
// commands. Hooks run inside the host git process, so nothing here may fail:
// if the log file cannot be opened, output is discarded.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the default log file inside the log directory.
const FileName = "aitrack.log"

// New returns a JSON logger appending to logDir/name. The returned closer
// must be closed by the caller when the process is done logging.
func New(logDir, name string, level slog.Level) (*slog.Logger, io.Closer) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return Discard(), io.NopCloser(nil)
	}
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Discard(), io.NopCloser(nil)
	}
	h := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("pid", os.Getpid()), f
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
