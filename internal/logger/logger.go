// Package logger configures the daemon's process-wide structured logger:
// a single slog.Logger writing text-formatted records to stdout and,
// optionally, a log file, with the level fixed at startup from the merged
// config's log_level field (or cmd/mplexd's --log-level flag override).
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Log is the process-wide logger. Init must run before any helper below
// is called; cmd/mplexd does this immediately after loading config.
var Log *slog.Logger

var levelByName = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Init builds the process-wide logger. An unrecognized level name falls
// back to debug rather than failing startup: a bad config value shouldn't
// stop the daemon from running, just from running quietly.
func Init(level, logFile string) error {
	lvl, ok := levelByName[level]
	if !ok {
		lvl = slog.LevelDebug
	}

	dest := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("logger: open %s: %w", logFile, err)
		}
		dest = append(dest, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(dest...), &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: shortenTimestamp,
	})
	Log = slog.New(handler)
	slog.SetDefault(Log)
	return nil
}

// shortenTimestamp drops the date from slog's default RFC3339 timestamp;
// daemon log lines only need wall-clock time within the current run.
func shortenTimestamp(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.String("time", a.Value.Time().Format("15:04:05"))
	}
	return a
}

func emit(level slog.Level, msg string, args ...any) {
	Log.Log(context.Background(), level, msg, args...)
}

// Debug logs a debug-level record.
func Debug(msg string, args ...any) { emit(slog.LevelDebug, msg, args...) }

// Info logs an info-level record.
func Info(msg string, args ...any) { emit(slog.LevelInfo, msg, args...) }

// Warn logs a warn-level record.
func Warn(msg string, args ...any) { emit(slog.LevelWarn, msg, args...) }

// Error logs an error-level record.
func Error(msg string, args ...any) { emit(slog.LevelError, msg, args...) }
