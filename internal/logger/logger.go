// Package logger builds the service's log/slog logger from LoggingConfig:
// JSON or text, a minimum level, and stdout, stderr or an append-only file.
// Governance components log client details on every rejection, so values
// under credential-bearing keys are masked before they reach any handler.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"opshop/internal/models"
	"opshop/internal/version"
	"os"
	"strings"
)

// Redacted replaces the value of any attribute named in sensitiveKeys.
const Redacted = "[REDACTED]"

var sensitiveKeys = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"csrf_token":    true,
	"password":      true,
	"session_id":    true,
	"staff_key":     true,
}

// Setup returns a logger tagged with the build and instance identity, and a
// Closer for the log file (nil unless output is "file").
func Setup(cfg models.LoggingConfig, ver version.Info) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	writer, closer, err := openWriter(cfg.Output, cfg.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log output: %w", err)
	}

	logger := slog.New(newHandler(writer, cfg.Format, level)).With(
		slog.String("version", ver.Version),
		slog.String("git_commit", ver.GitCommit),
		slog.String("instance_id", ver.InstanceID),
	)
	return logger, closer, nil
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// redact masks credential-bearing attributes, including ones nested in groups.
func redact(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// parseLevel accepts slog's level names in any case, with "warning" as an
// alias, and slog offsets such as "info+2".
func parseLevel(level string) (slog.Level, error) {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unsupported log level: %s", level)
	}
	return l, nil
}

func openWriter(output, filePath string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if filePath == "" {
			return nil, nil, fmt.Errorf("file path is required when output is file")
		}
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
		}
		return f, f, nil
	default:
		return os.Stdout, nil, nil
	}
}
