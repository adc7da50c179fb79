package iprange

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
)

// LogLevel is a log level (log message type).
type LogLevel string

func (l LogLevel) String() string {
	return string(l)
}

const (
	// LogLevelInfo is an info message.
	// Written to stdout by the default logger.
	LogLevelInfo LogLevel = "info"

	// LogLevelWarn is a warning message.
	// Written to stderr by the default logger.
	LogLevelWarn LogLevel = "warn"

	// LogLevelError is an error message.
	// Written to stderr by the default logger.
	LogLevelError LogLevel = "error"

	// LogLevelDebug is a debug message.
	// Written to stderr by the default logger.
	LogLevelDebug LogLevel = "debug"
)

func logLevelOf(level slog.Level) LogLevel {
	switch {
	case level >= slog.LevelError:
		return LogLevelError
	case level >= slog.LevelWarn:
		return LogLevelWarn
	case level >= slog.LevelInfo:
		return LogLevelInfo
	default:
		return LogLevelDebug
	}
}

// DefaultHandler is a slog.Handler that writes messages to stdout and stderr.
// Messages are prefixed with `[iprange]`, followed by the log level, and attributes are appended as key=value pairs.
type DefaultHandler struct {
	// The log levels to exclude.
	// If empty, all log levels are shown.
	ExcludeLogLevels []LogLevel

	stdout io.Writer
	stderr io.Writer
	mu     *sync.Mutex
	attrs  []slog.Attr
	group  string
}

func (h *DefaultHandler) Enabled(_ context.Context, level slog.Level) bool {
	return !slices.Contains(h.ExcludeLogLevels, logLevelOf(level))
}

func (h *DefaultHandler) Handle(_ context.Context, rec slog.Record) error {
	logLevel := logLevelOf(rec.Level)

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[iprange] [%s] %s", logLevel.String(), rec.Message)
	for _, attr := range h.attrs {
		writeAttr(&sb, "", attr)
	}
	rec.Attrs(func(attr slog.Attr) bool {
		writeAttr(&sb, h.group, attr)
		return true
	})
	sb.WriteByte('\n')

	w := h.stderr
	if logLevel == LogLevelInfo {
		w = h.stdout
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(w, sb.String())
	return err
}

func (h *DefaultHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = slices.Clone(h.attrs)
	for _, attr := range attrs {
		if h.group != "" {
			attr.Key = h.group + "." + attr.Key
		}
		clone.attrs = append(clone.attrs, attr)
	}
	return &clone
}

func (h *DefaultHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if h.group == "" {
		clone.group = name
	} else {
		clone.group = h.group + "." + name
	}
	return &clone
}

func writeAttr(sb *strings.Builder, group string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := attr.Key
	if group != "" {
		key = group + "." + key
	}

	if attr.Value.Kind() == slog.KindGroup {
		for _, sub := range attr.Value.Group() {
			writeAttr(sb, key, sub)
		}
		return
	}

	_, _ = fmt.Fprintf(sb, " %s=%v", key, attr.Value.Any())
}

// NewDefaultHandler creates a new DefaultHandler writing to the specified writers.
// Info messages go to stdout, everything else goes to stderr.
func NewDefaultHandler(stdout io.Writer, stderr io.Writer, excludeLogLevels []LogLevel) *DefaultHandler {
	return &DefaultHandler{
		ExcludeLogLevels: excludeLogLevels,
		stdout:           stdout,
		stderr:           stderr,
		mu:               &sync.Mutex{},
	}
}

// NewDefaultLogger creates a new logger that logs messages to stdout and stderr, with the log level prefixed.
// You may specify any log levels you wish to exclude, or nil to show all log levels.
func NewDefaultLogger(excludeLogLevels []LogLevel) *slog.Logger {
	return slog.New(NewDefaultHandler(os.Stdout, os.Stderr, excludeLogLevels))
}
