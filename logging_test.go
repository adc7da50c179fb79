package iprange

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
)

func slogDiscard() *slog.Logger {
	return slog.New(NewDefaultHandler(io.Discard, io.Discard, nil))
}

func TestDefaultHandler(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := slog.New(NewDefaultHandler(&stdout, &stderr, []LogLevel{LogLevelDebug}))

	logger.Info("loaded IP ranges", "service", "iprange.Db", "ranges", 2)
	logger.With("file", "a.csv").Warn("overlap")
	logger.Debug("hidden")

	if stdout.String() != "[iprange] [info] loaded IP ranges service=iprange.Db ranges=2\n" {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
	if stderr.String() != "[iprange] [warn] overlap file=a.csv\n" {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestDefaultHandler_Group(t *testing.T) {
	var stdout bytes.Buffer
	logger := slog.New(NewDefaultHandler(&stdout, io.Discard, nil))

	logger.WithGroup("lookup").Info("done", "ips", 3)

	if stdout.String() != "[iprange] [info] done lookup.ips=3\n" {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
}
