package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skobkin/bblink/internal/config"
)

func TestTeeHandlerContinuesWhenOneDestinationFails(t *testing.T) {
	var dst bytes.Buffer
	h := teeHandler{
		slog.NewTextHandler(errorWriter{err: errors.New("broken stdout")}, nil),
		slog.NewTextHandler(&dst, nil),
	}

	slog.New(h).With("component", "bridge").Info("frame forwarded")

	if !bytes.Contains(dst.Bytes(), []byte("component=bridge msg=\"frame forwarded\"")) {
		t.Fatalf("unexpected destination contents: got %q", dst.String())
	}
}

func TestTeeHandlerReportsErrorWhenEveryDestinationFails(t *testing.T) {
	h := teeHandler{slog.NewTextHandler(errorWriter{err: errors.New("broken")}, nil)}
	if err := slog.New(h).Handler().Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0)); err == nil {
		t.Fatalf("expected error when no destination accepted the record")
	}
}

func TestConsoleHandlerDropsTimeUnderJournal(t *testing.T) {
	tests := []struct {
		name     string
		journal  bool
		wantTime bool
	}{
		{name: "terminal", journal: false, wantTime: true},
		{name: "journald", journal: true, wantTime: false},
	}

	for _, tc := range tests {
		var out bytes.Buffer
		m := &Manager{journal: func() bool { return tc.journal }}
		m.level.Set(slog.LevelInfo)
		slog.New(m.consoleHandler(&out)).Info("advertising")

		if got := bytes.Contains(out.Bytes(), []byte("time=")); got != tc.wantTime {
			t.Fatalf("%s: expected time attr %v, got %q", tc.name, tc.wantTime, out.String())
		}
		if !bytes.Contains(out.Bytes(), []byte("msg=advertising")) {
			t.Fatalf("%s: expected message, got %q", tc.name, out.String())
		}
	}
}

func TestStdoutIsJournalRequiresMatchingStream(t *testing.T) {
	t.Setenv("JOURNAL_STREAM", "")
	if stdoutIsJournal() {
		t.Fatalf("expected no journal without JOURNAL_STREAM")
	}
	t.Setenv("JOURNAL_STREAM", "0:0")
	if stdoutIsJournal() {
		t.Fatalf("expected no journal for a stream that is not stdout")
	}
}

func TestManagerConfigure_LogFileStillReceivesLogsWhenStdoutFails(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	origStdout := os.Stdout
	t.Cleanup(func() { os.Stdout = origStdout })

	brokenStdout, err := os.CreateTemp(t.TempDir(), "broken-stdout-*")
	if err != nil {
		t.Fatalf("create broken stdout: %v", err)
	}
	if err := brokenStdout.Close(); err != nil {
		t.Fatalf("close broken stdout: %v", err)
	}
	os.Stdout = brokenStdout

	logPath := filepath.Join(t.TempDir(), "app.log")
	m := NewManager()
	t.Cleanup(func() { _ = m.Close() })

	if err := m.Configure(config.LoggingConfig{Level: "debug", LogToFile: true}, logPath); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	slog.Info("file must receive this message")

	if err := m.Close(); err != nil {
		t.Fatalf("close manager: %v", err)
	}

	cleanLogPath := filepath.Clean(logPath)
	// #nosec G304 -- logPath is created from t.TempDir() in this test.
	raw, err := os.ReadFile(cleanLogPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(raw, []byte("file must receive this message")) {
		t.Fatalf("log file does not contain test message, contents: %q", string(raw))
	}
}

type errorWriter struct {
	err error
}

func (w errorWriter) Write(_ []byte) (int, error) {
	return 0, w.err
}

func TestStepLevelWalksAndClamps(t *testing.T) {
	m := NewManager()
	if m.Level() != slog.LevelInfo {
		t.Fatalf("expected info by default, got %s", m.Level())
	}

	steps := []struct {
		delta int
		want  slog.Level
	}{
		{-1, slog.LevelDebug},
		{-1, slog.LevelDebug},
		{1, slog.LevelInfo},
		{1, slog.LevelWarn},
		{5, slog.LevelError},
		{-2, slog.LevelInfo},
	}
	for i, s := range steps {
		if got := m.StepLevel(s.delta); got != s.want {
			t.Fatalf("step %d: expected %s, got %s", i, s.want, got)
		}
	}
}

func TestStepLevelAppliesToExistingLoggers(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	logPath := filepath.Join(t.TempDir(), "app.log")
	m := NewManager()
	t.Cleanup(func() { _ = m.Close() })
	if err := m.Configure(config.LoggingConfig{Level: "info", LogToFile: true}, logPath); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	logger := m.Logger("bridge")
	logger.Debug("hidden before step")
	m.StepLevel(-1)
	logger.Debug("visible after step")
	_ = m.Close()

	// #nosec G304 -- logPath is created from t.TempDir() in this test.
	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if bytes.Contains(raw, []byte("hidden before step")) {
		t.Fatalf("expected debug line suppressed at info level")
	}
	if !bytes.Contains(raw, []byte("visible after step")) || !bytes.Contains(raw, []byte("component=bridge")) {
		t.Fatalf("expected debug line after stepping, got %q", raw)
	}
}

func TestParseLevel(t *testing.T) {
	if _, err := parseLevel("trace"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if l, err := parseLevel(" WARNING "); err != nil || l != slog.LevelWarn {
		t.Fatalf("expected warn, got %s, %v", l, err)
	}
}
