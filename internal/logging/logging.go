package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skobkin/bblink/internal/config"
)

// Manager hands out component loggers and owns the optional log file.
// The level lives in a LevelVar so it can be stepped from the touch button
// or console without rebuilding loggers handed out earlier.
type Manager struct {
	mu     sync.RWMutex
	level  slog.LevelVar
	logger *slog.Logger
	file   *os.File
	// journal reports whether stdout is connected to journald.
	journal func() bool
}

// levels is the order StepLevel walks, most verbose first.
var levels = []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

func NewManager() *Manager {
	m := &Manager{journal: stdoutIsJournal}
	m.level.Set(slog.LevelInfo)
	m.logger = slog.New(m.consoleHandler(os.Stdout))

	return m
}

// Configure applies cfg. With log_to_file the records go to both stdout and
// filePath; a broken stdout never stops the file from receiving them.
func (m *Manager) Configure(cfg config.LoggingConfig, filePath string) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
	}

	handler := m.consoleHandler(os.Stdout)
	if cfg.LogToFile {
		// #nosec G304 -- path is resolved by app runtime and points to user config dir.
		file, err := os.OpenFile(filepath.Clean(filePath), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		m.file = file
		handler = teeHandler{handler, slog.NewTextHandler(file, &slog.HandlerOptions{Level: &m.level})}
	}

	m.level.Set(level)
	m.logger = slog.New(handler)
	slog.SetDefault(m.logger)

	return nil
}

// consoleHandler drops the time attribute when journald already stamps
// every line.
func (m *Manager) consoleHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: &m.level}
	if m.journal != nil && m.journal() {
		opts.ReplaceAttr = dropTime
	}

	return slog.NewTextHandler(w, opts)
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// stdoutIsJournal follows sd_journal_stream_fd: JOURNAL_STREAM holds the
// device and inode of the stream systemd connected to stdout.
func stdoutIsJournal() bool {
	stream := os.Getenv("JOURNAL_STREAM")
	if stream == "" {
		return false
	}
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	dev, ino, ok := fileIdentity(info)
	if !ok {
		return false
	}

	return stream == fmt.Sprintf("%d:%d", dev, ino)
}

func (m *Manager) Logger(component string) *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.logger.With("component", component)
}

func (m *Manager) Level() slog.Level {
	return m.level.Level()
}

// StepLevel moves the level delta steps along debug, info, warn, error and
// returns the new level. Negative delta is more verbose; the ends clamp.
func (m *Manager) StepLevel(delta int) slog.Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.level.Level()
	idx := 0
	for i, l := range levels {
		if current >= l {
			idx = i
		}
	}
	idx = max(0, min(len(levels)-1, idx+delta))
	m.level.Set(levels[idx])

	return levels[idx]
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil

	return err
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level: %q", raw)
	}
}

// teeHandler passes each record to every handler. A record counts as
// logged when at least one handler accepted it.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	handled := false
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
			continue
		}
		handled = true
	}
	if handled {
		return nil
	}

	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
