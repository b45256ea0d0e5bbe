package power

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestActions(run commandRunner) (*Actions, *int) {
	syncs := 0
	a := &Actions{
		run:    run,
		sync:   func() { syncs++ },
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return a, &syncs
}

func TestRebootFallsBack(t *testing.T) {
	var attempts []string
	a, syncs := newTestActions(func(_ context.Context, name string, args ...string) error {
		attempts = append(attempts, strings.TrimSpace(name+" "+strings.Join(args, " ")))
		if len(attempts) == 1 {
			return errors.New("no systemd")
		}
		return nil
	})

	if err := a.Reboot(context.Background()); err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if *syncs != 1 {
		t.Fatalf("expected one sync, got %d", *syncs)
	}
	if strings.Join(attempts, "|") != "systemctl reboot|reboot" {
		t.Fatalf("unexpected attempts %v", attempts)
	}
}

func TestPowerOffReportsEveryFailure(t *testing.T) {
	a, _ := newTestActions(func(_ context.Context, name string, _ ...string) error {
		return errors.New(name + " missing")
	})

	err := a.PowerOff(context.Background())
	if err == nil {
		t.Fatalf("expected error when all commands fail")
	}
	msg := err.Error()
	if !strings.Contains(msg, "systemctl: systemctl missing") || !strings.Contains(msg, "poweroff: poweroff missing") {
		t.Fatalf("expected both failures in error, got %q", msg)
	}
}

func writeSupply(t *testing.T, dir, name, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestSysfsSupply(t *testing.T) {
	dir := t.TempDir()
	writeSupply(t, dir, "voltage_now", "3712000\n")
	writeSupply(t, dir, "status", "Discharging\n")

	s, err := NewSysfsSupply(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	v, err := s.Voltage()
	if err != nil || v != 3.712 {
		t.Fatalf("expected 3.712 V, got %v, %v", v, err)
	}
	if ext, err := s.ExternalPower(); err != nil || ext {
		t.Fatalf("expected battery power while discharging, got %v, %v", ext, err)
	}

	writeSupply(t, dir, "status", "Charging\n")
	if ext, _ := s.ExternalPower(); !ext {
		t.Fatalf("expected external power while charging")
	}

	writeSupply(t, dir, "voltage_now", "n/a")
	if _, err := s.Voltage(); err == nil {
		t.Fatalf("expected parse error")
	}

	if _, err := NewSysfsSupply(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing supply")
	}
}

func TestStaticMonitor(t *testing.T) {
	var m Monitor = Mains
	v, _ := m.Voltage()
	ext, _ := m.ExternalPower()
	if v < 3.75 || !ext {
		t.Fatalf("expected mains to be full and external, got %v, %v", v, ext)
	}
}

type fakeRebooter struct {
	calls int
}

func (r *fakeRebooter) Reboot(context.Context) error {
	r.calls++
	return nil
}

func TestServiceRestarter(t *testing.T) {
	tests := []struct {
		name        string
		unit        string
		restartErr  error
		wantUnit    string
		wantReboots int
	}{
		{name: "no unit reboots", unit: "", wantReboots: 1},
		{name: "unit restarted", unit: "bblink", wantUnit: "bblink.service"},
		{name: "explicit suffix kept", unit: "bblink@hci1.service", wantUnit: "bblink@hci1.service"},
		{name: "restart failure reboots", unit: "bblink.service", restartErr: errors.New("access denied"), wantUnit: "bblink.service", wantReboots: 1},
	}

	for _, tt := range tests {
		fallback := &fakeRebooter{}
		s := NewServiceRestarter(tt.unit, fallback, slog.New(slog.NewTextHandler(io.Discard, nil)))
		s.sync = func() {}
		var restarted string
		s.restart = func(_ context.Context, unit string) error {
			restarted = unit
			return tt.restartErr
		}

		if err := s.Restart(context.Background()); err != nil {
			t.Fatalf("%s: expected no error, got %v", tt.name, err)
		}
		if restarted != tt.wantUnit {
			t.Fatalf("%s: expected restart of %q, got %q", tt.name, tt.wantUnit, restarted)
		}
		if fallback.calls != tt.wantReboots {
			t.Fatalf("%s: expected %d reboots, got %d", tt.name, tt.wantReboots, fallback.calls)
		}
	}
}
