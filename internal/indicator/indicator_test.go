package indicator

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingLED struct {
	frames []Frame
	offs   int
	err    error
}

func (l *recordingLED) Show(f Frame) error {
	if l.err != nil {
		return l.err
	}
	l.frames = append(l.frames, f)
	return nil
}

func (l *recordingLED) Off() error {
	l.offs++
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusTable(t *testing.T) {
	tests := []struct {
		status  Status
		color   Color
		pattern Pattern
	}{
		{StatusDisconnected, ColorAmber, PatternFixed},
		{StatusConnected, ColorBlue, PatternBreathe},
		{StatusReady, ColorBlue, PatternFixed},
		{StatusTx, ColorRed, PatternFixed},
		{StatusRx, ColorGreen, PatternFixed},
		{StatusDuplex, ColorPurple, PatternFixed},
		{StatusError, ColorRed, PatternFlash},
		{StatusShutdown, ColorAmber, PatternFadeOut},
		{StatusBatteryFull, ColorGreen, PatternFixed},
		{StatusBatteryLow, ColorGreen, PatternFastBlink},
		{StatusBatteryShutdown, ColorRed, PatternFastBlink},
		{StatusActionRegistered, ColorAmber, PatternFastBlink},
		{StatusScanning, ColorBlue, PatternFlash},
		{StatusUpdating, ColorPurple, PatternFastBlink},
	}

	for _, tc := range tests {
		if got := tc.status.Color(); got != tc.color {
			t.Fatalf("%s: expected color %s, got %s", tc.status, tc.color, got)
		}
		if got := tc.status.Pattern(); got != tc.pattern {
			t.Fatalf("%s: expected pattern %s, got %s", tc.status, tc.pattern, got)
		}
	}
	if got := Status(99).String(); got != "status(99)" {
		t.Fatalf("expected fallback name, got %q", got)
	}
}

func TestBrightness(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
		elapsed time.Duration
		want    uint8
	}{
		{"fixed", PatternFixed, 5 * time.Second, 24},
		{"flash on", PatternFlash, 10 * time.Millisecond, 24},
		{"flash off", PatternFlash, 100 * time.Millisecond, 0},
		{"flash next cycle", PatternFlash, 665 * time.Millisecond, 24},
		{"fast blink on", PatternFastBlink, 159 * time.Millisecond, 24},
		{"fast blink off", PatternFastBlink, 70 * time.Millisecond, 0},
		{"fade start", PatternFadeOut, 0, 24},
		{"fade two steps", PatternFadeOut, 170 * time.Millisecond, 22},
		{"fade done", PatternFadeOut, 10 * time.Second, 0},
		{"breathe start", PatternBreathe, 0, 68},
		{"breathe peak", PatternBreathe, time.Second, 253},
		{"breathe trough", PatternBreathe, 3 * time.Second, 0},
	}

	for _, tc := range tests {
		if got := Brightness(tc.pattern, tc.elapsed, DefaultBrightness); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestDriverWritesOnlyChangedFrames(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	led := &recordingLED{}
	d := NewDriver(led, clock, quietLogger())

	d.Render()
	d.Render()
	if len(led.frames) != 1 {
		t.Fatalf("expected one write for a steady frame, got %d", len(led.frames))
	}

	d.Set(StatusScanning)
	d.Render()
	clock.Advance(100 * time.Millisecond)
	d.Render()
	if len(led.frames) != 3 {
		t.Fatalf("expected flash on and off writes, got %d", len(led.frames))
	}
	if led.frames[1].Brightness != DefaultBrightness || !led.frames[2].Off() {
		t.Fatalf("unexpected flash frames %+v", led.frames[1:])
	}
	if led.frames[2].Color != ColorBlue {
		t.Fatalf("expected scanning blue, got %s", led.frames[2].Color)
	}
}

func TestDriverSetSameStatusKeepsPhase(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	led := &recordingLED{}
	d := NewDriver(led, clock, quietLogger())

	d.Set(StatusShutdown)
	clock.Advance(800 * time.Millisecond)
	d.Set(StatusShutdown)
	d.Render()
	if got := led.frames[len(led.frames)-1].Brightness; got != DefaultBrightness-10 {
		t.Fatalf("expected fade to continue, got %d", got)
	}
}

func TestDriverRetriesAfterWriteFailure(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	led := &recordingLED{err: errors.New("busy")}
	d := NewDriver(led, clock, quietLogger())

	d.Render()
	led.err = nil
	d.Render()
	if len(led.frames) != 1 {
		t.Fatalf("expected frame written once the LED recovers, got %d", len(led.frames))
	}

	d.Sleep()
	d.Render()
	if led.offs != 1 || len(led.frames) != 2 {
		t.Fatalf("expected render after sleep to rewrite the frame, got offs=%d frames=%d", led.offs, len(led.frames))
	}
}

func TestSysfsLED(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "brightness"), []byte("0"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	led, err := NewSysfsLED(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := led.Show(Frame{Color: ColorAmber, Brightness: 24}); err != nil {
		t.Fatalf("show: %v", err)
	}

	intensity, _ := os.ReadFile(filepath.Join(dir, "multi_intensity"))
	if string(intensity) != "255 133 3" {
		t.Fatalf("expected amber intensity, got %q", intensity)
	}
	brightness, _ := os.ReadFile(filepath.Join(dir, "brightness"))
	if string(brightness) != "24" {
		t.Fatalf("expected brightness 24, got %q", brightness)
	}

	if err := led.Off(); err != nil {
		t.Fatalf("off: %v", err)
	}
	brightness, _ = os.ReadFile(filepath.Join(dir, "brightness"))
	if string(brightness) != "0" {
		t.Fatalf("expected brightness 0, got %q", brightness)
	}

	if _, err := NewSysfsLED(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing led")
	}
}

func TestNoopAndLogTrackStatus(t *testing.T) {
	var ind Indicator = &Noop{}
	ind.Set(StatusReady)
	ind.Render()
	if ind.Status() != StatusReady {
		t.Fatalf("expected noop to remember status")
	}

	ind = NewLog(quietLogger())
	ind.Set(StatusTx)
	if ind.Status() != StatusTx {
		t.Fatalf("expected log indicator to remember status")
	}
}
