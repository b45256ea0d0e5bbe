package indicator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/bblink/internal/fsm"
)

// Indicator shows the current status. Render is called once per tick and
// animates the active pattern.
type Indicator interface {
	Set(Status)
	Status() Status
	Render()
	Sleep()
}

// LED is the hardware behind a Driver.
type LED interface {
	Show(Frame) error
	Off() error
}

// Driver animates a status on an LED and only touches the hardware when the
// rendered frame changes.
type Driver struct {
	mu     sync.Mutex
	led    LED
	clock  fsm.Clock
	base   uint8
	logger *slog.Logger

	status  Status
	since   time.Time
	last    Frame
	written bool
	failed  bool
}

func NewDriver(led LED, clock fsm.Clock, logger *slog.Logger) *Driver {
	if clock == nil {
		clock = fsm.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{
		led:    led,
		clock:  clock,
		base:   DefaultBrightness,
		logger: logger,
		since:  clock.Now(),
	}
}

// Set restarts the pattern only when the status actually changes.
func (d *Driver) Set(s Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s == d.status {
		return
	}
	d.logger.Debug("indicator status", "from", d.status.String(), "to", s.String())
	d.status = s
	d.since = d.clock.Now()
}

func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Driver) Render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	frame := Render(d.status, d.clock.Now().Sub(d.since), d.base)
	if d.written && frame == d.last {
		return
	}
	if err := d.led.Show(frame); err != nil {
		// One warning per failure streak; the LED is not worth a log flood.
		if !d.failed {
			d.logger.Warn("indicator write failed", "error", err)
		}
		d.failed = true
		return
	}
	d.failed = false
	d.last = frame
	d.written = true
}

func (d *Driver) Sleep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.led.Off(); err != nil {
		d.logger.Warn("indicator off failed", "error", err)
	}
	d.written = false
}

// Noop is used when the board has no LED.
type Noop struct {
	mu     sync.Mutex
	status Status
}

func (n *Noop) Set(s Status) {
	n.mu.Lock()
	n.status = s
	n.mu.Unlock()
}

func (n *Noop) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (*Noop) Render() {}
func (*Noop) Sleep()  {}

// Log reports status changes to a logger instead of a light.
type Log struct {
	Noop
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Set(s Status) {
	if l.Status() == s {
		return
	}
	l.Noop.Set(s)
	l.logger.Info("status", "status", s.String(), "color", s.Color().String(), "pattern", s.Pattern().String())
}

func (l *Log) Sleep() {
	l.logger.Info("status", "status", "off")
}
