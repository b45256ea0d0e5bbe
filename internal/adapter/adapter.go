// Package adapter supervises the bridge: it owns the status light, the
// touch button, battery and idle shutdown, firmware updates and the debug
// console.
package adapter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skobkin/bblink/internal/bus"
	"github.com/skobkin/bblink/internal/button"
	"github.com/skobkin/bblink/internal/connectors"
	"github.com/skobkin/bblink/internal/fsm"
	"github.com/skobkin/bblink/internal/indicator"
	"github.com/skobkin/bblink/internal/power"
)

const (
	DefaultIdleTimeout          = 5 * time.Minute
	DefaultLinger               = 2 * time.Second
	DefaultActionFeedback       = 2 * time.Second
	DefaultBatteryDisplay       = 3 * time.Second
	DefaultBatteryCheckInterval = 3 * time.Minute
	DefaultMinVoltage           = 3.5
	DefaultFullVoltage          = 3.75
	DefaultUpdateRebootDelay    = 2 * time.Second

	consoleQueueSize = 8
	updateQueueSize  = 256
)

// Console commands accepted while idle.
const (
	CommandReboot        byte = 'r'
	CommandFactoryReset  byte = 'R'
	CommandMoreVerbosity byte = '+'
	CommandLessVerbosity byte = '-'
)

var (
	ErrUnknownCommand = errors.New("unknown console command")
	ErrConsoleBusy    = errors.New("console queue is full")

	errUpdateOverflow = errors.New("update writes arrived faster than they could be stored")
)

// Bridge is the part of the KISS bridge the adapter drives.
type Bridge interface {
	Tick()
	IsReady() bool
	RadioConnected() bool
	RadioDiscovering() bool
	IsTx() bool
	IsRx() bool
	Disconnect()
	FactoryReset(ctx context.Context) error
}

type PowerActions interface {
	Reboot(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

type UpdateSink interface {
	Begin() error
	Write(chunk []byte) (int, error)
	Commit() (string, error)
	Abort()
	Active() bool
}

// Verbosity moves the log level by delta steps along debug, info, warn,
// error. Negative is more verbose.
type Verbosity interface {
	StepLevel(delta int) slog.Level
}

type Config struct {
	IdleTimeout          time.Duration
	Linger               time.Duration
	ActionFeedback       time.Duration
	BatteryDisplay       time.Duration
	BatteryCheckInterval time.Duration
	MinVoltage           float64
	FullVoltage          float64
	UpdateRebootDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.Linger <= 0 {
		c.Linger = DefaultLinger
	}
	if c.ActionFeedback <= 0 {
		c.ActionFeedback = DefaultActionFeedback
	}
	if c.BatteryDisplay <= 0 {
		c.BatteryDisplay = DefaultBatteryDisplay
	}
	if c.BatteryCheckInterval <= 0 {
		c.BatteryCheckInterval = DefaultBatteryCheckInterval
	}
	if c.MinVoltage <= 0 {
		c.MinVoltage = DefaultMinVoltage
	}
	if c.FullVoltage <= 0 {
		c.FullVoltage = DefaultFullVoltage
	}
	if c.UpdateRebootDelay <= 0 {
		c.UpdateRebootDelay = DefaultUpdateRebootDelay
	}
	return c
}

type Deps struct {
	Bridge    Bridge
	Indicator indicator.Indicator
	Button    button.Sampler
	Battery   power.Monitor
	Power     PowerActions
	Updates   UpdateSink
	Verbosity Verbosity
	Bus       bus.MessageBus
	Clock     fsm.Clock
	Logger    *slog.Logger
}

// Adapter is the top level state machine. Tick must be called from a single
// goroutine; HandleUpdateWrite and Console may be called from any.
type Adapter struct {
	cfg       Config
	bridge    Bridge
	indicator indicator.Indicator
	sampler   button.Sampler
	detector  *button.Detector
	battery   power.Monitor
	power     PowerActions
	updates   UpdateSink
	verbosity Verbosity
	bus       bus.MessageBus
	clock     fsm.Clock
	logger    *slog.Logger

	machine *fsm.Machine[State]
	ctx     context.Context

	console        chan byte
	updateChunks   chan []byte
	updateOverflow atomic.Bool

	reason           ShutdownReason
	lastBatteryCheck time.Time
	buttonFailed     bool
	committedAt      time.Time
	committed        bool

	mu            sync.Mutex
	published     connectors.AdapterState
	outcome       Outcome
	done          chan struct{}
	closeDoneOnce sync.Once
}

func New(cfg Config, deps Deps) *Adapter {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = fsm.SystemClock{}
	}
	ind := deps.Indicator
	if ind == nil {
		ind = &indicator.Noop{}
	}
	sampler := deps.Button
	if sampler == nil {
		sampler = button.Noop{}
	}
	battery := deps.Battery
	if battery == nil {
		battery = power.Mains
	}

	a := &Adapter{
		cfg:              cfg.withDefaults(),
		bridge:           deps.Bridge,
		indicator:        ind,
		sampler:          sampler,
		detector:         button.NewDetector(clock),
		battery:          battery,
		power:            deps.Power,
		updates:          deps.Updates,
		verbosity:        deps.Verbosity,
		bus:              deps.Bus,
		clock:            clock,
		logger:           logger,
		ctx:              context.Background(),
		console:          make(chan byte, consoleQueueSize),
		updateChunks:     make(chan []byte, updateQueueSize),
		lastBatteryCheck: clock.Now(),
		done:             make(chan struct{}),
	}

	a.machine = fsm.New(StateIdle, clock)
	a.machine.Handle(StateIdle, fsm.Hooks{Enter: a.idleEnter, Update: a.idleUpdate})
	a.machine.Handle(StateInUse, fsm.Hooks{Enter: a.inUseEnter, Update: a.inUseUpdate})
	a.machine.Handle(StateShowingBattery, fsm.Hooks{Enter: a.showBatteryEnter, Update: a.showBatteryUpdate})
	a.machine.Handle(StateShuttingDown, fsm.Hooks{Enter: a.shutdownEnter, Update: a.shutdownUpdate})
	a.machine.Handle(StateFirmwareUpdate, fsm.Hooks{Enter: a.updateEnter, Update: a.updateUpdate, Exit: a.updateExit})

	return a
}

// Tick renders the indicator, samples the button and battery, applies
// pending update writes and advances the state machine, which in turn ticks
// the bridge while idle or in use.
func (a *Adapter) Tick(ctx context.Context) {
	if a.Finished() {
		return
	}
	a.ctx = ctx

	a.indicator.Render()
	if !a.machine.IsIn(StateFirmwareUpdate) {
		a.processButton()
		a.batteryWatchdog()
	}
	a.drainUpdateWrites()
	a.machine.Update()
	a.publishState()
}

func (a *Adapter) State() State {
	return a.machine.State()
}

// Done is closed once the adapter powered off or rebooted the host.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

func (a *Adapter) Finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

func (a *Adapter) Outcome() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcome
}

// Snapshot is the last published adapter state.
func (a *Adapter) Snapshot() connectors.AdapterState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.published
}

// HandleUpdateWrite queues one write to the firmware flash characteristic.
// An empty write ends the transfer.
func (a *Adapter) HandleUpdateWrite(data []byte) {
	chunk := append([]byte(nil), data...)
	select {
	case a.updateChunks <- chunk:
	default:
		a.updateOverflow.Store(true)
	}
}

// Console queues a debug console command. Commands run on a later tick and
// only while idle.
func (a *Adapter) Console(cmd byte) error {
	switch cmd {
	case CommandReboot, CommandFactoryReset, CommandMoreVerbosity, CommandLessVerbosity:
	default:
		return ErrUnknownCommand
	}
	select {
	case a.console <- cmd:
		return nil
	default:
		return ErrConsoleBusy
	}
}

func (a *Adapter) processButton() {
	gesture, err := a.detector.Poll(a.sampler)
	if err != nil {
		if !a.buttonFailed {
			a.logger.Warn("button read failed", "error", err)
		}
		a.buttonFailed = true
	} else {
		a.buttonFailed = false
	}

	switch gesture {
	case button.GestureLong:
		if a.machine.IsIn(StateShuttingDown) {
			return
		}
		a.logger.Info("long press, shutting down")
		a.beginShutdown(ReasonUser)
	case button.GestureShort:
		a.logger.Info("short press")
		if a.machine.IsIn(StateIdle) {
			a.machine.TransitionTo(StateShowingBattery)
		}
	}
}

func (a *Adapter) batteryWatchdog() {
	now := a.clock.Now()
	if now.Sub(a.lastBatteryCheck) <= a.cfg.BatteryCheckInterval {
		return
	}
	a.lastBatteryCheck = now

	volts, err := a.battery.Voltage()
	if err != nil {
		a.logger.Warn("battery read failed", "error", err)
		return
	}
	a.logger.Debug("battery voltage", "volts", volts)
	if volts < a.cfg.MinVoltage && !a.machine.IsIn(StateShuttingDown) {
		a.logger.Warn("battery voltage too low, shutting down", "volts", volts, "min", a.cfg.MinVoltage)
		a.beginShutdown(ReasonLowBattery)
	}
}

func (a *Adapter) beginShutdown(reason ShutdownReason) {
	a.reason = reason
	a.machine.TransitionTo(StateShuttingDown)
}

// finish stops the bridge, turns the light off and hands over to the host.
func (a *Adapter) finish(outcome Outcome) {
	a.closeDoneOnce.Do(func() {
		a.bridge.Disconnect()
		a.indicator.Sleep()

		var err error
		if a.power != nil {
			switch outcome {
			case OutcomeReboot:
				err = a.power.Reboot(a.ctx)
			case OutcomePowerOff:
				err = a.power.PowerOff(a.ctx)
			}
		}
		if err != nil {
			a.logger.Error("power action failed", "outcome", outcome.String(), "error", err)
		} else {
			a.logger.Info("adapter stopped", "outcome", outcome.String())
		}

		a.mu.Lock()
		a.outcome = outcome
		a.mu.Unlock()
		close(a.done)
	})
}

func (a *Adapter) publishState() {
	state := connectors.AdapterState{
		State:  a.machine.State().String(),
		Status: a.indicator.Status().String(),
	}
	if a.machine.IsIn(StateShuttingDown) {
		state.Reason = a.reason.String()
	}

	a.mu.Lock()
	changed := state.State != a.published.State || state.Status != a.published.Status || state.Reason != a.published.Reason
	if changed {
		state.Timestamp = a.clock.Now()
		a.published = state
	}
	a.mu.Unlock()

	if changed && a.bus != nil {
		a.bus.Publish(connectors.TopicAdapterState, state)
	}
}

func (a *Adapter) idleEnter() {
	a.logger.Info("adapter idle")
	a.indicator.Set(indicator.StatusDisconnected)
}

func (a *Adapter) idleUpdate() {
	a.bridge.Tick()

	if a.bridge.IsReady() {
		a.machine.TransitionTo(StateInUse)
		return
	}
	a.indicator.Set(idleStatus(a.bridge.RadioConnected(), a.bridge.RadioDiscovering()))

	if idle := a.machine.TimeInCurrentState(); idle > a.cfg.IdleTimeout {
		a.logger.Info("idle timeout", "idle", idle.Round(time.Second).String())
		external, err := a.battery.ExternalPower()
		switch {
		case err != nil:
			a.logger.Warn("power source unknown, staying awake", "error", err)
			a.machine.TransitionTo(StateIdle)
		case external:
			a.logger.Info("on external power, staying awake")
			a.machine.TransitionTo(StateIdle)
		default:
			a.logger.Info("on battery power, shutting down")
			a.beginShutdown(ReasonIdleTimeout)
			return
		}
	}

	a.processConsole()
}

func (a *Adapter) processConsole() {
	for {
		select {
		case cmd := <-a.console:
			a.runConsoleCommand(cmd)
		default:
			return
		}
	}
}

func (a *Adapter) runConsoleCommand(cmd byte) {
	switch cmd {
	case CommandReboot:
		a.logger.Info("console: reboot")
		a.finish(OutcomeReboot)
	case CommandFactoryReset:
		a.logger.Info("console: factory reset")
		if err := a.bridge.FactoryReset(a.ctx); err != nil {
			a.logger.Error("factory reset failed", "error", err)
		}
		a.machine.TransitionTo(StateIdle)
	case CommandMoreVerbosity, CommandLessVerbosity:
		if a.verbosity == nil {
			return
		}
		delta := 1
		if cmd == CommandMoreVerbosity {
			delta = -1
		}
		level := a.verbosity.StepLevel(delta)
		a.logger.Info("console: log level", "level", level.String())
	}
}

func (a *Adapter) inUseEnter() {
	a.logger.Info("adapter ready for use")
	a.indicator.Set(indicator.StatusReady)
}

func (a *Adapter) inUseUpdate() {
	a.bridge.Tick()

	if !a.bridge.IsReady() {
		a.machine.TransitionTo(StateIdle)
		return
	}
	a.indicator.Set(trafficStatus(a.bridge.IsTx(), a.bridge.IsRx()))
}

func (a *Adapter) showBatteryEnter() {
	volts, err := a.battery.Voltage()
	if err != nil {
		a.logger.Warn("battery read failed", "error", err)
		a.indicator.Set(indicator.StatusBatteryLow)
		return
	}
	a.logger.Info("battery voltage", "volts", volts)
	a.indicator.Set(batteryStatus(volts, a.cfg.FullVoltage))
}

func (a *Adapter) showBatteryUpdate() {
	if a.machine.TimeInCurrentState() > a.cfg.BatteryDisplay {
		a.machine.TransitionTo(StateIdle)
	}
}

func (a *Adapter) shutdownEnter() {
	a.logger.Info("adapter shutting down", "reason", a.reason.String())
	status, _ := shutdownProgress(a.reason, 0, a.cfg.ActionFeedback, a.cfg.Linger)
	a.indicator.Set(status)
}

func (a *Adapter) shutdownUpdate() {
	status, done := shutdownProgress(a.reason, a.machine.TimeInCurrentState(), a.cfg.ActionFeedback, a.cfg.Linger)
	a.indicator.Set(status)
	if done {
		a.finish(OutcomePowerOff)
	}
}
