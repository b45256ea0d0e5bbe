package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skobkin/bblink/internal/bus"
	"github.com/skobkin/bblink/internal/connectors"
	"github.com/skobkin/bblink/internal/fsm"
	"github.com/skobkin/bblink/internal/kiss"
	"github.com/skobkin/bblink/internal/rig"
	"github.com/skobkin/bblink/internal/transport"
)

const (
	DefaultMTU               = 512
	DefaultReconnectInterval = 15 * time.Second
	DefaultDiscoveryDrain    = 500 * time.Millisecond
	// DefaultByteTransmitTime is roughly one byte on air at 1200 baud.
	DefaultByteTransmitTime = 7 * time.Millisecond

	QueueCapacity = 10

	// KenwoodHandheldClass is the class of device of TH-D74/TH-D75 radios.
	KenwoodHandheldClass uint32 = 0x620204

	foundBufferSize = 32
)

const (
	PrefRadioName    = "radioName"
	PrefRadioAddress = "radioAddress"
	PrefRigControl   = "rigCtrl"
)

var ErrQueueFull = errors.New("command queue is full")

// Peer is the wireless side of the bridge.
type Peer interface {
	StartAdvertising() error
	StopAdvertising() error
	Notify(data []byte) error
}

// RadioLink is the classic serial connection to the radio. Connect blocks
// until the link is up or fails.
type RadioLink interface {
	rig.Port
	Connect(ctx context.Context, addr kiss.Address) error
	Connected() bool
	Disconnect() error
}

// Discoverer finds radios and manages OS level bonds with them.
type Discoverer interface {
	StartDiscovery(ctx context.Context, found func(transport.ClassicDevice)) error
	StopDiscovery() error
	Bonds(ctx context.Context) ([]kiss.Address, error)
	RemoveBond(ctx context.Context, addr kiss.Address) error
}

type Prefs interface {
	String(key string) (string, bool, error)
	PutString(key, value string) error
	Bytes(key string) ([]byte, bool, error)
	PutBytes(key string, value []byte) error
	Bool(key string, def bool) (bool, error)
	PutBool(key string, value bool) error
	Remove(keys ...string) error
	Clear() error
}

type Restarter interface {
	Restart(ctx context.Context) error
}

type Config struct {
	MTU               int
	ReconnectInterval time.Duration
	DiscoveryDrain    time.Duration
	ByteTransmitTime  time.Duration
	FirmwareVersion   string
}

func (c Config) withDefaults() Config {
	if c.MTU <= 0 {
		c.MTU = DefaultMTU
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.DiscoveryDrain <= 0 {
		c.DiscoveryDrain = DefaultDiscoveryDrain
	}
	if c.ByteTransmitTime <= 0 {
		c.ByteTransmitTime = DefaultByteTransmitTime
	}
	if c.FirmwareVersion == "" {
		c.FirmwareVersion = "0.0.0"
	}
	return c
}

type Deps struct {
	Peer      Peer
	Radio     RadioLink
	Rig       *rig.Client
	Discovery Discoverer
	Prefs     Prefs
	Restarter Restarter
	Bus       bus.MessageBus
	Clock     fsm.Clock
	Logger    *slog.Logger
}

type pairedDevice struct {
	name    string
	address kiss.Address
}

// Bridge relays KISS traffic between the wireless peer and the radio and
// executes the extended hardware commands tunneled in it.
type Bridge struct {
	cfg       Config
	peer      Peer
	radio     RadioLink
	rig       *rig.Client
	discovery Discoverer
	prefs     Prefs
	restarter Restarter
	bus       bus.MessageBus
	clock     fsm.Clock
	logger    *slog.Logger
	sleep     func(time.Duration)

	ctx context.Context

	wireless *fsm.Machine[LinkState]
	radioFSM *fsm.Machine[RadioState]

	queue chan kiss.Command
	// radioMu is held while the tick loop drives the radio. Inbound relay
	// waits for it, or drops the data when a command is executing.
	radioMu     sync.Mutex
	dispatching atomic.Bool

	connecting    bool
	connectResult chan error
	found         chan transport.ClassicDevice

	mu          sync.Mutex
	snapshot    radioSnapshot
	rigControl  bool
	paired      pairedDevice
	autoConnect bool
	scanResults []transport.ClassicDevice
	txUntil     time.Time
	rxUntil     time.Time
}

func New(cfg Config, deps Deps) *Bridge {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = fsm.SystemClock{}
	}

	b := &Bridge{
		cfg:           cfg.withDefaults(),
		peer:          deps.Peer,
		radio:         deps.Radio,
		rig:           deps.Rig,
		discovery:     deps.Discovery,
		prefs:         deps.Prefs,
		restarter:     deps.Restarter,
		bus:           deps.Bus,
		clock:         clock,
		logger:        logger,
		sleep:         time.Sleep,
		ctx:           context.Background(),
		queue:         make(chan kiss.Command, QueueCapacity),
		connectResult: make(chan error, 1),
		found:         make(chan transport.ClassicDevice, foundBufferSize),
		snapshot:      newRadioSnapshot(),
		rigControl:    true,
	}

	b.wireless = fsm.New(LinkDisconnected, clock)
	b.wireless.Handle(LinkDisconnected, fsm.Hooks{Enter: b.wirelessDisconnectedEnter, Exit: b.wirelessDisconnectedExit})
	b.wireless.Handle(LinkConnected, fsm.Hooks{Enter: b.wirelessConnectedEnter, Exit: b.wirelessConnectedExit})

	b.radioFSM = fsm.New(RadioDisconnected, clock)
	b.radioFSM.Handle(RadioDisconnected, fsm.Hooks{Enter: b.radioDisconnectedEnter, Update: b.radioDisconnectedUpdate})
	b.radioFSM.Handle(RadioConnected, fsm.Hooks{Enter: b.radioConnectedEnter, Update: b.radioConnectedUpdate})
	b.radioFSM.Handle(RadioDiscovery, fsm.Hooks{Enter: b.radioDiscoveryEnter, Update: b.radioDiscoveryUpdate, Exit: b.radioDiscoveryExit})

	return b
}

// Init loads preferences and restores the last pairing. ctx bounds every
// radio and discovery operation started by the bridge afterwards.
func (b *Bridge) Init(ctx context.Context) error {
	b.ctx = ctx
	now := b.clock.Now()
	b.mu.Lock()
	b.txUntil = now
	b.rxUntil = now
	b.mu.Unlock()

	rigControl, err := b.prefs.Bool(PrefRigControl, true)
	if err != nil {
		return fmt.Errorf("load rig control preference: %w", err)
	}
	b.mu.Lock()
	b.rigControl = rigControl
	b.mu.Unlock()
	b.logger.Info("bridge init", "rig_control", rigControl)

	if err := b.lookUpLastPairedDevice(ctx); err != nil {
		return fmt.Errorf("look up paired radio: %w", err)
	}

	return nil
}

// Tick advances both link machines, dispatches queued commands and relays
// one chunk of radio data to the peer.
func (b *Bridge) Tick() {
	b.radioMu.Lock()
	b.wireless.Update()
	b.radioFSM.Update()
	b.drainFound()
	b.dispatchQueue()
	b.radioMu.Unlock()

	if b.IsReady() {
		b.relayFromRadio()
	}
}

func (b *Bridge) IsReady() bool {
	return b.wireless.IsIn(LinkConnected) && b.radioFSM.IsIn(RadioConnected)
}

func (b *Bridge) RadioConnected() bool {
	return b.radioFSM.IsIn(RadioConnected)
}

func (b *Bridge) RadioDiscovering() bool {
	return b.radioFSM.IsIn(RadioDiscovery)
}

func (b *Bridge) IsTx() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txUntil.After(b.clock.Now())
}

func (b *Bridge) IsRx() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rxUntil.After(b.clock.Now())
}

// Disconnect drops the radio link and stops automatic reconnects.
func (b *Bridge) Disconnect() {
	b.clearPendingRadioData()
	b.mu.Lock()
	b.autoConnect = false
	b.mu.Unlock()
	if err := b.radio.Disconnect(); err != nil {
		b.logger.Warn("radio disconnect failed", "error", err)
	}
}

// ClearPairedDevice forgets the radio and its OS bond, then restarts.
func (b *Bridge) ClearPairedDevice(ctx context.Context) error {
	b.logger.Info("clear paired device")
	b.Disconnect()
	b.clearPairedDevices(ctx)
	b.radioFSM.ImmediateTransitionTo(RadioDisconnected)

	if b.restarter == nil {
		return nil
	}
	if err := b.restarter.Restart(ctx); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	return nil
}

// FactoryReset forgets the pairing and every preference, then restarts.
func (b *Bridge) FactoryReset(ctx context.Context) error {
	b.logger.Info("factory reset")
	b.Disconnect()
	b.clearPairedDevices(ctx)

	var errs []error
	if err := b.prefs.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("clear preferences: %w", err))
	}
	b.mu.Lock()
	b.rigControl = true
	b.autoConnect = false
	b.mu.Unlock()

	if b.restarter != nil {
		if err := b.restarter.Restart(ctx); err != nil {
			errs = append(errs, fmt.Errorf("restart: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Snapshot is a point-in-time view of the bridge for diagnostics.
type Snapshot struct {
	Wireless         string `json:"wireless"`
	Radio            string `json:"radio"`
	Ready            bool   `json:"ready"`
	Tx               bool   `json:"tx"`
	Rx               bool   `json:"rx"`
	RigControl       bool   `json:"rig_control"`
	PairedName       string `json:"paired_name,omitempty"`
	PairedAddress    string `json:"paired_address,omitempty"`
	AutoConnect      bool   `json:"auto_connect"`
	VFO              string `json:"vfo"`
	PendingFrequency uint32 `json:"pending_frequency,omitempty"`
	QueuedCommands   int    `json:"queued_commands"`
}

func (b *Bridge) Snapshot() Snapshot {
	s := Snapshot{
		Wireless:       b.wireless.State().String(),
		Radio:          b.radioFSM.State().String(),
		Ready:          b.IsReady(),
		Tx:             b.IsTx(),
		Rx:             b.IsRx(),
		QueuedCommands: len(b.queue),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s.RigControl = b.rigControl
	s.AutoConnect = b.autoConnect
	s.VFO = b.snapshot.vfo.String()
	s.PendingFrequency = b.snapshot.previousFrequency
	if !b.paired.address.IsZero() {
		s.PairedName = b.paired.name
		s.PairedAddress = b.paired.address.String()
	}

	return s
}

func (b *Bridge) publishLink(link connectors.Link, state connectors.ConnectionState, target string, err error) {
	if b.bus == nil {
		return
	}
	status := connectors.LinkStatus{
		Link:      link,
		State:     state,
		Target:    target,
		Timestamp: b.clock.Now(),
	}
	if err != nil {
		status.Err = err.Error()
	}
	b.bus.Publish(connectors.TopicLinkStatus, status)
}
