package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/skobkin/bblink/internal/bluetoothutil"
)

const (
	DefaultLocalName = "B.B. Link"
	defaultATTMTU    = 512
	// attHeaderSize is the opcode and handle prefix of a notification.
	attHeaderSize = 3
)

type PeripheralConfig struct {
	AdapterID string
	LocalName string
	MTU       int
	// Identity is served read-only on the update service.
	Identity []byte
}

// PeripheralHandlers receive events from the BLE stack. They are called from
// BlueZ callback goroutines.
type PeripheralHandlers struct {
	OnConnect     func(connected bool)
	OnWrite       func(data []byte)
	OnUpdateWrite func(data []byte)
}

// BLEPeripheral is the GATT server the phone app talks to: the KISS service
// with a write-only TX and a notify-only RX characteristic, and the update
// service with a flash sink and an identity record.
type BLEPeripheral struct {
	cfg      PeripheralConfig
	handlers PeripheralHandlers
	logger   *slog.Logger

	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement

	tx       bluetooth.Characteristic
	rx       bluetooth.Characteristic
	flash    bluetooth.Characteristic
	identity bluetooth.Characteristic

	mu          sync.Mutex
	started     bool
	advertising bool
	notifyMu    sync.Mutex
}

func NewBLEPeripheral(cfg PeripheralConfig, handlers PeripheralHandlers, logger *slog.Logger) *BLEPeripheral {
	if cfg.LocalName == "" {
		cfg.LocalName = DefaultLocalName
	}
	if cfg.MTU <= attHeaderSize {
		cfg.MTU = defaultATTMTU
	}
	return &BLEPeripheral{
		cfg:      cfg,
		handlers: handlers,
		logger:   transportLogger(logger, "ble", "adapter", cfg.AdapterID),
		adapter:  bluetoothutil.ResolveAdapter(cfg.AdapterID),
	}
}

// Start enables the adapter and registers both services. Advertising is
// controlled separately.
func (p *BLEPeripheral) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth adapter: %w", err)
	}
	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		p.logger.Info("peer connection changed", "peer", device.Address.String(), "connected", connected)
		if p.handlers.OnConnect != nil {
			p.handlers.OnConnect(connected)
		}
	})

	if err := p.adapter.AddService(&bluetooth.Service{
		UUID: bluetoothutil.KISSServiceUUID(),
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &p.tx,
				UUID:   bluetoothutil.KISSTXUUID(),
				Flags:  bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(_ bluetooth.Connection, _ int, value []byte) {
					if p.handlers.OnWrite != nil {
						p.handlers.OnWrite(append([]byte(nil), value...))
					}
				},
			},
			{
				Handle: &p.rx,
				UUID:   bluetoothutil.KISSRXUUID(),
				Flags:  bluetooth.CharacteristicNotifyPermission,
			},
		},
	}); err != nil {
		return fmt.Errorf("add kiss service: %w", err)
	}

	if err := p.adapter.AddService(&bluetooth.Service{
		UUID: bluetoothutil.UpdateServiceUUID(),
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &p.flash,
				UUID:   bluetoothutil.UpdateFlashUUID(),
				Flags:  bluetooth.CharacteristicWritePermission,
				WriteEvent: func(_ bluetooth.Connection, _ int, value []byte) {
					if p.handlers.OnUpdateWrite != nil {
						p.handlers.OnUpdateWrite(append([]byte(nil), value...))
					}
				},
			},
			{
				Handle: &p.identity,
				UUID:   bluetoothutil.UpdateIdentityUUID(),
				Value:  p.cfg.Identity,
				Flags:  bluetooth.CharacteristicReadPermission,
			},
		},
	}); err != nil {
		return fmt.Errorf("add update service: %w", err)
	}

	p.adv = p.adapter.DefaultAdvertisement()
	if err := p.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    p.cfg.LocalName,
		ServiceUUIDs: []bluetooth.UUID{bluetoothutil.KISSServiceUUID()},
	}); err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}

	p.started = true
	p.logger.Info("gatt services registered", "name", p.cfg.LocalName)
	return nil
}

func (p *BLEPeripheral) StartAdvertising() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return errors.New("peripheral is not started")
	}
	if p.advertising {
		return nil
	}
	if err := p.adv.Start(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	p.advertising = true
	p.logger.Debug("advertising started")
	return nil
}

func (p *BLEPeripheral) StopAdvertising() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.advertising {
		return nil
	}
	if err := p.adv.Stop(); err != nil {
		return fmt.Errorf("stop advertising: %w", err)
	}
	p.advertising = false
	p.logger.Debug("advertising stopped")
	return nil
}

// Notify sends data on RX, split to fit into single notifications.
func (p *BLEPeripheral) Notify(data []byte) error {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	for _, chunk := range chunks(data, p.cfg.MTU-attHeaderSize) {
		if _, err := p.rx.Write(chunk); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
	}
	return nil
}
