package transport

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/skobkin/bblink/internal/bluetoothutil"
	"github.com/skobkin/bblink/internal/kiss"
)

const (
	bluezBus          = "org.bluez"
	bluezAdapter1     = "org.bluez.Adapter1"
	bluezDevice1      = "org.bluez.Device1"
	dbusProperties    = "org.freedesktop.DBus.Properties"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"

	discoverySignalBuffer = 64
)

// BlueZClassic discovers BR/EDR devices and manages bonds through the BlueZ
// D-Bus API.
type BlueZClassic struct {
	adapterID string
	// class restricts Bonds to one class of device, zero means any.
	class  uint32
	logger *slog.Logger

	mu      sync.Mutex
	conn    *dbus.Conn
	signals chan *dbus.Signal
	stop    chan struct{}
	done    chan struct{}
}

func NewBlueZClassic(adapterID string, class uint32, logger *slog.Logger) *BlueZClassic {
	return &BlueZClassic{
		adapterID: adapterID,
		class:     class,
		logger:    transportLogger(logger, "bluez", "adapter", bluetoothutil.AdapterPath(adapterID)),
	}
}

func (c *BlueZClassic) connection() (*dbus.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	// The shared system bus connection is never closed here.
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	c.conn = conn
	return conn, nil
}

func (c *BlueZClassic) adapter(conn *dbus.Conn) dbus.BusObject {
	return conn.Object(bluezBus, bluetoothutil.AdapterPath(c.adapterID))
}

// StartDiscovery starts BR/EDR inquiry. found is called from a background
// goroutine for every device that appears or changes while discovering.
func (c *BlueZClassic) StartDiscovery(ctx context.Context, found func(ClassicDevice)) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	adapter := c.adapter(conn)
	filter := map[string]dbus.Variant{
		"Transport": dbus.MakeVariant("bredr"),
	}
	if call := adapter.CallWithContext(ctx, bluezAdapter1+".SetDiscoveryFilter", 0, filter); call.Err != nil {
		c.logger.Warn("set discovery filter failed", "error", call.Err)
	}

	matches := discoveryMatches()
	for _, m := range matches {
		if err := conn.AddMatchSignalContext(ctx, m...); err != nil {
			return fmt.Errorf("add discovery signal match: %w", err)
		}
	}
	signals := make(chan *dbus.Signal, discoverySignalBuffer)
	conn.Signal(signals)

	if call := adapter.CallWithContext(ctx, bluezAdapter1+".StartDiscovery", 0); call.Err != nil && !bluetoothutil.IsDiscoveryInProgressError(call.Err) {
		conn.RemoveSignal(signals)
		for _, m := range matches {
			_ = conn.RemoveMatchSignal(m...)
		}
		return fmt.Errorf("start discovery: %w", call.Err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.mu.Lock()
	c.signals, c.stop, c.done = signals, stop, done
	c.mu.Unlock()

	getAll := func(path dbus.ObjectPath) (map[string]dbus.Variant, error) {
		var props map[string]dbus.Variant
		err := conn.Object(bluezBus, path).Call(dbusProperties+".GetAll", 0, bluezDevice1).Store(&props)
		return props, err
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if dev, ok := c.deviceFromSignal(sig, getAll); ok {
					found(dev)
				}
			}
		}
	}()

	c.logger.Info("discovery started")
	return nil
}

func (c *BlueZClassic) StopDiscovery() error {
	c.mu.Lock()
	conn, signals, stop, done := c.conn, c.signals, c.stop, c.done
	c.signals, c.stop, c.done = nil, nil, nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	conn.RemoveSignal(signals)
	for _, m := range discoveryMatches() {
		_ = conn.RemoveMatchSignal(m...)
	}

	call := c.adapter(conn).Call(bluezAdapter1+".StopDiscovery", 0)
	if call.Err != nil && !bluetoothutil.IsBenignStopDiscoveryError(call.Err) {
		return fmt.Errorf("stop discovery: %w", call.Err)
	}
	c.logger.Info("discovery stopped")
	return nil
}

// Bonds lists paired devices of the configured class.
func (c *BlueZClassic) Bonds(ctx context.Context) ([]kiss.Address, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := conn.Object(bluezBus, "/").CallWithContext(ctx, dbusObjectManager+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("get managed objects: %w", call.Err)
	}
	if err := call.Store(&objects); err != nil {
		return nil, fmt.Errorf("decode managed objects: %w", err)
	}

	return c.bondsFromObjects(objects), nil
}

func (c *BlueZClassic) bondsFromObjects(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant) []kiss.Address {
	var out []kiss.Address
	for path, ifaces := range objects {
		if !bluetoothutil.IsAdapterDevice(c.adapterID, path) {
			continue
		}
		props, ok := ifaces[bluezDevice1]
		if !ok {
			continue
		}
		paired, _ := props["Paired"].Value().(bool)
		if !paired {
			continue
		}
		dev, ok := deviceFromProps(props)
		if !ok {
			continue
		}
		if c.class != 0 && dev.Class != c.class {
			continue
		}
		out = append(out, dev.Address)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// RemoveBond unpairs addr. A device BlueZ no longer knows is not an error.
func (c *BlueZClassic) RemoveBond(ctx context.Context, addr kiss.Address) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	path := bluetoothutil.DevicePath(c.adapterID, addr)
	call := c.adapter(conn).CallWithContext(ctx, bluezAdapter1+".RemoveDevice", 0, path)
	if call.Err != nil && !bluetoothutil.IsDoesNotExistError(call.Err) {
		return fmt.Errorf("remove device %s: %w", addr, call.Err)
	}
	return nil
}

func discoveryMatches() [][]dbus.MatchOption {
	return [][]dbus.MatchOption{
		{
			dbus.WithMatchSender(bluezBus),
			dbus.WithMatchInterface(dbusObjectManager),
			dbus.WithMatchMember("InterfacesAdded"),
		},
		{
			dbus.WithMatchSender(bluezBus),
			dbus.WithMatchInterface(dbusProperties),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchArg(0, bluezDevice1),
		},
	}
}

// deviceFromSignal extracts a device from InterfacesAdded, or refetches the
// device properties on PropertiesChanged.
func (c *BlueZClassic) deviceFromSignal(sig *dbus.Signal, getAll func(dbus.ObjectPath) (map[string]dbus.Variant, error)) (ClassicDevice, bool) {
	switch sig.Name {
	case dbusObjectManager + ".InterfacesAdded":
		if len(sig.Body) < 2 {
			return ClassicDevice{}, false
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok || !bluetoothutil.IsAdapterDevice(c.adapterID, path) {
			return ClassicDevice{}, false
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return ClassicDevice{}, false
		}
		props, ok := ifaces[bluezDevice1]
		if !ok {
			return ClassicDevice{}, false
		}
		return deviceFromProps(props)

	case dbusProperties + ".PropertiesChanged":
		if len(sig.Body) < 1 || !bluetoothutil.IsAdapterDevice(c.adapterID, sig.Path) {
			return ClassicDevice{}, false
		}
		if iface, _ := sig.Body[0].(string); iface != bluezDevice1 {
			return ClassicDevice{}, false
		}
		props, err := getAll(sig.Path)
		if err != nil {
			c.logger.Debug("read device properties failed", "path", sig.Path, "error", err)
			return ClassicDevice{}, false
		}
		return deviceFromProps(props)
	}

	return ClassicDevice{}, false
}

func deviceFromProps(props map[string]dbus.Variant) (ClassicDevice, bool) {
	raw, ok := props["Address"].Value().(string)
	if !ok {
		return ClassicDevice{}, false
	}
	addr, err := bluetoothutil.ParseMAC(raw)
	if err != nil {
		return ClassicDevice{}, false
	}

	dev := ClassicDevice{Address: kiss.Address(addr)}
	if name, ok := props["Name"].Value().(string); ok {
		dev.Name = name
	} else if alias, ok := props["Alias"].Value().(string); ok {
		dev.Name = alias
	}
	if class, ok := props["Class"].Value().(uint32); ok {
		dev.Class = class
	}
	return dev, true
}
