package transport

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/skobkin/bblink/internal/kiss"
)

const kenwoodClass uint32 = 0x620204

func newTestClassic(class uint32) *BlueZClassic {
	return NewBlueZClassic("hci0", class, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func deviceProps(addr, name string, class uint32, paired bool) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"Address": dbus.MakeVariant(addr),
		"Name":    dbus.MakeVariant(name),
		"Alias":   dbus.MakeVariant(name + " alias"),
		"Class":   dbus.MakeVariant(class),
		"Paired":  dbus.MakeVariant(paired),
	}
}

func TestDeviceFromProps(t *testing.T) {
	dev, ok := deviceFromProps(deviceProps("04:EE:03:61:2D:B0", "TH-D74", kenwoodClass, false))
	if !ok {
		t.Fatalf("expected device")
	}
	want := ClassicDevice{Address: kiss.Address{0x04, 0xEE, 0x03, 0x61, 0x2D, 0xB0}, Name: "TH-D74", Class: kenwoodClass}
	if dev != want {
		t.Fatalf("expected %+v, got %+v", want, dev)
	}

	aliasOnly := map[string]dbus.Variant{
		"Address": dbus.MakeVariant("04:EE:03:61:2D:B0"),
		"Alias":   dbus.MakeVariant("04-EE-03-61-2D-B0"),
	}
	dev, ok = deviceFromProps(aliasOnly)
	if !ok || dev.Name != "04-EE-03-61-2D-B0" || dev.Class != 0 {
		t.Fatalf("expected alias fallback without class, got %+v", dev)
	}

	if _, ok := deviceFromProps(map[string]dbus.Variant{"Name": dbus.MakeVariant("x")}); ok {
		t.Fatalf("expected no device without address")
	}
	if _, ok := deviceFromProps(map[string]dbus.Variant{"Address": dbus.MakeVariant("bogus")}); ok {
		t.Fatalf("expected no device for malformed address")
	}
}

func TestBondsFiltersByAdapterPairingAndClass(t *testing.T) {
	objects := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		"/org/bluez/hci0": {
			bluezAdapter1: {"Address": dbus.MakeVariant("00:11:22:33:44:55")},
		},
		"/org/bluez/hci0/dev_04_EE_03_61_2D_B0": {
			bluezDevice1: deviceProps("04:EE:03:61:2D:B0", "TH-D74", kenwoodClass, true),
		},
		"/org/bluez/hci0/dev_01_02_03_04_05_06": {
			bluezDevice1: deviceProps("01:02:03:04:05:06", "TH-D75", kenwoodClass, true),
		},
		"/org/bluez/hci0/dev_0A_0B_0C_0D_0E_0F": {
			bluezDevice1: deviceProps("0A:0B:0C:0D:0E:0F", "Headset", 0x240404, true),
		},
		"/org/bluez/hci0/dev_AA_AA_AA_AA_AA_AA": {
			bluezDevice1: deviceProps("AA:AA:AA:AA:AA:AA", "TH-D74", kenwoodClass, false),
		},
		"/org/bluez/hci1/dev_BB_BB_BB_BB_BB_BB": {
			bluezDevice1: deviceProps("BB:BB:BB:BB:BB:BB", "TH-D74", kenwoodClass, true),
		},
	}

	got := newTestClassic(kenwoodClass).bondsFromObjects(objects)
	want := []kiss.Address{{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, {0x04, 0xEE, 0x03, 0x61, 0x2D, 0xB0}}
	if len(got) != len(want) {
		t.Fatalf("expected %d bonds, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bond %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if all := newTestClassic(0).bondsFromObjects(objects); len(all) != 3 {
		t.Fatalf("expected 3 bonds without class filter, got %v", all)
	}
}

func TestDeviceFromInterfacesAdded(t *testing.T) {
	c := newTestClassic(kenwoodClass)
	sig := &dbus.Signal{
		Name: dbusObjectManager + ".InterfacesAdded",
		Body: []interface{}{
			dbus.ObjectPath("/org/bluez/hci0/dev_04_EE_03_61_2D_B0"),
			map[string]map[string]dbus.Variant{
				bluezDevice1: deviceProps("04:EE:03:61:2D:B0", "TH-D74", kenwoodClass, false),
			},
		},
	}
	noFetch := func(dbus.ObjectPath) (map[string]dbus.Variant, error) {
		t.Fatalf("unexpected property fetch")
		return nil, nil
	}

	dev, ok := c.deviceFromSignal(sig, noFetch)
	if !ok || dev.Name != "TH-D74" || dev.Class != kenwoodClass {
		t.Fatalf("unexpected device %+v", dev)
	}

	sig.Body[0] = dbus.ObjectPath("/org/bluez/hci1/dev_04_EE_03_61_2D_B0")
	if _, ok := c.deviceFromSignal(sig, noFetch); ok {
		t.Fatalf("expected devices of other adapters ignored")
	}
}

func TestDeviceFromPropertiesChanged(t *testing.T) {
	c := newTestClassic(kenwoodClass)
	path := dbus.ObjectPath("/org/bluez/hci0/dev_04_EE_03_61_2D_B0")
	sig := &dbus.Signal{
		Path: path,
		Name: dbusProperties + ".PropertiesChanged",
		Body: []interface{}{bluezDevice1, map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-60))}, []string{}},
	}

	var fetched dbus.ObjectPath
	dev, ok := c.deviceFromSignal(sig, func(p dbus.ObjectPath) (map[string]dbus.Variant, error) {
		fetched = p
		return deviceProps("04:EE:03:61:2D:B0", "TH-D74", kenwoodClass, false), nil
	})
	if !ok || fetched != path || dev.Name != "TH-D74" {
		t.Fatalf("expected refetched device, got %+v from %s", dev, fetched)
	}

	_, ok = c.deviceFromSignal(sig, func(dbus.ObjectPath) (map[string]dbus.Variant, error) {
		return nil, errors.New("gone")
	})
	if ok {
		t.Fatalf("expected failed fetch to be ignored")
	}

	sig.Body[0] = "org.bluez.MediaControl1"
	if _, ok := c.deviceFromSignal(sig, nil); ok {
		t.Fatalf("expected other interfaces ignored")
	}
}
