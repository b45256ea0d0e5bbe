package bluetoothutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
)

const DefaultAdapterID = "hci0"

// ParseMAC parses "AA:BB:CC:DD:EE:FF" (or with underscores, as in BlueZ
// object paths) into bytes in display order.
func ParseMAC(raw string) ([6]byte, error) {
	var out [6]byte
	trimmed := strings.TrimSpace(raw)
	parts := strings.FieldsFunc(trimmed, func(r rune) bool { return r == ':' || r == '_' || r == '-' })
	if len(parts) != len(out) {
		return out, fmt.Errorf("invalid bluetooth address %q", raw)
	}
	for i, part := range parts {
		if len(part) != 2 {
			return out, fmt.Errorf("invalid bluetooth address %q", raw)
		}
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return out, fmt.Errorf("invalid bluetooth address %q: %w", raw, err)
		}
		out[i] = byte(v)
	}

	return out, nil
}

func FormatMAC(addr [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", addr[0], addr[1], addr[2], addr[3], addr[4], addr[5])
}

func AdapterPath(adapterID string) dbus.ObjectPath {
	id := strings.TrimSpace(adapterID)
	if id == "" {
		id = DefaultAdapterID
	}
	return dbus.ObjectPath("/org/bluez/" + id)
}

// DevicePath converts an address to its BlueZ object path, for example
// /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func DevicePath(adapterID string, addr [6]byte) dbus.ObjectPath {
	dev := strings.ReplaceAll(FormatMAC(addr), ":", "_")
	return dbus.ObjectPath(fmt.Sprintf("%s/dev_%s", AdapterPath(adapterID), dev))
}

// IsAdapterDevice reports whether path is a device object under the adapter.
func IsAdapterDevice(adapterID string, path dbus.ObjectPath) bool {
	return strings.HasPrefix(string(path), string(AdapterPath(adapterID))+"/dev_")
}
