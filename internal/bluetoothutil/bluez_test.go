package bluetoothutil

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestParseMAC(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    [6]byte
		wantErr bool
	}{
		{name: "upper", input: "04:EE:03:61:2D:B0", want: [6]byte{0x04, 0xEE, 0x03, 0x61, 0x2D, 0xB0}},
		{name: "lower", input: " 04:ee:03:61:2d:b0 ", want: [6]byte{0x04, 0xEE, 0x03, 0x61, 0x2D, 0xB0}},
		{name: "object path form", input: "04_EE_03_61_2D_B0", want: [6]byte{0x04, 0xEE, 0x03, 0x61, 0x2D, 0xB0}},
		{name: "empty", input: "  ", wantErr: true},
		{name: "short", input: "04:EE:03:61:2D", wantErr: true},
		{name: "bad digit", input: "04:EE:03:61:2D:ZZ", wantErr: true},
		{name: "long octet", input: "004:EE:03:61:2D:B0", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParseMAC(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error, got nil", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %x, got %x", tc.name, tc.want, got)
		}
	}
}

func TestDevicePath(t *testing.T) {
	addr := [6]byte{0x04, 0xEE, 0x03, 0x61, 0x2D, 0xB0}
	if got, want := DevicePath("", addr), dbus.ObjectPath("/org/bluez/hci0/dev_04_EE_03_61_2D_B0"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if got, want := DevicePath("hci1", addr), dbus.ObjectPath("/org/bluez/hci1/dev_04_EE_03_61_2D_B0"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if !IsAdapterDevice("hci1", DevicePath("hci1", addr)) {
		t.Fatalf("expected device path under hci1")
	}
	if IsAdapterDevice("hci0", DevicePath("hci1", addr)) {
		t.Fatalf("unexpected match for another adapter")
	}
}
