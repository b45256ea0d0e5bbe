//go:build linux

package bluetoothutil

import (
	"strings"

	"tinygo.org/x/bluetooth"
)

// ResolveAdapter returns the tinygo adapter for a BlueZ adapter id such as
// "hci1". The default adapter is used for an empty id.
func ResolveAdapter(adapterID string) *bluetooth.Adapter {
	trimmed := strings.TrimSpace(adapterID)
	if trimmed == "" || trimmed == DefaultAdapterID {
		return bluetooth.DefaultAdapter
	}
	return bluetooth.NewAdapter(trimmed)
}
