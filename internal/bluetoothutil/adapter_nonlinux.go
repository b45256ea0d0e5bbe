//go:build !linux

package bluetoothutil

import "tinygo.org/x/bluetooth"

// ResolveAdapter always returns the default adapter: adapter ids are a BlueZ
// concept.
func ResolveAdapter(_ string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}
