package bluetoothutil

import (
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"
)

// bluezError matches a BlueZ failure by D-Bus error name, optionally
// narrowed by message text. Text alone is the fallback for errors that
// lost their D-Bus wrapping on the way up.
type bluezError struct {
	name     string
	withText string
	text     []string
}

func (m bluezError) match(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if IsDBusErrorName(err, m.name) && (m.withText == "" || strings.Contains(msg, m.withText)) {
		return true
	}
	for _, t := range m.text {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}

var (
	stopWithoutDiscovery = []bluezError{
		{name: "org.bluez.Error.NotReady"},
		{name: "org.bluez.Error.Failed", withText: "no discovery started", text: []string{"no discovery started", "not discovering"}},
	}
	discoveryInProgress = bluezError{name: "org.bluez.Error.InProgress", text: []string{"already in progress"}}
	deviceGone          = bluezError{name: "org.bluez.Error.DoesNotExist", text: []string{"does not exist"}}
)

// IsDBusErrorName reports whether err carries the D-Bus error want, by
// value or by pointer.
func IsDBusErrorName(err error, want string) bool {
	var ptr *dbus.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Name == want
	}
	var val dbus.Error
	return errors.As(err, &val) && val.Name == want
}

// IsBenignStopDiscoveryError reports errors BlueZ returns when there was no
// discovery to stop. A nil error is benign too.
func IsBenignStopDiscoveryError(err error) bool {
	if err == nil {
		return true
	}
	for _, m := range stopWithoutDiscovery {
		if m.match(err) {
			return true
		}
	}
	return false
}

func IsDiscoveryInProgressError(err error) bool {
	return discoveryInProgress.match(err)
}

// IsDoesNotExistError matches RemoveDevice on a device BlueZ already forgot.
func IsDoesNotExistError(err error) bool {
	return deviceGone.match(err)
}
