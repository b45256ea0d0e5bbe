// Package platform holds host integration that has no better home: the
// per-adapter instance lock.
package platform

import (
	"errors"
	"strings"
)

// ErrInstanceAlreadyRunning is returned when another daemon holds the lock.
// The error wraps it with the holder's pid when the lock file records one.
var ErrInstanceAlreadyRunning = errors.New("instance already running")

var ErrInstanceLockUnsupported = errors.New("instance lock unsupported")

type InstanceLock interface {
	Path() string
	Release() error
}

// AcquireInstanceLock takes an exclusive lock for name on the given BLE
// adapter. Two daemons may run side by side on different adapters.
func AcquireInstanceLock(name, adapterID string) (InstanceLock, error) {
	id := sanitizeLockComponent(name, "app")
	if adapter := sanitizeLockComponent(adapterID, ""); adapter != "" {
		id += "-" + adapter
	}

	return acquireInstanceLock(id)
}

func sanitizeLockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	cleaned := strings.Trim(b.String(), "_-.")
	if cleaned == "" {
		return fallback
	}

	return cleaned
}
