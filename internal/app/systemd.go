package app

import (
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

type notifyFunc func(state string) error

// notifier reports readiness, status text and watchdog pings to systemd.
// Outside a systemd unit every call is a no-op.
type notifier struct {
	send     notifyFunc
	watchdog time.Duration
	lastPing time.Time
	status   string
	logger   *slog.Logger
}

func newNotifier(logger *slog.Logger) *notifier {
	n := &notifier{send: sdNotify, logger: logger}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("read systemd watchdog settings", "error", err)
	}
	n.watchdog = interval
	if interval > 0 {
		logger.Info("systemd watchdog enabled", "interval", interval)
	}

	return n
}

func sdNotify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

func (n *notifier) notify(state string) {
	if err := n.send(state); err != nil {
		n.logger.Debug("sd_notify failed", "state", state, "error", err)
	}
}

func (n *notifier) Ready() {
	n.notify(daemon.SdNotifyReady)
}

func (n *notifier) Stopping() {
	n.notify(daemon.SdNotifyStopping)
}

// Status sends STATUS= only when the text changes.
func (n *notifier) Status(text string) {
	if text == n.status {
		return
	}
	n.status = text
	n.notify("STATUS=" + text)
}

// Tick pings the watchdog at half its interval.
func (n *notifier) Tick(now time.Time) {
	if n.watchdog <= 0 || now.Sub(n.lastPing) < n.watchdog/2 {
		return
	}
	n.lastPing = now
	n.notify(daemon.SdNotifyWatchdog)
}
