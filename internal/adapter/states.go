package adapter

import (
	"time"

	"github.com/skobkin/bblink/internal/indicator"
)

type State uint8

const (
	StateIdle State = iota
	StateInUse
	StateShowingBattery
	StateShuttingDown
	StateFirmwareUpdate
)

func (s State) String() string {
	switch s {
	case StateInUse:
		return "in-use"
	case StateShowingBattery:
		return "showing-battery"
	case StateShuttingDown:
		return "shutting-down"
	case StateFirmwareUpdate:
		return "firmware-update"
	default:
		return "idle"
	}
}

type ShutdownReason uint8

const (
	ReasonNone ShutdownReason = iota
	ReasonUser
	ReasonIdleTimeout
	ReasonLowBattery
)

func (r ShutdownReason) String() string {
	switch r {
	case ReasonUser:
		return "user"
	case ReasonIdleTimeout:
		return "idle-timeout"
	case ReasonLowBattery:
		return "low-battery"
	default:
		return "none"
	}
}

// Outcome is what the adapter did when it stopped.
type Outcome uint8

const (
	OutcomeRunning Outcome = iota
	OutcomePowerOff
	OutcomeReboot
)

func (o Outcome) String() string {
	switch o {
	case OutcomePowerOff:
		return "power-off"
	case OutcomeReboot:
		return "reboot"
	default:
		return "running"
	}
}

func idleStatus(radioConnected, discovering bool) indicator.Status {
	switch {
	case radioConnected:
		return indicator.StatusConnected
	case discovering:
		return indicator.StatusScanning
	default:
		return indicator.StatusDisconnected
	}
}

// trafficStatus prefers rx over tx, like the radio's own busy light.
func trafficStatus(tx, rx bool) indicator.Status {
	switch {
	case tx && rx:
		return indicator.StatusDuplex
	case rx:
		return indicator.StatusRx
	case tx:
		return indicator.StatusTx
	default:
		return indicator.StatusReady
	}
}

func batteryStatus(volts, full float64) indicator.Status {
	if volts > full {
		return indicator.StatusBatteryFull
	}
	return indicator.StatusBatteryLow
}

// shutdownProgress gives the status to show elapsed into the shutdown state
// and whether the linger is over. A user shutdown first acknowledges the
// long press for feedback before fading.
func shutdownProgress(reason ShutdownReason, elapsed, feedback, linger time.Duration) (indicator.Status, bool) {
	switch reason {
	case ReasonUser:
		if elapsed < feedback {
			return indicator.StatusActionRegistered, false
		}
		return indicator.StatusShutdown, elapsed > feedback+linger
	case ReasonLowBattery:
		return indicator.StatusBatteryShutdown, elapsed > linger
	default:
		return indicator.StatusShutdown, elapsed > linger
	}
}
