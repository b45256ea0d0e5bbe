// Package indicator renders the device status on a single RGB LED.
package indicator

import "fmt"

type Status uint8

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusReady
	StatusTx
	StatusRx
	StatusDuplex
	StatusError
	StatusShutdown
	StatusBatteryFull
	StatusBatteryLow
	StatusBatteryShutdown
	StatusActionRegistered
	StatusScanning
	StatusUpdating
)

var statusNames = [...]string{
	StatusDisconnected:     "disconnected",
	StatusConnected:        "connected",
	StatusReady:            "ready",
	StatusTx:               "tx",
	StatusRx:               "rx",
	StatusDuplex:           "duplex",
	StatusError:            "error",
	StatusShutdown:         "shutdown",
	StatusBatteryFull:      "battery-full",
	StatusBatteryLow:       "battery-low",
	StatusBatteryShutdown:  "battery-shutdown",
	StatusActionRegistered: "action-registered",
	StatusScanning:         "scanning",
	StatusUpdating:         "updating",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Color is a 24-bit RGB value.
type Color uint32

const (
	ColorAmber  Color = 0xFF8503
	ColorGreen  Color = 0x00FF00
	ColorRed    Color = 0xFF0000
	ColorBlue   Color = 0x0000FF
	ColorPurple Color = 0xA020F0
)

func (c Color) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

type Pattern uint8

const (
	PatternFixed Pattern = iota
	PatternBreathe
	PatternFlash
	PatternFastBlink
	PatternFadeOut
)

func (p Pattern) String() string {
	switch p {
	case PatternFixed:
		return "fixed"
	case PatternBreathe:
		return "breathe"
	case PatternFlash:
		return "flash"
	case PatternFastBlink:
		return "fast-blink"
	case PatternFadeOut:
		return "fade-out"
	default:
		return fmt.Sprintf("pattern(%d)", uint8(p))
	}
}

func (s Status) Color() Color {
	switch s {
	case StatusDisconnected, StatusShutdown, StatusActionRegistered:
		return ColorAmber
	case StatusBatteryFull, StatusBatteryLow, StatusRx:
		return ColorGreen
	case StatusBatteryShutdown, StatusTx, StatusError:
		return ColorRed
	case StatusConnected, StatusReady, StatusScanning:
		return ColorBlue
	default:
		return ColorPurple
	}
}

func (s Status) Pattern() Pattern {
	switch s {
	case StatusConnected:
		return PatternBreathe
	case StatusError, StatusScanning:
		return PatternFlash
	case StatusBatteryLow, StatusBatteryShutdown, StatusActionRegistered, StatusUpdating:
		return PatternFastBlink
	case StatusShutdown:
		return PatternFadeOut
	default:
		return PatternFixed
	}
}

func (c Color) String() string {
	return fmt.Sprintf("#%06x", uint32(c))
}
