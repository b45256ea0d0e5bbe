package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/skobkin/bblink/internal/button"
	"github.com/skobkin/bblink/internal/config"
	"github.com/skobkin/bblink/internal/firmware"
	"github.com/skobkin/bblink/internal/fsm"
	"github.com/skobkin/bblink/internal/indicator"
	"github.com/skobkin/bblink/internal/power"
)

func newIndicator(cfg config.HardwareConfig, clock fsm.Clock, logger *slog.Logger) (indicator.Indicator, error) {
	switch cfg.Indicator {
	case config.IndicatorNone:
		return &indicator.Noop{}, nil
	case config.IndicatorSysfs:
		led, err := indicator.NewSysfsLED(cfg.LEDPath)
		if err != nil {
			return nil, fmt.Errorf("open status led: %w", err)
		}
		return indicator.NewDriver(led, clock, logger), nil
	default:
		return indicator.NewLog(logger), nil
	}
}

func newButton(cfg config.HardwareConfig) (button.Sampler, error) {
	if cfg.Button != config.ButtonGPIO {
		return button.Noop{}, nil
	}
	gpio, err := button.NewGPIO(cfg.ButtonGPIOPath, cfg.TouchActiveLow)
	if err != nil {
		return nil, fmt.Errorf("open touch button: %w", err)
	}

	return gpio, nil
}

// newBatteryMonitor falls back to permanent mains power when the board has
// no power_supply node, which keeps the idle and battery shutdowns off.
func newBatteryMonitor(cfg config.HardwareConfig) (power.Monitor, error) {
	if strings.TrimSpace(cfg.PowerSupplyPath) == "" {
		return power.Mains, nil
	}
	supply, err := power.NewSysfsSupply(cfg.PowerSupplyPath)
	if err != nil {
		return nil, fmt.Errorf("open power supply: %w", err)
	}

	return supply, nil
}

func deviceIdentity(cfg config.DeviceConfig) firmware.Identity {
	major, minor, patch := FirmwareVersion()
	return firmware.Identity{
		Board:   cfg.Board,
		HWMajor: cfg.HardwareMajor,
		HWMinor: cfg.HardwareMinor,
		FWMajor: major,
		FWMinor: minor,
		FWPatch: patch,
	}
}
