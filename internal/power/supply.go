package power

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Monitor reports the battery voltage and whether the board is running on
// external power.
type Monitor interface {
	Voltage() (float64, error)
	ExternalPower() (bool, error)
}

// SysfsSupply reads a power_supply class device such as
// /sys/class/power_supply/battery.
type SysfsSupply struct {
	dir string
}

func NewSysfsSupply(dir string) (*SysfsSupply, error) {
	if _, err := os.Stat(filepath.Join(dir, "voltage_now")); err != nil {
		return nil, fmt.Errorf("power supply: %w", err)
	}
	return &SysfsSupply{dir: dir}, nil
}

// Voltage converts voltage_now from microvolts.
func (s *SysfsSupply) Voltage() (float64, error) {
	raw, err := s.read("voltage_now")
	if err != nil {
		return 0, err
	}
	microvolts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse voltage_now %q: %w", raw, err)
	}
	return float64(microvolts) / 1e6, nil
}

// ExternalPower is true unless the battery reports it is discharging.
func (s *SysfsSupply) ExternalPower() (bool, error) {
	status, err := s.read("status")
	if err != nil {
		return false, err
	}
	return !strings.EqualFold(status, "Discharging"), nil
}

func (s *SysfsSupply) read(name string) (string, error) {
	path := filepath.Join(s.dir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Static is used on boards without a fuel gauge.
type Static struct {
	Volts    float64
	External bool
}

// Mains is a board on a wall supply: never low, never idle-shutdown.
var Mains = Static{Volts: 4.2, External: true}

func (s Static) Voltage() (float64, error)    { return s.Volts, nil }
func (s Static) ExternalPower() (bool, error) { return s.External, nil }
