package button

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// GPIO samples a sysfs GPIO value file such as /sys/class/gpio/gpio17. Touch
// controllers usually pull the line low while touched.
type GPIO struct {
	path      string
	activeLow bool
}

func NewGPIO(dir string, activeLow bool) (*GPIO, error) {
	path := filepath.Join(dir, "value")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("button gpio: %w", err)
	}
	return &GPIO{path: path, activeLow: activeLow}, nil
}

func (g *GPIO) Pressed() (bool, error) {
	raw, err := os.ReadFile(g.path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", g.path, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) != 1 || (raw[0] != '0' && raw[0] != '1') {
		return false, fmt.Errorf("read %s: unexpected value %q", g.path, raw)
	}
	high := raw[0] == '1'
	return high != g.activeLow, nil
}
