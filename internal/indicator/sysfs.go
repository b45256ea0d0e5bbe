package indicator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SysfsLED drives a Linux multicolor LED class device, e.g.
// /sys/class/leds/rgb:status. Color goes to multi_intensity as "r g b" and
// the level to brightness.
type SysfsLED struct {
	dir       string
	lastColor Color
	colorSet  bool
}

func NewSysfsLED(dir string) (*SysfsLED, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("led path is empty")
	}
	if _, err := os.Stat(filepath.Join(dir, "brightness")); err != nil {
		return nil, fmt.Errorf("led %s: %w", dir, err)
	}
	return &SysfsLED{dir: dir}, nil
}

func (l *SysfsLED) Show(f Frame) error {
	if !l.colorSet || f.Color != l.lastColor {
		r, g, b := f.Color.RGB()
		value := fmt.Sprintf("%d %d %d", r, g, b)
		if err := l.write("multi_intensity", value); err != nil {
			return err
		}
		l.lastColor = f.Color
		l.colorSet = true
	}
	return l.write("brightness", strconv.Itoa(int(f.Brightness)))
}

func (l *SysfsLED) Off() error {
	return l.write("brightness", "0")
}

func (l *SysfsLED) write(name, value string) error {
	path := filepath.Join(l.dir, name)
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
