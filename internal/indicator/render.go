package indicator

import (
	"math"
	"time"
)

const (
	DefaultBrightness = 24

	flashOn      = 60 * time.Millisecond
	flashOff     = 600 * time.Millisecond
	fastBlinkOn  = 60 * time.Millisecond
	fastBlinkOff = 40 * time.Millisecond
	fadeStep     = 80 * time.Millisecond
	breathPeriod = 4 * time.Second
)

// Brightness returns the LED level (0-255) for pattern p, elapsed time
// after the status was set. base is the level of a fixed light.
func Brightness(p Pattern, elapsed time.Duration, base uint8) uint8 {
	if elapsed < 0 {
		elapsed = 0
	}

	switch p {
	case PatternBreathe:
		// exp(sin) swings between 1/e and e; shift and scale to 0..255.
		phase := float64(elapsed) / float64(breathPeriod) * 2 * math.Pi
		v := (math.Exp(math.Sin(phase)) - 1/math.E) * 108
		return uint8(math.Max(0, math.Min(255, v)))
	case PatternFlash:
		return blink(elapsed, flashOn, flashOff, base)
	case PatternFastBlink:
		return blink(elapsed, fastBlinkOn, fastBlinkOff, base)
	case PatternFadeOut:
		steps := int64(elapsed / fadeStep)
		if steps >= int64(base) {
			return 0
		}
		return base - uint8(steps)
	default:
		return base
	}
}

func blink(elapsed, on, off time.Duration, base uint8) uint8 {
	if elapsed%(on+off) < on {
		return base
	}
	return 0
}

// Frame is one rendered LED state.
type Frame struct {
	Color      Color
	Brightness uint8
}

func (f Frame) Off() bool {
	return f.Brightness == 0
}

// Render computes the frame for status s shown for elapsed.
func Render(s Status, elapsed time.Duration, base uint8) Frame {
	return Frame{Color: s.Color(), Brightness: Brightness(s.Pattern(), elapsed, base)}
}
