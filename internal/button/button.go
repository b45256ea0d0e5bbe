// Package button turns raw touch samples into gestures.
package button

import (
	"time"

	"github.com/skobkin/bblink/internal/fsm"
)

const (
	LongPress  = 2000 * time.Millisecond
	ShortPress = 500 * time.Millisecond
)

type Gesture uint8

const (
	GestureNone Gesture = iota
	GestureShort
	GestureLong
)

func (g Gesture) String() string {
	switch g {
	case GestureShort:
		return "short"
	case GestureLong:
		return "long"
	default:
		return "none"
	}
}

// Sampler reports whether the button is held right now.
type Sampler interface {
	Pressed() (bool, error)
}

// Detector classifies presses. A long press fires while the button is still
// held, once LongPress has elapsed; a short press fires on release after at
// least ShortPress. A press that already fired long reports nothing on
// release.
type Detector struct {
	clock      fsm.Clock
	firstTouch time.Time
	held       bool
}

func NewDetector(clock fsm.Clock) *Detector {
	if clock == nil {
		clock = fsm.SystemClock{}
	}
	return &Detector{clock: clock}
}

// Process feeds one sample and returns the gesture it completes, if any.
func (d *Detector) Process(pressed bool) Gesture {
	now := d.clock.Now()

	if pressed {
		if !d.held {
			d.held = true
			d.firstTouch = now
			return GestureNone
		}
		if !d.firstTouch.IsZero() && now.Sub(d.firstTouch) >= LongPress {
			d.firstTouch = time.Time{}
			return GestureLong
		}
		return GestureNone
	}

	gesture := GestureNone
	if d.held && !d.firstTouch.IsZero() && now.Sub(d.firstTouch) >= ShortPress {
		gesture = GestureShort
	}
	d.held = false
	d.firstTouch = time.Time{}
	return gesture
}

// Poll reads s and feeds the result to Process. A failed read counts as a
// release.
func (d *Detector) Poll(s Sampler) (Gesture, error) {
	pressed, err := s.Pressed()
	if err != nil {
		return d.Process(false), err
	}
	return d.Process(pressed), nil
}

// Noop never reports a press.
type Noop struct{}

func (Noop) Pressed() (bool, error) { return false, nil }
