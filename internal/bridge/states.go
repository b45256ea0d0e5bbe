package bridge

import (
	"time"

	"github.com/skobkin/bblink/internal/kiss"
	"github.com/skobkin/bblink/internal/rig"
)

// LinkState is the wireless peer connection state.
type LinkState uint8

const (
	LinkDisconnected LinkState = iota
	LinkConnected
)

func (s LinkState) String() string {
	if s == LinkConnected {
		return "connected"
	}
	return "disconnected"
}

// RadioState is the radio connection state.
type RadioState uint8

const (
	RadioDisconnected RadioState = iota
	RadioConnected
	RadioDiscovery
)

func (s RadioState) String() string {
	switch s {
	case RadioConnected:
		return "connected"
	case RadioDiscovery:
		return "discovery"
	default:
		return "disconnected"
	}
}

type radioEffect uint8

const (
	radioStay radioEffect = iota
	// radioTransition is a deferred change to the returned state.
	radioTransition
	// radioReenter forces exit and enter of the current state.
	radioReenter
)

type radioObservation struct {
	transportConnected bool
	inState            time.Duration
	retryInterval      time.Duration
}

// decideRadio is the per-tick update rule of the radio link.
func decideRadio(state RadioState, obs radioObservation) (RadioState, radioEffect) {
	switch state {
	case RadioDisconnected:
		if obs.transportConnected {
			return RadioConnected, radioTransition
		}
		if obs.inState > obs.retryInterval {
			return RadioDisconnected, radioReenter
		}
	case RadioConnected:
		if !obs.transportConnected {
			return RadioDisconnected, radioTransition
		}
	}

	return state, radioStay
}

// shouldConnect reports whether entering RadioDisconnected starts a connect
// attempt.
func shouldConnect(autoConnect bool, target kiss.Address, connecting bool) bool {
	return autoConnect && !target.IsZero() && !connecting
}

// radioSnapshot is radio state captured so it can be put back later.
// Unknown enum values and a zero frequency mean "not captured".
type radioSnapshot struct {
	vfo               rig.VFO
	previousTNC       rig.TNCMode
	previousFrequency uint32
	previousMode      rig.Mode
	previousBaud      rig.Baud
	desiredBaud       rig.Baud
}

func newRadioSnapshot() radioSnapshot {
	return radioSnapshot{
		vfo:          rig.VFOUnknown,
		previousTNC:  rig.TNCUnknown,
		previousMode: rig.ModeUnknown,
		previousBaud: rig.BaudUnknown,
		desiredBaud:  rig.BaudUnknown,
	}
}

func (s radioSnapshot) canSetFrequency(rigControl bool) bool {
	return rigControl && s.vfo.Known()
}

func (s radioSnapshot) canRestoreFrequency(rigControl bool) bool {
	return rigControl && s.vfo.Known() && s.previousFrequency > 0
}

// shouldRestoreTNC reports whether the peer leaving must put the radio back
// into the TNC mode it had before.
func (s radioSnapshot) shouldRestoreTNC(rigControl bool) bool {
	return rigControl && s.vfo.Known() && s.previousTNC != rig.TNCKISS && s.previousTNC != rig.TNCUnknown
}

// capabilities are reported to the peer. Firmware version reporting is
// always available.
func capabilities(rigControl bool) uint16 {
	caps := kiss.CapFirmwareVersion
	if rigControl {
		caps |= kiss.CapRigControl
	}
	return caps
}

// lingerUntil extends an activity window by the on-air time of n bytes.
func lingerUntil(now, current time.Time, n int, perByte time.Duration) time.Time {
	if current.Before(now) {
		current = now
	}
	return current.Add(time.Duration(n) * perByte)
}
