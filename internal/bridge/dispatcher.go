package bridge

import (
	"fmt"
	"strings"

	"github.com/skobkin/bblink/internal/connectors"
	"github.com/skobkin/bblink/internal/kiss"
	"github.com/skobkin/bblink/internal/rig"
)

// enqueue adds cmd to the command queue. A full queue rejects the new
// command and keeps the ones already waiting.
func (b *Bridge) enqueue(cmd kiss.Command) error {
	select {
	case b.queue <- cmd:
		b.logger.Debug("queued extended hardware command", "opcode", cmd.Opcode())
		return nil
	default:
		b.logger.Warn("extended hardware command dropped", "opcode", cmd.Opcode(), "error", ErrQueueFull)
		return fmt.Errorf("%s: %w", cmd.Opcode(), ErrQueueFull)
	}
}

// dispatchQueue executes every queued command. Callers hold radioMu.
func (b *Bridge) dispatchQueue() {
	for {
		select {
		case cmd := <-b.queue:
			b.dispatching.Store(true)
			b.dispatch(cmd)
		default:
			b.dispatching.Store(false)
			return
		}
	}
}

func (b *Bridge) dispatch(cmd kiss.Command) {
	b.logger.Info("executing extended hardware command", "opcode", cmd.Opcode())
	skipped := ""

	switch c := cmd.(type) {
	case kiss.SetFrequency:
		skipped = b.setFrequency(c.Hz)
	case kiss.RestoreFrequency:
		skipped = b.restoreFrequency()
	case kiss.SetBaudRate:
		b.mu.Lock()
		b.snapshot.desiredBaud = rig.Baud(c.Rate)
		b.mu.Unlock()
		b.logger.Info("baud rate will apply on next frequency change", "baud", c.Rate)
	case kiss.StartScan:
		b.radioFSM.TransitionTo(RadioDiscovery)
	case kiss.StopScan:
		b.radioFSM.TransitionTo(RadioDisconnected)
	case kiss.PairWithDevice:
		skipped = b.pairWithDevice(c.Address)
	case kiss.ClearPairedDevice:
		if err := b.ClearPairedDevice(b.ctx); err != nil {
			b.logger.Error("clear paired device failed", "error", err)
		}
	case kiss.APIVersion:
		b.reply(kiss.EncodeReply16(kiss.OpAPIVersion, kiss.APIVersionValue))
	case kiss.FirmwareVersion:
		b.reply(kiss.EncodeReply(kiss.OpFirmwareVersion, []byte(b.cfg.FirmwareVersion)))
	case kiss.Capabilities:
		b.mu.Lock()
		caps := capabilities(b.rigControl)
		b.mu.Unlock()
		b.reply(kiss.EncodeReply16(kiss.OpCapabilities, caps))
	case kiss.GetPairedDevice:
		b.mu.Lock()
		paired := b.paired
		b.mu.Unlock()
		b.replyDevice(kiss.OpGetPairedDevice, paired.address, paired.name, b.RadioConnected())
	case kiss.SetRigControl:
		b.setRigControl(c.Enabled)
	case kiss.FactoryReset:
		if err := b.FactoryReset(b.ctx); err != nil {
			b.logger.Error("factory reset failed", "error", err)
		}
	default:
		skipped = "unknown command"
	}

	if skipped != "" {
		b.logger.Info("extended hardware command skipped", "opcode", cmd.Opcode(), "reason", skipped)
	}
	if b.bus != nil {
		b.bus.Publish(connectors.TopicCommand, connectors.CommandEvent{
			Opcode:    cmd.Opcode().String(),
			Skipped:   skipped,
			Timestamp: b.clock.Now(),
		})
	}
}

// setFrequency tunes the active band to hz. The first change since the
// last restore captures frequency, mode and baud rate for RestoreFrequency.
func (b *Bridge) setFrequency(hz uint32) string {
	b.mu.Lock()
	snap := b.snapshot
	rigControl := b.rigControl
	b.mu.Unlock()

	if !rigControl {
		return "rig control disabled"
	}
	if !snap.canSetFrequency(rigControl) {
		return "active VFO unknown"
	}

	ctx := b.ctx
	if b.rig.IsPacketMode(ctx) {
		b.logger.Info("exiting KISS mode first")
		b.rig.ExitPacketMode(ctx)
	}

	firstChange := snap.previousFrequency == 0

	baud, err := b.rig.BaudRate(ctx)
	if err != nil {
		b.logger.Warn("failed to read baud rate", "error", err)
	} else if firstChange {
		snap.previousBaud = baud
	}

	mode, err := b.rig.Mode(ctx, snap.vfo)
	if err != nil {
		b.logger.Warn("failed to read mode", "error", err)
	} else if firstChange {
		snap.previousMode = mode
	}

	if mode != rig.ModeFM {
		b.logger.Info("switching to FM", "vfo", snap.vfo)
		b.rig.SetMode(ctx, snap.vfo, rig.ModeFM)
	}

	if snap.desiredBaud != rig.BaudUnknown && snap.desiredBaud != baud {
		b.logger.Info("switching baud rate", "baud", snap.desiredBaud)
		b.rig.SetBaudRate(ctx, snap.desiredBaud)
	}

	if firstChange {
		previous, err := b.rig.Frequency(ctx, snap.vfo)
		if err != nil {
			b.logger.Warn("failed to read current frequency, not changing it", "error", err)
		} else {
			snap.previousFrequency = previous
			b.logger.Info("captured previous frequency", "hz", previous)
		}
	}

	if snap.previousFrequency > 0 {
		b.logger.Info("setting frequency", "vfo", snap.vfo, "hz", hz)
		b.rig.SetFrequency(ctx, snap.vfo, hz)
	}

	b.rig.SetTNC(ctx, snap.vfo, rig.TNCKISS)

	b.mu.Lock()
	b.snapshot.previousFrequency = snap.previousFrequency
	b.snapshot.previousMode = snap.previousMode
	b.snapshot.previousBaud = snap.previousBaud
	b.mu.Unlock()

	return ""
}

// restoreFrequency undoes setFrequency. Without a captured frequency it
// does nothing and sends nothing to the radio.
func (b *Bridge) restoreFrequency() string {
	b.mu.Lock()
	snap := b.snapshot
	rigControl := b.rigControl
	b.mu.Unlock()

	if !rigControl {
		return "rig control disabled"
	}
	if !snap.canRestoreFrequency(rigControl) {
		return "no previous frequency"
	}

	ctx := b.ctx
	if b.rig.IsPacketMode(ctx) {
		b.logger.Info("exiting KISS mode first")
		b.rig.ExitPacketMode(ctx)
	}

	b.logger.Info("restoring frequency", "vfo", snap.vfo, "hz", snap.previousFrequency)
	b.rig.SetFrequency(ctx, snap.vfo, snap.previousFrequency)

	b.mu.Lock()
	b.snapshot.previousFrequency = 0
	b.snapshot.previousMode = rig.ModeUnknown
	b.snapshot.previousBaud = rig.BaudUnknown
	b.mu.Unlock()

	if snap.previousMode != rig.ModeUnknown {
		current, err := b.rig.Mode(ctx, snap.vfo)
		if err != nil || current != snap.previousMode {
			b.logger.Info("restoring mode", "mode", snap.previousMode)
			b.rig.SetMode(ctx, snap.vfo, snap.previousMode)
		}
	}
	if snap.previousBaud != rig.BaudUnknown {
		current, err := b.rig.BaudRate(ctx)
		if err != nil || current != snap.previousBaud {
			b.logger.Info("restoring baud rate", "baud", snap.previousBaud)
			b.rig.SetBaudRate(ctx, snap.previousBaud)
		}
	}

	// The peer is still there, keep the radio in KISS mode.
	b.rig.SetTNC(ctx, snap.vfo, rig.TNCKISS)

	return ""
}

func (b *Bridge) setRigControl(enabled bool) {
	b.mu.Lock()
	b.rigControl = enabled
	b.mu.Unlock()

	b.logger.Info("rig control changed", "enabled", enabled)
	if err := b.prefs.PutBool(PrefRigControl, enabled); err != nil {
		b.logger.Warn("failed to persist rig control", "error", err)
	}
}

func (b *Bridge) reply(frame []byte) {
	b.logger.Debug("reply to peer", "len", len(frame))
	if err := b.peer.Notify(frame); err != nil {
		b.logger.Warn("failed to notify peer", "error", err)
	}
}

func (b *Bridge) replyDevice(op kiss.Opcode, addr kiss.Address, name string, connected bool) {
	b.reply(kiss.EncodeDeviceReply(op, kiss.DeviceRecord{
		Connected: connected,
		Address:   addr,
		Name:      strings.TrimSpace(name),
	}))
}
