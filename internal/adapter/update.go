package adapter

import "github.com/skobkin/bblink/internal/indicator"

func (a *Adapter) drainUpdateWrites() {
	for {
		select {
		case chunk := <-a.updateChunks:
			a.handleUpdateChunk(chunk)
		default:
			return
		}
	}
}

func (a *Adapter) handleUpdateChunk(chunk []byte) {
	if a.updates == nil {
		return
	}
	if !a.machine.IsIn(StateFirmwareUpdate) {
		a.logger.Info("firmware update: begin")
		a.machine.ImmediateTransitionTo(StateFirmwareUpdate)
	}
	if !a.updates.Active() {
		return
	}
	// A dropped chunk leaves a gap; nothing after it may be written or staged.
	if a.updateOverflow.Swap(false) {
		a.failUpdate(errUpdateOverflow)
		return
	}

	if len(chunk) > 0 {
		if _, err := a.updates.Write(chunk); err != nil {
			a.failUpdate(err)
			return
		}
		a.logger.Debug("firmware update: chunk written", "bytes", len(chunk))
		return
	}

	a.logger.Info("firmware update: end")
	path, err := a.updates.Commit()
	if err != nil {
		a.failUpdate(err)
		return
	}
	a.logger.Info("firmware update: staged, rebooting", "image", path)
	a.committed = true
	a.committedAt = a.clock.Now()
}

func (a *Adapter) failUpdate(err error) {
	a.logger.Error("firmware update failed", "error", err)
	a.updates.Abort()
	a.machine.TransitionTo(StateIdle)
}

func (a *Adapter) updateEnter() {
	a.indicator.Set(indicator.StatusUpdating)
	a.bridge.Disconnect()
	a.committed = false
	if err := a.updates.Begin(); err != nil {
		a.logger.Error("firmware update: begin failed", "error", err)
		a.machine.TransitionTo(StateIdle)
	}
}

func (a *Adapter) updateUpdate() {
	if a.updateOverflow.Swap(false) && a.updates.Active() {
		a.failUpdate(errUpdateOverflow)
		return
	}
	if a.committed && a.clock.Now().Sub(a.committedAt) > a.cfg.UpdateRebootDelay {
		a.finish(OutcomeReboot)
	}
}

func (a *Adapter) updateExit() {
	if a.updates.Active() {
		a.updates.Abort()
	}
	a.committed = false
	a.updateOverflow.Store(false)
}
