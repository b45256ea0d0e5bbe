package bridge

import (
	"context"
	"fmt"

	"github.com/skobkin/bblink/internal/kiss"
)

// lookUpLastPairedDevice matches OS bonds against the stored pairing. A
// match enables auto-connect; a bond that does not match is forgotten.
func (b *Bridge) lookUpLastPairedDevice(ctx context.Context) error {
	b.clearRemoteDeviceInfo()

	bonds, err := b.discovery.Bonds(ctx)
	if err != nil {
		return fmt.Errorf("list bonds: %w", err)
	}
	if len(bonds) == 0 {
		b.logger.Info("no paired radio found")
		b.clearStoredPairedDeviceInfo()
		return nil
	}
	b.logger.Info("found paired radios", "count", len(bonds))

	name, _, err := b.prefs.String(PrefRadioName)
	if err != nil {
		return fmt.Errorf("load radio name: %w", err)
	}
	raw, ok, err := b.prefs.Bytes(PrefRadioAddress)
	if err != nil {
		return fmt.Errorf("load radio address: %w", err)
	}
	var stored kiss.Address
	if ok && len(raw) == len(stored) {
		copy(stored[:], raw)
	}

	for _, bond := range bonds {
		if !stored.IsZero() && bond == stored {
			b.logger.Info("found paired radio", "name", name, "address", stored)
			b.mu.Lock()
			b.paired = pairedDevice{name: name, address: stored}
			b.autoConnect = true
			b.mu.Unlock()
			return nil
		}
	}

	b.logger.Info("paired radio does not match saved one", "name", name, "address", stored)
	b.clearPairedDevices(ctx)

	return nil
}

// pairWithDevice selects a radio from the latest scan and connects to it.
func (b *Bridge) pairWithDevice(addr kiss.Address) string {
	if err := b.radio.Disconnect(); err != nil {
		b.logger.Warn("radio disconnect before pairing failed", "error", err)
	}
	b.clearPairedDevices(b.ctx)

	b.mu.Lock()
	var name string
	found := false
	for _, dev := range b.scanResults {
		if dev.Address == addr {
			name, found = dev.Name, true
			break
		}
	}
	if found {
		b.paired = pairedDevice{name: name, address: addr}
		b.autoConnect = true
	}
	b.mu.Unlock()

	if !found {
		return fmt.Sprintf("%s not in scan results", addr)
	}

	b.logger.Info("pairing with radio", "name", name, "address", addr)
	if err := b.prefs.PutString(PrefRadioName, name); err != nil {
		b.logger.Warn("failed to persist radio name", "error", err)
	}
	if err := b.prefs.PutBytes(PrefRadioAddress, addr[:]); err != nil {
		b.logger.Warn("failed to persist radio address", "error", err)
	}

	b.radioFSM.ImmediateTransitionTo(RadioDisconnected)

	return ""
}

// clearPairedDevices forgets the stored pairing and removes OS bonds.
func (b *Bridge) clearPairedDevices(ctx context.Context) {
	b.clearStoredPairedDeviceInfo()
	b.clearRemoteDeviceInfo()
	b.logger.Info("clear paired radios")

	bonds, err := b.discovery.Bonds(ctx)
	if err != nil {
		b.logger.Warn("failed to list bonds", "error", err)
		return
	}
	for _, bond := range bonds {
		if err := b.discovery.RemoveBond(ctx, bond); err != nil {
			b.logger.Warn("failed to remove bond", "address", bond, "error", err)
			continue
		}
		b.logger.Info("removed bond", "address", bond)
	}
}

func (b *Bridge) clearStoredPairedDeviceInfo() {
	if err := b.prefs.Remove(PrefRadioName, PrefRadioAddress); err != nil {
		b.logger.Warn("failed to clear stored radio", "error", err)
	}
}

func (b *Bridge) clearRemoteDeviceInfo() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paired = pairedDevice{}
	b.autoConnect = false
}
