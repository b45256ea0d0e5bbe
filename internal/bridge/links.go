package bridge

import (
	"github.com/skobkin/bblink/internal/connectors"
	"github.com/skobkin/bblink/internal/kiss"
	"github.com/skobkin/bblink/internal/rig"
	"github.com/skobkin/bblink/internal/transport"
)

// HandlePeerConnection is called by the wireless stack when the peer
// connects or goes away. The change takes effect on the next Tick.
func (b *Bridge) HandlePeerConnection(connected bool) {
	if connected {
		b.logger.Info("wireless peer connected")
		b.wireless.TransitionTo(LinkConnected)
		return
	}
	b.logger.Info("wireless peer disconnected")
	b.wireless.TransitionTo(LinkDisconnected)
}

func (b *Bridge) wirelessDisconnectedEnter() {
	b.logger.Info("wireless: disconnected, advertising")
	b.publishLink(connectors.LinkWireless, connectors.ConnectionStateDisconnected, "", nil)
	if err := b.peer.StartAdvertising(); err != nil {
		b.logger.Warn("start advertising failed", "error", err)
	}
}

func (b *Bridge) wirelessDisconnectedExit() {
	if err := b.peer.StopAdvertising(); err != nil {
		b.logger.Warn("stop advertising failed", "error", err)
	}
}

func (b *Bridge) wirelessConnectedEnter() {
	b.logger.Info("wireless: connected")
	b.publishLink(connectors.LinkWireless, connectors.ConnectionStateConnected, "", nil)
	b.clearPendingRadioData()

	b.mu.Lock()
	b.snapshot.vfo = rig.VFOUnknown
	b.snapshot.previousTNC = rig.TNCUnknown
	b.mu.Unlock()

	if b.radioFSM.IsIn(RadioConnected) {
		b.startPacketSession()
	}
}

// startPacketSession records the radio's VFO and TNC mode and switches its
// TNC to KISS. It runs once both links are up, whichever came up last.
func (b *Bridge) startPacketSession() {
	b.mu.Lock()
	rigControl := b.rigControl
	b.mu.Unlock()
	if !rigControl {
		return
	}

	previousTNC := rig.TNCUnknown
	if b.rig.IsPacketMode(b.ctx) {
		b.logger.Info("radio already in KISS mode")
		previousTNC = rig.TNCKISS
		b.rig.ExitPacketMode(b.ctx)
	}

	vfo, mode, err := b.rig.TNC(b.ctx)
	if err != nil {
		b.logger.Warn("failed to read TNC mode", "error", err)
		return
	}
	b.logger.Info("radio TNC state", "vfo", vfo, "mode", mode)
	if previousTNC == rig.TNCUnknown {
		previousTNC = mode
	}

	b.mu.Lock()
	b.snapshot.vfo = vfo
	b.snapshot.previousTNC = previousTNC
	b.mu.Unlock()

	b.rig.SetTNC(b.ctx, vfo, rig.TNCKISS)
}

func (b *Bridge) wirelessConnectedExit() {
	b.mu.Lock()
	rigControl := b.rigControl
	snap := b.snapshot
	b.mu.Unlock()

	if !rigControl || !b.radioFSM.IsIn(RadioConnected) {
		return
	}

	if snap.canRestoreFrequency(rigControl) {
		b.logger.Info("peer left with a pending frequency change, restoring")
		b.restoreFrequency()
	}

	if snap.shouldRestoreTNC(rigControl) {
		b.logger.Info("restoring initial TNC mode", "mode", snap.previousTNC)
		if b.rig.IsPacketMode(b.ctx) {
			b.rig.ExitPacketMode(b.ctx)
		}
		b.rig.SetTNC(b.ctx, snap.vfo, snap.previousTNC)
	}
}

func (b *Bridge) radioDisconnectedEnter() {
	b.logger.Info("radio: disconnected")

	b.mu.Lock()
	target := b.paired
	autoConnect := b.autoConnect
	b.mu.Unlock()

	if !shouldConnect(autoConnect, target.address, b.connecting) {
		b.publishLink(connectors.LinkRadio, connectors.ConnectionStateDisconnected, "", nil)
		return
	}

	b.logger.Info("radio: connecting", "name", target.name, "address", target.address)
	b.publishLink(connectors.LinkRadio, connectors.ConnectionStateConnecting, target.address.String(), nil)
	b.connecting = true
	ctx := b.ctx
	go func() {
		b.connectResult <- b.radio.Connect(ctx, target.address)
	}()
}

func (b *Bridge) radioDisconnectedUpdate() {
	b.collectConnectResult()

	next, effect := decideRadio(RadioDisconnected, radioObservation{
		transportConnected: b.radio.Connected(),
		inState:            b.radioFSM.TimeInCurrentState(),
		retryInterval:      b.cfg.ReconnectInterval,
	})
	switch effect {
	case radioTransition:
		b.radioFSM.TransitionTo(next)
	case radioReenter:
		b.radioFSM.ImmediateTransitionTo(next)
	}
}

func (b *Bridge) collectConnectResult() {
	select {
	case err := <-b.connectResult:
		b.connecting = false
		if err != nil {
			b.logger.Warn("radio connect failed", "error", err)
			b.publishLink(connectors.LinkRadio, connectors.ConnectionStateDisconnected, "", err)
		}
	default:
	}
}

func (b *Bridge) radioConnectedEnter() {
	b.mu.Lock()
	target := b.paired
	b.mu.Unlock()

	b.logger.Info("radio: connected", "name", target.name)
	b.publishLink(connectors.LinkRadio, connectors.ConnectionStateConnected, target.address.String(), nil)
	b.clearPendingRadioData()

	if b.wireless.IsIn(LinkConnected) {
		b.mu.Lock()
		b.snapshot.vfo = rig.VFOUnknown
		b.snapshot.previousTNC = rig.TNCUnknown
		b.mu.Unlock()
		b.startPacketSession()
	}
}

func (b *Bridge) radioConnectedUpdate() {
	// The transport can report connected before the connect goroutine's
	// result is read; collect it so the next loss reconnects at once.
	b.collectConnectResult()

	next, effect := decideRadio(RadioConnected, radioObservation{transportConnected: b.radio.Connected()})
	if effect == radioTransition {
		b.radioFSM.TransitionTo(next)
	}
}

func (b *Bridge) radioDiscoveryEnter() {
	b.logger.Info("radio: discovery")
	b.publishLink(connectors.LinkRadio, connectors.ConnectionStateScanning, "", nil)
	if err := b.radio.Disconnect(); err != nil {
		b.logger.Warn("radio disconnect before discovery failed", "error", err)
	}

	b.mu.Lock()
	b.scanResults = nil
	b.mu.Unlock()

	err := b.discovery.StartDiscovery(b.ctx, func(dev transport.ClassicDevice) {
		select {
		case b.found <- dev:
		default:
			b.logger.Debug("discovery result dropped", "address", dev.Address)
		}
	})
	if err != nil {
		b.logger.Warn("failed to start discovery", "error", err)
		return
	}
	b.logger.Info("discovery started")
}

func (b *Bridge) radioDiscoveryUpdate() {
	b.collectConnectResult()
}

func (b *Bridge) radioDiscoveryExit() {
	if err := b.discovery.StopDiscovery(); err != nil {
		b.logger.Warn("failed to stop discovery", "error", err)
	}
	// Trailing results, names in particular, keep arriving for a moment.
	b.sleep(b.cfg.DiscoveryDrain)
	b.drainFound()
}

// drainFound reports every discovered radio to the peer.
func (b *Bridge) drainFound() {
	for {
		select {
		case dev := <-b.found:
			b.handleFoundDevice(dev)
		default:
			return
		}
	}
}

func (b *Bridge) handleFoundDevice(dev transport.ClassicDevice) {
	b.logger.Debug("found device", "name", dev.Name, "address", dev.Address, "class", dev.Class)
	if dev.Class != KenwoodHandheldClass {
		return
	}

	b.mu.Lock()
	replaced := false
	for i := range b.scanResults {
		if b.scanResults[i].Address == dev.Address {
			b.scanResults[i] = dev
			replaced = true
			break
		}
	}
	if !replaced {
		b.scanResults = append(b.scanResults, dev)
	}
	b.mu.Unlock()

	b.replyDevice(kiss.OpFoundDevice, dev.Address, dev.Name, false)
}

// clearPendingRadioData discards anything the radio sent that nobody read.
func (b *Bridge) clearPendingRadioData() {
	if !b.radio.Connected() {
		return
	}
	if err := b.radio.Drain(); err != nil {
		b.logger.Debug("drain radio input failed", "error", err)
	}
}
