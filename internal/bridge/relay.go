package bridge

import (
	"encoding/hex"

	"github.com/skobkin/bblink/internal/connectors"
	"github.com/skobkin/bblink/internal/kiss"
)

// HandlePeerWrite takes bytes written by the wireless peer. Extended
// hardware commands are queued for the next Tick; anything else goes to the
// radio unless a command is being executed, in which case it is dropped.
func (b *Bridge) HandlePeerWrite(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	b.logger.Debug("peer write", "len", len(data))

	if cmd, ok := kiss.ExtractCommand(data); ok {
		return b.enqueue(cmd)
	}

	if !b.radioFSM.IsIn(RadioConnected) {
		return nil
	}
	if !b.radioMu.TryLock() {
		if b.dispatching.Load() {
			b.logger.Debug("dropping peer data while executing a command", "len", len(data))
			return nil
		}
		b.radioMu.Lock()
	}
	defer b.radioMu.Unlock()

	if _, err := b.radio.Write(data); err != nil {
		b.logger.Warn("relay to radio failed", "error", err)
		return nil
	}
	b.extendTx(len(data))
	b.publishFrame(connectors.TopicRawFrameIn, data)

	return nil
}

// relayFromRadio forwards at most one MTU worth of radio data to the peer.
func (b *Bridge) relayFromRadio() {
	buf := make([]byte, b.cfg.MTU)
	n, err := b.radio.Read(buf)
	if err != nil {
		b.logger.Debug("radio read failed", "error", err)
		return
	}
	if n == 0 {
		return
	}

	b.logger.Debug("radio to peer", "len", n)
	b.extendRx(n)
	if err := b.peer.Notify(buf[:n]); err != nil {
		b.logger.Warn("relay to peer failed", "error", err)
		return
	}
	b.publishFrame(connectors.TopicRawFrameOut, buf[:n])
}

func (b *Bridge) extendTx(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txUntil = lingerUntil(b.clock.Now(), b.txUntil, n, b.cfg.ByteTransmitTime)
}

func (b *Bridge) extendRx(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rxUntil = lingerUntil(b.clock.Now(), b.rxUntil, n, b.cfg.ByteTransmitTime)
}

// IsDispatching reports whether a command is executing right now.
func (b *Bridge) IsDispatching() bool {
	return b.dispatching.Load()
}

func (b *Bridge) publishFrame(topic string, data []byte) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(topic, connectors.RawFrame{Hex: hex.EncodeToString(data), Len: len(data)})
}
