package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"

	"github.com/skobkin/bblink/internal/kiss"
)

// SerialRadio talks to the radio over a serial device: a USB cable or an
// RFCOMM channel already bound to /dev/rfcommN by the OS.
type SerialRadio struct {
	portName string
	baudRate int
	logger   *slog.Logger

	mu      sync.Mutex
	port    serial.Port
	writeMu sync.Mutex
}

func NewSerialRadio(portName string, baudRate int, logger *slog.Logger) *SerialRadio {
	return &SerialRadio{
		portName: portName,
		baudRate: baudRate,
		logger:   transportLogger(logger, ConnectorSerial, "port", portName),
	}
}

func (t *SerialRadio) Name() string {
	return ConnectorSerial
}

func (t *SerialRadio) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Connect opens the device node. The address only identifies the radio in
// logs, the node is bound to it outside of this process.
func (t *SerialRadio) Connect(ctx context.Context, addr kiss.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.portName == "" {
		return errors.New("serial port is empty")
	}
	if t.baudRate <= 0 {
		return fmt.Errorf("invalid serial baud rate: %d", t.baudRate)
	}

	t.logger.Info("connecting", "radio", addr)
	port, err := serial.Open(t.portName, &serial.Mode{BaudRate: t.baudRate})
	if err != nil {
		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	if err := port.SetReadTimeout(DefaultPollTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("set serial read timeout: %w", err)
	}
	t.port = port
	t.logger.Info("connected")

	return nil
}

func (t *SerialRadio) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.logger.Info("disconnected")
	return err
}

// Read returns 0, nil when nothing arrived within DefaultPollTimeout. A
// failing port is closed so Connected reports the loss.
func (t *SerialRadio) Read(buf []byte) (int, error) {
	port, err := t.currentPort()
	if err != nil {
		return 0, err
	}
	n, err := port.Read(buf)
	if err != nil {
		t.fail(port, err)
		return 0, fmt.Errorf("read serial port: %w", err)
	}
	return n, nil
}

func (t *SerialRadio) Write(buf []byte) (int, error) {
	port, err := t.currentPort()
	if err != nil {
		return 0, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := writeFull(port, buf); err != nil {
		t.fail(port, err)
		return 0, fmt.Errorf("write serial port: %w", err)
	}
	return len(buf), nil
}

func (t *SerialRadio) Drain() error {
	port, err := t.currentPort()
	if err != nil {
		return err
	}
	return port.ResetInputBuffer()
}

func (t *SerialRadio) currentPort() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, errNotConnected
	}
	return t.port, nil
}

func (t *SerialRadio) fail(port serial.Port, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port != port {
		return
	}
	t.logger.Warn("serial port failed, closing", "error", err)
	_ = t.port.Close()
	t.port = nil
}

func writeFull(w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		written += n
	}
	return nil
}
