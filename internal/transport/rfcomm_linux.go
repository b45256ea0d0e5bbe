//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/skobkin/bblink/internal/kiss"
)

const (
	DefaultRFCOMMChannel = 1

	defaultRFCOMMConnectWait = 10 * time.Second
	rfcommWriteTimeout       = time.Second
)

// RFCOMMRadio connects to the radio's serial port profile with a raw
// AF_BLUETOOTH stream socket.
type RFCOMMRadio struct {
	channel     uint8
	pollTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	fd      int
	writeMu sync.Mutex
}

func NewRFCOMMRadio(channel uint8, logger *slog.Logger) *RFCOMMRadio {
	if channel == 0 {
		channel = DefaultRFCOMMChannel
	}
	return &RFCOMMRadio{
		channel:     channel,
		pollTimeout: DefaultPollTimeout,
		logger:      transportLogger(logger, ConnectorRFCOMM, "channel", channel),
		fd:          -1,
	}
}

func (t *RFCOMMRadio) Name() string {
	return ConnectorRFCOMM
}

func (t *RFCOMMRadio) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fd >= 0
}

// Connect blocks until the socket is connected, the connect timeout expires
// or ctx is done, whichever comes first.
func (t *RFCOMMRadio) Connect(ctx context.Context, addr kiss.Address) error {
	if t.Connected() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if addr.IsZero() {
		return errors.New("rfcomm address is empty")
	}

	wait := defaultRFCOMMConnectWait
	if deadline, ok := ctx.Deadline(); ok {
		wait = min(wait, time.Until(deadline))
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return fmt.Errorf("open rfcomm socket: %w", err)
	}
	// Linux applies the send timeout to connect.
	if err := setTimeout(fd, unix.SO_SNDTIMEO, wait); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("set rfcomm connect timeout: %w", err)
	}

	t.logger.Info("connecting", "radio", addr)
	stop := context.AfterFunc(ctx, func() {
		_ = unix.Shutdown(fd, unix.SHUT_RDWR)
	})
	err = unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: socketAddress(addr), Channel: t.channel})
	stop()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = unix.Close(fd)
		t.logger.Warn("connect failed", "radio", addr, "error", err)
		return fmt.Errorf("connect rfcomm %s channel %d: %w", addr, t.channel, err)
	}

	if err := errors.Join(
		setTimeout(fd, unix.SO_RCVTIMEO, t.pollTimeout),
		setTimeout(fd, unix.SO_SNDTIMEO, rfcommWriteTimeout),
	); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("set rfcomm timeouts: %w", err)
	}

	t.mu.Lock()
	t.fd = fd
	t.mu.Unlock()
	t.logger.Info("connected", "radio", addr)

	return nil
}

func (t *RFCOMMRadio) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fd < 0 {
		return nil
	}
	err := unix.Close(t.fd)
	t.fd = -1
	t.logger.Info("disconnected")
	return err
}

func (t *RFCOMMRadio) Read(buf []byte) (int, error) {
	fd, err := t.currentFD()
	if err != nil {
		return 0, err
	}
	n, err := unix.Read(fd, buf)
	switch {
	case isTemporary(err):
		return 0, nil
	case err != nil:
		t.fail(fd, err)
		return 0, fmt.Errorf("read rfcomm: %w", err)
	case n == 0 && len(buf) > 0:
		t.fail(fd, io.EOF)
		return 0, io.EOF
	}
	return n, nil
}

func (t *RFCOMMRadio) Write(buf []byte) (int, error) {
	fd, err := t.currentFD()
	if err != nil {
		return 0, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	written := 0
	for written < len(buf) {
		n, err := unix.Write(fd, buf[written:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			t.fail(fd, err)
			return written, fmt.Errorf("write rfcomm: %w", err)
		}
		written += n
	}
	return written, nil
}

// Drain discards everything already received without waiting for more.
func (t *RFCOMMRadio) Drain() error {
	fd, err := t.currentFD()
	if err != nil {
		return err
	}
	buf := make([]byte, 256)
	for {
		n, _, err := unix.Recvfrom(fd, buf, unix.MSG_DONTWAIT)
		if isTemporary(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("drain rfcomm: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

func (t *RFCOMMRadio) currentFD() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fd < 0 {
		return -1, errNotConnected
	}
	return t.fd, nil
}

func (t *RFCOMMRadio) fail(fd int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fd != fd {
		return
	}
	t.logger.Warn("rfcomm link lost", "error", err)
	_ = unix.Close(t.fd)
	t.fd = -1
}

func setTimeout(fd, opt int, d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, opt, &tv)
}

func isTemporary(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

// socketAddress converts to the little-endian byte order of bdaddr_t.
func socketAddress(addr kiss.Address) [6]uint8 {
	var out [6]uint8
	for i := range addr {
		out[i] = addr[len(addr)-1-i]
	}
	return out
}
