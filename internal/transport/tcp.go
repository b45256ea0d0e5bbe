package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/skobkin/bblink/internal/kiss"
)

const (
	defaultTCPPort    = 2000
	defaultDialWait   = 6 * time.Second
	tcpDrainTimeout   = time.Millisecond
	maxTCPDrainChunks = 64
)

// TCPRadio reaches the radio through a serial-over-TCP server such as
// ser2net, or a radio emulator on the bench.
type TCPRadio struct {
	host        string
	port        int
	pollTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
}

func NewTCPRadio(host string, port int, logger *slog.Logger) *TCPRadio {
	if port == 0 {
		port = defaultTCPPort
	}

	return &TCPRadio{
		host:        host,
		port:        port,
		pollTimeout: DefaultPollTimeout,
		logger:      transportLogger(logger, ConnectorTCP, "target", net.JoinHostPort(host, strconv.Itoa(port))),
	}
}

func (t *TCPRadio) Name() string {
	return ConnectorTCP
}

func (t *TCPRadio) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *TCPRadio) Connect(ctx context.Context, addr kiss.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		t.logger.Debug("connect skipped: already connected")
		return nil
	}
	if t.host == "" {
		t.logger.Warn("connect failed: host is empty")
		return errors.New("tcp host is empty")
	}

	dialer := net.Dialer{Timeout: defaultDialWait}
	t.logger.Info("connecting", "radio", addr)
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(t.host, strconv.Itoa(t.port)))
	if err != nil {
		t.logger.Warn("connect failed", "error", err)
		return fmt.Errorf("dial tcp: %w", err)
	}
	t.conn = conn
	t.logger.Info("connected", "remote", conn.RemoteAddr().String())

	return nil
}

func (t *TCPRadio) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		t.logger.Warn("close failed", "error", err)
		return err
	}
	t.logger.Info("closed")

	return nil
}

func (t *TCPRadio) Read(buf []byte) (int, error) {
	conn, err := t.currentConn()
	if err != nil {
		return 0, err
	}
	return t.readWithin(conn, buf, t.pollTimeout)
}

func (t *TCPRadio) readWithin(conn net.Conn, buf []byte, d time.Duration) (int, error) {
	_ = conn.SetReadDeadline(time.Now().Add(d))
	n, err := conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, nil
		}
		t.fail(conn, err)
		return n, fmt.Errorf("read tcp: %w", err)
	}
	return n, nil
}

func (t *TCPRadio) Write(buf []byte) (int, error) {
	conn, err := t.currentConn()
	if err != nil {
		return 0, err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := writeFull(conn, buf); err != nil {
		t.fail(conn, err)
		return 0, fmt.Errorf("write tcp: %w", err)
	}
	return len(buf), nil
}

// Drain discards whatever is buffered right now.
func (t *TCPRadio) Drain() error {
	conn, err := t.currentConn()
	if err != nil {
		return err
	}
	buf := make([]byte, 256)
	for i := 0; i < maxTCPDrainChunks; i++ {
		n, err := t.readWithin(conn, buf, tcpDrainTimeout)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

func (t *TCPRadio) currentConn() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, errNotConnected
	}

	return t.conn, nil
}

func (t *TCPRadio) fail(conn net.Conn, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != conn {
		return
	}
	t.logger.Warn("connection lost", "error", err)
	_ = t.conn.Close()
	t.conn = nil
}
