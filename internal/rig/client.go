package rig

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	DefaultResponseTimeout = 1000 * time.Millisecond
	DefaultRetryBackoff    = 200 * time.Millisecond
	DefaultRetries         = 3

	maxResponseLen = 64
)

var (
	ErrNoResponse        = errors.New("no response from radio")
	ErrRadioRejected     = errors.New("radio rejected command")
	ErrEchoMismatch      = errors.New("response does not echo command")
	ErrMalformedResponse = errors.New("malformed radio response")
)

// Port is the radio's serial channel. Read must return within a short
// timeout, with n == 0 and a nil error when nothing arrived. Drain discards
// any input that is already buffered.
type Port interface {
	io.ReadWriter
	Drain() error
}

type Config struct {
	ResponseTimeout time.Duration
	RetryBackoff    time.Duration
}

// Client speaks the line-oriented command protocol of the radio.
type Client struct {
	port    Port
	timeout time.Duration
	backoff time.Duration
	logger  *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewClient(port Port, cfg Config, logger *slog.Logger) *Client {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		port:    port,
		timeout: cfg.ResponseTimeout,
		backoff: cfg.RetryBackoff,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// SendCommand writes text as one request line and returns the response
// line. A '?' reply is retried up to retries more times.
func (c *Client) SendCommand(ctx context.Context, text string, retries int) (string, error) {
	if len(text) < 2 {
		return "", fmt.Errorf("command %q: too short", text)
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.exchange(ctx, text)
		if err != nil {
			return "", err
		}

		if resp[0] == '?' {
			if attempt >= retries {
				c.logger.Warn("radio rejected command, no retries left", "command", text, "attempts", attempt+1)
				return "", fmt.Errorf("command %q: %w", text, ErrRadioRejected)
			}
			c.logger.Info("radio rejected command, retrying", "command", text, "retries_left", retries-attempt-1)
			if err := c.sleep(ctx, c.backoff); err != nil {
				return "", err
			}
			continue
		}

		if len(resp) < 2 || resp[:2] != text[:2] {
			return "", fmt.Errorf("command %q got %q: %w", text, resp, ErrEchoMismatch)
		}

		return resp, nil
	}
}

func (c *Client) exchange(ctx context.Context, text string) (string, error) {
	c.logger.Debug("> radio", "command", text)
	if err := c.port.Drain(); err != nil {
		return "", fmt.Errorf("drain radio input: %w", err)
	}
	if err := writeAll(c.port, []byte(text+"\r")); err != nil {
		return "", fmt.Errorf("write command %q: %w", text, err)
	}

	line, err := c.readLine(ctx)
	if err != nil {
		return "", fmt.Errorf("read response to %q: %w", text, err)
	}
	if len(line) == 0 {
		c.logger.Info("no response from radio", "command", text)
		return "", fmt.Errorf("command %q: %w", text, ErrNoResponse)
	}
	c.logger.Debug("< radio", "response", string(line))

	return string(line), nil
}

// readLine collects bytes up to a carriage return or until the response
// timeout expires. A partial line read before the timeout is returned as is.
func (c *Client) readLine(ctx context.Context) ([]byte, error) {
	deadline := c.now().Add(c.timeout)
	line := make([]byte, 0, 32)
	var buf [1]byte

	for len(line) < maxResponseLen && c.now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := c.port.Read(buf[:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		if buf[0] == '\r' {
			break
		}
		line = append(line, buf[0])
	}

	return line, nil
}

// ExitPacketMode sends the out-of-band sequence that makes the radio leave
// KISS mode. It is not a command line and gets no response.
func (c *Client) ExitPacketMode(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
	c.logger.Debug("> radio", "command", "KISS exit sequence")
	if err := writeAll(c.port, exitPacketSequence); err != nil {
		c.logger.Warn("failed to send KISS exit sequence", "error", err)
	}
}

// IsPacketMode probes with a harmless query. A radio in packet mode treats
// the line as data and never answers.
func (c *Client) IsPacketMode(ctx context.Context) bool {
	_, err := c.SendCommand(ctx, "BT", DefaultRetries)
	return err != nil
}

func writeAll(w io.Writer, buf []byte) error {
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

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
