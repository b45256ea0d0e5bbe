package rig

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Command reference: https://github.com/LA3QMA/TH-D74-Kenwood

var exitPacketSequence = []byte{0xC0, 0xFF, 0xC0}

type VFO uint8

const (
	VFOA       VFO = 0x00
	VFOB       VFO = 0x01
	VFOUnknown VFO = 0xFF
)

func (v VFO) Known() bool {
	return v == VFOA || v == VFOB
}

func (v VFO) String() string {
	switch v {
	case VFOA:
		return "A"
	case VFOB:
		return "B"
	default:
		return "unknown"
	}
}

// TNCMode is the radio's built-in TNC setting.
type TNCMode uint8

const (
	TNCOff     TNCMode = 0x00
	TNCAPRS    TNCMode = 0x01
	TNCKISS    TNCMode = 0x02
	TNCUnknown TNCMode = 0xFF
)

func (m TNCMode) String() string {
	switch m {
	case TNCOff:
		return "off"
	case TNCAPRS:
		return "aprs"
	case TNCKISS:
		return "kiss"
	default:
		return "unknown"
	}
}

// Mode is the demodulation mode of a band.
type Mode uint8

const (
	ModeFM      Mode = 0x00
	ModeDV      Mode = 0x01
	ModeAM      Mode = 0x02
	ModeLSB     Mode = 0x03
	ModeUSB     Mode = 0x04
	ModeCW      Mode = 0x05
	ModeNFM     Mode = 0x06
	ModeDR      Mode = 0x07
	ModeWFM     Mode = 0x08
	ModeRCW     Mode = 0x09
	ModeUnknown Mode = 0xFF
)

// Baud is the packet baud rate of the built-in TNC.
type Baud uint8

const (
	Baud1200    Baud = 0x00
	Baud9600    Baud = 0x01
	BaudUnknown Baud = 0xFF
)

func (b Baud) String() string {
	switch b {
	case Baud1200:
		return "1200"
	case Baud9600:
		return "9600"
	default:
		return "unknown"
	}
}

// Frequency reads the frequency in Hz of the given band.
func (c *Client) Frequency(ctx context.Context, vfo VFO) (uint32, error) {
	resp, err := c.SendCommand(ctx, fmt.Sprintf("FQ %d", vfo), DefaultRetries)
	if err != nil {
		return 0, err
	}
	// FQ 0,0144390000
	if len(resp) < 6 {
		return 0, fmt.Errorf("frequency %q: %w", resp, ErrMalformedResponse)
	}
	hz, err := strconv.ParseUint(strings.TrimSpace(resp[5:]), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("frequency %q: %w", resp, ErrMalformedResponse)
	}

	return uint32(hz), nil
}

func (c *Client) SetFrequency(ctx context.Context, vfo VFO, hz uint32) {
	c.set(ctx, fmt.Sprintf("FQ %d,%010d", vfo, hz))
}

// TNC reports the TNC mode and the band it is attached to.
func (c *Client) TNC(ctx context.Context) (VFO, TNCMode, error) {
	resp, err := c.SendCommand(ctx, "TN", DefaultRetries)
	if err != nil {
		return VFOUnknown, TNCUnknown, err
	}
	// TN 2,0
	mode, ok1 := digitAt(resp, 3)
	vfo, ok2 := digitAt(resp, 5)
	if !ok1 || !ok2 {
		return VFOUnknown, TNCUnknown, fmt.Errorf("tnc %q: %w", resp, ErrMalformedResponse)
	}

	return VFO(vfo), TNCMode(mode), nil
}

func (c *Client) SetTNC(ctx context.Context, vfo VFO, mode TNCMode) {
	c.set(ctx, fmt.Sprintf("TN %d,%d", mode, vfo))
}

func (c *Client) Mode(ctx context.Context, vfo VFO) (Mode, error) {
	resp, err := c.SendCommand(ctx, fmt.Sprintf("MD %d", vfo), DefaultRetries)
	if err != nil {
		return ModeUnknown, err
	}
	// MD 0,0
	mode, ok := digitAt(resp, 5)
	if !ok {
		return ModeUnknown, fmt.Errorf("mode %q: %w", resp, ErrMalformedResponse)
	}

	return Mode(mode), nil
}

func (c *Client) SetMode(ctx context.Context, vfo VFO, mode Mode) {
	c.set(ctx, fmt.Sprintf("MD %d,%d", vfo, mode))
}

func (c *Client) BaudRate(ctx context.Context) (Baud, error) {
	resp, err := c.SendCommand(ctx, "AS", DefaultRetries)
	if err != nil {
		return BaudUnknown, err
	}
	// AS 0
	baud, ok := digitAt(resp, 3)
	if !ok {
		return BaudUnknown, fmt.Errorf("baud rate %q: %w", resp, ErrMalformedResponse)
	}

	return Baud(baud), nil
}

func (c *Client) SetBaudRate(ctx context.Context, baud Baud) {
	c.set(ctx, fmt.Sprintf("AS %d", baud))
}

// Identity returns the radio model string.
func (c *Client) Identity(ctx context.Context) (string, error) {
	resp, err := c.SendCommand(ctx, "ID", DefaultRetries)
	if err != nil {
		return "", err
	}
	if len(resp) < 4 {
		return "", fmt.Errorf("identity %q: %w", resp, ErrMalformedResponse)
	}

	return resp[3:], nil
}

// set sends a write. The radio does not acknowledge writes reliably, so the
// outcome is only logged.
func (c *Client) set(ctx context.Context, text string) {
	if _, err := c.SendCommand(ctx, text, DefaultRetries); err != nil {
		c.logger.Warn("radio write not acknowledged", "command", text, "error", err)
	}
}

func digitAt(s string, i int) (uint8, bool) {
	if i >= len(s) || s[i] < '0' || s[i] > '9' {
		return 0, false
	}

	return s[i] - '0', true
}
