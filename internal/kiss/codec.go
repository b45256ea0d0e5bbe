package kiss

import (
	"errors"
	"fmt"
)

const (
	FEND  byte = 0xC0
	FESC  byte = 0xDB
	TFEND byte = 0xDC
	TFESC byte = 0xDD
)

var (
	ErrBufferTooSmall = errors.New("buffer too small")
	ErrInvalidEscape  = errors.New("invalid escape sequence")
)

// EscapedSize is the worst-case frame length for a payload of n bytes:
// every byte escaped plus the two boundary markers.
func EscapedSize(n int) int {
	return n*2 + 2
}

// Escape writes payload into dst as a FEND-delimited frame and returns the
// number of bytes written. dst must hold EscapedSize(len(payload)) bytes even
// when the payload needs no escaping.
func Escape(dst, payload []byte) (int, error) {
	if need := EscapedSize(len(payload)); len(dst) < need {
		return 0, fmt.Errorf("escape %d bytes into %d: %w", len(payload), len(dst), ErrBufferTooSmall)
	}

	n := 0
	dst[n] = FEND
	n++
	for _, b := range payload {
		switch b {
		case FEND:
			dst[n], dst[n+1] = FESC, TFEND
			n += 2
		case FESC:
			dst[n], dst[n+1] = FESC, TFESC
			n += 2
		default:
			dst[n] = b
			n++
		}
	}
	dst[n] = FEND
	n++

	return n, nil
}

// AppendEscaped is Escape into a freshly sized buffer.
func AppendEscaped(payload []byte) []byte {
	buf := make([]byte, EscapedSize(len(payload)))
	n, _ := Escape(buf, payload)

	return buf[:n]
}

// Unescape reverses the FESC substitutions in frame. Boundary markers are
// copied through untouched; callers strip them when they need to.
func Unescape(frame []byte) ([]byte, error) {
	out := make([]byte, 0, len(frame))
	for i := 0; i < len(frame); i++ {
		b := frame[i]
		if b != FESC {
			out = append(out, b)
			continue
		}
		if i+1 >= len(frame) {
			return nil, fmt.Errorf("dangling escape at offset %d: %w", i, ErrInvalidEscape)
		}
		i++
		switch frame[i] {
		case TFEND:
			out = append(out, FEND)
		case TFESC:
			out = append(out, FESC)
		default:
			return nil, fmt.Errorf("escape followed by 0x%02X at offset %d: %w", frame[i], i, ErrInvalidEscape)
		}
	}

	return out, nil
}
