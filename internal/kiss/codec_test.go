package kiss

import (
	"bytes"
	"errors"
	"testing"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("hello"),
		{0x00, 0x01, 0xFE, 0xFF},
		{FEND, FESC, TFEND, TFESC, FEND},
	}

	for _, payload := range cases {
		frame := AppendEscaped(payload)
		if frame[0] != FEND || frame[len(frame)-1] != FEND {
			t.Fatalf("frame %x not delimited by FEND", frame)
		}
		inner := frame[1 : len(frame)-1]
		if bytes.IndexByte(inner, FEND) >= 0 {
			t.Fatalf("frame %x contains unescaped FEND", frame)
		}

		got, err := Unescape(inner)
		if err != nil {
			t.Fatalf("unescape %x: %v", inner, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("payload mismatch: got %x want %x", got, payload)
		}
	}
}

func TestEscapeSubstitutesMarkers(t *testing.T) {
	got := AppendEscaped([]byte{0x01, FEND, FESC, 0x02})
	want := []byte{FEND, 0x01, FESC, TFEND, FESC, TFESC, 0x02, FEND}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %x, got %x", want, got)
	}
}

func TestEscapeRequiresWorstCaseBuffer(t *testing.T) {
	payload := []byte("abc")
	dst := make([]byte, EscapedSize(len(payload))-1)

	_, err := Escape(dst, payload)
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}

	dst = make([]byte, EscapedSize(len(payload)))
	n, err := Escape(dst, payload)
	if err != nil {
		t.Fatalf("escape: %v", err)
	}
	if n != len(payload)+2 {
		t.Fatalf("expected %d bytes written, got %d", len(payload)+2, n)
	}
}

func TestUnescapeRejectsBadSequences(t *testing.T) {
	cases := map[string][]byte{
		"unknown code": {0x01, FESC, 0x42},
		"dangling":     {0x01, FESC},
	}

	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Unescape(frame)
			if !errors.Is(err, ErrInvalidEscape) {
				t.Fatalf("expected ErrInvalidEscape, got %v", err)
			}
		})
	}
}

func TestExtractCommandSetFrequencyWithoutClosingMarker(t *testing.T) {
	cmd, ok := ExtractCommand([]byte{FEND, CmdHardware, byte(OpSetFrequency), 0x00, 0x01, 0xE2, 0x40})
	if !ok {
		t.Fatalf("expected a command")
	}
	got, isSet := cmd.(SetFrequency)
	if !isSet {
		t.Fatalf("expected SetFrequency, got %T", cmd)
	}
	if got.Hz != 123456 {
		t.Fatalf("expected 123456 Hz, got %d", got.Hz)
	}
}

func TestExtractCommandDecodesEachOpcode(t *testing.T) {
	addr := Address{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	tests := []struct {
		name string
		raw  []byte
		want Command
	}{
		{"restore", []byte{byte(OpRestoreFrequency)}, RestoreFrequency{}},
		{"baud 9600", []byte{byte(OpSetBaudRate), 0x01}, SetBaudRate{Rate: Baud9600}},
		{"start scan", []byte{byte(OpStartScan)}, StartScan{}},
		{"stop scan", []byte{byte(OpStopScan)}, StopScan{}},
		{"pair", append([]byte{byte(OpPairWithDevice)}, addr[:]...), PairWithDevice{Address: addr}},
		{"clear", []byte{byte(OpClearPairedDevice)}, ClearPairedDevice{}},
		{"firmware", []byte{byte(OpFirmwareVersion)}, FirmwareVersion{}},
		{"caps", []byte{byte(OpCapabilities)}, Capabilities{}},
		{"api", []byte{byte(OpAPIVersion)}, APIVersion{}},
		{"paired", []byte{byte(OpGetPairedDevice)}, GetPairedDevice{}},
		{"rig off", []byte{byte(OpSetRigControl), 0x00}, SetRigControl{Enabled: false}},
		{"rig on", []byte{byte(OpSetRigControl), 0x01}, SetRigControl{Enabled: true}},
		{"reset", []byte{byte(OpFactoryReset)}, FactoryReset{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frame := AppendEscaped(append([]byte{CmdHardware}, tc.raw...))
			got, ok := ExtractCommand(frame)
			if !ok {
				t.Fatalf("expected command from %x", frame)
			}
			if got != tc.want {
				t.Fatalf("expected %#v, got %#v", tc.want, got)
			}
		})
	}
}

func TestExtractCommandUnescapesAddress(t *testing.T) {
	addr := Address{FEND, FESC, 0x01, 0x02, 0x03, 0x04}
	frame := AppendEscaped(append([]byte{CmdHardware, byte(OpPairWithDevice)}, addr[:]...))

	cmd, ok := ExtractCommand(frame)
	if !ok {
		t.Fatalf("expected a command")
	}
	if got := cmd.(PairWithDevice).Address; got != addr {
		t.Fatalf("expected %s, got %s", addr, got)
	}
}

func TestExtractCommandIgnoresDataFrames(t *testing.T) {
	cases := map[string][]byte{
		"empty":            nil,
		"data frame":       {FEND, 0x00, 'h', 'i', FEND},
		"marker only":      {FEND, CmdHardware},
		"unknown opcode":   {FEND, CmdHardware, 0x01, FEND},
		"short frequency":  {FEND, CmdHardware, byte(OpSetFrequency), 0x01, FEND},
		"bad escape":       {FEND, CmdHardware, byte(OpRestoreFrequency), FESC, 0x00, FEND},
		"invalid baud":     {FEND, CmdHardware, byte(OpSetBaudRate), 0x07, FEND},
		"type not leading": {0x06, byte(OpRestoreFrequency)},
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if cmd, ok := ExtractCommand(raw); ok {
				t.Fatalf("expected no command, got %#v", cmd)
			}
		})
	}
}

func TestExtractCommandSkipsMalformedCandidate(t *testing.T) {
	raw := []byte{
		FEND, CmdHardware, byte(OpSetFrequency), 0x01, FEND,
		FEND, CmdHardware, byte(OpStopScan), FEND,
	}

	cmd, ok := ExtractCommand(raw)
	if !ok {
		t.Fatalf("expected the second frame to decode")
	}
	if _, isStop := cmd.(StopScan); !isStop {
		t.Fatalf("expected StopScan, got %#v", cmd)
	}
}

func TestEncodeReplies(t *testing.T) {
	got := EncodeReply16(OpAPIVersion, APIVersionValue)
	want := []byte{FEND, CmdHardware, byte(OpAPIVersion), 0x01, 0x00, FEND}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %x, got %x", want, got)
	}

	rec := DeviceRecord{Connected: true, Address: Address{1, 2, 3, 4, 5, 6}, Name: "TH-D74"}
	got = EncodeDeviceReply(OpFoundDevice, rec)
	payload, err := Unescape(got[1 : len(got)-1])
	if err != nil {
		t.Fatalf("unescape reply: %v", err)
	}
	want = append([]byte{CmdHardware, byte(OpFoundDevice), 0x01, 1, 2, 3, 4, 5, 6}, "TH-D74"...)
	if !bytes.Equal(payload, want) {
		t.Fatalf("expected %x, got %x", want, payload)
	}
}

func TestAddressString(t *testing.T) {
	addr := Address{0xAA, 0xBB, 0x0C, 0x00, 0x11, 0xFF}
	if got := addr.String(); got != "AA:BB:0C:00:11:FF" {
		t.Fatalf("unexpected address string %q", got)
	}
}
