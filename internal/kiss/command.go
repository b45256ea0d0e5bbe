package kiss

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// CmdHardware is the KISS command byte for TNC-specific "set hardware" frames.
const CmdHardware byte = 0x06

// Opcode is the second payload byte of a hardware frame.
type Opcode byte

const (
	OpFirmwareVersion   Opcode = 0x28
	OpAPIVersion        Opcode = 0x7B
	OpCapabilities      Opcode = 0x7E
	OpSetFrequency      Opcode = 0xEA
	OpRestoreFrequency  Opcode = 0xEB
	OpStartScan         Opcode = 0xEC
	OpStopScan          Opcode = 0xED
	OpFoundDevice       Opcode = 0xEE
	OpPairWithDevice    Opcode = 0xEF
	OpClearPairedDevice Opcode = 0xF0
	OpGetPairedDevice   Opcode = 0xF1
	OpSetRigControl     Opcode = 0xF2
	OpFactoryReset      Opcode = 0xF3
	OpSetBaudRate       Opcode = 0xF4
)

func (o Opcode) String() string {
	switch o {
	case OpFirmwareVersion:
		return "firmware_version"
	case OpAPIVersion:
		return "api_version"
	case OpCapabilities:
		return "capabilities"
	case OpSetFrequency:
		return "set_frequency"
	case OpRestoreFrequency:
		return "restore_frequency"
	case OpStartScan:
		return "start_scan"
	case OpStopScan:
		return "stop_scan"
	case OpFoundDevice:
		return "found_device"
	case OpPairWithDevice:
		return "pair_with_device"
	case OpClearPairedDevice:
		return "clear_paired_device"
	case OpGetPairedDevice:
		return "get_paired_device"
	case OpSetRigControl:
		return "set_rig_control"
	case OpFactoryReset:
		return "factory_reset"
	case OpSetBaudRate:
		return "set_baud_rate"
	default:
		return fmt.Sprintf("opcode(0x%02X)", byte(o))
	}
}

// BaudRate is the packet baud selector carried by SetBaudRate. The values
// match the radio's own encoding.
type BaudRate byte

const (
	Baud1200 BaudRate = 0x00
	Baud9600 BaudRate = 0x01
)

func (b BaudRate) Valid() bool {
	return b == Baud1200 || b == Baud9600
}

func (b BaudRate) String() string {
	switch b {
	case Baud1200:
		return "1200"
	case Baud9600:
		return "9600"
	default:
		return fmt.Sprintf("baud(0x%02X)", byte(b))
	}
}

// Address is a Bluetooth device address in display order.
type Address [6]byte

func (a Address) String() string {
	var sb strings.Builder
	for i, b := range a {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}

	return sb.String()
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// Command is one decoded extended hardware command.
type Command interface {
	Opcode() Opcode
}

type (
	SetFrequency      struct{ Hz uint32 }
	RestoreFrequency  struct{}
	SetBaudRate       struct{ Rate BaudRate }
	StartScan         struct{}
	StopScan          struct{}
	PairWithDevice    struct{ Address Address }
	ClearPairedDevice struct{}
	FirmwareVersion   struct{}
	Capabilities      struct{}
	APIVersion        struct{}
	GetPairedDevice   struct{}
	SetRigControl     struct{ Enabled bool }
	FactoryReset      struct{}
)

func (SetFrequency) Opcode() Opcode      { return OpSetFrequency }
func (RestoreFrequency) Opcode() Opcode  { return OpRestoreFrequency }
func (SetBaudRate) Opcode() Opcode       { return OpSetBaudRate }
func (StartScan) Opcode() Opcode         { return OpStartScan }
func (StopScan) Opcode() Opcode          { return OpStopScan }
func (PairWithDevice) Opcode() Opcode    { return OpPairWithDevice }
func (ClearPairedDevice) Opcode() Opcode { return OpClearPairedDevice }
func (FirmwareVersion) Opcode() Opcode   { return OpFirmwareVersion }
func (Capabilities) Opcode() Opcode      { return OpCapabilities }
func (APIVersion) Opcode() Opcode        { return OpAPIVersion }
func (GetPairedDevice) Opcode() Opcode   { return OpGetPairedDevice }
func (SetRigControl) Opcode() Opcode     { return OpSetRigControl }
func (FactoryReset) Opcode() Opcode      { return OpFactoryReset }

// ExtractCommand looks for a FEND-delimited hardware frame inside raw and
// decodes it. Anything that does not decode cleanly is reported as "not a
// command" so ordinary payload that happens to contain the marker bytes is
// left for the relay path. A frame running to the end of raw without a
// closing FEND is accepted, since peer writes are frame-aligned.
func ExtractCommand(raw []byte) (Command, bool) {
	for i := 0; i+1 < len(raw); i++ {
		if raw[i] != FEND || raw[i+1] != CmdHardware {
			continue
		}

		end := len(raw)
		for j := i + 1; j < len(raw); j++ {
			if raw[j] == FEND {
				end = j
				break
			}
		}

		if payload, err := Unescape(raw[i+1 : end]); err == nil {
			if cmd, ok := decodeCommand(payload); ok {
				return cmd, true
			}
		}
		i = end - 1
	}

	return nil, false
}

// decodeCommand interprets an unescaped payload starting with CmdHardware.
func decodeCommand(payload []byte) (Command, bool) {
	if len(payload) < 2 || payload[0] != CmdHardware {
		return nil, false
	}
	args := payload[2:]

	switch op := Opcode(payload[1]); op {
	case OpSetFrequency:
		if len(args) < 4 {
			return nil, false
		}
		return SetFrequency{Hz: binary.BigEndian.Uint32(args[:4])}, true
	case OpRestoreFrequency:
		return RestoreFrequency{}, true
	case OpSetBaudRate:
		if len(args) < 1 || !BaudRate(args[0]).Valid() {
			return nil, false
		}
		return SetBaudRate{Rate: BaudRate(args[0])}, true
	case OpStartScan:
		return StartScan{}, true
	case OpStopScan:
		return StopScan{}, true
	case OpPairWithDevice:
		if len(args) < len(Address{}) {
			return nil, false
		}
		var addr Address
		copy(addr[:], args)
		return PairWithDevice{Address: addr}, true
	case OpClearPairedDevice:
		return ClearPairedDevice{}, true
	case OpFirmwareVersion:
		return FirmwareVersion{}, true
	case OpCapabilities:
		return Capabilities{}, true
	case OpAPIVersion:
		return APIVersion{}, true
	case OpGetPairedDevice:
		return GetPairedDevice{}, true
	case OpSetRigControl:
		if len(args) < 1 {
			return nil, false
		}
		return SetRigControl{Enabled: args[0] != 0x00}, true
	case OpFactoryReset:
		return FactoryReset{}, true
	default:
		return nil, false
	}
}
