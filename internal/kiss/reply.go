package kiss

import "encoding/binary"

// APIVersion reported in reply to an ApiVersion query.
const APIVersionValue uint16 = 0x0100

// Capability flags reported in reply to a Capabilities query.
const (
	CapRigControl      uint16 = 0x0010
	CapFirmwareVersion uint16 = 0x0800
)

// EncodeReply builds an escaped [CmdHardware, opcode, payload...] frame.
func EncodeReply(op Opcode, payload []byte) []byte {
	raw := make([]byte, 0, len(payload)+2)
	raw = append(raw, CmdHardware, byte(op))
	raw = append(raw, payload...)

	return AppendEscaped(raw)
}

// EncodeReply16 is EncodeReply with a single big-endian 16-bit value.
func EncodeReply16(op Opcode, v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)

	return EncodeReply(op, buf[:])
}

// DeviceRecord is the payload of FoundDevice and GetPairedDevice replies.
type DeviceRecord struct {
	Connected bool
	Address   Address
	Name      string
}

func (d DeviceRecord) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 1+len(d.Address)+len(d.Name))
	if d.Connected {
		out = append(out, 0x01)
	} else {
		out = append(out, 0x00)
	}
	out = append(out, d.Address[:]...)
	out = append(out, d.Name...)

	return out, nil
}

// EncodeDeviceReply encodes rec as a reply for op.
func EncodeDeviceReply(op Opcode, rec DeviceRecord) []byte {
	payload, _ := rec.MarshalBinary()

	return EncodeReply(op, payload)
}
