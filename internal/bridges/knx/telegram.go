package knx

import (
	"encoding/binary"
	"fmt"
)

// knxd protocol message types.
const (
	// eibOpenGroupCon opens a group socket for group telegram traffic.
	// Payload: reserved(1) + write_only(1) + reserved(1).
	eibOpenGroupCon uint16 = 0x0026

	// eibGroupPacket carries a group telegram.
	// Send payload: GA(2) + APDU (2+ bytes).
	eibGroupPacket uint16 = 0x0027
)

// apciWrite is the APCI code for a group value write.
const apciWrite byte = 0x80

// msgHeaderSize is the size of the knxd message header (size + type).
const msgHeaderSize = 4

// Telegram is an outgoing group write telegram.
type Telegram struct {
	// Destination is the target group address.
	Destination GroupAddress

	// Data is the DPT-encoded payload.
	Data []byte
}

// NewWriteTelegram creates a group write telegram for the given address.
func NewWriteTelegram(dest GroupAddress, data []byte) Telegram {
	return Telegram{Destination: dest, Data: data}
}

// Encode encodes the telegram as an EIB_GROUP_PACKET payload.
//
// Single-byte values that fit in 6 bits ride in the APCI byte itself
// (short APDU); everything else follows the APCI byte as separate data
// bytes (long APDU):
//
//	Short: GA(2) + [0x00, APCI|value]
//	Long:  GA(2) + [0x00, APCI] + data
func (t Telegram) Encode() []byte {
	small := len(t.Data) == 1 && t.Data[0] <= 0x3F

	if len(t.Data) == 0 || small {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint16(buf[0:2], t.Destination.ToUint16())
		buf[2] = 0x00 // TPCI
		buf[3] = apciWrite
		if small {
			buf[3] |= t.Data[0] & 0x3F
		}
		return buf
	}

	buf := make([]byte, 4+len(t.Data))
	binary.BigEndian.PutUint16(buf[0:2], t.Destination.ToUint16())
	buf[2] = 0x00
	buf[3] = apciWrite
	copy(buf[4:], t.Data)
	return buf
}

// String returns a human-readable representation for logging.
func (t Telegram) String() string {
	return fmt.Sprintf("Telegram{GA:%s, Data:%X}", t.Destination, t.Data)
}

// encodeMessage wraps a payload in the knxd message frame:
//
//	Byte 0-1: size (big-endian, type + payload, excludes the size field)
//	Byte 2-3: message type (big-endian)
//	Byte 4+:  payload
func encodeMessage(msgType uint16, payload []byte) []byte {
	buf := make([]byte, msgHeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(2+len(payload))) //nolint:gosec // telegrams are tiny
	binary.BigEndian.PutUint16(buf[2:4], msgType)
	copy(buf[4:], payload)
	return buf
}

// parseMessage splits a complete knxd frame into type and payload.
func parseMessage(data []byte) (msgType uint16, payload []byte, err error) {
	if len(data) < msgHeaderSize {
		return 0, nil, fmt.Errorf("%w: message too short (%d bytes)", ErrInvalidMessage, len(data))
	}

	declared := binary.BigEndian.Uint16(data[0:2])
	if int(declared) != len(data)-2 {
		return 0, nil, fmt.Errorf("%w: size mismatch (declared %d, have %d)",
			ErrInvalidMessage, declared, len(data)-2)
	}

	return binary.BigEndian.Uint16(data[2:4]), data[msgHeaderSize:], nil
}
