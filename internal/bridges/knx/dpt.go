package knx

import (
	"fmt"
	"math"
)

// KNX datapoint encoding constants.
const (
	// dpt5MaxValue is the maximum raw value for DPT5 (1-byte unsigned).
	dpt5MaxValue = 255

	// dpt9MaxExponent is the maximum exponent for the DPT9 2-byte float.
	dpt9MaxExponent = 15

	// dpt9MantissaMask extracts the 11-bit mantissa from a DPT9 value.
	dpt9MantissaMask = 0x07FF

	// maxPercent is the upper bound of the percentage scale.
	maxPercent = 100
)

// EncodeBool encodes a boolean flag to its 1-byte bus representation
// (DPT 1.x). Used for mute and playing status flags.
func EncodeBool(value bool) []byte {
	if value {
		return []byte{0x01}
	}
	return []byte{0x00}
}

// DecodeBool decodes a 1-byte boolean flag. Any non-zero byte is true.
func DecodeBool(data []byte) (bool, error) {
	if len(data) < 1 {
		return false, fmt.Errorf("%w: boolean requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	return data[0] != 0x00, nil
}

// EncodePercent encodes an integer percentage (0-100) to its 1-byte bus
// representation (DPT 5.001). Input outside [0,100] is clamped before
// scaling: byte = round(percent * 255 / 100).
func EncodePercent(percent int) []byte {
	if percent < 0 {
		percent = 0
	} else if percent > maxPercent {
		percent = maxPercent
	}
	value := uint8(math.Round(float64(percent) * dpt5MaxValue / maxPercent))
	return []byte{value}
}

// DecodePercent decodes a 1-byte scaled value to an integer percentage:
// percent = round(byte * 100 / 255).
func DecodePercent(data []byte) (int, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: percentage requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	return int(math.Round(float64(data[0]) * maxPercent / dpt5MaxValue)), nil
}

// EncodeFloat16 encodes a float value to the 2-byte floating point format
// (DPT 9.x) used for level values such as loudness offsets.
//
// Wire layout:
//
//	Byte 0: SEEE EMMM (sign, 4-bit exponent, mantissa high bits)
//	Byte 1: MMMM MMMM (mantissa low bits)
//
// Value = 0.01 * mantissa * 2^exponent. The mantissa is two's-complement
// when the sign bit is set. A positive mantissa of exactly 2048 is
// representable at exponent 0: its single set bit carries into the exponent
// field's low bit (20.48 encodes as 0x08 0x00), and the decoder reverses
// the carry. That keeps values like 20.48 exact instead of halving them
// into the exponent.
func EncodeFloat16(value float64) ([]byte, error) {
	if value < -671088.64 || value > 670760.96 {
		return nil, fmt.Errorf("%w: value %.2f outside DPT9 range", ErrEncodingFailed, value)
	}

	mantissa := int64(math.Round(value * 100))
	exp := 0
	// Positive 2048 is representable only at exponent 0 (via the carry);
	// any further occurrence must keep reducing to stay unambiguous.
	for mantissa > 2048 || mantissa < -2048 || (mantissa == 2048 && exp > 0) {
		mantissa /= 2
		exp++
	}
	if exp > dpt9MaxExponent {
		return nil, fmt.Errorf("%w: DPT9 exponent overflow", ErrEncodingFailed)
	}

	var encoded uint16
	if mantissa < 0 {
		encoded = 0x8000 | (uint16(exp) << 11) | (uint16(mantissa) & dpt9MantissaMask) //nolint:gosec // two's complement bits wanted
	} else {
		// mantissa 2048 = bit 11 carries into the exponent field.
		encoded = (uint16(exp) << 11) | uint16(mantissa) //nolint:gosec // bounded above
	}
	return []byte{byte(encoded >> 8), byte(encoded)}, nil
}

// DecodeFloat16 decodes a 2-byte floating point value.
func DecodeFloat16(data []byte) (float64, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("%w: DPT9 requires 2 bytes, got %d", ErrDecodingFailed, len(data))
	}

	raw := uint16(data[0])<<8 | uint16(data[1])

	// 0x7FFF is the KNX "invalid data" sentinel for all DPT 9.xxx types.
	if raw == 0x7FFF {
		return 0, fmt.Errorf("%w: DPT9 invalid value 0x7FFF", ErrDecodingFailed)
	}

	sign := (raw & 0x8000) != 0
	exp := int(raw>>11) & 0x0F
	mantissa := int64(raw & dpt9MantissaMask)

	switch {
	case sign:
		mantissa -= 2048 // two's complement over 11 bits
	case mantissa == 0 && exp > 0:
		// Reverse the encoder's 2048 carry into the exponent field.
		mantissa = 2048
		exp--
	}

	return float64(mantissa) * 0.01 * math.Pow(2, float64(exp)), nil
}
