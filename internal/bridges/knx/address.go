package knx

import (
	"fmt"
	"strconv"
	"strings"
)

// GroupAddress is a KNX group address in 3-level notation, main/middle/sub.
// Main carries 5 bits, middle 3 and sub 8.
type GroupAddress struct {
	Main   uint8
	Middle uint8
	Sub    uint8
}

const (
	maxMain   = 31
	maxMiddle = 7
	maxSub    = 255
)

// ParseGroupAddress parses a 3-level group address string such as "2/1/14".
func ParseGroupAddress(s string) (GroupAddress, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return GroupAddress{}, fmt.Errorf("%w: expected main/middle/sub, got %q", ErrInvalidGroupAddress, s)
	}

	main, err := parseLevel(parts[0], "main", maxMain)
	if err != nil {
		return GroupAddress{}, err
	}
	middle, err := parseLevel(parts[1], "middle", maxMiddle)
	if err != nil {
		return GroupAddress{}, err
	}
	sub, err := parseLevel(parts[2], "sub", maxSub)
	if err != nil {
		return GroupAddress{}, err
	}

	return GroupAddress{Main: main, Middle: middle, Sub: sub}, nil
}

func parseLevel(part, name string, max uint64) (uint8, error) {
	v, err := strconv.ParseUint(part, 10, 8)
	if err != nil || v > max {
		return 0, fmt.Errorf("%w: %s group must be 0-%d, got %q", ErrInvalidGroupAddress, name, max, part)
	}
	return uint8(v), nil
}

// String renders the address in 3-level notation, e.g. "2/1/14".
func (ga GroupAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", ga.Main, ga.Middle, ga.Sub)
}

// IsZero reports whether the address is the unset value "0/0/0", which the
// bridge configuration uses to mean "no mapping".
func (ga GroupAddress) IsZero() bool {
	return ga == GroupAddress{}
}

// ToUint16 packs the address into its 16-bit wire form,
// MMMM MSSS SSSS SSSS.
func (ga GroupAddress) ToUint16() uint16 {
	return uint16(ga.Main)<<11 | uint16(ga.Middle)<<8 | uint16(ga.Sub)
}

// GroupAddressFromUint16 unpacks a 16-bit wire value.
func GroupAddressFromUint16(value uint16) GroupAddress {
	return GroupAddress{
		Main:   uint8((value >> 11) & 0x1F),
		Middle: uint8((value >> 8) & 0x07),
		Sub:    uint8(value & 0xFF),
	}
}
