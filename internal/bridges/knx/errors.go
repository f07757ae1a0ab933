package knx

import "errors"

// Bus-facing errors. Callers match these with errors.Is; wrapped variants
// carry the group address or telegram detail.
var (
	ErrNotConnected        = errors.New("knx: not connected to knxd")
	ErrConnectionFailed    = errors.New("knx: connection to knxd failed")
	ErrInvalidGroupAddress = errors.New("knx: invalid group address")
	ErrEncodingFailed      = errors.New("knx: encoding failed")
	ErrDecodingFailed      = errors.New("knx: decoding failed")
	ErrTelegramFailed      = errors.New("knx: telegram send failed")
	ErrInvalidMessage      = errors.New("knx: invalid knxd message")
)
