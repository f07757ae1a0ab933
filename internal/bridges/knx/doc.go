// Package knx provides the building-automation bus surface for SoundMesh
// Core: bit-exact datapoint encodings and a write-side connection to a knxd
// daemon.
//
// External KNX controllers (wall panels, visualisation servers) parse the
// status bytes this package produces, so the encodings are fixed:
//
//   - boolean flags (mute, playing) use DPT 1.x: one byte, zero = false
//   - percentages (volume) use DPT 5.001: byte = round(percent * 255 / 100)
//   - two-byte floats (levels) use DPT 9.x: sign + 4-bit exponent + 11-bit
//     two's-complement mantissa, value = 0.01 * mantissa * 2^exponent
//
// The hub publishes zone and client status to configured group addresses; it
// does not act on incoming bus traffic (incoming telegrams are drained to
// keep the socket healthy).
package knx
