// Package routing defines the abstraction over the external audio-routing
// server that fans PCM streams out to room speakers.
//
// The server owns the physical topology: groups of clients playing the same
// stream. SoundMesh zones are logical; the grouping reconciler maps each
// zone onto exactly one server group through the Controller interface. All
// mutations go through the server so it stays the source of truth for
// physical routing, while the state store stays the source of truth for
// desired zone membership.
package routing
