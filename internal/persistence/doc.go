// Package persistence saves and restores zone and client runtime state
// across hub restarts.
//
// The configured inventory is the topology authority: persisted rows only
// carry the mutable runtime values (volume, mute, stream, playback position,
// zone assignment). At startup the stored configuration fingerprint is
// compared against the fingerprint of the current inventory; on mismatch all
// persisted state is discarded so stale rows can never contradict a changed
// installation.
package persistence
