// Package state holds the canonical zone/client/stream state for SoundMesh
// Core as a single versioned, immutable snapshot.
//
// All mutation goes through Store.Update (or its variants), which applies a
// pure transform function to a copy of the committed snapshot, validates the
// result, and publishes it atomically with version = previous + 1. Readers
// obtain the committed snapshot via Store.Current without blocking writers.
//
// The package has no knowledge of any protocol: MQTT, KNX, Snapcast and the
// REST API all observe the same snapshots through Store observers or by
// reading Store.Current.
package state
