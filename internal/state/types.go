package state

import (
	"sort"
	"time"
)

// SystemStatus represents the lifecycle state of the hub.
type SystemStatus string

const (
	SystemStopped  SystemStatus = "stopped"
	SystemRunning  SystemStatus = "running"
	SystemStopping SystemStatus = "stopping"
)

// ValidSystemStatus reports whether s is a recognised system status.
func ValidSystemStatus(s SystemStatus) bool {
	switch s {
	case SystemStopped, SystemRunning, SystemStopping:
		return true
	default:
		return false
	}
}

// PlaybackState represents the playback status of a zone.
type PlaybackState string

const (
	PlaybackStopped PlaybackState = "stopped"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
)

// ZoneState is the logical state of one zone (room).
//
// Zones are value types nested in SystemState; they are never mutated in
// place. Command handlers copy the snapshot, modify the copy, and commit it
// through Store.Update.
type ZoneState struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	CurrentStreamID string        `json:"current_stream_id,omitempty"`
	ClientIDs       []string      `json:"client_ids"`
	Volume          int           `json:"volume"`
	Muted           bool          `json:"muted"`
	Playback        PlaybackState `json:"playback"`
	TrackIndex      int           `json:"track_index"`
	PlaylistIndex   int           `json:"playlist_index"`
}

// HasClient reports whether the zone logically contains the given client.
func (z ZoneState) HasClient(clientID string) bool {
	for _, id := range z.ClientIDs {
		if id == clientID {
			return true
		}
	}
	return false
}

// WithClient returns a copy of the zone with clientID added to its
// assignment set. Adding an already-assigned client is a no-op.
func (z ZoneState) WithClient(clientID string) ZoneState {
	if z.HasClient(clientID) {
		return z.clone()
	}
	c := z.clone()
	c.ClientIDs = append(c.ClientIDs, clientID)
	sort.Strings(c.ClientIDs)
	return c
}

// WithoutClient returns a copy of the zone with clientID removed from its
// assignment set.
func (z ZoneState) WithoutClient(clientID string) ZoneState {
	c := z.clone()
	ids := c.ClientIDs[:0:0]
	for _, id := range c.ClientIDs {
		if id != clientID {
			ids = append(ids, id)
		}
	}
	c.ClientIDs = ids
	return c
}

// clone returns a deep copy of the zone.
func (z ZoneState) clone() ZoneState {
	c := z
	c.ClientIDs = append([]string(nil), z.ClientIDs...)
	return c
}

// ClientState is the logical state of one client (speaker endpoint).
//
// AudioRoutingClientID is the audio-routing server's own identifier for this
// client; it is the join key the grouping reconciler uses to correlate
// logical assignments with physical group membership.
type ClientState struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	ZoneID               string `json:"zone_id,omitempty"`
	Volume               int    `json:"volume"`
	Muted                bool   `json:"muted"`
	LatencyMs            int    `json:"latency_ms"`
	Connected            bool   `json:"connected"`
	AudioRoutingClientID string `json:"audio_routing_client_id"`
}

// StreamState is the logical state of one audio stream.
type StreamState struct {
	ID                     string `json:"id"`
	AudioRoutingStreamPath string `json:"audio_routing_stream_path"`
	Status                 string `json:"status"`
}

// MetadataEntry is one key/value pair of the diagnostic metadata trail.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metadata is an insertion-ordered key/value trail attached to the snapshot
// for diagnostics. Setting an existing key updates its value in place
// without changing its position.
type Metadata struct {
	entries []MetadataEntry
}

// Set stores a value under key, preserving insertion order for new keys.
func (m *Metadata) Set(key, value string) {
	for i := range m.entries {
		if m.entries[i].Key == key {
			m.entries[i].Value = value
			return
		}
	}
	m.entries = append(m.entries, MetadataEntry{Key: key, Value: value})
}

// Get returns the value stored under key, if any.
func (m *Metadata) Get(key string) (string, bool) {
	for _, e := range m.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Len returns the number of entries.
func (m *Metadata) Len() int {
	return len(m.entries)
}

// Entries returns a copy of all entries in insertion order.
func (m *Metadata) Entries() []MetadataEntry {
	return append([]MetadataEntry(nil), m.entries...)
}

// clone returns a deep copy of the metadata trail.
func (m Metadata) clone() Metadata {
	return Metadata{entries: append([]MetadataEntry(nil), m.entries...)}
}

// SystemState is one immutable snapshot of the full hub state.
//
// Snapshots form a strictly version-ordered sequence: every committed
// snapshot carries version = previous version + 1, and a rejected update
// never mutates the previously committed snapshot.
type SystemState struct {
	Version     int64                  `json:"version"`
	Status      SystemStatus           `json:"status"`
	Zones       map[string]ZoneState   `json:"zones"`
	Clients     map[string]ClientState `json:"clients"`
	Streams     map[string]StreamState `json:"streams"`
	Metadata    Metadata               `json:"-"`
	LastUpdated time.Time              `json:"last_updated"`
}

// NewSystemState returns an empty snapshot at version 1 with status stopped.
func NewSystemState() *SystemState {
	return &SystemState{
		Version:     1,
		Status:      SystemStopped,
		Zones:       make(map[string]ZoneState),
		Clients:     make(map[string]ClientState),
		Streams:     make(map[string]StreamState),
		LastUpdated: time.Now().UTC(),
	}
}

// Clone returns a deep copy of the snapshot. Transforms receive a clone so
// that a buggy transform can never corrupt the committed snapshot.
func (s *SystemState) Clone() *SystemState {
	if s == nil {
		return nil
	}
	c := &SystemState{
		Version:     s.Version,
		Status:      s.Status,
		Zones:       make(map[string]ZoneState, len(s.Zones)),
		Clients:     make(map[string]ClientState, len(s.Clients)),
		Streams:     make(map[string]StreamState, len(s.Streams)),
		Metadata:    s.Metadata.clone(),
		LastUpdated: s.LastUpdated,
	}
	for id, z := range s.Zones {
		c.Zones[id] = z.clone()
	}
	for id, cl := range s.Clients {
		c.Clients[id] = cl
	}
	for id, st := range s.Streams {
		c.Streams[id] = st
	}
	return c
}

// Zone returns the zone with the given ID, if present.
func (s *SystemState) Zone(id string) (ZoneState, bool) {
	z, ok := s.Zones[id]
	return z, ok
}

// Client returns the client with the given ID, if present.
func (s *SystemState) Client(id string) (ClientState, bool) {
	c, ok := s.Clients[id]
	return c, ok
}

// Stream returns the stream with the given ID, if present.
func (s *SystemState) Stream(id string) (StreamState, bool) {
	st, ok := s.Streams[id]
	return st, ok
}

// ZoneIDs returns all zone IDs in sorted order.
func (s *SystemState) ZoneIDs() []string {
	ids := make([]string, 0, len(s.Zones))
	for id := range s.Zones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
