package notify

import "time"

// Scope identifies which ordered channel a notification travels on.
// Ordering is guaranteed per scope, not across scopes.
type Scope string

const (
	ScopeZone   Scope = "zone"
	ScopeClient Scope = "client"
	ScopeGlobal Scope = "global"
)

// Event types carried on the queue. Each names the status aspect that
// changed; the payload holds the full current value.
const (
	EventVolume   = "volume"
	EventMute     = "mute"
	EventStream   = "stream"
	EventPlayback = "playback"
	EventStatus   = "status"
	EventGrouping = "grouping"
)

// Notification is one queued status announcement.
type Notification struct {
	Scope      Scope
	EventType  string
	EntityID   string // zone or client ID; empty for global scope
	Payload    any
	EnqueuedAt time.Time
}

// ZoneStatus is the payload for zone-scoped notifications.
type ZoneStatus struct {
	ZoneID   string `json:"zone_id"`
	Name     string `json:"name,omitempty"`
	StreamID string `json:"stream_id,omitempty"`
	Volume   int    `json:"volume"`
	Muted    bool   `json:"muted"`
	Playing  bool   `json:"playing"`
}

// ClientStatus is the payload for client-scoped notifications.
type ClientStatus struct {
	ClientID  string `json:"client_id"`
	Name      string `json:"name,omitempty"`
	ZoneID    string `json:"zone_id,omitempty"`
	Volume    int    `json:"volume"`
	Muted     bool   `json:"muted"`
	Connected bool   `json:"connected"`
}

// SystemStatus is the payload for global notifications.
type SystemStatus struct {
	Status string `json:"status"`
}
