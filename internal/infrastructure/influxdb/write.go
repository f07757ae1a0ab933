package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteZoneStatus records one zone's audio state.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - zoneID: Zone identifier (e.g., "kitchen")
//   - streamID: Stream the zone is playing, empty when idle
//   - volume: Zone volume percent
//   - muted: Whether the zone is muted
//   - playing: Whether playback is active
func (c *Client) WriteZoneStatus(zoneID, streamID string, volume int, muted, playing bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"zone_status",
		map[string]string{
			"zone_id": zoneID,
		},
		map[string]interface{}{
			"stream_id": streamID,
			"volume":    volume,
			"muted":     muted,
			"playing":   playing,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteClientStatus records one audio client's state.
//
// Parameters:
//   - clientID: Client identifier (e.g., "kitchen-left")
//   - volume: Client volume percent
//   - muted: Whether the client is muted
//   - connected: Whether the routing server reports the client online
func (c *Client) WriteClientStatus(clientID string, volume int, muted, connected bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"client_status",
		map[string]string{
			"client_id": clientID,
		},
		map[string]interface{}{
			"volume":    volume,
			"muted":     muted,
			"connected": connected,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteGroupingPass records the outcome of one grouping reconciliation pass.
//
// Parameters:
//   - zones: Zones processed
//   - clients: Clients checked
//   - moves: Corrective moves issued
//   - created: Groups created
//   - itemErrors: Per-item failures collected in the report
//   - duration: Pass duration
//   - passFailed: Whether the pass itself aborted (server unreachable)
func (c *Client) WriteGroupingPass(zones, clients, moves, created, itemErrors int, duration time.Duration, passFailed bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"grouping_pass",
		map[string]string{},
		map[string]interface{}{
			"zones":       zones,
			"clients":     clients,
			"moves":       moves,
			"created":     created,
			"errors":      itemErrors,
			"duration_ms": duration.Milliseconds(),
			"failed":      passFailed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Example:
//
//	client.WritePoint("queue_stats",
//	    map[string]string{"publisher": "mqtt"},
//	    map[string]interface{}{"published": 120, "dropped": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
