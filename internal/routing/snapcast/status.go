package snapcast

import (
	"encoding/json"
	"fmt"

	"github.com/soundmesh/soundmesh-core/internal/routing"
)

// Wire shapes for Server.GetStatus, matching the Snapcast JSON layout.

type statusResult struct {
	Server serverStatus `json:"server"`
}

type serverStatus struct {
	Groups  []wireGroup  `json:"groups"`
	Streams []wireStream `json:"streams"`
}

type wireGroup struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	StreamID string       `json:"stream_id"`
	Muted    bool         `json:"muted"`
	Clients  []wireClient `json:"clients"`
}

type wireClient struct {
	ID        string     `json:"id"`
	Connected bool       `json:"connected"`
	Config    wireConfig `json:"config"`
	Host      wireHost   `json:"host"`
}

type wireConfig struct {
	Name    string     `json:"name"`
	Latency int        `json:"latency"`
	Volume  wireVolume `json:"volume"`
}

type wireVolume struct {
	Muted   bool `json:"muted"`
	Percent int  `json:"percent"`
}

type wireHost struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

type wireStream struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	URI    wireURI `json:"uri"`
}

type wireURI struct {
	Raw string `json:"raw"`
}

// parseStatus converts a Server.GetStatus result into the routing model.
func parseStatus(result json.RawMessage) (*routing.ServerStatus, error) {
	var wire statusResult
	if err := json.Unmarshal(result, &wire); err != nil {
		return nil, fmt.Errorf("decode server status: %w", err)
	}

	status := &routing.ServerStatus{
		Groups:  make([]routing.Group, 0, len(wire.Server.Groups)),
		Streams: make([]routing.Stream, 0, len(wire.Server.Streams)),
	}

	for _, g := range wire.Server.Groups {
		group := routing.Group{
			ID:       g.ID,
			Name:     g.Name,
			StreamID: g.StreamID,
			Muted:    g.Muted,
			Clients:  make([]routing.Client, 0, len(g.Clients)),
		}
		for _, c := range g.Clients {
			name := c.Config.Name
			if name == "" {
				// Unnamed clients fall back to their host name.
				name = c.Host.Name
			}
			group.Clients = append(group.Clients, routing.Client{
				ID:        c.ID,
				Name:      name,
				Connected: c.Connected,
				Volume:    c.Config.Volume.Percent,
				Muted:     c.Config.Volume.Muted,
				LatencyMs: c.Config.Latency,
				Host:      c.Host.Name,
			})
		}
		status.Groups = append(status.Groups, group)
	}

	for _, s := range wire.Server.Streams {
		status.Streams = append(status.Streams, routing.Stream{
			ID:     s.ID,
			Status: s.Status,
			URI:    s.URI.Raw,
		})
	}

	return status, nil
}
