package state

// Volume bounds for zones and clients.
const (
	minVolume = 0
	maxVolume = 100
)

// Validate runs the structural invariants against a snapshot.
//
// Checked invariants:
//   - version is at least 1
//   - system status is a recognised value
//   - map keys match the embedded entity IDs
//   - volumes are within 0-100
//   - a zone's current stream references an existing stream
//   - zone/client assignment is bidirectionally consistent: every client ID
//     listed by a zone exists and points back at that zone, and every client
//     with a zone assignment is listed by that zone
//
// Returns an *InvalidStateError describing the first violation, or nil.
func Validate(s *SystemState) error {
	if s == nil {
		return invalidState("snapshot is nil")
	}
	if s.Version < 1 {
		return invalidState("version %d is below 1", s.Version)
	}
	if !ValidSystemStatus(s.Status) {
		return invalidState("unknown system status %q", s.Status)
	}

	for id, z := range s.Zones {
		if z.ID != id {
			return invalidState("zone map key %q does not match zone ID %q", id, z.ID)
		}
		if z.Volume < minVolume || z.Volume > maxVolume {
			return invalidState("zone %q volume %d out of range", id, z.Volume)
		}
		if z.CurrentStreamID != "" {
			if _, ok := s.Streams[z.CurrentStreamID]; !ok {
				return invalidState("zone %q references unknown stream %q", id, z.CurrentStreamID)
			}
		}
		seen := make(map[string]bool, len(z.ClientIDs))
		for _, clientID := range z.ClientIDs {
			if seen[clientID] {
				return invalidState("zone %q lists client %q twice", id, clientID)
			}
			seen[clientID] = true
			client, ok := s.Clients[clientID]
			if !ok {
				return invalidState("zone %q references unknown client %q", id, clientID)
			}
			if client.ZoneID != id {
				return invalidState("zone %q lists client %q assigned to zone %q", id, clientID, client.ZoneID)
			}
		}
	}

	for id, c := range s.Clients {
		if c.ID != id {
			return invalidState("client map key %q does not match client ID %q", id, c.ID)
		}
		if c.Volume < minVolume || c.Volume > maxVolume {
			return invalidState("client %q volume %d out of range", id, c.Volume)
		}
		if c.ZoneID != "" {
			zone, ok := s.Zones[c.ZoneID]
			if !ok {
				return invalidState("client %q references unknown zone %q", id, c.ZoneID)
			}
			if !zone.HasClient(id) {
				return invalidState("client %q assigned to zone %q which does not list it", id, c.ZoneID)
			}
		}
	}

	for id, st := range s.Streams {
		if st.ID != id {
			return invalidState("stream map key %q does not match stream ID %q", id, st.ID)
		}
	}

	return nil
}
