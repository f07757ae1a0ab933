package routing

// Client is a speaker endpoint as reported by the audio-routing server.
type Client struct {
	// ID is the server-assigned client identifier (usually MAC-derived).
	ID string

	// Name is the client's configured display name.
	Name string

	// Connected reports whether the client currently has a live connection.
	Connected bool

	// Volume is the client volume percentage (0-100).
	Volume int

	// Muted reports whether the client is muted.
	Muted bool

	// LatencyMs is the configured playback latency compensation.
	LatencyMs int

	// Host is the hostname of the machine running the client.
	Host string
}

// Group is a set of clients playing the same stream.
type Group struct {
	// ID is the server-assigned group identifier.
	ID string

	// Name is the group's display name (empty for unnamed groups).
	Name string

	// StreamID is the stream the group is bound to.
	StreamID string

	// Muted reports whether the whole group is muted.
	Muted bool

	// Clients are the members of this group. The server keeps every
	// client in exactly one group at all times.
	Clients []Client
}

// ClientIDs returns the IDs of the group's members.
func (g Group) ClientIDs() []string {
	ids := make([]string, len(g.Clients))
	for i, c := range g.Clients {
		ids[i] = c.ID
	}
	return ids
}

// HasClient reports whether the group contains the given client.
func (g Group) HasClient(clientID string) bool {
	for _, c := range g.Clients {
		if c.ID == clientID {
			return true
		}
	}
	return false
}

// Stream is an audio source registered with the routing server.
type Stream struct {
	// ID is the stream identifier.
	ID string

	// Status is the stream state as reported by the server
	// ("idle", "playing", "disabled").
	Status string

	// URI is the stream's source descriptor.
	URI string
}

// ServerStatus is a point-in-time snapshot of the routing server's
// physical topology.
type ServerStatus struct {
	Groups  []Group
	Streams []Stream
}

// GroupByID returns the group with the given ID.
func (s *ServerStatus) GroupByID(groupID string) (Group, bool) {
	for _, g := range s.Groups {
		if g.ID == groupID {
			return g, true
		}
	}
	return Group{}, false
}

// GroupOfClient returns the group currently containing the given client.
func (s *ServerStatus) GroupOfClient(clientID string) (Group, bool) {
	for _, g := range s.Groups {
		if g.HasClient(clientID) {
			return g, true
		}
	}
	return Group{}, false
}

// StreamByID returns the stream with the given ID.
func (s *ServerStatus) StreamByID(streamID string) (Stream, bool) {
	for _, st := range s.Streams {
		if st.ID == streamID {
			return st, true
		}
	}
	return Stream{}, false
}

// AllClients returns every client across all groups.
func (s *ServerStatus) AllClients() []Client {
	var clients []Client
	for _, g := range s.Groups {
		clients = append(clients, g.Clients...)
	}
	return clients
}

// ClientByID returns the client with the given ID, wherever it lives.
func (s *ServerStatus) ClientByID(clientID string) (Client, bool) {
	for _, g := range s.Groups {
		for _, c := range g.Clients {
			if c.ID == clientID {
				return c, true
			}
		}
	}
	return Client{}, false
}
