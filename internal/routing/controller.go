package routing

import (
	"context"
	"errors"
)

// Domain errors for routing server access.
var (
	// ErrNotConnected is returned when the routing server connection is down.
	ErrNotConnected = errors.New("routing: not connected to audio-routing server")

	// ErrServerFault is returned when the server rejects a request.
	ErrServerFault = errors.New("routing: server rejected request")
)

// Controller is the command surface of the audio-routing server.
//
// The methods mirror the server's own primitives; higher-level moves
// (creating a group for a zone, evicting foreign clients) are composed
// by the grouping reconciler. Implementations must be safe for
// concurrent use.
type Controller interface {
	// Status fetches the server's current physical topology.
	Status(ctx context.Context) (*ServerStatus, error)

	// SetGroupClients replaces a group's membership. Clients removed
	// from the group are re-homed by the server into a fresh group of
	// their own, so membership writes never orphan a client.
	SetGroupClients(ctx context.Context, groupID string, clientIDs []string) error

	// MoveClientToGroup moves one client into the given group without
	// disturbing the group's existing members. The server removes the
	// client from its previous group as a side effect.
	MoveClientToGroup(ctx context.Context, clientID, groupID string) error

	// CreateGroup makes a new group containing exactly the given
	// clients and returns its server-assigned ID. At least one client
	// is required; the server has no notion of an empty group.
	CreateGroup(ctx context.Context, clientIDs []string) (string, error)

	// SetGroupStream binds a group to a stream.
	SetGroupStream(ctx context.Context, groupID, streamID string) error

	// SetGroupName renames a group.
	SetGroupName(ctx context.Context, groupID, name string) error

	// SetClientName renames a client.
	SetClientName(ctx context.Context, clientID, name string) error

	// SetClientVolume sets a client's volume percentage and mute flag.
	SetClientVolume(ctx context.Context, clientID string, percent int, muted bool) error

	// SetClientLatency sets a client's latency compensation in milliseconds.
	SetClientLatency(ctx context.Context, clientID string, latencyMs int) error

	// IsConnected reports whether the server connection is up.
	IsConnected() bool

	// Close tears down the connection.
	Close() error
}
