package commands

import "errors"

// Domain errors for command operations.
// Use errors.Is() to map these to surface-specific responses.
var (
	// ErrZoneNotFound is returned for commands naming an unknown zone.
	ErrZoneNotFound = errors.New("commands: zone not found")

	// ErrClientNotFound is returned for commands naming an unknown client.
	ErrClientNotFound = errors.New("commands: client not found")

	// ErrStreamNotFound is returned when a zone is pointed at an unknown stream.
	ErrStreamNotFound = errors.New("commands: stream not found")

	// ErrClientNotAssigned is returned when unassigning a client from a zone
	// it is not a member of.
	ErrClientNotAssigned = errors.New("commands: client not assigned to zone")

	// ErrInvalidArgument is returned for out-of-range or missing values.
	ErrInvalidArgument = errors.New("commands: invalid argument")
)
