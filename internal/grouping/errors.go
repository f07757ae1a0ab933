package grouping

import "errors"

// Domain errors for grouping reconciliation.
var (
	// ErrInconsistent is returned by the read-only consistency check when
	// at least one client's physical group differs from its logical zone.
	ErrInconsistent = errors.New("grouping: physical grouping differs from zone assignments")

	// ErrZoneNotFound is returned for operations scoped to an unknown zone.
	ErrZoneNotFound = errors.New("grouping: zone not found")

	// ErrClientNotFound is returned for operations scoped to an unknown client.
	ErrClientNotFound = errors.New("grouping: client not found")

	// ErrClientNotAssigned is returned when a single-client correction is
	// requested for a client that is not assigned to the given zone.
	ErrClientNotAssigned = errors.New("grouping: client not assigned to zone")
)
