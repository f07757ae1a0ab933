package grouping

import (
	"fmt"
	"time"
)

// Move records one corrective client move performed during a pass.
type Move struct {
	// ZoneID is the zone whose assignment drove the move.
	ZoneID string

	// ClientID is the SoundMesh client identifier.
	ClientID string

	// RoutingClientID is the audio-routing server's identifier.
	RoutingClientID string

	// FromGroupID is the group the client was found in (empty if none).
	FromGroupID string

	// ToGroupID is the zone's expected group.
	ToGroupID string
}

// GroupCreation records a group created for a zone during a pass.
type GroupCreation struct {
	ZoneID   string
	GroupID  string
	StreamID string
}

// ItemError records a per-zone or per-client failure that did not abort
// the pass.
type ItemError struct {
	ZoneID   string
	ClientID string
	Err      error
}

func (e ItemError) String() string {
	switch {
	case e.ClientID != "":
		return fmt.Sprintf("zone %s client %s: %v", e.ZoneID, e.ClientID, e.Err)
	case e.ZoneID != "":
		return fmt.Sprintf("zone %s: %v", e.ZoneID, e.Err)
	default:
		return e.Err.Error()
	}
}

// ReconciliationReport is the structured outcome of a corrective pass.
type ReconciliationReport struct {
	StartedAt      time.Time
	Duration       time.Duration
	ZonesProcessed int
	ClientsChecked int

	// Moves are the corrective moves performed.
	Moves []Move

	// GroupsCreated are the groups created for zones that had none.
	GroupsCreated []GroupCreation

	// Errors are per-item failures; the rest of the pass still ran.
	Errors []ItemError
}

// Clean reports whether the pass found nothing to correct and hit no errors.
func (r *ReconciliationReport) Clean() bool {
	return len(r.Moves) == 0 && len(r.GroupsCreated) == 0 && len(r.Errors) == 0
}

// OK reports whether the pass completed without per-item failures.
func (r *ReconciliationReport) OK() bool {
	return len(r.Errors) == 0
}

// ClientRename records one name pushed to the routing server.
type ClientRename struct {
	ClientID        string
	RoutingClientID string
	From            string
	To              string
}

// NameSyncReport is the outcome of a client-name synchronization pass.
type NameSyncReport struct {
	Checked int
	Renamed []ClientRename
	Errors  []ItemError
}

// MemberStatus is the observed placement of one zone member.
type MemberStatus struct {
	ClientID        string
	RoutingClientID string

	// ActualGroupID is the group currently containing the client
	// (empty if the server does not report the client at all).
	ActualGroupID string

	// InExpectedGroup is true when the client sits where it belongs.
	InExpectedGroup bool
}

// ZoneGroupingStatus is the diagnostic view of one zone's grouping.
type ZoneGroupingStatus struct {
	ZoneID   string
	ZoneName string

	// StreamID is the zone's logical stream (empty if unset).
	StreamID string

	// RoutingStreamID is the external identifier the expected group must
	// be bound to.
	RoutingStreamID string

	// ExpectedGroupID is the group bound to the zone's stream
	// (empty if no such group exists yet).
	ExpectedGroupID string

	Members []MemberStatus

	// Discrepancies counts members not in the expected group.
	Discrepancies int
}

// GroupingStatus is the diagnostic view across all zones.
type GroupingStatus struct {
	CheckedAt time.Time
	Zones     []ZoneGroupingStatus
}

// Consistent reports whether every member of every zone is in its
// expected group.
func (s *GroupingStatus) Consistent() bool {
	for _, z := range s.Zones {
		if z.Discrepancies > 0 {
			return false
		}
	}
	return true
}

// TotalDiscrepancies sums discrepancies across zones.
func (s *GroupingStatus) TotalDiscrepancies() int {
	n := 0
	for _, z := range s.Zones {
		n += z.Discrepancies
	}
	return n
}
