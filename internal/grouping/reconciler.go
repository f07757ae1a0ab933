package grouping

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/soundmesh/soundmesh-core/internal/routing"
	"github.com/soundmesh/soundmesh-core/internal/state"
)

// AudioRouter is the slice of the routing surface the reconciler needs.
type AudioRouter interface {
	Status(ctx context.Context) (*routing.ServerStatus, error)
	MoveClientToGroup(ctx context.Context, clientID, groupID string) error
	CreateGroup(ctx context.Context, clientIDs []string) (string, error)
	SetGroupStream(ctx context.Context, groupID, streamID string) error
	SetGroupName(ctx context.Context, groupID, name string) error
	SetClientName(ctx context.Context, clientID, name string) error
}

// StateSource supplies the committed logical snapshot.
type StateSource interface {
	Current() (*state.SystemState, error)
}

// Logger is the optional logging interface for the reconciler.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Reconciler maps logical zones onto the routing server's physical groups.
//
// All corrective operations share one algorithm: snapshot logical state,
// snapshot the server once, compute each zone's expected group, and move
// only the clients whose actual group differs. It never holds the state
// store's write lock across network I/O.
type Reconciler struct {
	states StateSource
	router AudioRouter
	logger Logger
}

// New creates a Reconciler over the given state source and router.
func New(states StateSource, router AudioRouter) *Reconciler {
	return &Reconciler{states: states, router: router, logger: noopLogger{}}
}

// SetLogger sets the logger. Not safe to call concurrently with passes.
func (r *Reconciler) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// zonePlan is one zone's slice of the two snapshots.
type zonePlan struct {
	zone state.ZoneState

	// routingStreamID is the server-side stream the zone's group must be
	// bound to; empty when the zone has no stream (grouping not applicable).
	routingStreamID string

	// expectedGroupID is the server group bound to routingStreamID,
	// empty when no such group exists yet.
	expectedGroupID string

	members []memberPlan

	// planErrors are per-member problems found while planning (unknown
	// client, missing routing identifier).
	planErrors []ItemError
}

type memberPlan struct {
	clientID        string
	routingClientID string
	actualGroupID   string // empty when the server does not report the client
}

func (m memberPlan) inGroup(groupID string) bool {
	return groupID != "" && m.actualGroupID == groupID
}

// planZone resolves one zone against the logical and physical snapshots.
func planZone(sys *state.SystemState, status *routing.ServerStatus, zone state.ZoneState) zonePlan {
	plan := zonePlan{zone: zone}

	if zone.CurrentStreamID != "" {
		stream, ok := sys.Stream(zone.CurrentStreamID)
		if !ok {
			plan.planErrors = append(plan.planErrors, ItemError{
				ZoneID: zone.ID,
				Err:    fmt.Errorf("stream %q not configured", zone.CurrentStreamID),
			})
			return plan
		}
		plan.routingStreamID = stream.AudioRoutingStreamPath

		for _, g := range status.Groups {
			if g.StreamID == plan.routingStreamID {
				plan.expectedGroupID = g.ID
				break
			}
		}
	}

	clientIDs := append([]string(nil), zone.ClientIDs...)
	sort.Strings(clientIDs)
	for _, clientID := range clientIDs {
		client, ok := sys.Client(clientID)
		if !ok {
			plan.planErrors = append(plan.planErrors, ItemError{
				ZoneID:   zone.ID,
				ClientID: clientID,
				Err:      fmt.Errorf("client not present in state"),
			})
			continue
		}
		if client.AudioRoutingClientID == "" {
			plan.planErrors = append(plan.planErrors, ItemError{
				ZoneID:   zone.ID,
				ClientID: clientID,
				Err:      fmt.Errorf("client has no audio-routing identifier"),
			})
			continue
		}

		member := memberPlan{clientID: clientID, routingClientID: client.AudioRoutingClientID}
		if g, ok := status.GroupOfClient(client.AudioRoutingClientID); ok {
			member.actualGroupID = g.ID
		}
		plan.members = append(plan.members, member)
	}

	return plan
}

// ReconcileAllZoneGroupings runs a corrective pass over every zone and
// returns a structured report of every move, creation and error. The
// returned error is non-nil only for pass-fatal conditions (state store
// closed, routing server unreachable, cancellation); per-item failures
// live in the report.
func (r *Reconciler) ReconcileAllZoneGroupings(ctx context.Context) (*ReconciliationReport, error) {
	sys, status, err := r.snapshots(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	for _, zoneID := range sys.ZoneIDs() {
		if err := ctx.Err(); err != nil {
			// Moves already issued stand; the rest waits for the next pass.
			return report, err
		}
		zone, _ := sys.Zone(zoneID)
		r.reconcileZone(ctx, sys, status, zone, "", report)
	}

	r.observeUnassigned(sys, status)
	return report, nil
}

// EnsureZoneGrouping is ReconcileAllZoneGroupings reduced to pass/fail:
// it returns an error only when the pass itself could not run.
func (r *Reconciler) EnsureZoneGrouping(ctx context.Context) error {
	report, err := r.ReconcileAllZoneGroupings(ctx)
	if err != nil {
		return err
	}
	r.logReport(report)
	return nil
}

// SynchronizeZoneGrouping runs the corrective algorithm for one zone,
// typically after its stream or client assignment changed.
func (r *Reconciler) SynchronizeZoneGrouping(ctx context.Context, zoneID string) (*ReconciliationReport, error) {
	sys, status, err := r.snapshots(ctx)
	if err != nil {
		return nil, err
	}

	zone, ok := sys.Zone(zoneID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrZoneNotFound, zoneID)
	}

	report := &ReconciliationReport{StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	r.reconcileZone(ctx, sys, status, zone, "", report)
	return report, nil
}

// EnsureClientInZoneGroup corrects the placement of a single client, the
// primitive the zone and full passes are built from.
func (r *Reconciler) EnsureClientInZoneGroup(ctx context.Context, clientID, zoneID string) error {
	sys, status, err := r.snapshots(ctx)
	if err != nil {
		return err
	}

	zone, ok := sys.Zone(zoneID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrZoneNotFound, zoneID)
	}
	if _, ok := sys.Client(clientID); !ok {
		return fmt.Errorf("%w: %q", ErrClientNotFound, clientID)
	}
	if !zone.HasClient(clientID) {
		return fmt.Errorf("%w: client %q, zone %q", ErrClientNotAssigned, clientID, zoneID)
	}

	report := &ReconciliationReport{StartedAt: time.Now()}
	r.reconcileZone(ctx, sys, status, zone, clientID, report)
	report.Duration = time.Since(report.StartedAt)

	if len(report.Errors) > 0 {
		return fmt.Errorf("correct client %q in zone %q: %w", clientID, zoneID, report.Errors[0].Err)
	}
	return nil
}

// reconcileZone applies the shared corrective algorithm to one zone.
// When onlyClient is non-empty the pass is narrowed to that member.
//
// Zones without a stream have no group binding and are skipped; zones
// whose expected group does not exist get one created — bound to the
// stream before any client lands in it — unless they have no members,
// since the server cannot represent an empty group.
func (r *Reconciler) reconcileZone(ctx context.Context, sys *state.SystemState, status *routing.ServerStatus, zone state.ZoneState, onlyClient string, report *ReconciliationReport) {
	report.ZonesProcessed++

	plan := planZone(sys, status, zone)
	for _, e := range plan.planErrors {
		if onlyClient != "" && e.ClientID != onlyClient {
			continue
		}
		report.Errors = append(report.Errors, e)
	}

	if plan.routingStreamID == "" {
		if len(plan.planErrors) == 0 {
			r.logger.Debug("zone has no stream, skipping grouping", "zone_id", zone.ID)
		}
		return
	}

	members := plan.members
	if onlyClient != "" {
		members = members[:0:0]
		for _, m := range plan.members {
			if m.clientID == onlyClient {
				members = append(members, m)
			}
		}
	}
	report.ClientsChecked += len(members)

	if len(members) == 0 {
		return
	}

	expected := plan.expectedGroupID
	if expected == "" {
		created, err := r.createZoneGroup(ctx, zone, plan.routingStreamID, members)
		if err != nil {
			report.Errors = append(report.Errors, ItemError{ZoneID: zone.ID, Err: err})
			return
		}
		report.GroupsCreated = append(report.GroupsCreated, GroupCreation{
			ZoneID:   zone.ID,
			GroupID:  created,
			StreamID: plan.routingStreamID,
		})
		// Creation placed every member; record the implied moves.
		for _, m := range members {
			if m.actualGroupID == created {
				continue
			}
			report.Moves = append(report.Moves, Move{
				ZoneID:          zone.ID,
				ClientID:        m.clientID,
				RoutingClientID: m.routingClientID,
				FromGroupID:     m.actualGroupID,
				ToGroupID:       created,
			})
		}
		return
	}

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return
		}
		if m.inGroup(expected) {
			continue
		}

		// The contamination case: the client sits in a foreign group (or
		// none). Moving just this client leaves that group's legitimate
		// members untouched.
		if err := r.router.MoveClientToGroup(ctx, m.routingClientID, expected); err != nil {
			report.Errors = append(report.Errors, ItemError{ZoneID: zone.ID, ClientID: m.clientID, Err: err})
			continue
		}
		report.Moves = append(report.Moves, Move{
			ZoneID:          zone.ID,
			ClientID:        m.clientID,
			RoutingClientID: m.routingClientID,
			FromGroupID:     m.actualGroupID,
			ToGroupID:       expected,
		})
	}
}

// createZoneGroup creates and binds a group for a zone's members.
func (r *Reconciler) createZoneGroup(ctx context.Context, zone state.ZoneState, routingStreamID string, members []memberPlan) (string, error) {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.routingClientID
	}

	groupID, err := r.router.CreateGroup(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("create group: %w", err)
	}
	if err := r.router.SetGroupStream(ctx, groupID, routingStreamID); err != nil {
		return "", fmt.Errorf("bind group %q to stream %q: %w", groupID, routingStreamID, err)
	}
	if zone.Name != "" {
		if err := r.router.SetGroupName(ctx, groupID, zone.Name); err != nil {
			// Cosmetic only; the binding and membership are already right.
			r.logger.Warn("rename created group failed",
				"zone_id", zone.ID, "group_id", groupID, "error", err)
		}
	}

	r.logger.Info("created routing group for zone",
		"zone_id", zone.ID, "group_id", groupID, "stream", routingStreamID)
	return groupID, nil
}

// GetZoneGroupingStatus returns the diagnostic view of the same
// computation the corrective passes run, without changing anything.
func (r *Reconciler) GetZoneGroupingStatus(ctx context.Context) (*GroupingStatus, error) {
	sys, status, err := r.snapshots(ctx)
	if err != nil {
		return nil, err
	}

	view := &GroupingStatus{CheckedAt: time.Now()}
	for _, zoneID := range sys.ZoneIDs() {
		zone, _ := sys.Zone(zoneID)
		plan := planZone(sys, status, zone)

		zs := ZoneGroupingStatus{
			ZoneID:          zone.ID,
			ZoneName:        zone.Name,
			StreamID:        zone.CurrentStreamID,
			RoutingStreamID: plan.routingStreamID,
			ExpectedGroupID: plan.expectedGroupID,
		}
		for _, m := range plan.members {
			inExpected := plan.expectedGroupID != "" && m.inGroup(plan.expectedGroupID)
			zs.Members = append(zs.Members, MemberStatus{
				ClientID:        m.clientID,
				RoutingClientID: m.routingClientID,
				ActualGroupID:   m.actualGroupID,
				InExpectedGroup: inExpected,
			})
			// A zone with no stream has nothing to be consistent with.
			if plan.routingStreamID != "" && !inExpected {
				zs.Discrepancies++
			}
		}
		view.Zones = append(view.Zones, zs)
	}

	return view, nil
}

// ValidateGroupingConsistency is the read-only check: it returns
// ErrInconsistent if and only if at least one client's actual group
// differs from its zone's expected group, and never issues corrections.
func (r *Reconciler) ValidateGroupingConsistency(ctx context.Context) error {
	view, err := r.GetZoneGroupingStatus(ctx)
	if err != nil {
		return err
	}
	if n := view.TotalDiscrepancies(); n > 0 {
		return fmt.Errorf("%w: %d client(s) out of place", ErrInconsistent, n)
	}
	return nil
}

// SynchronizeClientNames pushes configured friendly names to the routing
// server wherever the observed name differs, so external tooling shows
// room names instead of hardware identifiers.
func (r *Reconciler) SynchronizeClientNames(ctx context.Context) (*NameSyncReport, error) {
	sys, status, err := r.snapshots(ctx)
	if err != nil {
		return nil, err
	}

	report := &NameSyncReport{}

	clientIDs := make([]string, 0, len(sys.Clients))
	for id := range sys.Clients {
		clientIDs = append(clientIDs, id)
	}
	sort.Strings(clientIDs)

	for _, clientID := range clientIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		client := sys.Clients[clientID]
		if client.Name == "" || client.AudioRoutingClientID == "" {
			continue
		}
		observed, ok := status.ClientByID(client.AudioRoutingClientID)
		if !ok {
			continue // never seen by the server, nothing to rename
		}
		report.Checked++
		if observed.Name == client.Name {
			continue
		}

		if err := r.router.SetClientName(ctx, client.AudioRoutingClientID, client.Name); err != nil {
			report.Errors = append(report.Errors, ItemError{ClientID: clientID, Err: err})
			continue
		}
		report.Renamed = append(report.Renamed, ClientRename{
			ClientID:        clientID,
			RoutingClientID: client.AudioRoutingClientID,
			From:            observed.Name,
			To:              client.Name,
		})
	}

	return report, nil
}

// snapshots fetches the logical snapshot and one consistent server view.
// No corrective action happens before both succeed.
func (r *Reconciler) snapshots(ctx context.Context) (*state.SystemState, *routing.ServerStatus, error) {
	sys, err := r.states.Current()
	if err != nil {
		return nil, nil, fmt.Errorf("read state snapshot: %w", err)
	}
	status, err := r.router.Status(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch routing server status: %w", err)
	}
	return sys, status, nil
}

// observeUnassigned logs clients that have no zone but are present in
// some server group. They are deliberately left alone: removal would be
// a policy choice with no owner, so reconciliation only reports them.
func (r *Reconciler) observeUnassigned(sys *state.SystemState, status *routing.ServerStatus) {
	for id, client := range sys.Clients {
		if client.ZoneID != "" || client.AudioRoutingClientID == "" {
			continue
		}
		if g, ok := status.GroupOfClient(client.AudioRoutingClientID); ok {
			r.logger.Debug("unassigned client present in routing group, leaving alone",
				"client_id", id, "group_id", g.ID)
		}
	}
}

func (r *Reconciler) logReport(report *ReconciliationReport) {
	if report.Clean() {
		r.logger.Debug("grouping pass clean",
			"zones", report.ZonesProcessed, "clients", report.ClientsChecked)
		return
	}
	r.logger.Info("grouping pass corrected drift",
		"zones", report.ZonesProcessed,
		"clients", report.ClientsChecked,
		"moves", len(report.Moves),
		"groups_created", len(report.GroupsCreated),
		"errors", len(report.Errors),
		"duration", report.Duration.String())
	for _, e := range report.Errors {
		r.logger.Warn("grouping item failed", "detail", e.String())
	}
}
