package commands

import (
	"context"
	"fmt"

	"github.com/soundmesh/soundmesh-core/internal/audit"
	"github.com/soundmesh/soundmesh-core/internal/notify"
	"github.com/soundmesh/soundmesh-core/internal/routing"
	"github.com/soundmesh/soundmesh-core/internal/state"
)

// Command value bounds.
const (
	minVolume    = 0
	maxVolume    = 100
	maxLatencyMs = 10000
)

// Notifier accepts status notifications resulting from commands. Enqueue
// calls must not block on network I/O; delivery happens asynchronously.
type Notifier interface {
	EnqueueZone(ctx context.Context, eventType, zoneID string, payload any) error
	EnqueueClient(ctx context.Context, eventType, clientID string, payload any) error
	EnqueueGlobal(ctx context.Context, eventType string, payload any) error
}

// Trigger requests an out-of-schedule grouping pass after topology changes.
type Trigger interface {
	Trigger()
}

// Auditor receives one entry per successful mutation.
type Auditor interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// Logger is the minimal logging surface the service needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Service executes zone and client commands against the state store and
// routing server. All methods are safe for concurrent use.
//
// Router, Notify, and Trigger are optional: commands still commit logical
// state without them.
type Service struct {
	states  *state.Store
	router  routing.Controller
	notify  Notifier
	trigger Trigger
	auditor Auditor
	logger  Logger
}

// New creates a command service. states is required.
func New(states *state.Store, router routing.Controller, notifier Notifier, trigger Trigger) *Service {
	return &Service{
		states:  states,
		router:  router,
		notify:  notifier,
		trigger: trigger,
		logger:  noopLogger{},
	}
}

// SetLogger replaces the no-op logger.
func (s *Service) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetAuditor enables the command audit trail.
func (s *Service) SetAuditor(auditor Auditor) {
	s.auditor = auditor
}

// SetZoneVolume sets a zone's volume. The value fans out to every member
// client, logically and on the routing server.
func (s *Service) SetZoneVolume(ctx context.Context, zoneID string, volume int) (state.ZoneState, error) {
	if volume < minVolume || volume > maxVolume {
		return state.ZoneState{}, fmt.Errorf("%w: volume %d out of range 0-100", ErrInvalidArgument, volume)
	}

	var missing bool
	updated, err := s.states.Update(func(sys *state.SystemState) *state.SystemState {
		zone, ok := sys.Zones[zoneID]
		if !ok {
			missing = true
			return nil
		}
		zone.Volume = volume
		sys.Zones[zoneID] = zone
		for _, clientID := range zone.ClientIDs {
			c := sys.Clients[clientID]
			c.Volume = volume
			sys.Clients[clientID] = c
		}
		return sys
	})
	if missing {
		return state.ZoneState{}, fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	if err != nil {
		return state.ZoneState{}, fmt.Errorf("committing zone volume: %w", err)
	}

	zone := updated.Zones[zoneID]
	s.applyMemberVolumes(ctx, updated, zone)
	s.notifyZone(ctx, notify.EventVolume, zone)
	for _, clientID := range zone.ClientIDs {
		s.notifyClient(ctx, notify.EventVolume, updated.Clients[clientID])
	}
	s.record(ctx, "zone.volume", audit.EntityZone, zoneID, map[string]any{"volume": volume})
	return zone, nil
}

// SetZoneMute sets a zone's mute flag, fanning out to member clients.
func (s *Service) SetZoneMute(ctx context.Context, zoneID string, muted bool) (state.ZoneState, error) {
	var missing bool
	updated, err := s.states.Update(func(sys *state.SystemState) *state.SystemState {
		zone, ok := sys.Zones[zoneID]
		if !ok {
			missing = true
			return nil
		}
		zone.Muted = muted
		sys.Zones[zoneID] = zone
		for _, clientID := range zone.ClientIDs {
			c := sys.Clients[clientID]
			c.Muted = muted
			sys.Clients[clientID] = c
		}
		return sys
	})
	if missing {
		return state.ZoneState{}, fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	if err != nil {
		return state.ZoneState{}, fmt.Errorf("committing zone mute: %w", err)
	}

	zone := updated.Zones[zoneID]
	s.applyMemberVolumes(ctx, updated, zone)
	s.notifyZone(ctx, notify.EventMute, zone)
	for _, clientID := range zone.ClientIDs {
		s.notifyClient(ctx, notify.EventMute, updated.Clients[clientID])
	}
	s.record(ctx, "zone.mute", audit.EntityZone, zoneID, map[string]any{"muted": muted})
	return zone, nil
}

// SetZoneStream changes the stream a zone plays. An empty streamID detaches
// the zone and stops playback. The physical group binding is corrected by
// the triggered grouping pass, not inline.
func (s *Service) SetZoneStream(ctx context.Context, zoneID, streamID string) (state.ZoneState, error) {
	sys, err := s.states.Current()
	if err != nil {
		return state.ZoneState{}, err
	}
	if _, ok := sys.Zone(zoneID); !ok {
		return state.ZoneState{}, fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	if streamID != "" {
		if _, ok := sys.Stream(streamID); !ok {
			return state.ZoneState{}, fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
		}
	}

	var missing bool
	updated, err := s.states.Update(func(sys *state.SystemState) *state.SystemState {
		zone, ok := sys.Zones[zoneID]
		if !ok {
			missing = true
			return nil
		}
		zone.CurrentStreamID = streamID
		if streamID == "" {
			zone.Playback = state.PlaybackStopped
		}
		sys.Zones[zoneID] = zone
		return sys
	})
	if missing {
		return state.ZoneState{}, fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	if err != nil {
		return state.ZoneState{}, fmt.Errorf("committing zone stream: %w", err)
	}

	zone := updated.Zones[zoneID]
	s.notifyZone(ctx, notify.EventStream, zone)
	s.triggerReconcile()
	s.record(ctx, "zone.stream", audit.EntityZone, zoneID, map[string]any{"stream_id": streamID})
	return zone, nil
}

// AssignClient moves a client into a zone. The client leaves its previous
// zone as a side effect; physical regrouping follows via the triggered pass.
func (s *Service) AssignClient(ctx context.Context, zoneID, clientID string) (state.ZoneState, error) {
	sys, err := s.states.Current()
	if err != nil {
		return state.ZoneState{}, err
	}
	if _, ok := sys.Zone(zoneID); !ok {
		return state.ZoneState{}, fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	if _, ok := sys.Client(clientID); !ok {
		return state.ZoneState{}, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}

	updated, err := s.states.Update(func(sys *state.SystemState) *state.SystemState {
		return reassign(sys, clientID, zoneID)
	})
	if err != nil {
		return state.ZoneState{}, fmt.Errorf("assigning %s to %s: %w", clientID, zoneID, err)
	}

	zone := updated.Zones[zoneID]
	s.notifyZone(ctx, notify.EventGrouping, zone)
	s.notifyClient(ctx, notify.EventGrouping, updated.Clients[clientID])
	s.triggerReconcile()
	s.record(ctx, "zone.assign", audit.EntityZone, zoneID, map[string]any{"client_id": clientID})
	return zone, nil
}

// UnassignClient removes a client from a zone, leaving it unassigned.
// Unassigned clients are left alone by the grouping reconciler.
func (s *Service) UnassignClient(ctx context.Context, zoneID, clientID string) (state.ZoneState, error) {
	sys, err := s.states.Current()
	if err != nil {
		return state.ZoneState{}, err
	}
	zone, ok := sys.Zone(zoneID)
	if !ok {
		return state.ZoneState{}, fmt.Errorf("%w: %s", ErrZoneNotFound, zoneID)
	}
	if !zone.HasClient(clientID) {
		return state.ZoneState{}, fmt.Errorf("%w: %s not in %s", ErrClientNotAssigned, clientID, zoneID)
	}

	updated, err := s.states.Update(func(sys *state.SystemState) *state.SystemState {
		return reassign(sys, clientID, "")
	})
	if err != nil {
		return state.ZoneState{}, fmt.Errorf("unassigning %s from %s: %w", clientID, zoneID, err)
	}

	zone = updated.Zones[zoneID]
	s.notifyZone(ctx, notify.EventGrouping, zone)
	s.notifyClient(ctx, notify.EventGrouping, updated.Clients[clientID])
	s.triggerReconcile()
	s.record(ctx, "zone.unassign", audit.EntityZone, zoneID, map[string]any{"client_id": clientID})
	return zone, nil
}

// SetClientVolume sets one client's volume.
func (s *Service) SetClientVolume(ctx context.Context, clientID string, volume int) (state.ClientState, error) {
	if volume < minVolume || volume > maxVolume {
		return state.ClientState{}, fmt.Errorf("%w: volume %d out of range 0-100", ErrInvalidArgument, volume)
	}

	var missing bool
	updated, err := s.states.Update(func(sys *state.SystemState) *state.SystemState {
		client, ok := sys.Clients[clientID]
		if !ok {
			missing = true
			return nil
		}
		client.Volume = volume
		sys.Clients[clientID] = client
		return sys
	})
	if missing {
		return state.ClientState{}, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	if err != nil {
		return state.ClientState{}, fmt.Errorf("committing client volume: %w", err)
	}

	client := updated.Clients[clientID]
	s.applyClientVolume(ctx, client)
	s.notifyClient(ctx, notify.EventVolume, client)
	s.record(ctx, "client.volume", audit.EntityClient, clientID, map[string]any{"volume": volume})
	return client, nil
}

// SetClientMute sets one client's mute flag.
func (s *Service) SetClientMute(ctx context.Context, clientID string, muted bool) (state.ClientState, error) {
	var missing bool
	updated, err := s.states.Update(func(sys *state.SystemState) *state.SystemState {
		client, ok := sys.Clients[clientID]
		if !ok {
			missing = true
			return nil
		}
		client.Muted = muted
		sys.Clients[clientID] = client
		return sys
	})
	if missing {
		return state.ClientState{}, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	if err != nil {
		return state.ClientState{}, fmt.Errorf("committing client mute: %w", err)
	}

	client := updated.Clients[clientID]
	s.applyClientVolume(ctx, client)
	s.notifyClient(ctx, notify.EventMute, client)
	s.record(ctx, "client.mute", audit.EntityClient, clientID, map[string]any{"muted": muted})
	return client, nil
}

// SetClientName renames a client, logically and on the routing server.
func (s *Service) SetClientName(ctx context.Context, clientID, name string) (state.ClientState, error) {
	if name == "" {
		return state.ClientState{}, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}

	var missing bool
	updated, err := s.states.Update(func(sys *state.SystemState) *state.SystemState {
		client, ok := sys.Clients[clientID]
		if !ok {
			missing = true
			return nil
		}
		client.Name = name
		sys.Clients[clientID] = client
		return sys
	})
	if missing {
		return state.ClientState{}, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	if err != nil {
		return state.ClientState{}, fmt.Errorf("committing client name: %w", err)
	}

	client := updated.Clients[clientID]
	if s.router != nil && client.AudioRoutingClientID != "" {
		if err := s.router.SetClientName(ctx, client.AudioRoutingClientID, client.Name); err != nil {
			s.logger.Warn("failed to apply client name to routing server",
				"client", clientID, "error", err)
		}
	}
	s.notifyClient(ctx, notify.EventStatus, client)
	s.record(ctx, "client.name", audit.EntityClient, clientID, map[string]any{"name": name})
	return client, nil
}

// SetClientLatency sets a client's latency compensation.
func (s *Service) SetClientLatency(ctx context.Context, clientID string, latencyMs int) (state.ClientState, error) {
	if latencyMs < 0 || latencyMs > maxLatencyMs {
		return state.ClientState{}, fmt.Errorf("%w: latency %d out of range 0-10000", ErrInvalidArgument, latencyMs)
	}

	var missing bool
	updated, err := s.states.Update(func(sys *state.SystemState) *state.SystemState {
		client, ok := sys.Clients[clientID]
		if !ok {
			missing = true
			return nil
		}
		client.LatencyMs = latencyMs
		sys.Clients[clientID] = client
		return sys
	})
	if missing {
		return state.ClientState{}, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	if err != nil {
		return state.ClientState{}, fmt.Errorf("committing client latency: %w", err)
	}

	client := updated.Clients[clientID]
	if s.router != nil && client.AudioRoutingClientID != "" {
		if err := s.router.SetClientLatency(ctx, client.AudioRoutingClientID, client.LatencyMs); err != nil {
			s.logger.Warn("failed to apply client latency to routing server",
				"client", clientID, "error", err)
		}
	}
	s.notifyClient(ctx, notify.EventStatus, client)
	s.record(ctx, "client.latency", audit.EntityClient, clientID, map[string]any{"latency_ms": latencyMs})
	return client, nil
}

// reassign moves a client between zones inside a transform. An empty zoneID
// unassigns the client. Membership lists and the client's zone reference are
// kept in step so the snapshot validates.
func reassign(sys *state.SystemState, clientID, zoneID string) *state.SystemState {
	client, ok := sys.Clients[clientID]
	if !ok {
		return nil
	}
	if zoneID != "" {
		if _, ok := sys.Zones[zoneID]; !ok {
			return nil
		}
	}

	if client.ZoneID != "" {
		if old, ok := sys.Zones[client.ZoneID]; ok {
			sys.Zones[client.ZoneID] = old.WithoutClient(clientID)
		}
	}
	if zoneID != "" {
		sys.Zones[zoneID] = sys.Zones[zoneID].WithClient(clientID)
	}
	client.ZoneID = zoneID
	sys.Clients[clientID] = client
	return sys
}

// applyMemberVolumes pushes each member client's committed volume and mute
// to the routing server. Failures are logged, never surfaced: the next
// grouping pass and user command will converge the server again.
func (s *Service) applyMemberVolumes(ctx context.Context, sys *state.SystemState, zone state.ZoneState) {
	for _, clientID := range zone.ClientIDs {
		s.applyClientVolume(ctx, sys.Clients[clientID])
	}
}

// applyClientVolume pushes one client's committed volume and mute to the
// routing server, best effort.
func (s *Service) applyClientVolume(ctx context.Context, client state.ClientState) {
	if s.router == nil || client.AudioRoutingClientID == "" {
		return
	}
	if err := s.router.SetClientVolume(ctx, client.AudioRoutingClientID, client.Volume, client.Muted); err != nil {
		s.logger.Warn("failed to apply volume to routing server",
			"client", client.ID, "error", err)
	}
}

// notifyZone enqueues a zone status notification, logging enqueue failures.
func (s *Service) notifyZone(ctx context.Context, eventType string, zone state.ZoneState) {
	if s.notify == nil {
		return
	}
	payload := notify.ZoneStatus{
		ZoneID:   zone.ID,
		Name:     zone.Name,
		StreamID: zone.CurrentStreamID,
		Volume:   zone.Volume,
		Muted:    zone.Muted,
		Playing:  zone.Playback == state.PlaybackPlaying,
	}
	if err := s.notify.EnqueueZone(ctx, eventType, zone.ID, payload); err != nil {
		s.logger.Warn("failed to enqueue zone notification", "zone", zone.ID, "error", err)
	}
}

// notifyClient enqueues a client status notification, logging enqueue failures.
func (s *Service) notifyClient(ctx context.Context, eventType string, client state.ClientState) {
	if s.notify == nil {
		return
	}
	payload := notify.ClientStatus{
		ClientID:  client.ID,
		Name:      client.Name,
		ZoneID:    client.ZoneID,
		Volume:    client.Volume,
		Muted:     client.Muted,
		Connected: client.Connected,
	}
	if err := s.notify.EnqueueClient(ctx, eventType, client.ID, payload); err != nil {
		s.logger.Warn("failed to enqueue client notification", "client", client.ID, "error", err)
	}
}

// triggerReconcile requests a grouping pass after a topology-affecting command.
func (s *Service) triggerReconcile() {
	if s.trigger != nil {
		s.trigger.Trigger()
	}
}

// record writes one audit entry for a committed command, attributing it to
// the actor stamped on ctx by the originating surface.
func (s *Service) record(ctx context.Context, action, entityType, entityID string, details map[string]any) {
	if s.auditor == nil {
		return
	}
	actor, _ := audit.ActorFromContext(ctx)
	if actor.Source == "" {
		actor.Source = "internal"
	}
	entry := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Subject:    actor.Subject,
		Source:     actor.Source,
		Details:    details,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry", "action", action, "error", err)
	}
}
