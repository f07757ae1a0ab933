package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/soundmesh/soundmesh-core/internal/state"
)

// fingerprintKey is the system_meta key holding the inventory fingerprint.
const fingerprintKey = "inventory_fingerprint"

// Store reads and writes runtime state through SQLite.
//
// All methods are safe for concurrent use; SQLite serialises writers and the
// connection is opened with a busy timeout.
type Store struct {
	db *sql.DB
}

// NewStore creates a state persistence store on an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureFingerprint compares fp against the fingerprint stored by a previous
// run. On a match the persisted state is considered valid and may be
// restored. On a mismatch (or first run) all persisted zone and client rows
// are cleared and fp is stored as the new fingerprint.
//
// Returns true when persisted state survived the check.
func (s *Store) EnsureFingerprint(ctx context.Context, fp string) (bool, error) {
	stored, found, err := s.storedFingerprint(ctx)
	if err != nil {
		return false, err
	}
	if found && stored == fp {
		return true, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning fingerprint transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM zone_state`); err != nil {
		return false, fmt.Errorf("clearing zone state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM client_state`); err != nil {
		return false, fmt.Errorf("clearing client state: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO system_meta (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		fingerprintKey, fp, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return false, fmt.Errorf("storing fingerprint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing fingerprint transaction: %w", err)
	}
	return false, nil
}

// storedFingerprint returns the fingerprint left by a previous run, if any.
func (s *Store) storedFingerprint(ctx context.Context) (string, bool, error) {
	var fp string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM system_meta WHERE key = ?`, fingerprintKey,
	).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading fingerprint: %w", err)
	}
	return fp, true, nil
}

// SaveState writes the full snapshot, replacing all persisted rows in one
// transaction. Inventories are small, so a full rewrite is cheaper than
// tracking dirty entities.
func (s *Store) SaveState(ctx context.Context, snap *state.SystemState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := tx.ExecContext(ctx, `DELETE FROM zone_state`); err != nil {
		return fmt.Errorf("clearing zone state: %w", err)
	}
	for _, z := range snap.Zones {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO zone_state (zone_id, current_stream_id, volume, muted, playback, track_index, playlist_index, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			z.ID, z.CurrentStreamID, z.Volume, z.Muted, string(z.Playback),
			z.TrackIndex, z.PlaylistIndex, now,
		); err != nil {
			return fmt.Errorf("inserting zone %s: %w", z.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM client_state`); err != nil {
		return fmt.Errorf("clearing client state: %w", err)
	}
	for _, c := range snap.Clients {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO client_state (client_id, zone_id, volume, muted, latency_ms, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.ZoneID, c.Volume, c.Muted, c.LatencyMs, now,
		); err != nil {
			return fmt.Errorf("inserting client %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing save transaction: %w", err)
	}
	return nil
}

// SaveZoneState upserts the persisted row for a single zone.
func (s *Store) SaveZoneState(ctx context.Context, z state.ZoneState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO zone_state (zone_id, current_stream_id, volume, muted, playback, track_index, playlist_index, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(zone_id) DO UPDATE SET
		   current_stream_id = excluded.current_stream_id,
		   volume            = excluded.volume,
		   muted             = excluded.muted,
		   playback          = excluded.playback,
		   track_index       = excluded.track_index,
		   playlist_index    = excluded.playlist_index,
		   updated_at        = excluded.updated_at`,
		z.ID, z.CurrentStreamID, z.Volume, z.Muted, string(z.Playback),
		z.TrackIndex, z.PlaylistIndex, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving zone %s: %w", z.ID, err)
	}
	return nil
}

// SaveClientState upserts the persisted row for a single client.
func (s *Store) SaveClientState(ctx context.Context, c state.ClientState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_state (client_id, zone_id, volume, muted, latency_ms, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(client_id) DO UPDATE SET
		   zone_id    = excluded.zone_id,
		   volume     = excluded.volume,
		   muted      = excluded.muted,
		   latency_ms = excluded.latency_ms,
		   updated_at = excluded.updated_at`,
		c.ID, c.ZoneID, c.Volume, c.Muted, c.LatencyMs,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving client %s: %w", c.ID, err)
	}
	return nil
}

// RestoreInto applies persisted runtime values onto a snapshot seeded from
// the configured inventory and returns the merged copy. The seed is not
// modified.
//
// Rows referencing entities the inventory no longer declares are ignored, as
// is a persisted stream assignment for a stream that no longer exists. Zone
// membership lists are rebuilt from the restored client assignments so the
// snapshot stays internally consistent.
func (s *Store) RestoreInto(ctx context.Context, seed *state.SystemState) (*state.SystemState, error) {
	snap := seed.Clone()

	if err := s.restoreZones(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.restoreClients(ctx, snap); err != nil {
		return nil, err
	}
	rebuildMembership(snap)

	return snap, nil
}

func (s *Store) restoreZones(ctx context.Context, snap *state.SystemState) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT zone_id, current_stream_id, volume, muted, playback, track_index, playlist_index FROM zone_state`)
	if err != nil {
		return fmt.Errorf("querying zone state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, streamID, playback    string
			volume, trackIdx, listIdx int
			muted                     bool
		)
		if err := rows.Scan(&id, &streamID, &volume, &muted, &playback, &trackIdx, &listIdx); err != nil {
			return fmt.Errorf("scanning zone state: %w", err)
		}

		z, ok := snap.Zones[id]
		if !ok {
			continue // zone removed from inventory
		}
		if _, ok := snap.Streams[streamID]; !ok {
			streamID = "" // stream removed from inventory
		}
		z.CurrentStreamID = streamID
		z.Volume = volume
		z.Muted = muted
		z.Playback = state.PlaybackState(playback)
		z.TrackIndex = trackIdx
		z.PlaylistIndex = listIdx
		snap.Zones[id] = z
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating zone state: %w", err)
	}
	return nil
}

func (s *Store) restoreClients(ctx context.Context, snap *state.SystemState) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, zone_id, volume, muted, latency_ms FROM client_state`)
	if err != nil {
		return fmt.Errorf("querying client state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, zoneID      string
			volume, latency int
			muted           bool
		)
		if err := rows.Scan(&id, &zoneID, &volume, &muted, &latency); err != nil {
			return fmt.Errorf("scanning client state: %w", err)
		}

		c, ok := snap.Clients[id]
		if !ok {
			continue // client removed from inventory
		}
		if _, ok := snap.Zones[zoneID]; zoneID != "" && !ok {
			zoneID = "" // zone removed from inventory
		}
		c.ZoneID = zoneID
		c.Volume = volume
		c.Muted = muted
		c.LatencyMs = latency
		snap.Clients[id] = c
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating client state: %w", err)
	}
	return nil
}

// rebuildMembership recomputes each zone's client list from the clients'
// zone assignments so the two views of membership cannot diverge.
func rebuildMembership(snap *state.SystemState) {
	members := make(map[string][]string, len(snap.Zones))
	for id, c := range snap.Clients {
		if c.ZoneID != "" {
			members[c.ZoneID] = append(members[c.ZoneID], id)
		}
	}
	for id, z := range snap.Zones {
		ids := members[id]
		if ids == nil {
			ids = []string{}
		}
		sort.Strings(ids)
		z.ClientIDs = ids
		snap.Zones[id] = z
	}
}
