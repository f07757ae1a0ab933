package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/soundmesh/soundmesh-core/internal/infrastructure/config"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/database"
	"github.com/soundmesh/soundmesh-core/internal/state"

	_ "github.com/soundmesh/soundmesh-core/migrations" // register embedded migrations
)

// openTestDB opens a migrated SQLite database in a temp directory.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// seedState builds an inventory-seeded snapshot with two zones, three
// clients, and two streams.
func seedState() *state.SystemState {
	s := state.NewSystemState()
	s.Streams["radio"] = state.StreamState{ID: "radio", AudioRoutingStreamPath: "path-radio"}
	s.Streams["spotify"] = state.StreamState{ID: "spotify", AudioRoutingStreamPath: "path-spotify"}
	s.Clients["client-a"] = state.ClientState{ID: "client-a", Name: "Kitchen Left", ZoneID: "ground", AudioRoutingClientID: "A"}
	s.Clients["client-b"] = state.ClientState{ID: "client-b", Name: "Kitchen Right", ZoneID: "ground", AudioRoutingClientID: "B"}
	s.Clients["client-c"] = state.ClientState{ID: "client-c", Name: "Bedroom", ZoneID: "upstairs", AudioRoutingClientID: "C"}
	s.Zones["ground"] = state.ZoneState{
		ID: "ground", Name: "Ground Floor", CurrentStreamID: "radio",
		ClientIDs: []string{"client-a", "client-b"}, Playback: state.PlaybackStopped,
	}
	s.Zones["upstairs"] = state.ZoneState{
		ID: "upstairs", Name: "Upstairs", CurrentStreamID: "spotify",
		ClientIDs: []string{"client-c"}, Playback: state.PlaybackStopped,
	}
	return s
}

// ─── Fingerprint ─────────────────────────────────────────────────────────────

func TestComputeFingerprintIsOrderInsensitive(t *testing.T) {
	inv := config.InventoryConfig{
		Zones: []config.ZoneConfig{
			{ID: "ground", Name: "Ground Floor", DefaultStream: "radio"},
			{ID: "upstairs", Name: "Upstairs"},
		},
		Clients: []config.ClientConfig{
			{ID: "client-a", Name: "Kitchen Left", Zone: "ground", SnapcastID: "A"},
			{ID: "client-b", Name: "Kitchen Right", Zone: "ground", SnapcastID: "B"},
		},
		Streams: []config.StreamConfig{
			{ID: "radio", SnapcastStream: "path-radio"},
		},
	}

	reordered := config.InventoryConfig{
		Zones:   []config.ZoneConfig{inv.Zones[1], inv.Zones[0]},
		Clients: []config.ClientConfig{inv.Clients[1], inv.Clients[0]},
		Streams: inv.Streams,
	}

	if ComputeFingerprint(inv) != ComputeFingerprint(reordered) {
		t.Error("fingerprint should not depend on declaration order")
	}
}

func TestComputeFingerprintChangesOnWiring(t *testing.T) {
	inv := config.InventoryConfig{
		Zones: []config.ZoneConfig{{ID: "ground", Name: "Ground Floor"}},
	}
	base := ComputeFingerprint(inv)

	inv.Zones[0].KNX.Volume = "2/1/1"
	if ComputeFingerprint(inv) == base {
		t.Error("fingerprint should change when a KNX address is added")
	}

	inv.Zones[0].KNX.Volume = ""
	inv.Clients = append(inv.Clients, config.ClientConfig{ID: "client-a"})
	if ComputeFingerprint(inv) == base {
		t.Error("fingerprint should change when a client is added")
	}
}

// ─── Fingerprint gate ────────────────────────────────────────────────────────

func TestEnsureFingerprintFirstRun(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db.DB)
	ctx := context.Background()

	valid, err := store.EnsureFingerprint(ctx, "fp-1")
	if err != nil {
		t.Fatalf("EnsureFingerprint() error = %v", err)
	}
	if valid {
		t.Error("first run should report no valid persisted state")
	}

	// Same fingerprint on the next run: persisted state survives.
	valid, err = store.EnsureFingerprint(ctx, "fp-1")
	if err != nil {
		t.Fatalf("EnsureFingerprint() error = %v", err)
	}
	if !valid {
		t.Error("matching fingerprint should report valid persisted state")
	}
}

func TestEnsureFingerprintMismatchClearsState(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db.DB)
	ctx := context.Background()

	if _, err := store.EnsureFingerprint(ctx, "fp-1"); err != nil {
		t.Fatalf("EnsureFingerprint() error = %v", err)
	}
	if err := store.SaveState(ctx, seedState()); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	valid, err := store.EnsureFingerprint(ctx, "fp-2")
	if err != nil {
		t.Fatalf("EnsureFingerprint() error = %v", err)
	}
	if valid {
		t.Error("changed fingerprint should invalidate persisted state")
	}

	// Restore onto a fresh seed: nothing persisted should survive.
	seed := seedState()
	seed.Zones["ground"] = func() state.ZoneState {
		z := seed.Zones["ground"]
		z.Volume = 10
		return z
	}()
	restored, err := store.RestoreInto(ctx, seed)
	if err != nil {
		t.Fatalf("RestoreInto() error = %v", err)
	}
	if restored.Zones["ground"].Volume != 10 {
		t.Error("cleared state should leave the seed values untouched")
	}
}

// ─── Save and restore ────────────────────────────────────────────────────────

func TestSaveAndRestoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db.DB)
	ctx := context.Background()

	snap := seedState()
	ground := snap.Zones["ground"]
	ground.Volume = 55
	ground.Muted = true
	ground.Playback = state.PlaybackPlaying
	ground.TrackIndex = 3
	ground.PlaylistIndex = 1
	snap.Zones["ground"] = ground

	clientA := snap.Clients["client-a"]
	clientA.Volume = 80
	clientA.LatencyMs = 40
	snap.Clients["client-a"] = clientA

	if err := store.SaveState(ctx, snap); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	restored, err := store.RestoreInto(ctx, seedState())
	if err != nil {
		t.Fatalf("RestoreInto() error = %v", err)
	}

	gz := restored.Zones["ground"]
	if gz.Volume != 55 || !gz.Muted || gz.Playback != state.PlaybackPlaying {
		t.Errorf("restored zone = %+v, want volume 55 muted playing", gz)
	}
	if gz.TrackIndex != 3 || gz.PlaylistIndex != 1 {
		t.Errorf("restored indices = %d/%d, want 3/1", gz.TrackIndex, gz.PlaylistIndex)
	}
	ca := restored.Clients["client-a"]
	if ca.Volume != 80 || ca.LatencyMs != 40 {
		t.Errorf("restored client = %+v, want volume 80 latency 40", ca)
	}
	if err := state.Validate(restored); err != nil {
		t.Errorf("restored snapshot should validate: %v", err)
	}
}

func TestRestoreReassignsZoneMembership(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db.DB)
	ctx := context.Background()

	// client-c was moved to ground at runtime before the restart.
	snap := seedState()
	clientC := snap.Clients["client-c"]
	clientC.ZoneID = "ground"
	snap.Clients["client-c"] = clientC
	snap.Zones["ground"] = snap.Zones["ground"].WithClient("client-c")
	snap.Zones["upstairs"] = snap.Zones["upstairs"].WithoutClient("client-c")

	if err := store.SaveState(ctx, snap); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	restored, err := store.RestoreInto(ctx, seedState())
	if err != nil {
		t.Fatalf("RestoreInto() error = %v", err)
	}

	if restored.Clients["client-c"].ZoneID != "ground" {
		t.Errorf("client-c zone = %q, want ground", restored.Clients["client-c"].ZoneID)
	}
	if !restored.Zones["ground"].HasClient("client-c") {
		t.Error("ground should contain client-c after restore")
	}
	if restored.Zones["upstairs"].HasClient("client-c") {
		t.Error("upstairs should no longer contain client-c")
	}
	if err := state.Validate(restored); err != nil {
		t.Errorf("restored snapshot should validate: %v", err)
	}
}

func TestRestoreSkipsRemovedEntities(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db.DB)
	ctx := context.Background()

	if err := store.SaveState(ctx, seedState()); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	// Shrunken inventory: no upstairs zone, no spotify stream, no client-c.
	seed := state.NewSystemState()
	seed.Streams["radio"] = state.StreamState{ID: "radio", AudioRoutingStreamPath: "path-radio"}
	seed.Clients["client-a"] = state.ClientState{ID: "client-a", Name: "Kitchen Left", ZoneID: "ground", AudioRoutingClientID: "A"}
	seed.Zones["ground"] = state.ZoneState{
		ID: "ground", Name: "Ground Floor", CurrentStreamID: "radio",
		ClientIDs: []string{"client-a"}, Playback: state.PlaybackStopped,
	}

	restored, err := store.RestoreInto(ctx, seed)
	if err != nil {
		t.Fatalf("RestoreInto() error = %v", err)
	}

	if _, ok := restored.Zones["upstairs"]; ok {
		t.Error("removed zone should not reappear from persistence")
	}
	if _, ok := restored.Clients["client-c"]; ok {
		t.Error("removed client should not reappear from persistence")
	}
	if err := state.Validate(restored); err != nil {
		t.Errorf("restored snapshot should validate: %v", err)
	}
}

func TestRestoreDropsStaleStreamAssignment(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db.DB)
	ctx := context.Background()

	snap := seedState()
	ground := snap.Zones["ground"]
	ground.CurrentStreamID = "spotify"
	snap.Zones["ground"] = ground
	if err := store.SaveState(ctx, snap); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	// Seed without the spotify stream.
	seed := seedState()
	delete(seed.Streams, "spotify")
	upstairs := seed.Zones["upstairs"]
	upstairs.CurrentStreamID = ""
	seed.Zones["upstairs"] = upstairs

	restored, err := store.RestoreInto(ctx, seed)
	if err != nil {
		t.Fatalf("RestoreInto() error = %v", err)
	}
	if got := restored.Zones["ground"].CurrentStreamID; got != "" {
		t.Errorf("stream assignment = %q, want cleared for removed stream", got)
	}
}

// ─── Per-entity upserts ──────────────────────────────────────────────────────

func TestSaveZoneStateUpserts(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db.DB)
	ctx := context.Background()

	z := seedState().Zones["ground"]
	z.Volume = 20
	if err := store.SaveZoneState(ctx, z); err != nil {
		t.Fatalf("SaveZoneState() error = %v", err)
	}
	z.Volume = 70
	if err := store.SaveZoneState(ctx, z); err != nil {
		t.Fatalf("SaveZoneState() second call error = %v", err)
	}

	restored, err := store.RestoreInto(ctx, seedState())
	if err != nil {
		t.Fatalf("RestoreInto() error = %v", err)
	}
	if got := restored.Zones["ground"].Volume; got != 70 {
		t.Errorf("zone volume = %d, want 70 (last write wins)", got)
	}
}

func TestSaveClientStateUpserts(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db.DB)
	ctx := context.Background()

	c := seedState().Clients["client-b"]
	c.Muted = true
	if err := store.SaveClientState(ctx, c); err != nil {
		t.Fatalf("SaveClientState() error = %v", err)
	}
	c.Muted = false
	c.Volume = 33
	if err := store.SaveClientState(ctx, c); err != nil {
		t.Fatalf("SaveClientState() second call error = %v", err)
	}

	restored, err := store.RestoreInto(ctx, seedState())
	if err != nil {
		t.Fatalf("RestoreInto() error = %v", err)
	}
	cb := restored.Clients["client-b"]
	if cb.Muted || cb.Volume != 33 {
		t.Errorf("client = %+v, want unmuted volume 33", cb)
	}
}
