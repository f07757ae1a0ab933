package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/soundmesh/soundmesh-core/internal/infrastructure/database"
	_ "github.com/soundmesh/soundmesh-core/migrations"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestRecordGeneratesIDAndTimestamp(t *testing.T) {
	repo := openTestRepo(t)

	entry := &Entry{
		Action:     "zone.volume",
		EntityType: EntityZone,
		EntityID:   "kitchen",
		Subject:    "admin",
		Source:     SourceAPI,
		Details:    map[string]any{"volume": 70},
	}
	if err := repo.Record(context.Background(), entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if entry.ID == "" {
		t.Error("ID should be generated")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be generated")
	}

	result, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Entries) != 1 {
		t.Fatalf("total = %d, entries = %d, want 1/1", result.Total, len(result.Entries))
	}

	got := result.Entries[0]
	if got.Action != "zone.volume" || got.EntityID != "kitchen" || got.Subject != "admin" {
		t.Errorf("entry = %+v, want recorded fields back", got)
	}
	if got.Details["volume"] != float64(70) {
		t.Errorf("details volume = %v, want 70", got.Details["volume"])
	}
}

func TestListFilters(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	seed := []Entry{
		{Action: "zone.volume", EntityType: EntityZone, EntityID: "kitchen", Source: SourceAPI},
		{Action: "zone.mute", EntityType: EntityZone, EntityID: "kitchen", Source: SourceMQTT},
		{Action: "client.volume", EntityType: EntityClient, EntityID: "kitchen-left", Source: SourceAPI},
	}
	for i := range seed {
		if err := repo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	byEntity, err := repo.List(ctx, Filter{EntityType: EntityZone, EntityID: "kitchen"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if byEntity.Total != 2 {
		t.Errorf("zone/kitchen total = %d, want 2", byEntity.Total)
	}

	bySource, err := repo.List(ctx, Filter{Source: SourceMQTT})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if bySource.Total != 1 || bySource.Entries[0].Action != "zone.mute" {
		t.Errorf("mqtt entries = %+v, want the one bus command", bySource.Entries)
	}

	byAction, err := repo.List(ctx, Filter{Action: "client.volume"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if byAction.Total != 1 || byAction.Entries[0].EntityType != EntityClient {
		t.Errorf("action filter = %+v, want the client command", byAction.Entries)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	older := &Entry{Action: "zone.volume", EntityType: EntityZone, Source: SourceAPI,
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	newer := &Entry{Action: "zone.mute", EntityType: EntityZone, Source: SourceAPI,
		CreatedAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)}
	for _, e := range []*Entry{older, newer} {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Entries[0].Action != "zone.mute" {
		t.Errorf("first entry = %s, want the newest", result.Entries[0].Action)
	}
}

func TestListClampsPagination(t *testing.T) {
	repo := openTestRepo(t)

	result, err := repo.List(context.Background(), Filter{Limit: 9999, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != maxLimit {
		t.Errorf("limit = %d, want clamped to %d", result.Limit, maxLimit)
	}
	if result.Offset != 0 {
		t.Errorf("offset = %d, want clamped to 0", result.Offset)
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{Source: SourceAPI, Subject: "admin"})

	actor, ok := ActorFromContext(ctx)
	if !ok {
		t.Fatal("actor should be present")
	}
	if actor.Source != SourceAPI || actor.Subject != "admin" {
		t.Errorf("actor = %+v", actor)
	}

	if _, ok := ActorFromContext(context.Background()); ok {
		t.Error("bare context should carry no actor")
	}
}
