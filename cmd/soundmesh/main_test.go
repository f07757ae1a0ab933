package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/soundmesh/soundmesh-core/internal/bridges/knx"
	"github.com/soundmesh/soundmesh-core/internal/infrastructure/config"
	"github.com/soundmesh/soundmesh-core/internal/state"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SOUNDMESH_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("SOUNDMESH_CONFIG", "")
	os.Unsetenv("SOUNDMESH_CONFIG")

	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	t.Setenv("SOUNDMESH_CONFIG", "/etc/soundmesh/config.yaml")

	if got := getConfigPath(); got != "/etc/soundmesh/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func testInventory() config.InventoryConfig {
	return config.InventoryConfig{
		Zones: []config.ZoneConfig{
			{ID: "kitchen", Name: "Kitchen", DefaultStream: "radio"},
			{ID: "office", Name: "Office"},
		},
		Clients: []config.ClientConfig{
			{ID: "kitchen-left", Name: "Kitchen Left", Zone: "kitchen", SnapcastID: "mac-1"},
			{ID: "kitchen-right", Name: "Kitchen Right", Zone: "kitchen", SnapcastID: "mac-2"},
			{ID: "spare", Name: "Spare", SnapcastID: "mac-3"},
		},
		Streams: []config.StreamConfig{
			{ID: "radio", SnapcastStream: "Radio"},
		},
	}
}

func TestSeedState(t *testing.T) {
	sys := seedState(testInventory())

	if err := state.Validate(sys); err != nil {
		t.Fatalf("seed state should validate: %v", err)
	}

	kitchen := sys.Zones["kitchen"]
	if kitchen.CurrentStreamID != "radio" {
		t.Errorf("default stream = %q, want radio", kitchen.CurrentStreamID)
	}
	if len(kitchen.ClientIDs) != 2 || kitchen.ClientIDs[0] != "kitchen-left" {
		t.Errorf("kitchen members = %v, want sorted [kitchen-left kitchen-right]", kitchen.ClientIDs)
	}
	if kitchen.Volume != defaultZoneVolume {
		t.Errorf("seed volume = %d, want %d", kitchen.Volume, defaultZoneVolume)
	}

	office := sys.Zones["office"]
	if office.ClientIDs == nil || len(office.ClientIDs) != 0 {
		t.Errorf("empty zone members = %#v, want empty non-nil slice", office.ClientIDs)
	}

	if sys.Clients["spare"].ZoneID != "" {
		t.Error("unassigned client should stay unassigned")
	}
	if sys.Clients["kitchen-left"].AudioRoutingClientID != "mac-1" {
		t.Error("routing ID should come from the inventory")
	}
}

func TestKNXAddressMaps(t *testing.T) {
	inv := testInventory()
	inv.Zones[0].KNX = config.KNXZoneAddresses{Volume: "1/2/3", Mute: "1/2/4"}
	inv.Clients[0].KNX = config.KNXClientAddresses{Connected: "2/0/1"}

	zones, clients, err := knxAddressMaps(inv)
	if err != nil {
		t.Fatalf("knxAddressMaps() error = %v", err)
	}

	kitchen, ok := zones["kitchen"]
	if !ok {
		t.Fatal("kitchen should have an address entry")
	}
	want, _ := knx.ParseGroupAddress("1/2/3")
	if kitchen.Volume != want {
		t.Errorf("kitchen volume GA = %v, want %v", kitchen.Volume, want)
	}
	if !kitchen.Playing.IsZero() {
		t.Error("unwired aspects should stay zero")
	}

	if _, ok := zones["office"]; ok {
		t.Error("zones with no addresses should be omitted")
	}
	if _, ok := clients["kitchen-left"]; !ok {
		t.Error("kitchen-left should have an address entry")
	}
}

func TestKNXAddressMaps_Malformed(t *testing.T) {
	inv := testInventory()
	inv.Zones[0].KNX.Volume = "not-an-address"

	if _, _, err := knxAddressMaps(inv); err == nil {
		t.Error("malformed group address should fail startup")
	}
}

// recordingTelemetry records status writes as "id:stream:volume" strings.
type recordingTelemetry struct {
	mu      sync.Mutex
	zones   []string
	clients []string
}

func (r *recordingTelemetry) WriteZoneStatus(zoneID, streamID string, volume int, _, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones = append(r.zones, fmt.Sprintf("%s:%s:%d", zoneID, streamID, volume))
}

func (r *recordingTelemetry) WriteClientStatus(clientID string, volume int, _, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, fmt.Sprintf("%s:%d", clientID, volume))
}

func TestWatchStateTelemetry_WritesChangedStatus(t *testing.T) {
	states, err := state.New(seedState(testInventory()), 0)
	if err != nil {
		t.Fatalf("state.New() error = %v", err)
	}
	telem := &recordingTelemetry{}
	watchStateTelemetry(states, telem)

	if _, err := states.Update(func(sys *state.SystemState) *state.SystemState {
		z := sys.Zones["kitchen"]
		z.Volume = 70
		sys.Zones["kitchen"] = z
		return sys
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if len(telem.zones) != 1 || telem.zones[0] != "kitchen:radio:70" {
		t.Errorf("zone writes = %v, want [kitchen:radio:70]", telem.zones)
	}
	if len(telem.clients) != 0 {
		t.Errorf("client writes = %v, want none for a zone-only change", telem.clients)
	}

	if _, err := states.Update(func(sys *state.SystemState) *state.SystemState {
		c := sys.Clients["spare"]
		c.Connected = true
		sys.Clients["spare"] = c
		return sys
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if len(telem.clients) != 1 || telem.clients[0] != "spare:50" {
		t.Errorf("client writes = %v, want [spare:50]", telem.clients)
	}
	if len(telem.zones) != 1 {
		t.Errorf("zone writes = %v, want no new entries for a client-only change", telem.zones)
	}
}
