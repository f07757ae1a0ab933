package state

import "testing"

func TestMetadata_PreservesInsertionOrder(t *testing.T) {
	var m Metadata
	m.Set("first", "1")
	m.Set("second", "2")
	m.Set("third", "3")
	m.Set("first", "updated")

	entries := m.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	wantKeys := []string{"first", "second", "third"}
	for i, want := range wantKeys {
		if entries[i].Key != want {
			t.Errorf("entry %d key = %q, want %q", i, entries[i].Key, want)
		}
	}
	if v, _ := m.Get("first"); v != "updated" {
		t.Errorf("first = %q, want updated", v)
	}
}

func TestZoneState_ClientSetOperations(t *testing.T) {
	z := ZoneState{ID: "zone-a", ClientIDs: []string{"c1", "c2"}}

	added := z.WithClient("c3")
	if !added.HasClient("c3") || len(added.ClientIDs) != 3 {
		t.Errorf("WithClient failed: %v", added.ClientIDs)
	}
	if z.HasClient("c3") {
		t.Error("WithClient mutated the original zone")
	}

	dup := z.WithClient("c1")
	if len(dup.ClientIDs) != 2 {
		t.Errorf("adding existing client duplicated it: %v", dup.ClientIDs)
	}

	removed := z.WithoutClient("c1")
	if removed.HasClient("c1") || len(removed.ClientIDs) != 1 {
		t.Errorf("WithoutClient failed: %v", removed.ClientIDs)
	}
	if !z.HasClient("c1") {
		t.Error("WithoutClient mutated the original zone")
	}
}

func TestSystemState_CloneIsDeep(t *testing.T) {
	s := testSnapshot()
	c := s.Clone()

	z := c.Zones["zone-ground"]
	z.ClientIDs[0] = "client-other"
	z.Volume = 10
	c.Zones["zone-ground"] = z
	c.Metadata.Set("only-in-clone", "yes")

	if s.Zones["zone-ground"].ClientIDs[0] != "client-kitchen" {
		t.Error("clone shares client ID slice with original")
	}
	if s.Zones["zone-ground"].Volume != 50 {
		t.Error("clone shares zone value with original")
	}
	if _, ok := s.Metadata.Get("only-in-clone"); ok {
		t.Error("clone shares metadata with original")
	}
}
