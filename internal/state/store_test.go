package state

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// testSnapshot builds a small consistent snapshot for store tests.
func testSnapshot() *SystemState {
	s := NewSystemState()
	s.Status = SystemRunning
	s.Streams["stream-radio"] = StreamState{
		ID:                     "stream-radio",
		AudioRoutingStreamPath: "/snapfifo/radio",
		Status:                 "playing",
	}
	s.Clients["client-kitchen"] = ClientState{
		ID:                   "client-kitchen",
		Name:                 "Kitchen Speaker",
		ZoneID:               "zone-ground",
		Volume:               40,
		Connected:            true,
		AudioRoutingClientID: "aa:bb:cc:dd:ee:01",
	}
	s.Zones["zone-ground"] = ZoneState{
		ID:              "zone-ground",
		Name:            "Ground Floor",
		CurrentStreamID: "stream-radio",
		ClientIDs:       []string{"client-kitchen"},
		Volume:          50,
		Playback:        PlaybackPlaying,
	}
	return s
}

func TestUpdate_VersionIncrementsByOne(t *testing.T) {
	store, err := New(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	prev, err := store.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}

	for i := 0; i < 5; i++ {
		committed, err := store.Update(func(s *SystemState) *SystemState {
			s.Metadata.Set("step", fmt.Sprintf("%d", i))
			return s
		})
		if err != nil {
			t.Fatalf("Update %d: %v", i, err)
		}
		if committed.Version != prev.Version+1 {
			t.Errorf("version after update %d = %d, want %d", i, committed.Version, prev.Version+1)
		}
		prev = committed
	}
}

func TestUpdate_NilTransformResult(t *testing.T) {
	store, err := New(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before, _ := store.Current()

	_, err = store.Update(func(*SystemState) *SystemState { return nil })

	var invalid *InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	after, _ := store.Current()
	if after != before {
		t.Error("committed snapshot changed after rejected update")
	}
}

func TestUpdate_NilTransform(t *testing.T) {
	store, err := New(nil, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var invalid *InvalidStateError
	if _, err := store.Update(nil); !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError for nil transform, got %v", err)
	}
}

func TestUpdate_StructuralInvariantRejected(t *testing.T) {
	store, err := New(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var validationErr error
	store.OnValidationFailure(func(err error) { validationErr = err })

	before, _ := store.Current()
	_, err = store.Update(func(s *SystemState) *SystemState {
		// Client pointing at a zone that does not exist.
		c := s.Clients["client-kitchen"]
		c.ZoneID = "zone-missing"
		s.Clients["client-kitchen"] = c
		return s
	})

	var invalid *InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if validationErr == nil {
		t.Error("validation failure observer was not notified")
	}
	after, _ := store.Current()
	if after != before {
		t.Error("committed snapshot changed after rejected update")
	}
}

func TestUpdate_VersionRegressionRejected(t *testing.T) {
	store, err := New(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var invalid *InvalidStateError
	_, err = store.Update(func(s *SystemState) *SystemState {
		s.Version = 0
		return s
	})
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError for version regression, got %v", err)
	}
}

func TestTryUpdate(t *testing.T) {
	store, err := New(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, ok := store.TryUpdate(func(*SystemState) *SystemState { return nil }); ok {
		t.Error("TryUpdate reported success for nil transform result")
	}
	committed, ok := store.TryUpdate(func(s *SystemState) *SystemState {
		s.Metadata.Set("source", "try-update")
		return s
	})
	if !ok || committed == nil {
		t.Fatal("TryUpdate failed for a valid transform")
	}
}

func TestUpdateWithRetry_ExhaustsOnContention(t *testing.T) {
	store, err := New(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// The transform runs outside the write lock, so committing a competing
	// update from inside it forces contention on every attempt.
	attempts := 0
	_, err = store.UpdateWithRetry(func(s *SystemState) *SystemState {
		attempts++
		if _, err := store.Update(func(inner *SystemState) *SystemState {
			inner.Metadata.Set("competitor", fmt.Sprintf("%d", attempts))
			return inner
		}); err != nil {
			t.Fatalf("competing update: %v", err)
		}
		return s
	}, 3)

	if !errors.Is(err, ErrUpdateContention) {
		t.Fatalf("expected ErrUpdateContention, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("transform ran %d times, want 3", attempts)
	}
}

func TestUpdateWithRetry_Succeeds(t *testing.T) {
	store, err := New(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	committed, err := store.UpdateWithRetry(func(s *SystemState) *SystemState {
		s.Metadata.Set("pass", "1")
		return s
	}, 3)
	if err != nil {
		t.Fatalf("UpdateWithRetry: %v", err)
	}
	if v, ok := committed.Metadata.Get("pass"); !ok || v != "1" {
		t.Errorf("metadata pass = %q, %v", v, ok)
	}
}

func TestConcurrentUpdates_NoLostVersions(t *testing.T) {
	store, err := New(testSnapshot(), 200)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const tasks = 10
	const updatesPerTask = 10

	var wg sync.WaitGroup
	for task := 0; task < tasks; task++ {
		wg.Add(1)
		go func(task int) {
			defer wg.Done()
			for i := 0; i < updatesPerTask; i++ {
				key := fmt.Sprintf("task-%d-%d", task, i)
				if _, err := store.Update(func(s *SystemState) *SystemState {
					s.Metadata.Set(key, "done")
					return s
				}); err != nil {
					t.Errorf("update %s: %v", key, err)
				}
			}
		}(task)
	}
	wg.Wait()

	final, err := store.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if want := int64(1 + tasks*updatesPerTask); final.Version != want {
		t.Errorf("final version = %d, want %d", final.Version, want)
	}
	for task := 0; task < tasks; task++ {
		for i := 0; i < updatesPerTask; i++ {
			key := fmt.Sprintf("task-%d-%d", task, i)
			if _, ok := final.Metadata.Get(key); !ok {
				t.Errorf("metadata key %s lost", key)
			}
		}
	}
}

func TestHistory_Bounded(t *testing.T) {
	store, err := New(testSnapshot(), 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, err := store.Update(func(s *SystemState) *SystemState {
			s.Metadata.Set("i", fmt.Sprintf("%d", i))
			return s
		}); err != nil {
			t.Fatalf("Update %d: %v", i, err)
		}
	}

	history, err := store.History()
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("history length = %d, want 5", len(history))
	}
	current, _ := store.Current()
	if history[len(history)-1] != current {
		t.Error("newest history entry is not the committed snapshot")
	}
	for i := 1; i < len(history); i++ {
		if history[i].Version != history[i-1].Version+1 {
			t.Errorf("history versions not contiguous: %d then %d", history[i-1].Version, history[i].Version)
		}
	}
}

func TestOnUpdate_ReceivesBothSnapshots(t *testing.T) {
	store, err := New(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var gotPrev, gotCurrent *SystemState
	store.OnUpdate(func(prev, current *SystemState) {
		gotPrev, gotCurrent = prev, current
	})

	before, _ := store.Current()
	committed, err := store.Update(func(s *SystemState) *SystemState {
		s.Status = SystemStopping
		return s
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if gotPrev != before {
		t.Error("observer previous snapshot mismatch")
	}
	if gotCurrent != committed {
		t.Error("observer current snapshot mismatch")
	}
}

func TestReset_VersionNeverDecreases(t *testing.T) {
	store, err := New(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := store.Update(func(s *SystemState) *SystemState { return s }); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	before, _ := store.Current()

	// Restored state carries an old version; Reset must keep moving forward.
	restored := testSnapshot()
	restored.Version = 2
	committed, err := store.Reset(restored)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if committed.Version <= before.Version {
		t.Errorf("version decreased on reset: %d -> %d", before.Version, committed.Version)
	}

	// A nil reset commits an empty snapshot.
	empty, err := store.Reset(nil)
	if err != nil {
		t.Fatalf("Reset(nil): %v", err)
	}
	if len(empty.Zones) != 0 || len(empty.Clients) != 0 {
		t.Error("Reset(nil) did not commit an empty snapshot")
	}
}

func TestClose_DisposalSemantics(t *testing.T) {
	store, err := New(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := store.Current(); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Current after close: %v", err)
	}
	if _, err := store.Update(func(s *SystemState) *SystemState { return s }); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Update after close: %v", err)
	}
	if _, err := store.UpdateWithRetry(func(s *SystemState) *SystemState { return s }, 2); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("UpdateWithRetry after close: %v", err)
	}
	if _, err := store.Reset(nil); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Reset after close: %v", err)
	}
	if err := store.ValidateCurrent(); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("ValidateCurrent after close: %v", err)
	}
	if _, err := store.History(); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("History after close: %v", err)
	}
}

func TestTransformCannotCorruptCommittedSnapshot(t *testing.T) {
	store, err := New(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before, _ := store.Current()

	// The transform mutates its argument and then fails validation; the
	// committed snapshot must be untouched because transforms receive a
	// deep copy.
	_, err = store.Update(func(s *SystemState) *SystemState {
		z := s.Zones["zone-ground"]
		z.Volume = 999
		s.Zones["zone-ground"] = z
		return s
	})
	if err == nil {
		t.Fatal("expected validation failure for out-of-range volume")
	}
	if before.Zones["zone-ground"].Volume != 50 {
		t.Errorf("committed zone volume mutated to %d", before.Zones["zone-ground"].Volume)
	}
}
