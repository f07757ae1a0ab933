package state

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// defaultHistoryLimit is the number of committed snapshots retained for
// diagnostics when no explicit limit is configured.
const defaultHistoryLimit = 16

// Transform is a pure function from one snapshot to the next. It receives a
// deep copy of the committed snapshot and may mutate and return it, or build
// a new snapshot. Returning nil rejects the update.
//
// Transforms must not perform I/O: the store serializes them under its write
// lock, so a slow transform stalls every other writer.
type Transform func(*SystemState) *SystemState

// UpdateObserver is notified synchronously after each successful commit with
// the previous and newly committed snapshots. Observers run under the
// store's write lock: they must be fast and must not call back into the
// store.
type UpdateObserver func(previous, current *SystemState)

// ValidationObserver is notified when an update is rejected.
type ValidationObserver func(err error)

// Store holds the committed SystemState snapshot and serializes updates.
//
// Reads via Current never block writers: the committed snapshot is an
// immutable value published through an atomic pointer. Updates are
// serialized by a single mutex held only while applying the transform and
// validating the result, never across I/O.
type Store struct {
	writeMu      sync.Mutex
	current      atomic.Pointer[SystemState]
	closed       atomic.Bool
	historyLimit int
	history      []*SystemState // guarded by writeMu

	obsMu         sync.RWMutex
	updateObs     []UpdateObserver
	validationObs []ValidationObserver
}

// New creates a store committed at the given initial snapshot.
//
// A nil initial snapshot commits an empty state at version 1. historyLimit
// bounds the diagnostic snapshot history; values below 1 use the default.
func New(initial *SystemState, historyLimit int) (*Store, error) {
	if initial == nil {
		initial = NewSystemState()
	}
	if historyLimit < 1 {
		historyLimit = defaultHistoryLimit
	}
	committed := initial.Clone()
	if err := Validate(committed); err != nil {
		return nil, err
	}
	s := &Store{historyLimit: historyLimit}
	s.current.Store(committed)
	s.history = append(s.history, committed)
	return s, nil
}

// Current returns the committed snapshot. The returned value is immutable
// by convention: callers must not modify it (use Clone for scratch copies).
func (s *Store) Current() (*SystemState, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	return s.current.Load(), nil
}

// Update applies transform to the committed snapshot and commits the result
// with version = previous version + 1.
//
// The update is rejected with *InvalidStateError, leaving the committed
// snapshot unchanged, if the transform is nil, returns nil, regresses the
// version, or produces a snapshot that fails structural validation.
func (s *Store) Update(transform Transform) (*SystemState, error) {
	if transform == nil {
		err := invalidState("transform is nil")
		s.notifyValidationFailure(err)
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	prev := s.current.Load()
	candidate := transform(prev.Clone())
	return s.commitLocked(prev, candidate)
}

// TryUpdate is the non-failing variant of Update: it returns (nil, false)
// instead of an error on any rejection.
func (s *Store) TryUpdate(transform Transform) (*SystemState, bool) {
	committed, err := s.Update(transform)
	if err != nil {
		return nil, false
	}
	return committed, true
}

// UpdateWithRetry re-applies transform against the freshest snapshot when
// another writer commits between the read and the commit attempt. Use it for
// transforms that must always see the latest state.
//
// It fails with ErrUpdateContention after maxAttempts unsuccessful attempts.
func (s *Store) UpdateWithRetry(transform Transform, maxAttempts int) (*SystemState, error) {
	if transform == nil {
		err := invalidState("transform is nil")
		s.notifyValidationFailure(err)
		return nil, err
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if s.closed.Load() {
			return nil, ErrStoreClosed
		}

		// Optimistic pass: apply the transform outside the write lock,
		// then commit only if the snapshot is still the one we read.
		base := s.current.Load()
		candidate := transform(base.Clone())

		s.writeMu.Lock()
		if s.closed.Load() {
			s.writeMu.Unlock()
			return nil, ErrStoreClosed
		}
		if s.current.Load() != base {
			s.writeMu.Unlock()
			continue
		}
		committed, err := s.commitLocked(base, candidate)
		s.writeMu.Unlock()
		return committed, err
	}

	return nil, fmt.Errorf("%w: transform lost the race %d times", ErrUpdateContention, maxAttempts)
}

// Reset replaces the committed snapshot wholesale, still subject to
// validation. A nil newState resets to an empty snapshot. Used at startup
// (restoring persisted state) and shutdown (marking the system stopped).
//
// The version invariant is preserved: the committed version is the larger of
// newState's version and previous version + 1.
func (s *Store) Reset(newState *SystemState) (*SystemState, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	prev := s.current.Load()
	if newState == nil {
		newState = NewSystemState()
	}

	committed := newState.Clone()
	if committed.Version < prev.Version+1 {
		committed.Version = prev.Version + 1
	}
	committed.LastUpdated = time.Now().UTC()

	if err := Validate(committed); err != nil {
		s.notifyValidationFailure(err)
		return nil, err
	}

	s.current.Store(committed)
	s.appendHistoryLocked(committed)
	s.notifyUpdated(prev, committed)
	return committed, nil
}

// ValidateCurrent re-runs the structural invariants against the committed
// snapshot without mutating it.
func (s *Store) ValidateCurrent() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return Validate(s.current.Load())
}

// History returns the retained committed snapshots, oldest first. The store
// keeps at most the configured limit; older snapshots are evicted.
func (s *Store) History() ([]*SystemState, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return append([]*SystemState(nil), s.history...), nil
}

// OnUpdate registers an observer invoked after every successful commit.
func (s *Store) OnUpdate(fn UpdateObserver) {
	if fn == nil {
		return
	}
	s.obsMu.Lock()
	s.updateObs = append(s.updateObs, fn)
	s.obsMu.Unlock()
}

// OnValidationFailure registers an observer invoked when an update is
// rejected.
func (s *Store) OnValidationFailure(fn ValidationObserver) {
	if fn == nil {
		return
	}
	s.obsMu.Lock()
	s.validationObs = append(s.validationObs, fn)
	s.obsMu.Unlock()
}

// Close marks the store disposed. All subsequent operations fail with
// ErrStoreClosed. Close is idempotent.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// commitLocked validates and publishes a candidate snapshot. Callers must
// hold writeMu.
//
// The store owns version assignment: a candidate carrying the previous
// version (the normal case, since transforms receive a clone) is advanced to
// previous + 1; a candidate that already advanced by exactly one is kept.
// Anything else is a version regression or skip and indicates a caller bug.
func (s *Store) commitLocked(prev, candidate *SystemState) (*SystemState, error) {
	if candidate == nil {
		err := invalidState("transform returned nil")
		s.notifyValidationFailure(err)
		return nil, err
	}
	if candidate.Version != prev.Version && candidate.Version != prev.Version+1 {
		err := invalidState("transform moved version from %d to %d", prev.Version, candidate.Version)
		s.notifyValidationFailure(err)
		return nil, err
	}

	committed := candidate.Clone()
	committed.Version = prev.Version + 1
	committed.LastUpdated = time.Now().UTC()

	if err := Validate(committed); err != nil {
		s.notifyValidationFailure(err)
		return nil, err
	}

	s.current.Store(committed)
	s.appendHistoryLocked(committed)
	s.notifyUpdated(prev, committed)
	return committed, nil
}

// appendHistoryLocked records a committed snapshot, evicting the oldest
// entry beyond the configured limit. Callers must hold writeMu.
func (s *Store) appendHistoryLocked(committed *SystemState) {
	s.history = append(s.history, committed)
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
}

func (s *Store) notifyUpdated(prev, current *SystemState) {
	s.obsMu.RLock()
	observers := s.updateObs
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(prev, current)
	}
}

func (s *Store) notifyValidationFailure(err error) {
	s.obsMu.RLock()
	observers := s.validationObs
	s.obsMu.RUnlock()
	for _, fn := range observers {
		fn(err)
	}
}
