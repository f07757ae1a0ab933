package persistence

import (
	"context"
	"time"

	"github.com/soundmesh/soundmesh-core/internal/state"
)

// saveTimeout bounds one snapshot write.
const saveTimeout = 5 * time.Second

// Logger is the minimal logging surface the saver needs.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// Saver persists committed snapshots in the background. State-store update
// observers run under the store's write lock, so the observer only hands the
// snapshot to a channel; the write happens on the saver's goroutine. The
// channel holds one snapshot and newer commits replace older unpersisted
// ones, so a burst of commands costs one write.
type Saver struct {
	store  *Store
	latest chan *state.SystemState
	logger Logger
}

// NewSaver creates a saver writing through store.
func NewSaver(store *Store) *Saver {
	return &Saver{
		store:  store,
		latest: make(chan *state.SystemState, 1),
		logger: noopLogger{},
	}
}

// SetLogger replaces the no-op logger.
func (s *Saver) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Observe is a state.UpdateObserver that schedules the committed snapshot
// for persistence. Never blocks.
func (s *Saver) Observe(_, current *state.SystemState) {
	for {
		select {
		case s.latest <- current:
			return
		default:
			// Drop the stale pending snapshot and retry with the newer one.
			select {
			case <-s.latest:
			default:
			}
		}
	}
}

// Run blocks until ctx is cancelled, persisting scheduled snapshots. On
// shutdown it flushes the last pending snapshot before returning.
func (s *Saver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return ctx.Err()
		case snap := <-s.latest:
			s.save(snap)
		}
	}
}

// SaveNow writes snap synchronously, bypassing the scheduling channel. For
// snapshots committed after Run has exited, such as the final stopping state.
func (s *Saver) SaveNow(snap *state.SystemState) {
	if snap == nil {
		return
	}
	s.save(snap)
}

func (s *Saver) flush() {
	select {
	case snap := <-s.latest:
		s.save(snap)
	default:
	}
}

func (s *Saver) save(snap *state.SystemState) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.store.SaveState(ctx, snap); err != nil {
		s.logger.Error("failed to persist state snapshot", "error", err)
		return
	}
	s.logger.Debug("state snapshot persisted", "version", snap.Version)
}
