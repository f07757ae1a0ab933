package grouping

import (
	"context"
	"time"
)

// PassRecorder receives the outcome of every scheduled pass. Implemented
// by the telemetry layer; a nil recorder disables recording.
type PassRecorder interface {
	RecordGroupingPass(report *ReconciliationReport, err error)
}

// Runner schedules periodic corrective passes and on-demand triggers.
type Runner struct {
	reconciler *Reconciler
	interval   time.Duration
	recorder   PassRecorder
	trigger    chan struct{}
}

// NewRunner creates a runner that executes a full corrective pass every
// interval. recorder may be nil.
func NewRunner(reconciler *Reconciler, interval time.Duration, recorder PassRecorder) *Runner {
	return &Runner{
		reconciler: reconciler,
		interval:   interval,
		recorder:   recorder,
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger requests an immediate pass. Coalesces when one is already
// pending; never blocks.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, executing one pass immediately and
// then one per interval or trigger. It always returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runPass(ctx)
		case <-r.trigger:
			r.runPass(ctx)
		}
	}
}

func (r *Runner) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := r.reconciler.ReconcileAllZoneGroupings(ctx)
	if err != nil {
		r.reconciler.logger.Error("grouping pass failed", "error", err)
	} else {
		r.reconciler.logReport(report)
	}
	if r.recorder != nil {
		r.recorder.RecordGroupingPass(report, err)
	}
}
