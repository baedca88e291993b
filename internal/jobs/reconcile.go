package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
)

// ReconcileArgs triggers a reconciliation scan.
type ReconcileArgs struct{}

// Kind returns the job kind identifier for reconciliation.
func (ReconcileArgs) Kind() string { return "reconcile_scan" }

// InsertOpts keeps at most one scan per period in the queue.
func (ReconcileArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueMaintenance,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 5 * time.Minute,
			ByQueue:  true,
		},
	}
}

// ReconcileWorker runs the read-only reconciliation scan. The scan logs
// and publishes its findings; nothing is repaired automatically.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileArgs]
	scanner scanner
}

// NewReconcileWorker creates a ReconcileWorker.
func NewReconcileWorker(s scanner) *ReconcileWorker {
	return &ReconcileWorker{scanner: s}
}

// Work runs one scan.
func (w *ReconcileWorker) Work(ctx context.Context, _ *river.Job[ReconcileArgs]) error {
	if w == nil || w.scanner == nil {
		return fmt.Errorf("reconcile worker is not initialized")
	}
	if _, err := w.scanner.Scan(ctx); err != nil {
		return fmt.Errorf("reconcile scan: %w", err)
	}
	return nil
}
