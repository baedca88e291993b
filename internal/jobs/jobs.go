// Package jobs defines River job types for asynchronous bulk upgrades and
// periodic reconciliation.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"squadkeeper.io/keeper/internal/domain"
	"squadkeeper.io/keeper/internal/usecase"
)

// Queue names.
const (
	QueueUpgrades    = "upgrades"
	QueueMaintenance = "maintenance"
)

// planner is the slice of PlanUpgradeUseCase the bulk worker needs.
type planner interface {
	Plan(ctx context.Context, input usecase.PlanInput) (*domain.Plan, error)
}

// scanner is the slice of ReconcileUseCase the reconcile worker needs.
type scanner interface {
	Scan(ctx context.Context) (*domain.ReconcileReport, error)
}

// Enqueuer inserts jobs through a River client.
type Enqueuer struct {
	client *river.Client[pgx.Tx]
}

// NewEnqueuer creates an Enqueuer. A nil client yields an Enqueuer whose
// methods fail with ErrQueueUnavailable.
func NewEnqueuer(client *river.Client[pgx.Tx]) *Enqueuer {
	return &Enqueuer{client: client}
}

// ErrQueueUnavailable is returned when no River client is configured.
var ErrQueueUnavailable = errors.New("job queue not configured")

// Available reports whether jobs can be enqueued.
func (e *Enqueuer) Available() bool {
	return e != nil && e.client != nil
}

// EnqueueBulkUpgrade schedules a bulk upgrade and returns the job id.
func (e *Enqueuer) EnqueueBulkUpgrade(ctx context.Context, args BulkUpgradeArgs) (int64, error) {
	if !e.Available() {
		return 0, ErrQueueUnavailable
	}
	res, err := e.client.Insert(ctx, args, nil)
	if err != nil {
		return 0, fmt.Errorf("enqueue bulk upgrade: %w", err)
	}
	return res.Job.ID, nil
}

// EnqueueReconcile schedules a one-off reconciliation scan.
func (e *Enqueuer) EnqueueReconcile(ctx context.Context) (int64, error) {
	if !e.Available() {
		return 0, ErrQueueUnavailable
	}
	res, err := e.client.Insert(ctx, ReconcileArgs{}, nil)
	if err != nil {
		return 0, fmt.Errorf("enqueue reconcile: %w", err)
	}
	return res.Job.ID, nil
}
