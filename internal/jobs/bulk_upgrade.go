package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/domain"
	"squadkeeper.io/keeper/internal/pkg/logger"
	"squadkeeper.io/keeper/internal/usecase"
)

// BulkUpgradeArgs carries a bulk upgrade request executed in the background.
type BulkUpgradeArgs struct {
	TargetTemplateID string   `json:"template_id"`
	AccountIDs       []string `json:"account_ids,omitempty"`
	FromVersion      string   `json:"from_version,omitempty"`
	Force            bool     `json:"force,omitempty"`
	Actor            string   `json:"actor"`
	RequestID        string   `json:"request_id,omitempty"`
}

// Kind returns the job kind identifier for bulk upgrades.
func (BulkUpgradeArgs) Kind() string { return "bulk_upgrade" }

// InsertOpts returns default insert options. Bulk runs are not retried by
// River: per-tenant failures are reported in the plan, and re-running is
// an explicit operator decision.
func (BulkUpgradeArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueUpgrades,
		MaxAttempts: 1,
	}
}

// PlanInput converts the job args into a non-dry-run plan request.
func (a BulkUpgradeArgs) PlanInput() usecase.PlanInput {
	return usecase.PlanInput{
		TargetTemplateID: a.TargetTemplateID,
		Filter: domain.PlanFilter{
			AccountIDs:  a.AccountIDs,
			FromVersion: a.FromVersion,
		},
		Force:  a.Force,
		DryRun: false,
		Actor:  a.Actor,
	}
}

// BulkUpgradeWorker executes bulk upgrade plans.
type BulkUpgradeWorker struct {
	river.WorkerDefaults[BulkUpgradeArgs]
	planner planner
}

// NewBulkUpgradeWorker creates a BulkUpgradeWorker.
func NewBulkUpgradeWorker(p planner) *BulkUpgradeWorker {
	return &BulkUpgradeWorker{planner: p}
}

// Timeout disables River's default job timeout. A bulk run lasts as long
// as its tenants take; cutting it short would mark the rest as cancelled
// although nobody cancelled them. Each swap is bounded by its own timeouts.
func (w *BulkUpgradeWorker) Timeout(*river.Job[BulkUpgradeArgs]) time.Duration {
	return -1
}

// Work runs the plan. Only plan-level errors (bad target, store outage)
// fail the job; tenant failures live in the plan entries.
func (w *BulkUpgradeWorker) Work(ctx context.Context, job *river.Job[BulkUpgradeArgs]) error {
	if w == nil || w.planner == nil {
		return fmt.Errorf("bulk upgrade worker is not initialized")
	}
	log := logger.Named("jobs").With(
		zap.Int64("job_id", job.ID),
		zap.String("template_id", job.Args.TargetTemplateID),
		zap.String("request_id", job.Args.RequestID),
	)
	log.Info("processing bulk upgrade job", zap.Int("attempt", job.Attempt))

	plan, err := w.planner.Plan(ctx, job.Args.PlanInput())
	if err != nil {
		return fmt.Errorf("bulk upgrade to %s: %w", job.Args.TargetTemplateID, err)
	}

	s := plan.Summary()
	log.Info("bulk upgrade job finished",
		zap.Int("total", s.Total),
		zap.Int("upgraded", s.Upgraded),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
	)
	for _, e := range plan.Entries {
		if e.Status == domain.PlanStatusFailed {
			log.Warn("tenant upgrade failed",
				zap.String("account_id", e.AccountID),
				zap.String("error_code", e.ErrorCode),
				zap.String("reason", e.Reason),
			)
		}
	}
	return nil
}
