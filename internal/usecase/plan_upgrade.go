package usecase

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/domain"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/pkg/logger"
	"squadkeeper.io/keeper/internal/pkg/metrics"
	"squadkeeper.io/keeper/internal/pkg/version"
	"squadkeeper.io/keeper/internal/pkg/worker"
	"squadkeeper.io/keeper/internal/repository"
	"squadkeeper.io/keeper/internal/service"
)

// PlanInput describes a bulk upgrade request.
type PlanInput struct {
	TargetTemplateID string            `json:"template_id"`
	Filter           domain.PlanFilter `json:"filter"`
	Force            bool              `json:"force"`
	DryRun           bool              `json:"dry_run"`
	Actor            string            `json:"actor"`
}

// PlanUpgradeUseCase previews and executes bulk upgrades.
type PlanUpgradeUseCase struct {
	registry     *service.TemplateRegistry
	deployments  repository.DeploymentRepository
	orchestrator *Orchestrator
	pool         *worker.Pool
	metrics      *metrics.Metrics
}

// NewPlanUpgradeUseCase creates a PlanUpgradeUseCase. pool bounds how many
// swaps run at once.
func NewPlanUpgradeUseCase(
	registry *service.TemplateRegistry,
	deployments repository.DeploymentRepository,
	orchestrator *Orchestrator,
	pool *worker.Pool,
) *PlanUpgradeUseCase {
	return &PlanUpgradeUseCase{registry: registry, deployments: deployments, orchestrator: orchestrator, pool: pool}
}

// WithMetrics sets the metrics sink (optional dependency).
func (uc *PlanUpgradeUseCase) WithMetrics(m *metrics.Metrics) *PlanUpgradeUseCase {
	uc.metrics = m
	return uc
}

// Plan builds an upgrade plan and, unless DryRun, executes its pending
// entries. One tenant's failure never aborts the batch. Cancelling ctx
// stops scheduling; unstarted entries are reported as skipped.
func (uc *PlanUpgradeUseCase) Plan(ctx context.Context, input PlanInput) (*domain.Plan, error) {
	if input.TargetTemplateID == "" {
		return nil, apperrors.ErrValidation("template_id is required")
	}

	// Step 1: Validate the target.
	target, err := uc.registry.GetDeployable(ctx, input.TargetTemplateID)
	if err != nil {
		return nil, err
	}

	// Step 2: Select candidates and classify them.
	candidates, missing, err := uc.candidates(ctx, input.Filter)
	if err != nil {
		return nil, err
	}

	plan := &domain.Plan{
		TargetTemplateID: target.ID,
		TargetVersion:    target.Version,
		TargetName:       target.Name,
		DryRun:           input.DryRun,
		Force:            input.Force,
		Entries:          make([]domain.UpgradePlanEntry, 0, len(candidates)+len(missing)),
	}
	pendingDeps := make([]domain.Deployment, 0, len(candidates))
	for _, dep := range candidates {
		entry := domain.UpgradePlanEntry{
			AccountID:      dep.AccountID,
			CurrentVersion: dep.CurrentVersion,
			TargetVersion:  target.Version,
			Status:         domain.PlanStatusPending,
		}
		switch {
		case !dep.HasResource():
			entry.Status = domain.PlanStatusSkipped
			entry.Reason = domain.ReasonNoResource
		case !input.Force && onTarget(&dep, target):
			entry.Status = domain.PlanStatusSkipped
			entry.Reason = domain.ReasonAlreadyOnTarget
		default:
			pendingDeps = append(pendingDeps, dep)
		}
		plan.Entries = append(plan.Entries, entry)
	}
	for _, accountID := range missing {
		plan.Entries = append(plan.Entries, domain.UpgradePlanEntry{
			AccountID:     accountID,
			TargetVersion: target.Version,
			Status:        domain.PlanStatusSkipped,
			Reason:        domain.ReasonNoResource,
		})
	}

	// Step 3: Advisory report against the most common current template.
	from := uc.reportBaseline(ctx, pendingDeps)
	plan.Report = service.BuildMigrationReport(from, target)

	if input.DryRun {
		return plan, nil
	}

	// Step 4: Execute pending entries.
	uc.execute(ctx, plan, target, input.Actor)
	return plan, nil
}

// candidates returns deployments matching filter plus explicitly named
// accounts that have no deployment at all.
func (uc *PlanUpgradeUseCase) candidates(ctx context.Context, filter domain.PlanFilter) ([]domain.Deployment, []string, error) {
	ids := dedupe(filter.AccountIDs)
	deps, err := uc.deployments.ListDeployments(ctx, repository.DeploymentFilter{
		AccountIDs:     ids,
		CurrentVersion: filter.FromVersion,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list deployments: %w", err)
	}
	if len(ids) == 0 || filter.FromVersion != "" {
		return deps, nil, nil
	}

	// Preserve the caller's ordering for explicit ids.
	byID := make(map[string]domain.Deployment, len(deps))
	for _, d := range deps {
		byID[d.AccountID] = d
	}
	ordered := make([]domain.Deployment, 0, len(deps))
	var missing []string
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			ordered = append(ordered, d)
		} else {
			missing = append(missing, id)
		}
	}
	return ordered, missing, nil
}

// reportBaseline picks the template most pending tenants are on. Ties go
// to the lowest key; with nothing pending the default built-in is used.
func (uc *PlanUpgradeUseCase) reportBaseline(ctx context.Context, pending []domain.Deployment) *domain.Template {
	counts := make(map[string]int)
	sample := make(map[string]domain.Deployment)
	for _, d := range pending {
		key := templateKey(&d)
		counts[key]++
		if _, ok := sample[key]; !ok {
			sample[key] = d
		}
	}
	if len(counts) == 0 {
		return uc.registry.Default()
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}

	d := sample[best]
	if d.CurrentTemplateID != nil {
		if tpl, err := uc.registry.Get(ctx, *d.CurrentTemplateID); err == nil {
			return tpl
		}
	}
	if d.CurrentTemplateName != "" {
		if tpl, err := uc.registry.FindByNameVersion(ctx, d.CurrentTemplateName, d.CurrentVersion); err == nil {
			return tpl
		}
	}
	return uc.registry.Default()
}

func (uc *PlanUpgradeUseCase) execute(ctx context.Context, plan *domain.Plan, target *domain.Template, actor string) {
	var pending []int
	for i, e := range plan.Entries {
		if e.Status == domain.PlanStatusPending {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return
	}

	log := logger.Named("planner").With(zap.String("target", target.Ref()), zap.Int("pending", len(pending)))
	log.Info("executing upgrade plan")

	uc.pool.ForEach(ctx, len(pending), func(runCtx context.Context, n int) {
		entry := &plan.Entries[pending[n]]
		t, err := uc.orchestrator.Execute(runCtx, ExecuteInput{
			AccountID: entry.AccountID,
			Target:    target,
			Actor:     actor,
		})
		if err != nil {
			entry.Status = domain.PlanStatusFailed
			entry.Reason = err.Error()
			entry.ErrorCode = apperrors.CodeOf(err)
		} else {
			entry.Status = domain.PlanStatusUpgraded
			entry.TransitionID = t.ID
		}
		uc.metrics.ObservePlanEntry(string(entry.Status))
	}, func(n int) {
		entry := &plan.Entries[pending[n]]
		entry.Status = domain.PlanStatusSkipped
		entry.Reason = domain.ReasonCancelled
		uc.metrics.ObservePlanEntry(string(entry.Status))
	})

	s := plan.Summary()
	log.Info("upgrade plan finished",
		zap.Int("upgraded", s.Upgraded),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
	)
}

// onTarget reports whether dep already runs target.
func onTarget(dep *domain.Deployment, target *domain.Template) bool {
	if !version.Equal(dep.CurrentVersion, target.Version) {
		return false
	}
	return dep.CurrentTemplateName == "" || dep.CurrentTemplateName == target.Name
}

func templateKey(d *domain.Deployment) string {
	if d.CurrentTemplateID != nil {
		return *d.CurrentTemplateID
	}
	return d.CurrentTemplateName + "@" + d.CurrentVersion
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
