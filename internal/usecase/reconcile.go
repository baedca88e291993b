package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"squadkeeper.io/keeper/internal/domain"
	"squadkeeper.io/keeper/internal/pkg/logger"
	"squadkeeper.io/keeper/internal/pkg/metrics"
	"squadkeeper.io/keeper/internal/provider"
	"squadkeeper.io/keeper/internal/repository"
)

// ReconcileUseCase compares live resources with recorded deployments.
// It only reports; nothing is created or deleted.
type ReconcileUseCase struct {
	deployments repository.DeploymentRepository
	provider    provider.ResourceProvider
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewReconcileUseCase creates a ReconcileUseCase.
func NewReconcileUseCase(deployments repository.DeploymentRepository, p provider.ResourceProvider) *ReconcileUseCase {
	return &ReconcileUseCase{deployments: deployments, provider: p, now: time.Now}
}

// WithMetrics sets the metrics sink (optional dependency).
func (uc *ReconcileUseCase) WithMetrics(m *metrics.Metrics) *ReconcileUseCase {
	uc.metrics = m
	return uc
}

// Scan lists both sides concurrently and reports:
//   - OrphanedResources: live resources no deployment points at
//   - OrphanedDeployments: accounts whose recorded resource is gone
//   - StaleHandles: accounts whose failed-delete handle is still live
func (uc *ReconcileUseCase) Scan(ctx context.Context) (*domain.ReconcileReport, error) {
	var (
		resources []domain.Resource
		deps      []domain.Deployment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resources, err = uc.provider.ListResources(gctx)
		if err != nil {
			return fmt.Errorf("list resources: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		deps, err = uc.deployments.ListDeployments(gctx, repository.DeploymentFilter{})
		if err != nil {
			return fmt.Errorf("list deployments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	live := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		live[r.ID] = struct{}{}
	}
	claimed := make(map[string]struct{}, len(deps))

	report := &domain.ReconcileReport{
		OrphanedResources:   []string{},
		OrphanedDeployments: []string{},
		StaleHandles:        []string{},
		ScannedResources:    len(resources),
		ScannedDeployments:  len(deps),
		ScannedAt:           uc.now().UTC(),
	}
	for _, d := range deps {
		if d.ExternalResourceID != "" {
			claimed[d.ExternalResourceID] = struct{}{}
			if _, ok := live[d.ExternalResourceID]; !ok {
				report.OrphanedDeployments = append(report.OrphanedDeployments, d.AccountID)
			}
		}
		if d.DeleteFailed && d.DeletedResourceID != "" {
			if _, ok := live[d.DeletedResourceID]; ok {
				report.StaleHandles = append(report.StaleHandles, d.AccountID)
			}
		}
	}
	for id := range live {
		if _, ok := claimed[id]; !ok {
			report.OrphanedResources = append(report.OrphanedResources, id)
		}
	}
	sort.Strings(report.OrphanedResources)
	sort.Strings(report.OrphanedDeployments)
	sort.Strings(report.StaleHandles)

	uc.metrics.SetReconcile(len(report.OrphanedResources), len(report.OrphanedDeployments), len(report.StaleHandles))
	logger.Info("reconciliation scan complete",
		zap.Int("resources", report.ScannedResources),
		zap.Int("deployments", report.ScannedDeployments),
		zap.Int("orphaned_resources", len(report.OrphanedResources)),
		zap.Int("orphaned_deployments", len(report.OrphanedDeployments)),
		zap.Int("stale_handles", len(report.StaleHandles)),
	)
	return report, nil
}
