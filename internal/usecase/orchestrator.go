// Package usecase holds the write paths of SquadKeeper: the swap
// orchestrator, bulk planning, per-account operations and reconciliation.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/domain"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/pkg/lease"
	"squadkeeper.io/keeper/internal/pkg/logger"
	"squadkeeper.io/keeper/internal/pkg/metrics"
	"squadkeeper.io/keeper/internal/provider"
	"squadkeeper.io/keeper/internal/repository"
	"squadkeeper.io/keeper/internal/service"
)

// Swap kinds, used as the metrics "kind" label.
const (
	KindUpgrade   = "upgrade"
	KindRollback  = "rollback"
	KindProvision = "provision"
)

// OrchestratorConfig bounds every external call and the lease wait.
type OrchestratorConfig struct {
	CreateTimeout  time.Duration
	RoutingTimeout time.Duration
	DeleteTimeout  time.Duration
	LeaseWait      time.Duration
}

// DefaultOrchestratorConfig returns production defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		CreateTimeout:  60 * time.Second,
		RoutingTimeout: 15 * time.Second,
		DeleteTimeout:  30 * time.Second,
		LeaseWait:      10 * time.Second,
	}
}

// ExecuteInput is one swap request.
type ExecuteInput struct {
	AccountID  string
	Target     *domain.Template
	Actor      string
	IsRollback bool
	// Kind overrides the metrics label; derived from IsRollback when empty.
	Kind string
}

// Orchestrator is the only writer of external resources and the ledger.
// It replaces a tenant's resource with create, route, delete, commit so
// the tenant is never left without a working resource.
type Orchestrator struct {
	deployments repository.DeploymentRepository
	ledger      *service.Ledger
	provider    provider.ResourceProvider
	contexts    provider.ContextProvider
	locker      lease.Locker
	metrics     *metrics.Metrics
	cfg         OrchestratorConfig
	now         func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	deployments repository.DeploymentRepository,
	ledger *service.Ledger,
	p provider.ResourceProvider,
	contexts provider.ContextProvider,
	locker lease.Locker,
	cfg OrchestratorConfig,
) *Orchestrator {
	def := DefaultOrchestratorConfig()
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = def.CreateTimeout
	}
	if cfg.RoutingTimeout <= 0 {
		cfg.RoutingTimeout = def.RoutingTimeout
	}
	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = def.DeleteTimeout
	}
	if cfg.LeaseWait <= 0 {
		cfg.LeaseWait = def.LeaseWait
	}
	return &Orchestrator{
		deployments: deployments,
		ledger:      ledger,
		provider:    p,
		contexts:    contexts,
		locker:      locker,
		cfg:         cfg,
		now:         time.Now,
	}
}

// WithMetrics sets the metrics sink (optional dependency).
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Execute swaps accountID's resource to input.Target and records the
// transition.
//
// Failure semantics:
//   - create fails: nothing changes, PROVISION_FAILED
//   - routing fails: the new resource is deleted (best effort), ROUTING_UPDATE_FAILED
//   - old delete fails: logged and recorded on the deployment, swap succeeds
//   - commit fails: DEPLOYMENT_PERSIST_FAILED; the new resource stays live
//     and shows up as an orphan in reconciliation
func (o *Orchestrator) Execute(ctx context.Context, input ExecuteInput) (*domain.Transition, error) {
	if input.AccountID == "" {
		return nil, apperrors.ErrValidation("account_id is required")
	}
	if input.Target == nil {
		return nil, apperrors.ErrValidation("target template is required")
	}
	if !input.Target.IsActive {
		return nil, apperrors.ErrTemplateInactivef(input.Target.ID, input.Target.Version)
	}
	kind := input.Kind
	if kind == "" {
		kind = KindUpgrade
		if input.IsRollback {
			kind = KindRollback
		}
	}
	log := logger.ForAccount("orchestrator", input.AccountID).With(
		zap.String("kind", kind),
		zap.String("target", input.Target.Ref()),
	)
	started := o.now()

	// Step 1: Per-account lease.
	leaseCtx, cancelLease := context.WithTimeout(ctx, o.cfg.LeaseWait)
	release, err := o.locker.Acquire(leaseCtx, "account:"+input.AccountID)
	cancelLease()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lease for %s: %w", input.AccountID, err)
		}
		o.metrics.ObserveSwap(kind, "busy", o.now().Sub(started))
		return nil, apperrors.ErrAccountBusyf(input.AccountID)
	}
	defer release()

	// From here on the swap runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	dep, err := o.deployments.GetDeployment(ctx, input.AccountID)
	if errors.Is(err, repository.ErrNotFound) {
		dep = &domain.Deployment{AccountID: input.AccountID}
	} else if err != nil {
		return nil, fmt.Errorf("load deployment %s: %w", input.AccountID, err)
	}

	// Step 2: Build the payload.
	rc, err := o.contexts.RuntimeContext(ctx, input.AccountID)
	if err != nil {
		return nil, fmt.Errorf("runtime context for %s: %w", input.AccountID, err)
	}
	payload, err := BuildPayload(input.Target, rc)
	if err != nil {
		return nil, apperrors.ErrProvisionFailed(err)
	}

	// Step 3: Create the replacement.
	created, err := o.createResource(ctx, payload)
	if err != nil {
		log.Error("resource creation failed", zap.Error(err))
		o.metrics.ObserveSwap(kind, "provision_failed", o.now().Sub(started))
		return nil, apperrors.ErrProvisionFailed(err).
			WithParams(map[string]interface{}{"account_id": input.AccountID})
	}
	log = log.With(zap.String("new_resource_id", created.ID))

	// Step 4: Re-point routing at the replacement.
	if rc.RoutingBindingID != "" {
		if err := o.updateRouting(ctx, rc.RoutingBindingID, created.ID); err != nil {
			log.Error("routing update failed, discarding new resource",
				zap.String("binding_id", rc.RoutingBindingID),
				zap.Error(err),
			)
			if delErr := o.deleteResource(ctx, created.ID); delErr != nil && !errors.Is(delErr, provider.ErrResourceNotFound) {
				log.Warn("cleanup of new resource failed", zap.Error(delErr))
			}
			o.metrics.ObserveSwap(kind, "routing_failed", o.now().Sub(started))
			return nil, apperrors.ErrRoutingUpdateFailed(err).
				WithParams(map[string]interface{}{"account_id": input.AccountID, "binding_id": rc.RoutingBindingID})
		}
	}

	// Step 5: Retire the old resource. Failure here is not fatal.
	oldID := dep.ExternalResourceID
	oldDeleted := false
	if oldID != "" && oldID != created.ID {
		err := o.deleteResource(ctx, oldID)
		switch {
		case err == nil, errors.Is(err, provider.ErrResourceNotFound):
			oldDeleted = true
		default:
			log.Warn("old resource delete failed; recording stale handle",
				zap.String("code", apperrors.CodeResourceDeleteFailed),
				zap.String("old_resource_id", oldID),
				zap.Error(err),
			)
			o.metrics.IncDeleteFailure()
		}
	}

	// Step 6: Single atomic write of deployment + transition.
	t := &domain.Transition{
		FromVersion:        dep.CurrentVersion,
		FromTemplateName:   dep.CurrentTemplateName,
		FromTemplateID:     deref(dep.CurrentTemplateID),
		ToVersion:          input.Target.Version,
		ToTemplateName:     input.Target.Name,
		ToTemplateID:       input.Target.ID,
		OldResourceID:      oldID,
		NewResourceID:      created.ID,
		OldResourceDeleted: oldDeleted,
		Timestamp:          o.now().UTC(),
		Actor:              input.Actor,
		IsRollback:         input.IsRollback,
	}
	next := dep.Clone()
	next.CurrentTemplateID = input.Target.TemplateID()
	next.CurrentVersion = input.Target.Version
	next.CurrentTemplateName = input.Target.Name
	next.ExternalResourceID = created.ID
	if oldID != "" && oldID != created.ID {
		next.DeletedResourceID = oldID
		next.DeleteFailed = !oldDeleted
	}

	if err := o.ledger.Commit(ctx, next, t); err != nil {
		log.Error("deployment commit failed; new resource is live but unrecorded", zap.Error(err))
		o.metrics.ObserveSwap(kind, "persist_failed", o.now().Sub(started))
		if appErr, ok := apperrors.IsAppError(err); ok {
			return nil, appErr.WithParams(map[string]interface{}{"new_resource_id": created.ID})
		}
		return nil, err
	}

	o.metrics.ObserveSwap(kind, "success", o.now().Sub(started))
	log.Info("swap committed",
		zap.String("transition_id", t.ID),
		zap.String("from_version", t.FromVersion),
		zap.String("to_version", t.ToVersion),
		zap.Bool("old_resource_deleted", oldDeleted),
	)
	return t, nil
}

func (o *Orchestrator) createResource(ctx context.Context, payload *domain.ProvisionPayload) (*domain.Resource, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.CreateTimeout)
	defer cancel()
	res, err := o.provider.CreateResource(ctx, payload)
	if err != nil {
		return nil, err
	}
	if res == nil || res.ID == "" {
		return nil, errors.New("provider returned no resource id")
	}
	return res, nil
}

func (o *Orchestrator) updateRouting(ctx context.Context, bindingID, resourceID string) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RoutingTimeout)
	defer cancel()
	return o.provider.UpdateRouting(ctx, bindingID, resourceID)
}

func (o *Orchestrator) deleteResource(ctx context.Context, resourceID string) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.DeleteTimeout)
	defer cancel()
	return o.provider.DeleteResource(ctx, resourceID)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
