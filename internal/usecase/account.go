package usecase

import (
	"context"
	"errors"
	"fmt"

	"squadkeeper.io/keeper/internal/domain"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/pkg/worker"
	"squadkeeper.io/keeper/internal/repository"
	"squadkeeper.io/keeper/internal/service"
)

// RollbackInput asks to roll one or more accounts back.
type RollbackInput struct {
	AccountIDs []string `json:"account_ids"`
	TemplateID string   `json:"template_id,omitempty"`
	UseBuiltIn bool     `json:"use_built_in,omitempty"`
	Actor      string   `json:"actor"`
}

// Rollback result statuses.
const (
	RollbackStatusRolledBack = "rolled_back"
	RollbackStatusFailed     = "failed"
	RollbackStatusSkipped    = "skipped"
)

// RollbackResult is the outcome for one account.
type RollbackResult struct {
	AccountID      string `json:"account_id"`
	Status         string `json:"status"`
	TargetTemplate string `json:"target_template,omitempty"`
	TransitionID   string `json:"transition_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
}

// ProvisionResult reports which template provisioning resolved to.
type ProvisionResult struct {
	Template   *domain.Template      `json:"template"`
	Reason     service.ResolveReason `json:"reason"`
	Transition *domain.Transition    `json:"transition"`
}

// AccountUseCase serves single-account operations: queries, upgrade,
// provision and rollback.
type AccountUseCase struct {
	registry         *service.TemplateRegistry
	resolver         *service.VersionResolver
	rollbacks        *service.RollbackResolver
	ledger           *service.Ledger
	deployments      repository.DeploymentRepository
	orchestrator     *Orchestrator
	pool             *worker.Pool
	builtInWinsOnTie bool
}

// AccountDeps bundles AccountUseCase collaborators.
type AccountDeps struct {
	Registry         *service.TemplateRegistry
	Resolver         *service.VersionResolver
	Rollbacks        *service.RollbackResolver
	Ledger           *service.Ledger
	Deployments      repository.DeploymentRepository
	Orchestrator     *Orchestrator
	Pool             *worker.Pool
	BuiltInWinsOnTie bool
}

// NewAccountUseCase creates an AccountUseCase.
func NewAccountUseCase(deps AccountDeps) *AccountUseCase {
	return &AccountUseCase{
		registry:         deps.Registry,
		resolver:         deps.Resolver,
		rollbacks:        deps.Rollbacks,
		ledger:           deps.Ledger,
		deployments:      deps.Deployments,
		orchestrator:     deps.Orchestrator,
		pool:             deps.Pool,
		builtInWinsOnTie: deps.BuiltInWinsOnTie,
	}
}

// CurrentDeployment returns the account's deployment with history.
func (uc *AccountUseCase) CurrentDeployment(ctx context.Context, accountID string) (*domain.Deployment, error) {
	dep, err := uc.deployments.GetDeployment(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrAccountNotFoundf(accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment %s: %w", accountID, err)
	}
	if dep.History == nil {
		dep.History = []domain.Transition{}
	}
	return dep, nil
}

// History returns the account's ledger.
func (uc *AccountUseCase) History(ctx context.Context, accountID string) ([]domain.Transition, error) {
	return uc.ledger.History(ctx, accountID)
}

// EffectiveTemplate resolves the template the account should run. A nil
// tie overrides the configured tie-break.
func (uc *AccountUseCase) EffectiveTemplate(ctx context.Context, accountID, templateID string, builtInWinsOnTie *bool) (*domain.Template, service.ResolveReason, error) {
	tie := uc.builtInWinsOnTie
	if builtInWinsOnTie != nil {
		tie = *builtInWinsOnTie
	}
	return uc.resolver.ResolveEffectiveTemplate(ctx, accountID, templateID, tie)
}

// Upgrade swaps one account to an explicit template.
func (uc *AccountUseCase) Upgrade(ctx context.Context, accountID, templateID, actor string) (*domain.Transition, error) {
	if templateID == "" {
		return nil, apperrors.ErrValidation("template_id is required")
	}
	target, err := uc.registry.GetDeployable(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return uc.orchestrator.Execute(ctx, ExecuteInput{AccountID: accountID, Target: target, Actor: actor})
}

// Provision resolves the effective template and deploys it. It serves
// first-time provisioning and drift repair alike.
func (uc *AccountUseCase) Provision(ctx context.Context, accountID, templateID, actor string) (*ProvisionResult, error) {
	tpl, reason, err := uc.resolver.ResolveEffectiveTemplate(ctx, accountID, templateID, uc.builtInWinsOnTie)
	if err != nil {
		return nil, err
	}
	t, err := uc.orchestrator.Execute(ctx, ExecuteInput{AccountID: accountID, Target: tpl, Actor: actor, Kind: KindProvision})
	if err != nil {
		return nil, err
	}
	return &ProvisionResult{Template: tpl, Reason: reason, Transition: t}, nil
}

// RollbackOne resolves a rollback target for one account and swaps to it.
func (uc *AccountUseCase) RollbackOne(ctx context.Context, accountID, templateID string, useBuiltIn bool, actor string) (*domain.Transition, *domain.Template, error) {
	if _, err := uc.CurrentDeployment(ctx, accountID); err != nil {
		return nil, nil, err
	}
	target, err := uc.rollbacks.ResolveRollbackTarget(ctx, accountID, templateID, useBuiltIn)
	if err != nil {
		return nil, nil, err
	}
	t, err := uc.orchestrator.Execute(ctx, ExecuteInput{AccountID: accountID, Target: target, Actor: actor, IsRollback: true})
	if err != nil {
		return nil, target, err
	}
	return t, target, nil
}

// Rollback rolls back every listed account on the tenant pool and reports
// per-account results. Errors never abort the batch.
func (uc *AccountUseCase) Rollback(ctx context.Context, input RollbackInput) ([]RollbackResult, error) {
	ids := dedupe(input.AccountIDs)
	if len(ids) == 0 {
		return nil, apperrors.ErrValidation("account_ids must not be empty")
	}

	results := make([]RollbackResult, len(ids))
	uc.pool.ForEach(ctx, len(ids), func(runCtx context.Context, i int) {
		res := RollbackResult{AccountID: ids[i]}
		t, target, err := uc.RollbackOne(runCtx, ids[i], input.TemplateID, input.UseBuiltIn, input.Actor)
		if target != nil {
			res.TargetTemplate = target.Ref()
		}
		if err != nil {
			res.Status = RollbackStatusFailed
			res.Reason = err.Error()
			res.ErrorCode = apperrors.CodeOf(err)
		} else {
			res.Status = RollbackStatusRolledBack
			res.TransitionID = t.ID
		}
		results[i] = res
	}, func(i int) {
		results[i] = RollbackResult{AccountID: ids[i], Status: RollbackStatusSkipped, Reason: domain.ReasonCancelled}
	})
	return results, nil
}
