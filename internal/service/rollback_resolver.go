package service

import (
	"context"

	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/domain"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/pkg/logger"
)

// RollbackResolver computes the template a tenant should roll back to.
type RollbackResolver struct {
	registry *TemplateRegistry
	ledger   *Ledger
}

// NewRollbackResolver creates a RollbackResolver.
func NewRollbackResolver(registry *TemplateRegistry, ledger *Ledger) *RollbackResolver {
	return &RollbackResolver{registry: registry, ledger: ledger}
}

// ResolveRollbackTarget picks a rollback target in order:
//
//  1. explicitTemplateID, which must exist and be active
//  2. the default built-in when useBuiltIn is set
//  3. the "from" side of the last transition, matched by template id, then
//     by (name, version), then by the latest active template of that name
//
// A derived candidate that is missing or inactive falls back to the
// built-in. With no history and no explicit choice the result is NO_HISTORY.
func (r *RollbackResolver) ResolveRollbackTarget(ctx context.Context, accountID, explicitTemplateID string, useBuiltIn bool) (*domain.Template, error) {
	if explicitTemplateID != "" {
		return r.registry.GetDeployable(ctx, explicitTemplateID)
	}
	if useBuiltIn {
		return r.registry.Default(), nil
	}

	last, err := r.ledger.LastTransition(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, apperrors.ErrNoHistoryf(accountID)
	}

	tpl, err := r.fromSide(ctx, last)
	if err != nil {
		return nil, err
	}
	if tpl == nil || !tpl.IsActive {
		logger.Info("rollback candidate unavailable, using built-in",
			zap.String("account_id", accountID),
			zap.String("from_template_id", last.FromTemplateID),
			zap.String("from_version", last.FromVersion),
		)
		return r.registry.Default(), nil
	}
	return tpl, nil
}

// fromSide locates the template a transition moved away from. It returns
// nil without error when nothing matches.
func (r *RollbackResolver) fromSide(ctx context.Context, t *domain.Transition) (*domain.Template, error) {
	if t.FromTemplateID != "" {
		tpl, err := r.registry.Get(ctx, t.FromTemplateID)
		if err == nil {
			return tpl, nil
		}
		if !apperrors.HasCode(err, apperrors.CodeTemplateNotFound) {
			return nil, err
		}
	}
	if t.FromTemplateName == "" {
		return nil, nil
	}
	if t.FromVersion != "" {
		tpl, err := r.registry.FindByNameVersion(ctx, t.FromTemplateName, t.FromVersion)
		if err == nil {
			return tpl, nil
		}
		if !apperrors.HasCode(err, apperrors.CodeTemplateNotFound) {
			return nil, err
		}
	}
	tpl, err := r.registry.LatestActiveByName(ctx, t.FromTemplateName)
	if apperrors.HasCode(err, apperrors.CodeTemplateNotFound) {
		return nil, nil
	}
	return tpl, err
}
