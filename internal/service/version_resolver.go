package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/domain"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/pkg/logger"
	"squadkeeper.io/keeper/internal/pkg/version"
	"squadkeeper.io/keeper/internal/repository"
)

// ResolveReason explains why a template was chosen as effective.
type ResolveReason string

const (
	ResolveExplicit ResolveReason = "explicit"
	ResolveBuiltIn  ResolveReason = "built-in"
	ResolveDBNewer  ResolveReason = "db-newer"
	ResolveDBTie    ResolveReason = "db-tie"
)

// VersionResolver decides which template is authoritative for a tenant.
type VersionResolver struct {
	registry    *TemplateRegistry
	deployments repository.DeploymentRepository
}

// NewVersionResolver creates a VersionResolver.
func NewVersionResolver(registry *TemplateRegistry, deployments repository.DeploymentRepository) *VersionResolver {
	return &VersionResolver{registry: registry, deployments: deployments}
}

// ResolveEffectiveTemplate returns the template a tenant should run.
//
// An explicit id wins outright and must be active. Otherwise the tenant's
// linked stored template is compared against the default built-in: a
// strictly newer stored version wins; on equal versions builtInWinsOnTie
// decides. Missing or inactive stored templates fall back to the built-in.
func (r *VersionResolver) ResolveEffectiveTemplate(ctx context.Context, accountID, explicitTemplateID string, builtInWinsOnTie bool) (*domain.Template, ResolveReason, error) {
	if explicitTemplateID != "" {
		tpl, err := r.registry.GetDeployable(ctx, explicitTemplateID)
		if err != nil {
			return nil, "", err
		}
		return tpl, ResolveExplicit, nil
	}

	builtIn := r.registry.Default()

	dep, err := r.deployments.GetDeployment(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return builtIn, ResolveBuiltIn, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("load deployment %s: %w", accountID, err)
	}
	if dep.CurrentTemplateID == nil {
		return builtIn, ResolveBuiltIn, nil
	}

	stored, err := r.registry.Get(ctx, *dep.CurrentTemplateID)
	if apperrors.HasCode(err, apperrors.CodeTemplateNotFound) {
		logger.Warn("linked template missing, using built-in",
			zap.String("account_id", accountID),
			zap.String("template_id", *dep.CurrentTemplateID),
		)
		return builtIn, ResolveBuiltIn, nil
	}
	if err != nil {
		return nil, "", err
	}
	if !stored.IsActive || stored.BuiltIn {
		return builtIn, ResolveBuiltIn, nil
	}

	switch cmp := version.Compare(stored.Version, builtIn.Version); {
	case cmp > 0:
		return stored, ResolveDBNewer, nil
	case cmp == 0 && !builtInWinsOnTie:
		return stored, ResolveDBTie, nil
	default:
		return builtIn, ResolveBuiltIn, nil
	}
}
