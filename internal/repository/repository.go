// Package repository defines persistence contracts for templates,
// deployments and the transition ledger.
package repository

import (
	"context"
	"errors"

	"squadkeeper.io/keeper/internal/domain"
)

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate indicates a unique constraint was violated.
var ErrDuplicate = errors.New("repository: duplicate")

// DeploymentFilter narrows ListDeployments. Zero value lists everything.
type DeploymentFilter struct {
	AccountIDs     []string
	CurrentVersion string
}

// TemplateRepository persists stored (non built-in) templates.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, tpl *domain.Template) error
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	// ListTemplates returns templates named name, or all when name is empty.
	ListTemplates(ctx context.Context, name string) ([]domain.Template, error)
	SetTemplateActive(ctx context.Context, id string, active bool) error
}

// DeploymentRepository reads per-tenant deployment records.
type DeploymentRepository interface {
	// GetDeployment returns the deployment with its full history.
	GetDeployment(ctx context.Context, accountID string) (*domain.Deployment, error)
	// ListDeployments returns deployments without history.
	ListDeployments(ctx context.Context, filter DeploymentFilter) ([]domain.Deployment, error)
}

// TransitionRepository is the append-only ledger.
type TransitionRepository interface {
	// AppendTransition assigns the next sequence number and stores t.
	AppendTransition(ctx context.Context, t *domain.Transition) error
	ListTransitions(ctx context.Context, accountID string) ([]domain.Transition, error)
	LastTransition(ctx context.Context, accountID string) (*domain.Transition, error)
	// CommitTransition upserts dep's current fields and appends t in one
	// atomic write. Either both land or neither does.
	CommitTransition(ctx context.Context, dep *domain.Deployment, t *domain.Transition) error
}

// Store bundles every repository the service needs.
type Store interface {
	TemplateRepository
	DeploymentRepository
	TransitionRepository
}
