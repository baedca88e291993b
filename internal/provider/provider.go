// Package provider adapts the external squad provisioning API and the
// tenant runtime-context source.
//
// Only the Orchestrator creates, deletes or re-routes resources; everything
// else reads.
package provider

import (
	"context"
	"errors"

	"squadkeeper.io/keeper/internal/domain"
)

// ErrResourceNotFound is returned by DeleteResource when the handle is
// already gone. Callers treat it as a successful delete.
var ErrResourceNotFound = errors.New("provider: resource not found")

// ResourceProvider is the provisioning API surface the service depends on.
type ResourceProvider interface {
	Name() string
	CreateResource(ctx context.Context, payload *domain.ProvisionPayload) (*domain.Resource, error)
	DeleteResource(ctx context.Context, resourceID string) error
	ListResources(ctx context.Context) ([]domain.Resource, error)
	// UpdateRouting points an inbound binding (e.g. a phone number) at resourceID.
	UpdateRouting(ctx context.Context, bindingID, resourceID string) error
}

// ContextProvider supplies tenant variables used to build payloads.
type ContextProvider interface {
	RuntimeContext(ctx context.Context, accountID string) (*domain.RuntimeContext, error)
}
