package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"squadkeeper.io/keeper/internal/domain"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/repository"
)

// Ledger is the append-only record of per-tenant version transitions.
// Entries are never reordered, edited or removed.
type Ledger struct {
	store repository.TransitionRepository
}

// NewLedger creates a Ledger.
func NewLedger(store repository.TransitionRepository) *Ledger {
	return &Ledger{store: store}
}

// Append records t for accountID, assigning an id and sequence number.
func (l *Ledger) Append(ctx context.Context, accountID string, t *domain.Transition) error {
	prepare(accountID, t)
	if err := l.store.AppendTransition(ctx, t); err != nil {
		return fmt.Errorf("append transition for %s: %w", accountID, err)
	}
	return nil
}

// History returns accountID's transitions oldest first.
func (l *Ledger) History(ctx context.Context, accountID string) ([]domain.Transition, error) {
	h, err := l.store.ListTransitions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transitions for %s: %w", accountID, err)
	}
	if h == nil {
		h = []domain.Transition{}
	}
	return h, nil
}

// LastTransition returns the newest transition, or nil when there is none.
func (l *Ledger) LastTransition(ctx context.Context, accountID string) (*domain.Transition, error) {
	t, err := l.store.LastTransition(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last transition for %s: %w", accountID, err)
	}
	return t, nil
}

// Commit atomically writes dep's current fields and appends t. On success
// t is also appended to dep.History so the in-memory record matches storage.
func (l *Ledger) Commit(ctx context.Context, dep *domain.Deployment, t *domain.Transition) error {
	prepare(dep.AccountID, t)
	if err := l.store.CommitTransition(ctx, dep, t); err != nil {
		return apperrors.ErrDeploymentPersistFailed(err).
			WithParams(map[string]interface{}{"account_id": dep.AccountID})
	}
	dep.History = append(dep.History, *t)
	return nil
}

func prepare(accountID string, t *domain.Transition) {
	t.AccountID = accountID
	if t.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		t.ID = id.String()
	}
}
