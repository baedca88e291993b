// Package memory implements repository.Store in process memory.
// It backs unit tests and the "memory" store driver for local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"squadkeeper.io/keeper/internal/domain"
	"squadkeeper.io/keeper/internal/repository"
)

// Store is a mutex-guarded in-memory repository.Store.
type Store struct {
	mu          sync.RWMutex
	templates   map[string]domain.Template
	deployments map[string]domain.Deployment
	transitions map[string][]domain.Transition

	// failCommit, when set, is returned by the next CommitTransition.
	failCommit error
	now        func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		templates:   make(map[string]domain.Template),
		deployments: make(map[string]domain.Deployment),
		transitions: make(map[string][]domain.Transition),
		now:         time.Now,
	}
}

// FailNextCommit makes the next CommitTransition return err without
// writing anything. Used to exercise persistence failures.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	s.failCommit = err
	s.mu.Unlock()
}

// PutDeployment seeds a deployment record. History is ignored; use
// AppendTransition for ledger entries.
func (s *Store) PutDeployment(d domain.Deployment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.History = nil
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	d.CurrentTemplateID = copyStr(d.CurrentTemplateID)
	s.deployments[d.AccountID] = d
}

func (s *Store) CreateTemplate(_ context.Context, tpl *domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[tpl.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range s.templates {
		if existing.Name == tpl.Name && existing.Version == tpl.Version {
			return repository.ErrDuplicate
		}
	}
	c := *tpl
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.MemberConfigs = append([]byte(nil), tpl.MemberConfigs...)
	s.templates[c.ID] = c
	return nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (*domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tpl, nil
}

func (s *Store) ListTemplates(_ context.Context, name string) ([]domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		if name != "" && tpl.Name != name {
			continue
		}
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SetTemplateActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl, ok := s.templates[id]
	if !ok {
		return repository.ErrNotFound
	}
	tpl.IsActive = active
	s.templates[id] = tpl
	return nil
}

func (s *Store) GetDeployment(_ context.Context, accountID string) (*domain.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deployments[accountID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := d.Clone()
	out.History = append([]domain.Transition(nil), s.transitions[accountID]...)
	return out, nil
}

func (s *Store) ListDeployments(_ context.Context, filter repository.DeploymentFilter) ([]domain.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allow map[string]struct{}
	if len(filter.AccountIDs) > 0 {
		allow = make(map[string]struct{}, len(filter.AccountIDs))
		for _, id := range filter.AccountIDs {
			allow[id] = struct{}{}
		}
	}

	out := make([]domain.Deployment, 0, len(s.deployments))
	for id, d := range s.deployments {
		if allow != nil {
			if _, ok := allow[id]; !ok {
				continue
			}
		}
		if filter.CurrentVersion != "" && d.CurrentVersion != filter.CurrentVersion {
			continue
		}
		out = append(out, *d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (s *Store) AppendTransition(_ context.Context, t *domain.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(t)
	return nil
}

func (s *Store) ListTransitions(_ context.Context, accountID string) ([]domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Transition(nil), s.transitions[accountID]...), nil
}

func (s *Store) LastTransition(_ context.Context, accountID string) (*domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.transitions[accountID]
	if len(h) == 0 {
		return nil, repository.ErrNotFound
	}
	last := h[len(h)-1]
	return &last, nil
}

func (s *Store) CommitTransition(_ context.Context, dep *domain.Deployment, t *domain.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failCommit; err != nil {
		s.failCommit = nil
		return err
	}

	now := s.now()
	row := *dep.Clone()
	row.History = nil
	if existing, ok := s.deployments[dep.AccountID]; ok {
		row.CreatedAt = existing.CreatedAt
	} else if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	s.deployments[dep.AccountID] = row

	s.appendLocked(t)
	dep.CreatedAt = row.CreatedAt
	dep.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) appendLocked(t *domain.Transition) {
	h := s.transitions[t.AccountID]
	t.Seq = len(h) + 1
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now()
	}
	s.transitions[t.AccountID] = append(h, *t)
}

func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
