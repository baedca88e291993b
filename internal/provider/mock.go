package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"squadkeeper.io/keeper/internal/domain"
)

// Call is one recorded MockProvider invocation.
type Call struct {
	Op         string // create, delete, list, routing
	AccountID  string
	ResourceID string
	BindingID  string
}

// MockProvider is an in-memory ResourceProvider for tests and local runs.
// It records every call and supports failure injection.
type MockProvider struct {
	mu        sync.Mutex
	resources map[string]domain.Resource
	payloads  map[string]domain.ProvisionPayload
	calls     []Call
	seq       int

	createErr   func(accountID string) error
	routingErr  error
	deleteErr   error
	listErr     error
	deleteDelay time.Duration
	onCreate    func(accountID string)
	now         func() time.Time
}

var _ ResourceProvider = (*MockProvider)(nil)

// NewMockProvider creates a new MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		resources: make(map[string]domain.Resource),
		payloads:  make(map[string]domain.ProvisionPayload),
		now:       time.Now,
	}
}

func (p *MockProvider) Name() string { return "mock" }

// Seed adds live resources.
func (p *MockProvider) Seed(resources ...domain.Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range resources {
		p.resources[r.ID] = r
	}
}

// FailCreate makes CreateResource fail for accounts where fn returns an error.
func (p *MockProvider) FailCreate(fn func(accountID string) error) {
	p.mu.Lock()
	p.createErr = fn
	p.mu.Unlock()
}

// FailRouting makes every UpdateRouting return err. nil clears it.
func (p *MockProvider) FailRouting(err error) {
	p.mu.Lock()
	p.routingErr = err
	p.mu.Unlock()
}

// FailDelete makes every DeleteResource return err. nil clears it.
func (p *MockProvider) FailDelete(err error) {
	p.mu.Lock()
	p.deleteErr = err
	p.mu.Unlock()
}

// FailList makes ListResources return err. nil clears it.
func (p *MockProvider) FailList(err error) {
	p.mu.Lock()
	p.listErr = err
	p.mu.Unlock()
}

// DelayDelete blocks DeleteResource for d or until its context ends.
func (p *MockProvider) DelayDelete(d time.Duration) {
	p.mu.Lock()
	p.deleteDelay = d
	p.mu.Unlock()
}

// OnCreate registers a hook run inside CreateResource before it returns.
func (p *MockProvider) OnCreate(fn func(accountID string)) {
	p.mu.Lock()
	p.onCreate = fn
	p.mu.Unlock()
}

// Calls returns a copy of the call log.
func (p *MockProvider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Ops returns the call log as op names only.
func (p *MockProvider) Ops() []string {
	calls := p.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Has reports whether resourceID is live.
func (p *MockProvider) Has(resourceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.resources[resourceID]
	return ok
}

// Payload returns the payload resourceID was created with.
func (p *MockProvider) Payload(resourceID string) (domain.ProvisionPayload, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pl, ok := p.payloads[resourceID]
	return pl, ok
}

func (p *MockProvider) CreateResource(_ context.Context, payload *domain.ProvisionPayload) (*domain.Resource, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Op: "create", AccountID: payload.AccountID})
	callIdx := len(p.calls) - 1
	failFn, hook := p.createErr, p.onCreate
	p.mu.Unlock()

	if hook != nil {
		hook(payload.AccountID)
	}
	if failFn != nil {
		if err := failFn(payload.AccountID); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	res := domain.Resource{
		ID:        fmt.Sprintf("squad-%04d", p.seq),
		Name:      payload.Name,
		CreatedAt: p.now(),
	}
	p.resources[res.ID] = res
	p.payloads[res.ID] = *payload
	p.calls[callIdx].ResourceID = res.ID
	return &res, nil
}

func (p *MockProvider) DeleteResource(ctx context.Context, resourceID string) error {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Op: "delete", ResourceID: resourceID})
	delay, failErr := p.deleteDelay, p.deleteErr
	p.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if failErr != nil {
		return failErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.resources[resourceID]; !ok {
		return ErrResourceNotFound
	}
	delete(p.resources, resourceID)
	return nil
}

func (p *MockProvider) ListResources(_ context.Context) ([]domain.Resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Op: "list"})
	if p.listErr != nil {
		return nil, p.listErr
	}
	out := make([]domain.Resource, 0, len(p.resources))
	for _, r := range p.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *MockProvider) UpdateRouting(_ context.Context, bindingID, resourceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Op: "routing", BindingID: bindingID, ResourceID: resourceID})
	return p.routingErr
}
