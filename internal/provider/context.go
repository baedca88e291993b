package provider

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"squadkeeper.io/keeper/internal/domain"
)

type tenantsFile struct {
	Tenants []domain.RuntimeContext `yaml:"tenants"`
}

// StaticContextProvider serves runtime contexts from a YAML file.
// Unknown accounts get a minimal context whose display name is the account id.
type StaticContextProvider struct {
	mu      sync.RWMutex
	tenants map[string]domain.RuntimeContext
}

var _ ContextProvider = (*StaticContextProvider)(nil)

// NewStaticContextProvider creates a provider over the given contexts.
func NewStaticContextProvider(contexts ...domain.RuntimeContext) *StaticContextProvider {
	p := &StaticContextProvider{tenants: make(map[string]domain.RuntimeContext, len(contexts))}
	for _, c := range contexts {
		p.tenants[c.AccountID] = c
	}
	return p
}

// LoadStaticContextProvider reads tenants from path. An empty path yields
// a provider that only serves fallbacks.
func LoadStaticContextProvider(path string) (*StaticContextProvider, error) {
	if path == "" {
		return NewStaticContextProvider(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}
	return ParseStaticContextProvider(data)
}

// ParseStaticContextProvider parses tenants YAML.
func ParseStaticContextProvider(data []byte) (*StaticContextProvider, error) {
	var f tenantsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tenants file: %w", err)
	}
	for i, t := range f.Tenants {
		if t.AccountID == "" {
			return nil, fmt.Errorf("tenants[%d]: account_id is required", i)
		}
	}
	return NewStaticContextProvider(f.Tenants...), nil
}

// Set replaces one tenant's context.
func (p *StaticContextProvider) Set(c domain.RuntimeContext) {
	p.mu.Lock()
	p.tenants[c.AccountID] = c
	p.mu.Unlock()
}

func (p *StaticContextProvider) RuntimeContext(_ context.Context, accountID string) (*domain.RuntimeContext, error) {
	p.mu.RLock()
	c, ok := p.tenants[accountID]
	p.mu.RUnlock()
	if !ok {
		c = domain.RuntimeContext{AccountID: accountID}
	}
	if c.DisplayName == "" {
		c.DisplayName = accountID
	}
	c.KnowledgeIDs = append([]string(nil), c.KnowledgeIDs...)
	if c.Variables != nil {
		vars := make(map[string]string, len(c.Variables))
		for k, v := range c.Variables {
			vars[k] = v
		}
		c.Variables = vars
	}
	return &c, nil
}
