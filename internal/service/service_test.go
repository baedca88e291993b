package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"squadkeeper.io/keeper/internal/domain"
	"squadkeeper.io/keeper/internal/repository/memory"
)

const defaultBuiltInID = "builtin:front-desk"

type fixture struct {
	store    *memory.Store
	registry *TemplateRegistry
	ledger   *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	registry, err := NewTemplateRegistry(store)
	require.NoError(t, err)
	return &fixture{store: store, registry: registry, ledger: NewLedger(store)}
}

func (f *fixture) addTemplate(t *testing.T, id, name, ver string, active bool, created time.Time) *domain.Template {
	t.Helper()
	tpl := &domain.Template{
		ID:            id,
		Name:          name,
		Version:       ver,
		Category:      "reception",
		IsActive:      active,
		MemberConfigs: json.RawMessage(`[{"name":"greeter","capabilities":["greeting"]}]`),
		CreatedAt:     created,
	}
	require.NoError(t, f.store.CreateTemplate(context.Background(), tpl))
	return tpl
}

func strPtr(s string) *string { return &s }
