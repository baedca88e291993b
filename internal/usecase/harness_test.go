package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"squadkeeper.io/keeper/internal/domain"
	"squadkeeper.io/keeper/internal/pkg/lease"
	"squadkeeper.io/keeper/internal/pkg/worker"
	"squadkeeper.io/keeper/internal/provider"
	"squadkeeper.io/keeper/internal/repository/memory"
	"squadkeeper.io/keeper/internal/service"
)

const builtInID = "builtin:front-desk"

type harness struct {
	store    *memory.Store
	provider *provider.MockProvider
	contexts *provider.StaticContextProvider
	locker   *lease.LocalLocker
	registry *service.TemplateRegistry
	ledger   *service.Ledger
	orch     *Orchestrator
	planner  *PlanUpgradeUseCase
	accounts *AccountUseCase
	pool     *worker.Pool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    memory.New(),
		provider: provider.NewMockProvider(),
		contexts: provider.NewStaticContextProvider(),
		locker:   lease.NewLocalLocker(),
	}
	var err error
	h.registry, err = service.NewTemplateRegistry(h.store)
	require.NoError(t, err)
	h.ledger = service.NewLedger(h.store)

	h.pool, err = worker.NewPool("test-tenant", 4)
	require.NoError(t, err)
	t.Cleanup(h.pool.Release)

	h.orch = NewOrchestrator(h.store, h.ledger, h.provider, h.contexts, h.locker, OrchestratorConfig{
		CreateTimeout:  time.Second,
		RoutingTimeout: time.Second,
		DeleteTimeout:  50 * time.Millisecond,
		LeaseWait:      50 * time.Millisecond,
	})
	h.planner = NewPlanUpgradeUseCase(h.registry, h.store, h.orch, h.pool)
	h.accounts = NewAccountUseCase(AccountDeps{
		Registry:         h.registry,
		Resolver:         service.NewVersionResolver(h.registry, h.store),
		Rollbacks:        service.NewRollbackResolver(h.registry, h.ledger),
		Ledger:           h.ledger,
		Deployments:      h.store,
		Orchestrator:     h.orch,
		Pool:             h.pool,
		BuiltInWinsOnTie: true,
	})
	return h
}

func (h *harness) addTemplate(t *testing.T, id, name, ver string) *domain.Template {
	t.Helper()
	tpl := &domain.Template{
		ID:          id,
		Name:        name,
		Version:     ver,
		DisplayName: "Front Desk",
		Category:    "reception",
		IsActive:    true,
		MemberConfigs: json.RawMessage(`[{"name":"greeter","capabilities":["greeting"],
			"behavior":{"first_message":"Hi, this is {{display_name}}"}}]`),
	}
	require.NoError(t, h.store.CreateTemplate(context.Background(), tpl))
	return tpl
}

// deploy provisions accountID on tpl through the orchestrator so the ledger
// and provider agree.
func (h *harness) deploy(t *testing.T, accountID string, tpl *domain.Template) *domain.Transition {
	t.Helper()
	tr, err := h.orch.Execute(context.Background(), ExecuteInput{AccountID: accountID, Target: tpl, Actor: "seed"})
	require.NoError(t, err)
	return tr
}

func (h *harness) deployment(t *testing.T, accountID string) *domain.Deployment {
	t.Helper()
	dep, err := h.store.GetDeployment(context.Background(), accountID)
	require.NoError(t, err)
	return dep
}

func requireLedgerConsistent(t *testing.T, dep *domain.Deployment) {
	t.Helper()
	require.NotEmpty(t, dep.History)
	last := dep.History[len(dep.History)-1]
	require.Equal(t, dep.CurrentVersion, last.ToVersion)
	require.Equal(t, dep.CurrentTemplateName, last.ToTemplateName)
	require.Equal(t, dep.ExternalResourceID, last.NewResourceID)
}
