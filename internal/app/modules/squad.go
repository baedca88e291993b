package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"squadkeeper.io/keeper/internal/api/handlers"
	"squadkeeper.io/keeper/internal/jobs"
	"squadkeeper.io/keeper/internal/service"
	"squadkeeper.io/keeper/internal/usecase"
)

// SquadModule wires the template registry, resolvers, orchestrator and the
// use cases built on them.
type SquadModule struct {
	infra      *Infrastructure
	registry   *service.TemplateRegistry
	accounts   *usecase.AccountUseCase
	planner    *usecase.PlanUpgradeUseCase
	reconciler *usecase.ReconcileUseCase
}

// NewSquadModule creates a SquadModule with explicit constructor wiring.
func NewSquadModule(infra *Infrastructure) (*SquadModule, error) {
	cfg := infra.Config
	registry, err := service.NewTemplateRegistry(infra.Store)
	if err != nil {
		return nil, fmt.Errorf("load template registry: %w", err)
	}
	ledger := service.NewLedger(infra.Store)

	orch := usecase.NewOrchestrator(infra.Store, ledger, infra.Provider, infra.Contexts, infra.Locker,
		usecase.OrchestratorConfig{
			CreateTimeout:  cfg.Provider.CreateTimeout,
			RoutingTimeout: cfg.Provider.RoutingTimeout,
			DeleteTimeout:  cfg.Provider.DeleteTimeout,
			LeaseWait:      cfg.Lease.Wait,
		}).WithMetrics(infra.Metrics)

	accounts := usecase.NewAccountUseCase(usecase.AccountDeps{
		Registry:         registry,
		Resolver:         service.NewVersionResolver(registry, infra.Store),
		Rollbacks:        service.NewRollbackResolver(registry, ledger),
		Ledger:           ledger,
		Deployments:      infra.Store,
		Orchestrator:     orch,
		Pool:             infra.Pools.Tenant,
		BuiltInWinsOnTie: cfg.Resolver.BuiltInWinsOnTie,
	})

	return &SquadModule{
		infra:      infra,
		registry:   registry,
		accounts:   accounts,
		planner:    usecase.NewPlanUpgradeUseCase(registry, infra.Store, orch, infra.Pools.Tenant).WithMetrics(infra.Metrics),
		reconciler: usecase.NewReconcileUseCase(infra.Store, infra.Provider).WithMetrics(infra.Metrics),
	}, nil
}

func (m *SquadModule) Name() string { return "squad" }

func (m *SquadModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Registry = m.registry
	deps.Accounts = m.accounts
	deps.Planner = m.planner
	deps.Reconciler = m.reconciler
}

func (m *SquadModule) RegisterWorkers(workers *river.Workers) {
	if workers == nil || m == nil {
		return
	}
	river.AddWorker(workers, jobs.NewBulkUpgradeWorker(m.planner))
	river.AddWorker(workers, jobs.NewReconcileWorker(m.reconciler))
}

// PeriodicJobs returns the scheduled reconciliation scan, if configured.
func (m *SquadModule) PeriodicJobs() []*river.PeriodicJob {
	interval := m.infra.Config.River.ReconcileInterval
	if interval <= 0 {
		return nil
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return jobs.ReconcileArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

func (m *SquadModule) Start(context.Context) error { return nil }

func (m *SquadModule) Shutdown(context.Context) error { return nil }
