package modules

import (
	"context"
	"time"

	"github.com/riverqueue/river"

	"squadkeeper.io/keeper/internal/api/handlers"
	"squadkeeper.io/keeper/internal/provider"
)

// SystemModule owns health checking and metrics exposure.
type SystemModule struct {
	infra  *Infrastructure
	health *provider.HealthChecker
}

// NewSystemModule creates a SystemModule.
func NewSystemModule(infra *Infrastructure) *SystemModule {
	return &SystemModule{
		infra:  infra,
		health: provider.NewHealthChecker(infra.Provider, infra.Config.Provider.HealthInterval, 5*time.Second),
	}
}

func (m *SystemModule) Name() string { return "system" }

func (m *SystemModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	if deps == nil {
		return
	}
	deps.Health = m.health
	deps.Metrics = m.infra.Metrics
	if db := m.infra.DB; db != nil {
		deps.DBPing = db.Pool.Ping
	}
}

func (m *SystemModule) RegisterWorkers(*river.Workers) {}

func (m *SystemModule) Start(ctx context.Context) error {
	m.health.Start(ctx)
	return nil
}

func (m *SystemModule) Shutdown(context.Context) error {
	m.health.Stop()
	return nil
}
