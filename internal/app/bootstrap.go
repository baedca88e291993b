// Package app is the composition root. Bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"squadkeeper.io/keeper/internal/api/handlers"
	"squadkeeper.io/keeper/internal/app/modules"
	"squadkeeper.io/keeper/internal/config"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	Infra   *modules.Infrastructure
	Modules []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	squad, err := modules.NewSquadModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init squad module: %w", err)
	}
	allModules := []modules.Module{squad, modules.NewSystemModule(infra)}

	if cfg.River.Enabled {
		workers := river.NewWorkers()
		for _, mod := range allModules {
			mod.RegisterWorkers(workers)
		}
		if err := infra.InitRiver(workers, squad.PeriodicJobs()); err != nil {
			infra.Close()
			return nil, fmt.Errorf("init river workers: %w", err)
		}
	}

	serverDeps := modules.NewServerDeps(infra, allModules)
	server := handlers.NewServer(serverDeps)

	router, err := newRouter(cfg, server, infra.Metrics)
	if err != nil {
		infra.Close()
		return nil, err
	}

	return &Application{
		Config:  cfg,
		Router:  router,
		Infra:   infra,
		Modules: allModules,
	}, nil
}
