package modules

import (
	"squadkeeper.io/keeper/internal/api/handlers"
	"squadkeeper.io/keeper/internal/jobs"
)

// NewServerDeps builds base server deps then lets each module contribute its wiring.
func NewServerDeps(infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Enqueuer: jobs.NewEnqueuer(infra.RiverClient),
		Metrics:  infra.Metrics,
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}
