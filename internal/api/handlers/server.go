// Package handlers implements the SquadKeeper HTTP API.
//
// Handlers never write error bodies themselves: they attach errors with
// c.Error and middleware.ErrorHandler renders them.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"squadkeeper.io/keeper/internal/api/middleware"
	"squadkeeper.io/keeper/internal/jobs"
	"squadkeeper.io/keeper/internal/pkg/metrics"
	"squadkeeper.io/keeper/internal/provider"
	"squadkeeper.io/keeper/internal/service"
	"squadkeeper.io/keeper/internal/usecase"
)

// anonymousActor is recorded when a request carries no token.
const anonymousActor = "anonymous"

// Server holds the use cases behind the HTTP API.
type Server struct {
	registry   *service.TemplateRegistry
	accounts   *usecase.AccountUseCase
	planner    *usecase.PlanUpgradeUseCase
	reconciler *usecase.ReconcileUseCase
	enqueuer   *jobs.Enqueuer
	health     *provider.HealthChecker
	metrics    *metrics.Metrics
	dbPing     func(context.Context) error
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Registry   *service.TemplateRegistry
	Accounts   *usecase.AccountUseCase
	Planner    *usecase.PlanUpgradeUseCase
	Reconciler *usecase.ReconcileUseCase
	// Enqueuer is optional; without it async plans return ASYNC_UNAVAILABLE.
	Enqueuer *jobs.Enqueuer
	// Health is optional; readiness reports the provider as unchecked without it.
	Health  *provider.HealthChecker
	Metrics *metrics.Metrics
	// DBPing is optional; set when a database backs the store.
	DBPing func(context.Context) error
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		registry:   deps.Registry,
		accounts:   deps.Accounts,
		planner:    deps.Planner,
		reconciler: deps.Reconciler,
		enqueuer:   deps.Enqueuer,
		health:     deps.Health,
		metrics:    deps.Metrics,
		dbPing:     deps.DBPing,
	}
}

// Register mounts every API route on rg (normally /api/v1).
func (s *Server) Register(rg *gin.RouterGroup) {
	rg.GET("/health/live", s.GetLiveness)
	rg.GET("/health/ready", s.GetReadiness)

	acct := rg.Group("/accounts/:account_id")
	acct.GET("/deployment", s.GetDeployment)
	acct.GET("/history", s.GetHistory)
	acct.GET("/effective-template", s.GetEffectiveTemplate)
	acct.POST("/upgrade", s.UpgradeAccount)
	acct.POST("/provision", s.ProvisionAccount)

	rg.POST("/upgrades/plan", s.PlanUpgrade)
	rg.POST("/rollbacks", s.Rollback)
	rg.GET("/reconcile", s.Reconcile)

	rg.GET("/templates", s.ListTemplates)
	rg.POST("/templates", s.PublishTemplate)
	rg.GET("/templates/compare", s.CompareTemplates)
	rg.GET("/templates/:template_id", s.GetTemplate)
	rg.PUT("/templates/:template_id/activation", s.SetTemplateActivation)

	rg.GET("/admin/log-level", s.GetLogLevel)
	rg.PUT("/admin/log-level", s.SetLogLevel)
}

// MetricsHandler exposes the prometheus registry.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// actorFromCtx returns the authenticated caller, or "anonymous".
func actorFromCtx(c *gin.Context) string {
	if actor := middleware.GetActor(c.Request.Context()); actor != "" {
		return actor
	}
	return anonymousActor
}
