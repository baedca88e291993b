package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"squadkeeper.io/keeper/internal/api/middleware"
	"squadkeeper.io/keeper/internal/domain"
	"squadkeeper.io/keeper/internal/jobs"
	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/pkg/logger"
	"squadkeeper.io/keeper/internal/usecase"
)

type planRequest struct {
	TemplateID  string   `json:"template_id"`
	AccountIDs  []string `json:"account_ids"`
	FromVersion string   `json:"from_version"`
	Force       bool     `json:"force"`
	DryRun      bool     `json:"dry_run"`
	Async       bool     `json:"async"`
}

type planResponse struct {
	*domain.Plan
	Summary domain.PlanSummary `json:"summary"`
}

type rollbackRequest struct {
	AccountIDs []string `json:"account_ids"`
	TemplateID string   `json:"template_id"`
	UseBuiltIn bool     `json:"use_built_in"`
}

// PlanUpgrade handles POST /upgrades/plan. With async set the plan runs as
// a background job and the response carries the job id.
func (s *Server) PlanUpgrade(c *gin.Context) {
	var req planRequest
	if err := bindJSON(c, &req, true); err != nil {
		_ = c.Error(err)
		return
	}
	actor := actorFromCtx(c)

	if req.Async {
		s.enqueuePlan(c, req, actor)
		return
	}

	plan, err := s.planner.Plan(c.Request.Context(), usecase.PlanInput{
		TargetTemplateID: req.TemplateID,
		Filter:           domain.PlanFilter{AccountIDs: req.AccountIDs, FromVersion: req.FromVersion},
		Force:            req.Force,
		DryRun:           req.DryRun,
		Actor:            actor,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, planResponse{Plan: plan, Summary: plan.Summary()})
}

func (s *Server) enqueuePlan(c *gin.Context, req planRequest, actor string) {
	if req.DryRun {
		_ = c.Error(apperrors.ErrValidation("async and dry_run cannot be combined"))
		return
	}
	if !s.enqueuer.Available() {
		_ = c.Error(apperrors.ErrAsyncUnavailable())
		return
	}
	ctx := c.Request.Context()
	// Fail fast on a bad target instead of inside the job.
	if _, err := s.registry.GetDeployable(ctx, req.TemplateID); err != nil {
		_ = c.Error(err)
		return
	}

	jobID, err := s.enqueuer.EnqueueBulkUpgrade(ctx, jobs.BulkUpgradeArgs{
		TargetTemplateID: req.TemplateID,
		AccountIDs:       req.AccountIDs,
		FromVersion:      req.FromVersion,
		Force:            req.Force,
		Actor:            actor,
		RequestID:        middleware.GetRequestID(ctx),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	logger.Info("bulk upgrade enqueued",
		zap.Int64("job_id", jobID),
		zap.String("template_id", req.TemplateID),
		zap.String("actor", actor),
	)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "template_id": req.TemplateID})
}

// Rollback handles POST /rollbacks.
func (s *Server) Rollback(c *gin.Context) {
	var req rollbackRequest
	if err := bindJSON(c, &req, true); err != nil {
		_ = c.Error(err)
		return
	}
	results, err := s.accounts.Rollback(c.Request.Context(), usecase.RollbackInput{
		AccountIDs: req.AccountIDs,
		TemplateID: req.TemplateID,
		UseBuiltIn: req.UseBuiltIn,
		Actor:      actorFromCtx(c),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Reconcile handles GET /reconcile.
func (s *Server) Reconcile(c *gin.Context) {
	report, err := s.reconciler.Scan(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}
