package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/service"
)

type activationRequest struct {
	Active *bool `json:"active"`
}

// ListTemplates handles GET /templates.
func (s *Server) ListTemplates(c *gin.Context) {
	includeInactive := false
	if raw := c.Query("include_inactive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			_ = c.Error(apperrors.ErrValidation("include_inactive must be a boolean"))
			return
		}
		includeInactive = v
	}
	templates, err := s.registry.List(c.Request.Context(), includeInactive)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// GetTemplate handles GET /templates/{template_id}.
func (s *Server) GetTemplate(c *gin.Context) {
	tpl, err := s.registry.Get(c.Request.Context(), c.Param("template_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// CompareTemplates handles GET /templates/compare?from=&to=.
func (s *Server) CompareTemplates(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		_ = c.Error(apperrors.ErrValidation("from and to are required"))
		return
	}
	report, err := s.registry.Compare(c.Request.Context(), from, to)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// PublishTemplate handles POST /templates.
func (s *Server) PublishTemplate(c *gin.Context) {
	var req service.PublishInput
	if err := bindJSON(c, &req, true); err != nil {
		_ = c.Error(err)
		return
	}
	tpl, err := s.registry.Publish(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// SetTemplateActivation handles PUT /templates/{template_id}/activation.
func (s *Server) SetTemplateActivation(c *gin.Context) {
	var req activationRequest
	if err := bindJSON(c, &req, true); err != nil {
		_ = c.Error(err)
		return
	}
	if req.Active == nil {
		_ = c.Error(apperrors.ErrValidation("active is required"))
		return
	}
	tpl, err := s.registry.SetActive(c.Request.Context(), c.Param("template_id"), *req.Active)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}
