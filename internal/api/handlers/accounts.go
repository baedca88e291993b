package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
)

type upgradeRequest struct {
	TemplateID string `json:"template_id"`
}

type provisionRequest struct {
	TemplateID string `json:"template_id"`
}

// GetDeployment handles GET /accounts/{account_id}/deployment.
func (s *Server) GetDeployment(c *gin.Context) {
	dep, err := s.accounts.CurrentDeployment(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

// GetHistory handles GET /accounts/{account_id}/history.
func (s *Server) GetHistory(c *gin.Context) {
	accountID := c.Param("account_id")
	history, err := s.accounts.History(c.Request.Context(), accountID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": accountID, "transitions": history})
}

// GetEffectiveTemplate handles GET /accounts/{account_id}/effective-template.
func (s *Server) GetEffectiveTemplate(c *gin.Context) {
	var tie *bool
	if raw, ok := c.GetQuery("built_in_wins_on_tie"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			_ = c.Error(apperrors.ErrValidation("built_in_wins_on_tie must be a boolean"))
			return
		}
		tie = &v
	}

	tpl, reason, err := s.accounts.EffectiveTemplate(c.Request.Context(), c.Param("account_id"), c.Query("template_id"), tie)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": tpl, "reason": reason})
}

// UpgradeAccount handles POST /accounts/{account_id}/upgrade.
func (s *Server) UpgradeAccount(c *gin.Context) {
	var req upgradeRequest
	if err := bindJSON(c, &req, true); err != nil {
		_ = c.Error(err)
		return
	}
	t, err := s.accounts.Upgrade(c.Request.Context(), c.Param("account_id"), req.TemplateID, actorFromCtx(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ProvisionAccount handles POST /accounts/{account_id}/provision.
func (s *Server) ProvisionAccount(c *gin.Context) {
	var req provisionRequest
	if err := bindJSON(c, &req, false); err != nil {
		_ = c.Error(err)
		return
	}
	res, err := s.accounts.Provision(c.Request.Context(), c.Param("account_id"), req.TemplateID, actorFromCtx(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// bindJSON decodes the request body into dst. An empty body is accepted
// when required is false.
func bindJSON(c *gin.Context, dst interface{}, required bool) error {
	if !required && c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperrors.ErrValidation("invalid request body: " + err.Error())
	}
	return nil
}
