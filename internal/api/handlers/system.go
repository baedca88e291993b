package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "squadkeeper.io/keeper/internal/pkg/errors"
	"squadkeeper.io/keeper/internal/pkg/logger"
	"squadkeeper.io/keeper/internal/provider"
)

type logLevelRequest struct {
	Level string `json:"level"`
}

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadiness handles GET /health/ready. The database must answer a ping
// and the provisioning API must not be known unreachable.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string)
	healthy := true

	if s.dbPing != nil {
		if err := s.dbPing(c.Request.Context()); err != nil {
			checks["database"] = "error"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	if s.health != nil {
		h := s.health.Last()
		checks["provider"] = string(h.Status)
		if h.Status == provider.StatusUnreachable {
			healthy = false
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

// GetLogLevel handles GET /admin/log-level.
func (s *Server) GetLogLevel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"level": logger.GetLevel().String()})
}

// SetLogLevel handles PUT /admin/log-level.
func (s *Server) SetLogLevel(c *gin.Context) {
	var req logLevelRequest
	if err := bindJSON(c, &req, true); err != nil {
		_ = c.Error(err)
		return
	}
	if err := logger.SetLevel(req.Level); err != nil {
		_ = c.Error(apperrors.ErrValidation("unknown log level " + req.Level))
		return
	}
	logger.Info("log level changed", zap.String("level", req.Level), zap.String("actor", actorFromCtx(c)))
	c.JSON(http.StatusOK, gin.H{"level": logger.GetLevel().String()})
}
