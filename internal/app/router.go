package app

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"squadkeeper.io/keeper/internal/api/handlers"
	"squadkeeper.io/keeper/internal/api/middleware"
	"squadkeeper.io/keeper/internal/config"
	"squadkeeper.io/keeper/internal/pkg/metrics"
)

const apiBasePath = "/api/v1"

func newRouter(cfg *config.Config, server *handlers.Server, m *metrics.Metrics) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler(), middleware.Metrics(m))
	router.Use(middleware.ActorAuth(jwtConfig(cfg.Security)))

	if cfg.Server.ValidateRequests {
		validator, err := middleware.NewOpenAPIValidator(apiBasePath)
		if err != nil {
			return nil, fmt.Errorf("init request validator: %w", err)
		}
		router.Use(validator)
	}

	server.Register(router.Group(apiBasePath))
	router.GET("/metrics", gin.WrapH(server.MetricsHandler()))
	return router, nil
}

func jwtConfig(sec config.SecurityConfig) middleware.JWTConfig {
	keys := make([][]byte, 0, len(sec.JWTVerificationKeys))
	for _, k := range sec.JWTVerificationKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return middleware.JWTConfig{VerificationKeys: keys, Required: sec.RequireAuth}
}
