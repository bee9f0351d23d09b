package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abduss/swiftshare/internal/account"
	"github.com/abduss/swiftshare/internal/config"
	"github.com/abduss/swiftshare/internal/logger"
	"github.com/abduss/swiftshare/internal/metrics"
	"github.com/abduss/swiftshare/internal/share"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config   config.Config
	Logger   *zap.Logger
	Checks   []Check
	Shares   share.HTTPConfig
	Accounts *account.Service
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware(deps.Logger))
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps.Checks)
	if path := deps.Config.Metrics.PrometheusPath; path != "" {
		metrics.Register(router, path)
	}

	api := router.Group("/v1")
	if deps.Shares.Manager != nil && deps.Shares.Service != nil {
		if deps.Shares.Logger == nil {
			deps.Shares.Logger = deps.Logger
		}
		share.RegisterRoutes(api, deps.Shares)
	}
	if deps.Accounts != nil {
		account.RegisterRoutes(api, deps.Accounts, deps.Logger)
	}

	return router
}
