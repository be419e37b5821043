// Package http wires modules onto the gin router.
package http

import (
	"context"
	"net/http"

	"whitelabel_crm_backend/platform/config"
	"whitelabel_crm_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Module is a bounded context that mounts its own routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is what a module gets to mount routes on.
type RouterContext struct {
	// V1 is /api/v1. Webhooks and the scheduler trigger authenticate themselves.
	V1 *gin.RouterGroup
	// Admin is /api/v1/admin, limited to admin access tokens.
	Admin *gin.RouterGroup
}

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled by the composition root and handed to router.New.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	Health HealthChecker
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Middleware runs on every request ahead of the module routes.
	Middleware []gin.HandlerFunc
	Modules    []Module
}
