// Package api wires the HTTP surface: routing endpoints, catalog
// management, analytics reads and health probes.
package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/modelmux/internal/ai"
	"github.com/irfndi/modelmux/internal/analytics"
	"github.com/irfndi/modelmux/internal/api/handlers"
	"github.com/irfndi/modelmux/internal/database"
	"github.com/irfndi/modelmux/internal/middleware"
	"github.com/irfndi/modelmux/internal/services"
)

// routeDB is the slice of the archive database the HTTP layer needs.
type routeDB interface {
	HealthCheck(ctx context.Context) error
}

// SetupRoutes configures all the HTTP routes for the application.
// It sets up health probes, the routing and catalog endpoints, and the
// analytics endpoints, injecting dependencies into handlers.
//
// The archive database, Redis client, slow query log and rate limiter
// are optional; pass nil to run without them.
func SetupRoutes(
	router *gin.Engine,
	routerService *services.RouterService,
	registry *ai.Registry,
	requestLog *analytics.RequestLog,
	db routeDB,
	redisClient *database.RedisClient,
	slowQueries *database.SlowQueryLog,
	rateLimiter *middleware.RateLimiter,
) {
	// Optional dependencies reach the health handler as nil interfaces,
	// not typed-nil pointers, so its "not configured" checks hold.
	var dbChecker handlers.DatabaseHealthChecker
	if db != nil {
		dbChecker = db
	}
	var redisChecker handlers.RedisHealthChecker
	if redisClient != nil {
		redisChecker = redisClient
	}

	healthHandler := handlers.NewHealthHandler(registry, dbChecker, redisChecker, slowQueries)

	// Health check endpoints, traced but tagged so monitoring can filter
	// probe traffic out
	healthGroup := router.Group("/")
	healthGroup.Use(middleware.TelemetryMiddleware(), middleware.HealthCheckTelemetryMiddleware())
	{
		healthGroup.GET("/health", gin.WrapF(healthHandler.HealthCheck))
		healthGroup.HEAD("/health", gin.WrapF(healthHandler.HealthCheck))
		healthGroup.GET("/ready", gin.WrapF(healthHandler.ReadinessCheck))
		healthGroup.GET("/live", gin.WrapF(healthHandler.LivenessCheck))
	}

	modelsHandler := handlers.NewModelsHandler(registry)
	routeHandler := handlers.NewRouteHandler(routerService)
	metricsHandler := handlers.NewMetricsHandler(requestLog)

	// Routing API with telemetry and request correlation
	api := router.Group("/")
	api.Use(middleware.TelemetryMiddleware(), middleware.RequestIDMiddleware())
	{
		// Catalog
		api.GET("/models", modelsHandler.ListModels)
		api.PUT("/models", modelsHandler.UpdateModels)

		// Routing; rate limited when a limiter is attached
		routeGroup := api.Group("/route")
		if rateLimiter != nil {
			routeGroup.Use(rateLimiter.Middleware())
		}
		routeGroup.POST("", routeHandler.RoutePrompt)

		// Analytics
		api.GET("/metrics", metricsHandler.GetMetrics)
		api.GET("/logs", metricsHandler.GetLogs)
		api.POST("/metrics/reset", metricsHandler.ResetMetrics)
	}
}
