package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/irfndi/modelmux/internal/ai"
	"github.com/irfndi/modelmux/internal/ai/classify"
	"github.com/irfndi/modelmux/internal/ai/llm"
	"github.com/irfndi/modelmux/internal/analytics"
	"github.com/irfndi/modelmux/internal/api"
	"github.com/irfndi/modelmux/internal/cache"
	"github.com/irfndi/modelmux/internal/config"
	"github.com/irfndi/modelmux/internal/database"
	"github.com/irfndi/modelmux/internal/logging"
	"github.com/irfndi/modelmux/internal/middleware"
	"github.com/irfndi/modelmux/internal/observability"
	"github.com/irfndi/modelmux/internal/services"
	"github.com/irfndi/modelmux/internal/utils"
)

const (
	serviceName    = "modelmux"
	serviceVersion = "1.0.0"
)

// main serves as the entry point for the application.
// It delegates execution to the run function and handles exit codes based on success or failure.
func main() {
	// Check for CLI commands
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "models":
			if err := runModelsCLI(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "models command failed: %v\n", err)
				os.Exit(1)
			}
			return
		case "route":
			if err := runRouteCLI(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "route command failed: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

// run orchestrates the startup sequence of the server.
// It loads configuration, initializes telemetry, the model catalog, the
// optional archive and cache, and the HTTP server. It also manages graceful
// shutdown upon receiving termination signals.
//
// Returns:
//   - An error if initialization fails at any critical step.
func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize Sentry for observability
	if err := observability.InitSentry(cfg.Sentry, serviceVersion, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Sentry: %v\n", err)
	}
	defer observability.Flush(context.Background())

	// Initialize standard logger
	stdLogger := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	defer stdLogger.Sync()
	logger := stdLogger.Logger()

	// Load the model catalog and disable providers without credentials.
	registry, err := buildRegistry(cfg, logger, true)
	if err != nil {
		return fmt.Errorf("failed to build model registry: %w", err)
	}
	if registry.Len() == 0 {
		logger.Warn("No providers configured; routing will be unavailable until credentials are set")
	}

	// Initialize the optional durable request archive. A configured but
	// unreachable archive fails startup; an unconfigured one is skipped.
	var (
		archiveDB   database.Database
		slowQueries *database.SlowQueryLog
		serviceOpts []services.RouterServiceOption
	)
	if cfg.Database.Enabled() {
		db, err := database.NewDatabaseConnection(&cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to archive database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close archive database", zap.Error(err))
			}
		}()

		slowQueries = database.NewSlowQueryLog(0, 0, logger)
		archive := database.NewRequestArchive(database.NewInstrumentedPool(db, slowQueries))
		if err := archive.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("failed to prepare archive schema: %w", err)
		}

		// Archive writes happen off the request path.
		asyncArchive := services.NewAsyncArchiver(archive, services.DefaultAsyncArchiverConfig(), logger)
		defer func() {
			if err := asyncArchive.Stop(); err != nil {
				logger.Error("Failed to stop async archiver", zap.Error(err))
			}
		}()

		archiveDB = db
		serviceOpts = append(serviceOpts, services.WithArchiver(asyncArchive))

		fields := []zap.Field{zap.String("driver", cfg.Database.Driver)}
		if cfg.Database.DatabaseURL != "" {
			fields = append(fields, zap.String("url", utils.MaskConnectionString(cfg.Database.DatabaseURL)))
		}
		logger.Info("Request archive enabled", fields...)
	}

	// Initialize Redis for distributed rate limiting
	var redisClient *database.RedisClient
	if cfg.Redis.Enabled() {
		redisClient, err = database.NewRedisConnection(cfg.Redis, logger)
		if err != nil {
			logger.Error("Failed to connect to Redis - continuing without cache", zap.Error(err))
			// Don't fail startup on Redis connection issues, continue without cache
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// Helper function to safely get Redis client
	getRedisClient := func() *redis.Client {
		if redisClient != nil {
			return redisClient.Client
		}
		return nil
	}

	// Initialize provider clients
	factory := configureClients(cfg, registry, logger)
	defer func() {
		if err := factory.Close(); err != nil {
			logger.Error("Failed to close provider clients", zap.Error(err))
		}
	}()

	// Initialize the hybrid classifier. Without a configured backend it
	// degrades to keyword-only classification.
	classifier := classify.NewHybridClassifier(classifierBackend(factory, logger))
	classifier.SetLogger(logger)

	// Memoize classifications in Redis when a cache is available.
	var classifierDep services.Classifier = classifier
	if redisClient != nil {
		classCache := cache.NewClassificationCache(getRedisClient(), cache.DefaultClassificationTTL, logger)
		classifierDep = cache.NewCachingClassifier(classifier, classCache)
	}

	router := ai.NewRouter(registry)
	requestLog := analytics.NewRequestLog(0)

	preset, err := ai.ParsePreset(cfg.Router.DefaultPriorityPreset)
	if err != nil {
		return fmt.Errorf("invalid default priority preset: %w", err)
	}

	routerService := services.NewRouterService(
		services.RouterServiceConfig{
			RequestTimeoutMs: cfg.Router.RequestTimeoutMs,
			DefaultPreset:    preset,
		},
		registry,
		router,
		classifierDep,
		factory,
		requestLog,
		logger,
		serviceOpts...,
	)

	// Initialize the rate limiter for the routing endpoint
	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rlConfig := middleware.DefaultRateLimitConfig()
		if cfg.RateLimit.Requests > 0 {
			rlConfig.Requests = cfg.RateLimit.Requests
		}
		if cfg.RateLimit.WindowSeconds > 0 {
			rlConfig.Window = cfg.RateLimit.Window()
		}
		rateLimiter = middleware.NewRateLimiter(rlConfig, getRedisClient(), logger)
	}

	// Setup Gin router. Sentry instrumentation is attached per route group
	// inside SetupRoutes.
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	api.SetupRoutes(engine, routerService, registry, requestLog, archiveDB, redisClient, slowQueries, rateLimiter)

	// Create HTTP server with security timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		stdLogger.LogStartup(serviceName, serviceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stdLogger.LogShutdown(serviceName, "signal received")

	// Give outstanding requests a deadline for completion
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
	return nil
}

// buildRegistry loads the model catalog, optionally restricted to providers
// with credentials, and registers it.
func buildRegistry(cfg *config.Config, logger *zap.Logger, filterByCredentials bool) (*ai.Registry, error) {
	var (
		models []ai.Model
		err    error
	)
	if cfg.Catalog.Path != "" {
		models, err = ai.LoadCatalogFile(cfg.Catalog.Path)
	} else {
		models, err = ai.LoadCatalog()
	}
	if err != nil {
		return nil, err
	}

	if filterByCredentials {
		enabled := make(map[string]bool)
		for _, provider := range []llm.Provider{
			llm.ProviderOpenAI,
			llm.ProviderAnthropic,
			llm.ProviderGoogle,
			llm.ProviderHuggingFace,
		} {
			if cfg.Providers.KeyFor(string(provider)) != "" {
				enabled[string(provider)] = true
			}
		}
		models = ai.FilterByProviders(models, enabled)
	}

	return ai.NewRegistry(models, ai.WithLogger(logger))
}

// configureClients builds the provider client factory from configured
// credentials. Providers without a key are simply never configured.
func configureClients(cfg *config.Config, registry *ai.Registry, logger *zap.Logger) *llm.ClientFactory {
	factory := llm.NewClientFactory(registry)
	for _, provider := range []llm.Provider{
		llm.ProviderOpenAI,
		llm.ProviderAnthropic,
		llm.ProviderGoogle,
		llm.ProviderHuggingFace,
	} {
		if key := cfg.Providers.KeyFor(string(provider)); key != "" {
			factory.Configure(provider, llm.ClientConfig{APIKey: key})
			logger.Info("Provider configured",
				zap.String("provider", string(provider)),
				zap.String("api_key", utils.MaskAPIKey(key)))
		}
	}
	return factory
}

// classifierBackend resolves the model classifier against the static
// fallback model. When its provider has no credentials the hybrid
// classifier runs keyword-only.
func classifierBackend(factory *llm.ClientFactory, logger *zap.Logger) classify.ModelBackend {
	client, err := factory.ForModel(services.StaticFallbackKey)
	if err != nil {
		logger.Warn("Model classifier backend unavailable, classification is keyword-only",
			zap.String("model", services.StaticFallbackKey),
			zap.Error(err))
		return nil
	}

	backend := classify.NewModelClassifier(client)
	backend.SetLogger(logger)
	return backend
}
