package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/irfndi/modelmux/internal/database"
)

// systemStatsTTL bounds how often gopsutil is sampled under health checks.
const systemStatsTTL = 10 * time.Second

// CatalogChecker reports catalog size and availability.
type CatalogChecker interface {
	Len() int
	AvailableCount() int
}

// DatabaseHealthChecker interface for archive database health checks.
type DatabaseHealthChecker interface {
	// HealthCheck verifies the database connection.
	HealthCheck(ctx context.Context) error
}

// RedisHealthChecker interface for redis health checks.
type RedisHealthChecker interface {
	// HealthCheck verifies the Redis connection.
	HealthCheck(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	catalog     CatalogChecker
	db          DatabaseHealthChecker
	redis       RedisHealthChecker
	slowQueries *database.SlowQueryLog

	statsMu     sync.RWMutex
	cachedStats *SystemStats
	statsTime   time.Time
	statsTTL    time.Duration
}

// HealthResponse represents the health status response.
type HealthResponse struct {
	// Status is the overall system status ("healthy", "degraded").
	Status string `json:"status"`
	// Timestamp is the check time.
	Timestamp time.Time `json:"timestamp"`
	// Services contains status of individual services.
	Services map[string]string `json:"services"`
	// Version is the application version.
	Version string `json:"version"`
	// Uptime is the service uptime.
	Uptime string `json:"uptime"`
	// Models summarizes catalog availability.
	Models *ModelAvailability `json:"models,omitempty"`
	// System contains host resource usage if it could be sampled.
	System *SystemStats `json:"system,omitempty"`
	// SlowQueries counts distinct slow archive statements since startup.
	SlowQueries int `json:"slow_queries,omitempty"`
}

// ModelAvailability summarizes the routable catalog.
type ModelAvailability struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

// SystemStats is a point-in-time host resource sample.
type SystemStats struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	MemoryUsedMB      uint64  `json:"memory_used_mb"`
	LoadAvg1          float64 `json:"load_avg_1"`
	Goroutines        int     `json:"goroutines"`
}

// NewHealthHandler creates a new instance of HealthHandler. The archive
// database, Redis and slow query log are optional and may be nil.
func NewHealthHandler(catalog CatalogChecker, db DatabaseHealthChecker, redis RedisHealthChecker, slowQueries *database.SlowQueryLog) *HealthHandler {
	return &HealthHandler{
		catalog:     catalog,
		db:          db,
		redis:       redis,
		slowQueries: slowQueries,
		statsTTL:    systemStatsTTL,
	}
}

// HealthCheck performs a comprehensive system health check.
// It verifies the model catalog and, when configured, the archive
// database and Redis.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	// Create context with timeout for health checks
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	span := sentry.StartSpan(ctx, "health_check")
	defer span.Finish()
	// Update context to include the span for downstream calls
	ctx = span.Context()

	span.SetTag("http.method", r.Method)
	span.SetTag("http.url", r.URL.String())
	span.SetTag("handler.name", "HealthCheck")

	servicesStatus := make(map[string]string)

	// Check catalog
	var catalogTotal, catalogAvailable int
	if h.catalog != nil {
		catalogTotal = h.catalog.Len()
		catalogAvailable = h.catalog.AvailableCount()
	}
	switch {
	case catalogTotal == 0:
		servicesStatus["catalog"] = "unhealthy: no models loaded"
		span.SetTag("catalog.status", "unhealthy")
	case catalogAvailable == 0:
		servicesStatus["catalog"] = "unhealthy: all models unavailable"
		span.SetTag("catalog.status", "unhealthy")
	default:
		servicesStatus["catalog"] = "healthy"
		span.SetTag("catalog.status", "healthy")
	}

	// Check archive database
	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			servicesStatus["database"] = "unhealthy: " + err.Error()
			span.SetTag("database.status", "unhealthy")
			sentry.CaptureException(err)
		} else {
			servicesStatus["database"] = "healthy"
			span.SetTag("database.status", "healthy")
		}
	} else {
		servicesStatus["database"] = "not configured"
		span.SetTag("database.status", "not_configured")
	}

	// Check Redis
	if h.redis != nil {
		if err := h.redis.HealthCheck(ctx); err != nil {
			servicesStatus["redis"] = "unhealthy: " + err.Error()
			span.SetTag("redis.status", "unhealthy")
			sentry.CaptureException(err)
		} else {
			servicesStatus["redis"] = "healthy"
			span.SetTag("redis.status", "healthy")
		}
	} else {
		servicesStatus["redis"] = "not configured"
		span.SetTag("redis.status", "not_configured")
	}

	// Determine overall status
	// Critical services map - services that should cause 503 if unhealthy.
	// The archive and Redis are optional and only degrade the status.
	criticalServices := map[string]bool{"catalog": true}
	criticalUnhealthy := false
	status := "healthy"
	for serviceName, s := range servicesStatus {
		if s != "healthy" && s != "not configured" {
			status = "degraded"
			if criticalServices[serviceName] {
				criticalUnhealthy = true
			}
		}
	}
	span.SetTag("overall.status", status)

	var slowQueries int
	if h.slowQueries != nil {
		slowQueries = len(h.slowQueries.Snapshot())
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  servicesStatus,
		Version:   os.Getenv("APP_VERSION"),
		Uptime:    time.Since(startTime).String(),
		Models: &ModelAvailability{
			Total:     catalogTotal,
			Available: catalogAvailable,
		},
		System:      h.systemStats(),
		SlowQueries: slowQueries,
	}

	w.Header().Set("Content-Type", "application/json")
	// Only return 503 if critical services (catalog) are unhealthy.
	// This keeps the endpoint available for degraded operation when the
	// optional archive or Redis are temporarily unreachable.
	if criticalUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		span.Status = sentry.SpanStatusUnavailable
	} else {
		w.WriteHeader(http.StatusOK)
		span.Status = sentry.SpanStatusOK
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// systemStats samples host resources via gopsutil, serving a short-lived
// cache so bursts of health probes stay cheap. Returns nil when sampling
// fails.
func (h *HealthHandler) systemStats() *SystemStats {
	h.statsMu.RLock()
	if h.cachedStats != nil && time.Since(h.statsTime) < h.statsTTL {
		stats := *h.cachedStats
		h.statsMu.RUnlock()
		return &stats
	}
	h.statsMu.RUnlock()

	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		return nil
	}
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return nil
	}
	loadAvg, err := load.Avg()
	if err != nil {
		loadAvg = &load.AvgStat{}
	}

	cpuLoad := float64(0)
	if len(cpuPercent) > 0 {
		cpuLoad = cpuPercent[0]
	}

	stats := &SystemStats{
		CPUPercent:        cpuLoad,
		MemoryUsedPercent: memInfo.UsedPercent,
		MemoryUsedMB:      memInfo.Used / 1024 / 1024,
		LoadAvg1:          loadAvg.Load1,
		Goroutines:        runtime.NumGoroutine(),
	}

	h.statsMu.Lock()
	h.cachedStats = stats
	h.statsTime = time.Now()
	h.statsMu.Unlock()

	return stats
}

// Global start time for uptime calculation
var startTime = time.Now()

// ReadinessCheck checks if the service is ready to accept traffic.
// This is typically used by load balancers or Kubernetes. The catalog
// must hold at least one routable model; the archive database and Redis
// block readiness only when they are configured and failing.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	span := sentry.StartSpan(r.Context(), "readiness_check")
	defer span.Finish()
	ctx := span.Context()

	span.SetTag("http.method", r.Method)
	span.SetTag("http.url", r.URL.String())
	span.SetTag("handler.name", "ReadinessCheck")

	servicesStatus := make(map[string]string)
	allReady := true

	// Check catalog (critical)
	if h.catalog != nil && h.catalog.AvailableCount() > 0 {
		servicesStatus["catalog"] = "ready"
		span.SetTag("catalog.readiness", "ready")
	} else {
		servicesStatus["catalog"] = "not ready"
		span.SetTag("catalog.readiness", "not_ready")
		allReady = false
	}

	// Check archive database (optional)
	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err == nil {
			servicesStatus["database"] = "ready"
			span.SetTag("database.readiness", "ready")
		} else {
			servicesStatus["database"] = "not ready"
			span.SetTag("database.readiness", "not_ready")
			sentry.CaptureException(err)
			allReady = false
		}
	} else {
		servicesStatus["database"] = "not configured"
		span.SetTag("database.readiness", "not_configured")
	}

	// Check Redis (optional)
	if h.redis != nil {
		if err := h.redis.HealthCheck(ctx); err == nil {
			servicesStatus["redis"] = "ready"
			span.SetTag("redis.readiness", "ready")
		} else {
			servicesStatus["redis"] = "not ready"
			span.SetTag("redis.readiness", "not_ready")
			sentry.CaptureException(err)
			allReady = false
		}
	} else {
		servicesStatus["redis"] = "not configured"
		span.SetTag("redis.readiness", "not_configured")
	}

	// Set appropriate status code
	if !allReady {
		span.Status = sentry.SpanStatusUnavailable
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		span.Status = sentry.SpanStatusOK
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":    allReady,
		"services": servicesStatus,
	}); err != nil {
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// LivenessCheck checks if the service is alive.
// This is a lightweight check to confirm the process is running.
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	span := sentry.StartSpan(r.Context(), "liveness_check")
	defer span.Finish()

	span.SetTag("http.method", r.Method)
	span.SetTag("http.url", r.URL.String())
	span.SetTag("handler.name", "LivenessCheck")

	// Simple liveness check - just ensure the app is responsive
	span.Status = sentry.SpanStatusOK
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	}); err != nil {
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
