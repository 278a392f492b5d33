package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/llm-failover/internal/observability"
	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/services/audit"
	"github.com/upb/llm-failover/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusResponse represents the service status response
type StatusResponse struct {
	Service     string                        `json:"service"`
	Environment string                        `json:"environment"`
	Uptime      string                        `json:"uptime"`
	Storage     string                        `json:"storage"`
	AutoTest    bool                          `json:"auto_test"`
	Proxied     []models.Platform             `json:"proxied_platforms"`
	Platforms   []models.Platform             `json:"platforms"`
	Metrics     []observability.PlatformStats `json:"metrics"`
	Audit       *audit.Stats                  `json:"audit,omitempty"`
}

// MetricsSnapshotter exposes the in-process counters
type MetricsSnapshotter interface {
	Snapshot() []observability.PlatformStats
}

// AuditStatsProvider exposes the switch event recorder state
type AuditStatsProvider interface {
	GetStats() audit.Stats
}

// PlatformLister lists platforms that have stored results
type PlatformLister interface {
	Platforms() []models.Platform
}

// ProxyReporter reports which platforms send probes through the global proxy
type ProxyReporter interface {
	UsesProxy(platform models.Platform) bool
}

// StatusSources feeds the status endpoint. Every field is optional.
type StatusSources struct {
	Environment string
	StartedAt   time.Time
	Metrics     MetricsSnapshotter
	Audit       AuditStatsProvider
	Results     PlatformLister
	AutoTest    func() bool
	Proxy       ProxyReporter
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db      *sql.DB
	logger  *zap.Logger
	sources StatusSources
}

// NewHealthHandler creates a new HealthHandler. db is nil when running on in-memory storage.
func NewHealthHandler(db *sql.DB, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		logger:  logger,
		sources: StatusSources{StartedAt: time.Now()},
	}
}

// WithStatusSources sets what the status endpoint reports
func (h *HealthHandler) WithStatusSources(sources StatusSources) *HealthHandler {
	if sources.StartedAt.IsZero() {
		sources.StartedAt = h.sources.StartedAt
	}
	h.sources = sources
	return h
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that all dependencies are available
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.db == nil {
		checks["database"] = "not_configured"
	} else if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	if h.sources.Audit != nil {
		if h.sources.Audit.GetStats().Started {
			checks["audit"] = "healthy"
		} else {
			checks["audit"] = "stopped"
			allHealthy = false
		}
	}

	// Determine overall status
	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Service:     "llm-failover",
		Environment: h.sources.Environment,
		Uptime:      time.Since(h.sources.StartedAt).Truncate(time.Second).String(),
		Storage:     "memory",
		Platforms:   []models.Platform{},
		Proxied:     []models.Platform{},
		Metrics:     []observability.PlatformStats{},
	}
	if h.db != nil {
		response.Storage = "postgres"
	}
	if h.sources.AutoTest != nil {
		response.AutoTest = h.sources.AutoTest()
	}
	if h.sources.Proxy != nil {
		for _, p := range models.BuiltinPlatforms {
			if h.sources.Proxy.UsesProxy(p) {
				response.Proxied = append(response.Proxied, p)
			}
		}
	}
	if h.sources.Results != nil {
		if platforms := h.sources.Results.Platforms(); platforms != nil {
			response.Platforms = platforms
		}
	}
	if h.sources.Metrics != nil {
		if snapshot := h.sources.Metrics.Snapshot(); snapshot != nil {
			response.Metrics = snapshot
		}
	}
	if h.sources.Audit != nil {
		stats := h.sources.Audit.GetStats()
		response.Audit = &stats
	}

	_ = utils.WriteOK(w, response)
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	// Ping database with timeout
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	// Check if we can execute a simple query
	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return err
	}

	return nil
}
