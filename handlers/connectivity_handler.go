package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/llm-failover/middleware"
	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories"
	"github.com/upb/llm-failover/services"
	"github.com/upb/llm-failover/services/connectivity"
	"github.com/upb/llm-failover/utils"
	"go.uber.org/zap"
)

const (
	defaultSwitchEventLimit = 100
	maxSwitchEventLimit     = 500
)

// ConnectivityService defines the connectivity operations exposed over HTTP
type ConnectivityService interface {
	// TestAllDetailed sweeps every testable provider of a platform
	TestAllDetailed(ctx context.Context, platform models.Platform) (*connectivity.SweepResult, error)

	// GetResults returns the latest result of every provider of a platform
	GetResults(ctx context.Context, platform models.Platform) ([]models.ConnectivityResult, error)

	// GetAllResults returns results grouped by platform
	GetAllResults(ctx context.Context) (map[string][]models.ConnectivityResult, error)

	// RunSingleTest probes one provider
	RunSingleTest(ctx context.Context, platform models.Platform, providerID int64) (models.ConnectivityResult, error)

	// History returns the recent results of one provider
	History(platform models.Platform, providerID int64) []models.ConnectivityResult

	SetAutoTestEnabled(enabled bool) error
	GetAutoTestEnabled() bool

	// GetActiveProvider returns the platform's active provider
	GetActiveProvider(ctx context.Context, platform models.Platform) (models.RoutingDecision, error)
}

// SettingsStore holds the runtime settings document
type SettingsStore interface {
	Current() models.AppSettings
	Replace(next models.AppSettings) (models.AppSettings, error)
}

// SwitchEventReader lists recorded active-provider switches
type SwitchEventReader interface {
	Recent(ctx context.Context, filter repositories.SwitchEventFilter) ([]*models.SwitchEvent, error)
}

// SweepResponse represents a finished sweep in API responses
type SweepResponse struct {
	SweepID    uuid.UUID                   `json:"sweepId"`
	Platform   models.Platform             `json:"platform"`
	Coalesced  bool                        `json:"coalesced"`
	StartedAt  string                      `json:"startedAt"`
	FinishedAt string                      `json:"finishedAt"`
	Results    []models.ConnectivityResult `json:"results"`
}

// AutoTestRequest represents a request to toggle periodic sweeps
type AutoTestRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// AutoTestResponse reports whether periodic sweeps are scheduled
type AutoTestResponse struct {
	Enabled bool `json:"enabled"`
}

// ActiveProviderResponse represents the routing decision in API responses
type ActiveProviderResponse struct {
	models.RoutingDecision
	HasActive bool `json:"hasActive"`
}

// ConnectivityHandler handles connectivity and routing HTTP requests
type ConnectivityHandler struct {
	service  ConnectivityService
	settings SettingsStore
	events   SwitchEventReader
	logger   *zap.Logger
}

// NewConnectivityHandler creates a new ConnectivityHandler. events may be nil.
func NewConnectivityHandler(service ConnectivityService, settings SettingsStore, events SwitchEventReader, logger *zap.Logger) *ConnectivityHandler {
	return &ConnectivityHandler{
		service:  service,
		settings: settings,
		events:   events,
		logger:   logger,
	}
}

// HandleTestAll handles POST /api/v1/connectivity/platforms/{platform}/test
func (h *ConnectivityHandler) HandleTestAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	platform, ok := h.platformParam(w, r)
	if !ok {
		return
	}

	h.logger.Info("connectivity sweep requested",
		zap.String("request_id", requestID),
		zap.String("platform", platform.String()))

	sweep, err := h.service.TestAllDetailed(ctx, platform)
	if err != nil {
		h.logger.Warn("connectivity sweep failed",
			zap.String("request_id", requestID),
			zap.String("platform", platform.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	results := sweep.Results
	if results == nil {
		results = []models.ConnectivityResult{}
	}
	_ = utils.WriteOK(w, SweepResponse{
		SweepID:    sweep.SweepID,
		Platform:   sweep.Platform,
		Coalesced:  sweep.Coalesced,
		StartedAt:  sweep.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt: sweep.FinishedAt.UTC().Format(time.RFC3339Nano),
		Results:    results,
	})
}

// HandleGetResults handles GET /api/v1/connectivity/platforms/{platform}/results
func (h *ConnectivityHandler) HandleGetResults(w http.ResponseWriter, r *http.Request) {
	platform, ok := h.platformParam(w, r)
	if !ok {
		return
	}

	results, err := h.service.GetResults(r.Context(), platform)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, results)
}

// HandleGetAllResults handles GET /api/v1/connectivity/results
func (h *ConnectivityHandler) HandleGetAllResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.GetAllResults(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, results)
}

// HandleTestProvider handles POST /api/v1/connectivity/platforms/{platform}/providers/{id}/test
func (h *ConnectivityHandler) HandleTestProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	platform, ok := h.platformParam(w, r)
	if !ok {
		return
	}
	providerID, err := utils.ParsePositiveID(chi.URLParam(r, "id"), "provider id")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	h.logger.Info("single provider test requested",
		zap.String("request_id", requestID),
		zap.String("platform", platform.String()),
		zap.Int64("provider_id", providerID))

	result, err := h.service.RunSingleTest(ctx, platform, providerID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, result)
}

// HandleProviderHistory handles GET /api/v1/connectivity/platforms/{platform}/providers/{id}/history
func (h *ConnectivityHandler) HandleProviderHistory(w http.ResponseWriter, r *http.Request) {
	platform, ok := h.platformParam(w, r)
	if !ok {
		return
	}
	providerID, err := utils.ParsePositiveID(chi.URLParam(r, "id"), "provider id")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	history := h.service.History(platform, providerID)
	if history == nil {
		history = []models.ConnectivityResult{}
	}
	_ = utils.WriteOK(w, history)
}

// HandleGetAutoTest handles GET /api/v1/connectivity/auto-test
func (h *ConnectivityHandler) HandleGetAutoTest(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, AutoTestResponse{Enabled: h.service.GetAutoTestEnabled()})
}

// HandleSetAutoTest handles PUT /api/v1/connectivity/auto-test
func (h *ConnectivityHandler) HandleSetAutoTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req AutoTestRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.service.SetAutoTestEnabled(*req.Enabled); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("auto connectivity test toggled",
		zap.String("request_id", requestID),
		zap.Bool("enabled", *req.Enabled))

	_ = utils.WriteOK(w, AutoTestResponse{Enabled: h.service.GetAutoTestEnabled()})
}

// HandleGetActive handles GET /api/v1/connectivity/platforms/{platform}/active
func (h *ConnectivityHandler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	platform, ok := h.platformParam(w, r)
	if !ok {
		return
	}

	decision, err := h.service.GetActiveProvider(r.Context(), platform)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, ActiveProviderResponse{
		RoutingDecision: decision,
		HasActive:       decision.HasActive(),
	})
}

// HandleGetSettings handles GET /api/v1/connectivity/settings
func (h *ConnectivityHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.settings.Current())
}

// HandleReplaceSettings handles PUT /api/v1/connectivity/settings
func (h *ConnectivityHandler) HandleReplaceSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req models.AppSettings
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	req = req.Normalized()
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	applied, err := h.settings.Replace(req)
	if err != nil {
		h.logger.Warn("settings rejected",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, services.Invalid("invalid settings", err), h.logger)
		return
	}

	h.logger.Info("settings replaced",
		zap.String("request_id", requestID),
		zap.Bool("auto_connectivity_test", applied.AutoConnectivityTest),
		zap.Bool("enable_round_robin", applied.EnableRoundRobin),
		zap.Bool("proxy_configured", applied.ProxyAddress != ""))

	_ = utils.WriteOK(w, applied)
}

// HandleListSwitchEvents handles GET /api/v1/connectivity/switch-events
func (h *ConnectivityHandler) HandleListSwitchEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		_ = utils.WriteOK(w, []*models.SwitchEvent{})
		return
	}

	query := r.URL.Query()
	filter := repositories.SwitchEventFilter{}

	if raw := query.Get("platform"); raw != "" {
		platform, ok := models.NormalizePlatform(raw)
		if !ok {
			_ = utils.WriteBadRequest(w, "Invalid platform", map[string]interface{}{"platform": raw})
			return
		}
		filter.Platform = platform
	}

	limit, err := utils.ParseLimit(query.Get("limit"), defaultSwitchEventLimit, maxSwitchEventLimit)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	filter.Limit = limit

	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			_ = utils.WriteBadRequest(w, "since must be an RFC 3339 timestamp", nil)
			return
		}
		filter.Since = since
	}

	events, err := h.events.Recent(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, services.WrapExternal("failed to list switch events", err), h.logger)
		return
	}
	if events == nil {
		events = []*models.SwitchEvent{}
	}

	_ = utils.WriteOK(w, events)
}

// platformParam resolves the {platform} path parameter, writing a 404 for unknown names
func (h *ConnectivityHandler) platformParam(w http.ResponseWriter, r *http.Request) (models.Platform, bool) {
	raw := chi.URLParam(r, "platform")
	platform, ok := models.NormalizePlatform(raw)
	if !ok {
		HandleServiceError(w, services.NotFound("platform not found", map[string]interface{}{"platform": raw}), h.logger)
		return "", false
	}
	return platform, true
}
