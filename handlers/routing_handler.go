package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/upb/omniagent/internal/health"
	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/internal/telemetry"
	"github.com/upb/omniagent/models"
	"github.com/upb/omniagent/services"
	"github.com/upb/omniagent/services/audit"
	"github.com/upb/omniagent/services/chat"
	"github.com/upb/omniagent/utils"
	"go.uber.org/zap"
)

// DefaultEventLimit is used when GET /api/v1/events has no limit
const DefaultEventLimit = 50

// HealthReporter is the availability cache behind routing
type HealthReporter interface {
	Status(ctx context.Context) router.EnvironmentStatus
	Refresh(ctx context.Context) router.EnvironmentStatus
	Stats() health.CacheStats
}

// TelemetrySource returns usage counters
type TelemetrySource interface {
	Snapshot() telemetry.Snapshot
}

// EventLog reads persisted routing events
type EventLog interface {
	Recent(ctx context.Context, limit int) ([]*models.RoutingEvent, error)
	GetStats() audit.Stats
}

// RoutePreviewRequest is the body of POST /api/v1/route
type RoutePreviewRequest struct {
	Text        string `json:"text" validate:"max=32000"`
	HasImage    bool   `json:"has_image"`
	PrivacyMode string `json:"privacy_mode,omitempty" validate:"omitempty,privacy_mode"`
}

// StatusResponse is returned by GET /api/v1/status
type StatusResponse struct {
	Environment  router.EnvironmentStatus `json:"environment"`
	Cache        health.CacheStats        `json:"cache"`
	CloudKeyHint string                   `json:"cloud_key_hint"`
	Backends     map[string]string        `json:"backends"`
	Rules        []string                 `json:"rules"`
}

// TelemetryResponse is returned by GET /api/v1/telemetry
type TelemetryResponse struct {
	telemetry.Snapshot
	EventLog *audit.Stats `json:"event_log,omitempty"`
}

// RoutingHandler serves status, previews and usage data
type RoutingHandler struct {
	health    HealthReporter
	chat      ChatService
	telemetry TelemetrySource
	events    EventLog
	catalog   router.Catalog
	keyHint   string
	logger    *zap.Logger
}

// NewRoutingHandler creates a new RoutingHandler. events may be nil when no
// database is configured.
func NewRoutingHandler(
	health HealthReporter,
	chat ChatService,
	telemetry TelemetrySource,
	events EventLog,
	catalog router.Catalog,
	keyHint string,
	logger *zap.Logger,
) *RoutingHandler {
	return &RoutingHandler{
		health:    health,
		chat:      chat,
		telemetry: telemetry,
		events:    events,
		catalog:   catalog,
		keyHint:   keyHint,
		logger:    logger,
	}
}

// HandleStatus handles GET /api/v1/status[?refresh=true]
func (h *RoutingHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			_ = utils.WriteBadRequest(w, "refresh must be a boolean", nil)
			return
		}
		refresh = parsed
	}

	var env router.EnvironmentStatus
	if refresh {
		env = h.health.Refresh(r.Context())
	} else {
		env = h.health.Status(r.Context())
	}

	response := StatusResponse{
		Environment:  env,
		Cache:        h.health.Stats(),
		CloudKeyHint: h.keyHint,
		Backends: map[string]string{
			"local_text":   h.catalog.LocalText,
			"local_vision": h.catalog.LocalVision,
			"openai":       h.catalog.OpenAI,
			"openrouter":   h.catalog.OpenRouter,
		},
		Rules: router.RuleNames(),
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleRoute handles POST /api/v1/route
func (h *RoutingHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	var req RoutePreviewRequest
	if !decodeBody(w, r, &req, false, h.logger) {
		return
	}

	preview, err := h.chat.Preview(r.Context(), chat.Prompt{
		Text:          req.Text,
		PrivacyMode:   privacyMode(req.PrivacyMode),
		ImageAttached: req.HasImage,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, preview); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleTelemetry handles GET /api/v1/telemetry
func (h *RoutingHandler) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	response := TelemetryResponse{Snapshot: h.telemetry.Snapshot()}
	if h.events != nil {
		stats := h.events.GetStats()
		response.EventLog = &stats
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleEvents handles GET /api/v1/events?limit=N
func (h *RoutingHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		HandleServiceError(w, services.ErrEventLogNotEnabled, h.logger)
		return
	}

	limit := DefaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			HandleServiceError(w, services.ErrInvalidInput.Clone().WithDetail("limit", raw), h.logger)
			return
		}
		limit = parsed
	}

	events, err := h.events.Recent(r.Context(), limit)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to list routing events", err), h.logger)
		return
	}

	if err := utils.WriteOK(w, events); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
