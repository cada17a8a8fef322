package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusSource reports backend availability.
type StatusSource interface {
	Status(ctx context.Context) router.EnvironmentStatus
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db     *sql.DB
	status StatusSource
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil when the
// routing event log is disabled.
func NewHealthHandler(db *sql.DB, status StatusSource, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		status: status,
		logger: logger,
	}
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
//
// The service is ready while the local runtime is reachable and the event
// database, when configured, answers. A missing cloud credential reports
// "degraded" with a 200 since every turn can still be served locally.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.db == nil {
		checks["database"] = "disabled"
	} else if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	degraded := false
	if h.status != nil {
		env := h.status.Status(ctx)
		checks["local_backend"] = availability(env.LocalBackendAvailable)
		checks["cloud_backend"] = availability(env.CloudBackendAvailable)
		if !env.LocalBackendAvailable {
			allHealthy = false
		} else if !env.CloudBackendAvailable {
			degraded = true
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else if degraded {
		status = "degraded"
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

func availability(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unavailable"
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
