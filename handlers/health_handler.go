package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/multicloud-dashboard/utils"
	"go.uber.org/zap"
)

// Version is reported by the health endpoint
var Version = "1.0.0"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Security  string            `json:"security"`
	Providers int               `json:"providers,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProviderCounter reports how many provider clients are registered
type ProviderCounter interface {
	GetProviderCount() int
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db        *sql.DB
	providers ProviderCounter
	logger    *zap.Logger
	now       func() time.Time
}

// NewHealthHandler creates a new HealthHandler. db may be nil when the
// in-memory store is used.
func NewHealthHandler(db *sql.DB, providers ProviderCounter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		providers: providers,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleHealth handles GET /health
// Liveness only; returns 200 while the process is serving.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.response("ok", nil))
}

// HandleReadiness handles GET /health/ready
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.db == nil {
		checks["database"] = "in-memory"
	} else if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		healthy = false
	} else {
		checks["database"] = "healthy"
	}

	if h.providers != nil && h.providers.GetProviderCount() == 0 {
		checks["providers"] = "none registered"
		healthy = false
	} else {
		checks["providers"] = "healthy"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, code, utils.SuccessResponse{Data: h.response(status, checks)}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) response(status string, checks map[string]string) HealthResponse {
	resp := HealthResponse{
		Status:    status,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Version:   Version,
		Security:  "enabled",
		Checks:    checks,
	}
	if h.providers != nil {
		resp.Providers = h.providers.GetProviderCount()
	}
	return resp
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}
	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
