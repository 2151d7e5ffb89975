package handlers

import (
	"context"
	"net/http"

	"github.com/upb/multicloud-dashboard/middleware"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/services/aggregator"
	"github.com/upb/multicloud-dashboard/utils"
	"go.uber.org/zap"
)

// Aggregator builds the dashboard summary
type Aggregator interface {
	Aggregate(ctx context.Context, requested []models.Provider, principal *models.Principal) (*models.DashboardSummary, error)
}

// DashboardRequest is the body of POST /dashboard
type DashboardRequest struct {
	Providers []string `json:"providers"`
}

// DashboardHandler serves the aggregated multi-cloud summary
type DashboardHandler struct {
	aggregator Aggregator
	errs       *ErrorHandler
	logger     *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(agg Aggregator, errs *ErrorHandler, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		aggregator: agg,
		errs:       errs,
		logger:     logger,
	}
}

// HandleDashboard handles POST /dashboard. Authentication is optional; an
// anonymous caller is served with process-wide credentials.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DashboardRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.errs.HandleValidationError(w, err)
		return
	}

	requested, err := aggregator.ParseProviders(req.Providers)
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}

	principal := middleware.GetPrincipalFromContext(ctx)
	summary, err := h.aggregator.Aggregate(ctx, requested, principal)
	if err != nil {
		h.errs.HandleServiceError(w, r, err)
		return
	}

	h.logger.Debug("dashboard served",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.Int("providers", len(requested)),
		zap.Bool("degraded", summary.Degraded),
		zap.Int64("response_time_ms", summary.ResponseTimeMs))

	_ = utils.WriteOK(w, summary)
}
