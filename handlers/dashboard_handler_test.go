package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/multicloud-dashboard/models"
	"go.uber.org/zap"
)

// MockAggregator mocks the dashboard aggregator
type MockAggregator struct {
	mock.Mock
}

func (m *MockAggregator) Aggregate(ctx context.Context, requested []models.Provider, principal *models.Principal) (*models.DashboardSummary, error) {
	args := m.Called(ctx, requested, principal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DashboardSummary), args.Error(1)
}

func newDashboardHandler(agg *MockAggregator) *DashboardHandler {
	logger := zap.NewNop()
	return NewDashboardHandler(agg, NewErrorHandler(nil, logger, false), logger)
}

func TestHandleDashboard(t *testing.T) {
	t.Run("anonymous request dedupes providers", func(t *testing.T) {
		agg := new(MockAggregator)
		summary := &models.DashboardSummary{
			Summary: models.SummaryTotals{TotalInstances: 3, MonthlyCost: 1250.5},
			Providers: []models.ProviderStatus{
				{Name: "AWS", DataSource: models.DataSourceLive},
				{Name: "GCP", DataSource: models.DataSourceFallback, Reason: "not_configured"},
			},
			Degraded: true,
		}
		agg.On("Aggregate", mock.Anything, []models.Provider{models.ProviderAWS, models.ProviderGCP}, (*models.Principal)(nil)).
			Return(summary, nil)
		h := newDashboardHandler(agg)

		req := httptest.NewRequest(http.MethodPost, "/api/dashboard", strings.NewReader(`{"providers":["aws","GCP","aws"]}`))
		rec := httptest.NewRecorder()

		h.HandleDashboard(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeData(t, rec)
		assert.Equal(t, true, data["degraded"])
		assert.Equal(t, 1250.5, data["summary"].(map[string]interface{})["monthlyCost"])
		agg.AssertExpectations(t)
	})

	t.Run("authenticated request passes the principal", func(t *testing.T) {
		agg := new(MockAggregator)
		p := models.NewPrincipal("bob", "bob@example.com", "h", models.RoleUser, "")
		agg.On("Aggregate", mock.Anything, []models.Provider{models.ProviderAzure}, p).
			Return(&models.DashboardSummary{}, nil)
		h := newDashboardHandler(agg)

		req := httptest.NewRequest(http.MethodPost, "/api/dashboard", strings.NewReader(`{"providers":["azure"]}`))
		rec := httptest.NewRecorder()

		h.HandleDashboard(rec, withPrincipal(req, p))

		assert.Equal(t, http.StatusOK, rec.Code)
		agg.AssertExpectations(t)
	})

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty provider list", `{"providers":[]}`, "At least one provider must be specified"},
		{"unknown provider", `{"providers":["aws","oracle"]}`, "Invalid provider: oracle"},
		{"missing body", ``, "Request body is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := new(MockAggregator)
			h := newDashboardHandler(agg)

			req := httptest.NewRequest(http.MethodPost, "/api/dashboard", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.HandleDashboard(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, decodeError(t, rec).Message)
			agg.AssertNotCalled(t, "Aggregate", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}
