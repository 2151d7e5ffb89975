package credentials

import (
	"context"

	"github.com/upb/multicloud-dashboard/models"
)

// EnvironmentConfig is the process-wide static credential configuration
type EnvironmentConfig struct {
	AWS   models.AWSCredentials
	Azure models.AzureCredentials
	GCP   models.GCPCredentials
}

// EnvironmentStrategy serves static credentials read from the process
// environment. Incomplete configuration yields (nil, nil).
type EnvironmentStrategy struct {
	cfg EnvironmentConfig
}

// NewEnvironmentStrategy creates an environment-sourced strategy
func NewEnvironmentStrategy(cfg EnvironmentConfig) *EnvironmentStrategy {
	return &EnvironmentStrategy{cfg: cfg}
}

// Kind implements Strategy
func (s *EnvironmentStrategy) Kind() models.CredentialStrategy {
	return models.StrategyEnvironment
}

// Resolve implements Strategy
func (s *EnvironmentStrategy) Resolve(_ context.Context, provider models.Provider, _ *models.Principal) (*models.Credentials, error) {
	out := &models.Credentials{Provider: provider, Strategy: models.StrategyEnvironment}

	switch provider {
	case models.ProviderAWS:
		c := s.cfg.AWS
		if c.AccessKeyID == "" || c.SecretAccessKey == "" {
			return nil, nil
		}
		out.AWS = &c
	case models.ProviderAzure:
		c := s.cfg.Azure
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" || c.SubscriptionID == "" {
			return nil, nil
		}
		out.Azure = &c
	case models.ProviderGCP:
		c := s.cfg.GCP
		if c.ProjectID == "" {
			return nil, nil
		}
		c.ServiceAccountJSON = append([]byte(nil), s.cfg.GCP.ServiceAccountJSON...)
		out.GCP = &c
	default:
		return nil, nil
	}
	return out, nil
}
