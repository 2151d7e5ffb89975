package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/multicloud-dashboard/internal/crypto"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"github.com/upb/multicloud-dashboard/services"
)

// UserSuppliedStrategy serves credentials the principal stored through the
// credential record endpoints. AWS records using the assume-role method are
// exchanged through the delegated role strategy.
type UserSuppliedStrategy struct {
	records       repositories.CredentialRepository
	sealer        *crypto.Sealer
	delegated     *DelegatedRoleStrategy
	defaultRegion string
}

// NewUserSuppliedStrategy creates the strategy. delegated may be nil.
func NewUserSuppliedStrategy(records repositories.CredentialRepository, sealer *crypto.Sealer, delegated *DelegatedRoleStrategy, defaultRegion string) *UserSuppliedStrategy {
	return &UserSuppliedStrategy{
		records:       records,
		sealer:        sealer,
		delegated:     delegated,
		defaultRegion: defaultRegion,
	}
}

// Kind implements Strategy
func (s *UserSuppliedStrategy) Kind() models.CredentialStrategy {
	return models.StrategyUserSupplied
}

// Resolve implements Strategy
func (s *UserSuppliedStrategy) Resolve(ctx context.Context, provider models.Provider, principal *models.Principal) (*models.Credentials, error) {
	notConfigured := services.NewCredentialError(services.CredentialNotConfigured,
		fmt.Sprintf("no %s credentials stored for this user", provider.DisplayName()), nil)
	if principal == nil {
		return nil, notConfigured
	}

	rec, err := s.records.Get(ctx, principal.ID, provider)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, notConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("load credential record: %w", err)
	}

	owner := SealOwner(principal.ID, provider)
	out := &models.Credentials{Provider: provider, Strategy: models.StrategyUserSupplied}

	switch provider {
	case models.ProviderAWS:
		region := rec.Region
		if region == "" {
			region = s.defaultRegion
		}
		if rec.Method == models.AWSMethodAssumeRole {
			if s.delegated == nil {
				return nil, services.NewCredentialError(services.CredentialMissingConfiguration,
					"role assumption is not available", nil)
			}
			creds, err := s.delegated.Assume(ctx, principal.ID, rec.RoleARN, region)
			if err != nil {
				return nil, err
			}
			creds.Strategy = models.StrategyUserSupplied
			return creds, nil
		}
		secret, err := s.sealer.Open(rec.SecretAccessKey, owner)
		if err != nil {
			return nil, unreadable(provider, err)
		}
		out.AWS = &models.AWSCredentials{
			AccessKeyID:     rec.AccessKeyID,
			SecretAccessKey: secret,
			Region:          region,
		}

	case models.ProviderAzure:
		c := &models.AzureCredentials{
			TenantID:           rec.TenantID,
			ClientID:           rec.ClientID,
			SubscriptionID:     rec.SubscriptionID,
			StorageAccount:     rec.StorageAccount,
			UseManagedIdentity: rec.Method == models.AzureMethodManagedIdentity,
		}
		if !c.UseManagedIdentity {
			secret, err := s.sealer.Open(rec.ClientSecret, owner)
			if err != nil {
				return nil, unreadable(provider, err)
			}
			c.ClientSecret = secret
		}
		out.Azure = c

	case models.ProviderGCP:
		key, err := s.sealer.Open(rec.ServiceAccountKey, owner)
		if err != nil {
			return nil, unreadable(provider, err)
		}
		out.GCP = &models.GCPCredentials{
			ProjectID:          rec.ProjectID,
			ServiceAccountJSON: []byte(key),
		}

	default:
		return nil, notConfigured
	}
	return out, nil
}

func unreadable(provider models.Provider, err error) error {
	return services.NewCredentialError(services.CredentialNotConfigured,
		fmt.Sprintf("stored %s credentials cannot be read, store them again", provider.DisplayName()), err)
}
