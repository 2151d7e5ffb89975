package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/aws/aws-sdk-go-v2/credentials/ec2rolecreds"
	"github.com/upb/multicloud-dashboard/models"
	"go.uber.org/zap"
)

// azureManagementScope is the token scope used to prove a managed identity exists
const azureManagementScope = "https://management.azure.com/.default"

// InstanceIdentityStrategy asks the local metadata service for ambient
// credentials. Probe timeouts and failures fall back to the environment
// strategy instead of failing the request.
type InstanceIdentityStrategy struct {
	probes   map[models.Provider]IdentityProbe
	fallback Strategy
	timeout  time.Duration
	logger   *zap.Logger
}

// NewInstanceIdentityStrategy creates the strategy. fallback may be nil.
func NewInstanceIdentityStrategy(probes map[models.Provider]IdentityProbe, fallback Strategy, timeout time.Duration, logger *zap.Logger) *InstanceIdentityStrategy {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &InstanceIdentityStrategy{
		probes:   probes,
		fallback: fallback,
		timeout:  timeout,
		logger:   logger,
	}
}

// Kind implements Strategy
func (s *InstanceIdentityStrategy) Kind() models.CredentialStrategy {
	return models.StrategyInstanceIdentity
}

// Resolve implements Strategy
func (s *InstanceIdentityStrategy) Resolve(ctx context.Context, provider models.Provider, principal *models.Principal) (*models.Credentials, error) {
	probe, ok := s.probes[provider]
	if ok {
		probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		creds, err := probe.Probe(probeCtx)
		cancel()
		if err == nil && creds != nil {
			creds.Provider = provider
			creds.Strategy = models.StrategyInstanceIdentity
			return creds, nil
		}
		if err == nil {
			err = errors.New("identity service returned no credentials")
		}
		s.logger.Warn("instance identity unavailable, falling back to environment",
			zap.String("provider", string(provider)),
			zap.Duration("timeout", s.timeout),
			zap.Error(err))
	}

	if s.fallback == nil {
		return nil, nil
	}
	return s.fallback.Resolve(ctx, provider, principal)
}

// AWSInstanceProbe reads the EC2 instance role from the instance metadata service
func AWSInstanceProbe(region string) IdentityProbe {
	provider := ec2rolecreds.New()
	return ProbeFunc(func(ctx context.Context) (*models.Credentials, error) {
		v, err := provider.Retrieve(ctx)
		if err != nil {
			return nil, fmt.Errorf("retrieve instance role credentials: %w", err)
		}
		c := &models.AWSCredentials{
			AccessKeyID:     v.AccessKeyID,
			SecretAccessKey: v.SecretAccessKey,
			SessionToken:    v.SessionToken,
			Region:          region,
		}
		if v.CanExpire {
			c.Expires = v.Expires
		}
		return &models.Credentials{AWS: c}, nil
	})
}

// AzureManagedIdentityProbe proves a managed identity can obtain a management token
func AzureManagedIdentityProbe(subscriptionID, storageAccount string) IdentityProbe {
	return ProbeFunc(func(ctx context.Context) (*models.Credentials, error) {
		cred, err := azidentity.NewManagedIdentityCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create managed identity credential: %w", err)
		}
		if _, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{azureManagementScope}}); err != nil {
			return nil, fmt.Errorf("acquire managed identity token: %w", err)
		}
		return &models.Credentials{Azure: &models.AzureCredentials{
			SubscriptionID:     subscriptionID,
			StorageAccount:     storageAccount,
			UseManagedIdentity: true,
		}}, nil
	})
}

// GCPMetadataProbe reads the project of the attached service account from the metadata server
func GCPMetadataProbe() IdentityProbe {
	return ProbeFunc(func(ctx context.Context) (*models.Credentials, error) {
		projectID, err := metadata.ProjectIDWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("read project id from metadata: %w", err)
		}
		return &models.Credentials{GCP: &models.GCPCredentials{
			ProjectID:   projectID,
			UseMetadata: true,
		}}, nil
	})
}
