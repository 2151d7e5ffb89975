package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/upb/multicloud-dashboard/internal/crypto"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"github.com/upb/multicloud-dashboard/services"
	"github.com/upb/multicloud-dashboard/services/audit"
	"go.uber.org/zap"
)

// GCP record method
const gcpMethodServiceAccount = "service-account"

// StoreInput is the body accepted when storing provider credentials. Only the
// fields of the target provider are read.
type StoreInput struct {
	Method string `json:"method"`

	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	RoleARN         string `json:"roleArn"`
	Region          string `json:"region"`

	TenantID           string `json:"tenantId"`
	ClientID           string `json:"clientId"`
	ClientSecret       string `json:"clientSecret"`
	SubscriptionID     string `json:"subscriptionId"`
	StorageAccount     string `json:"storageAccount"`
	UseManagedIdentity bool   `json:"useManagedIdentity"`

	ProjectID         string `json:"projectId"`
	ServiceAccountKey string `json:"serviceAccountKey"`
}

// RecordStatus describes one provider's stored credentials. Secrets are never included.
type RecordStatus struct {
	Provider       models.Provider           `json:"provider"`
	Configured     bool                      `json:"configured"`
	Method         string                    `json:"method,omitempty"`
	Strategy       models.CredentialStrategy `json:"strategy,omitempty"`
	CreatedAt      *time.Time                `json:"createdAt,omitempty"`
	Region         string                    `json:"region,omitempty"`
	RoleARN        string                    `json:"roleArn,omitempty"`
	SubscriptionID string                    `json:"subscriptionId,omitempty"`
	ProjectID      string                    `json:"projectId,omitempty"`
}

// ResolverControl is the slice of the resolver the record service depends on
type ResolverControl interface {
	Invalidate(ctx context.Context, principalID string, providers ...models.Provider)
	StrategyFor(provider models.Provider) (models.CredentialStrategy, bool)
}

// RecordService manages user-supplied credential records
type RecordService struct {
	repo     repositories.CredentialRepository
	sealer   *crypto.Sealer
	resolver ResolverControl
	recorder audit.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewRecordService creates a credential record service
func NewRecordService(repo repositories.CredentialRepository, sealer *crypto.Sealer, resolver ResolverControl, recorder audit.Recorder, logger *zap.Logger) *RecordService {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &RecordService{
		repo:     repo,
		sealer:   sealer,
		resolver: resolver,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// SealOwner binds sealed secrets to one (principal, provider) record
func SealOwner(principalID string, provider models.Provider) string {
	return principalID + "/" + string(provider)
}

// Store validates, seals and stores the record, replacing any previous one,
// then invalidates the cached credentials of that (principal, provider)
func (s *RecordService) Store(ctx context.Context, principalID string, provider models.Provider, in StoreInput) (*RecordStatus, error) {
	if !provider.IsValid() {
		return nil, services.ErrInvalidProvider
	}
	rec, err := BuildRecord(provider, in)
	if err != nil {
		return nil, err
	}
	rec.PrincipalID = principalID
	rec.CreatedAt = s.now().UTC()

	if err := s.seal(rec); err != nil {
		return nil, services.WrapInternal("failed to protect credentials", err)
	}
	if err := s.repo.Put(ctx, rec); err != nil {
		return nil, services.WrapInternal("failed to store credentials", err)
	}

	s.resolver.Invalidate(ctx, principalID, provider)
	s.recorder.Record(ctx, models.AuditActionCredentialsStored, principalID, map[string]interface{}{
		"provider": string(provider),
		"method":   rec.Method,
	})
	s.logger.Info("credentials stored",
		zap.String("principal_id", principalID),
		zap.String("provider", string(provider)),
		zap.String("method", rec.Method))

	status := s.statusOf(provider, rec)
	return &status, nil
}

// Status reports every provider for the principal, configured or not
func (s *RecordService) Status(ctx context.Context, principalID string) ([]RecordStatus, error) {
	recs, err := s.repo.ListByPrincipal(ctx, principalID)
	if err != nil {
		return nil, services.WrapInternal("failed to load credentials", err)
	}
	byProvider := make(map[models.Provider]*models.CredentialRecord, len(recs))
	for _, r := range recs {
		byProvider[r.Provider] = r
	}

	out := make([]RecordStatus, 0, len(models.AllProviders))
	for _, p := range models.AllProviders {
		out = append(out, s.statusOf(p, byProvider[p]))
	}
	return out, nil
}

// Delete removes the principal's record for provider
func (s *RecordService) Delete(ctx context.Context, principalID string, provider models.Provider) error {
	if !provider.IsValid() {
		return services.ErrInvalidProvider
	}
	err := s.repo.Delete(ctx, principalID, provider)
	if errors.Is(err, repositories.ErrNotFound) {
		return services.NewNotFoundError(fmt.Sprintf("no %s credentials stored", provider.DisplayName()))
	}
	if err != nil {
		return services.WrapInternal("failed to delete credentials", err)
	}

	s.resolver.Invalidate(ctx, principalID, provider)
	s.recorder.Record(ctx, models.AuditActionCredentialsDeleted, principalID, map[string]interface{}{
		"provider": string(provider),
	})
	return nil
}

func (s *RecordService) statusOf(provider models.Provider, rec *models.CredentialRecord) RecordStatus {
	st := RecordStatus{Provider: provider}
	if kind, ok := s.resolver.StrategyFor(provider); ok {
		st.Strategy = kind
	}
	if rec == nil {
		return st
	}
	created := rec.CreatedAt
	st.Configured = true
	st.Method = rec.Method
	st.CreatedAt = &created
	st.Region = rec.Region
	st.RoleARN = rec.RoleARN
	st.SubscriptionID = rec.SubscriptionID
	st.ProjectID = rec.ProjectID
	return st
}

func (s *RecordService) seal(rec *models.CredentialRecord) error {
	owner := SealOwner(rec.PrincipalID, rec.Provider)
	for _, field := range []*string{&rec.SecretAccessKey, &rec.ClientSecret, &rec.ServiceAccountKey} {
		sealed, err := s.sealer.Seal(*field, owner)
		if err != nil {
			return err
		}
		*field = sealed
	}
	return nil
}

// BuildRecord validates input for provider and returns an unsealed record
func BuildRecord(provider models.Provider, in StoreInput) (*models.CredentialRecord, error) {
	rec := &models.CredentialRecord{Provider: provider}

	switch provider {
	case models.ProviderAWS:
		method := strings.TrimSpace(in.Method)
		if method == "" {
			method = models.AWSMethodAccessKey
		}
		rec.Method = method
		rec.Region = strings.TrimSpace(in.Region)
		switch method {
		case models.AWSMethodAccessKey:
			if in.AccessKeyID == "" || in.SecretAccessKey == "" {
				return nil, services.NewValidationError("accessKeyId and secretAccessKey are required")
			}
			rec.AccessKeyID = strings.TrimSpace(in.AccessKeyID)
			rec.SecretAccessKey = in.SecretAccessKey
		case models.AWSMethodAssumeRole:
			arn := strings.TrimSpace(in.RoleARN)
			if !strings.HasPrefix(arn, "arn:") || !strings.Contains(arn, ":role/") {
				return nil, services.NewValidationError("roleArn must be an IAM role ARN")
			}
			rec.RoleARN = arn
		default:
			return nil, services.NewValidationError(fmt.Sprintf("method must be %s or %s",
				models.AWSMethodAccessKey, models.AWSMethodAssumeRole))
		}

	case models.ProviderAzure:
		rec.SubscriptionID = strings.TrimSpace(in.SubscriptionID)
		rec.StorageAccount = strings.TrimSpace(in.StorageAccount)
		if rec.SubscriptionID == "" {
			return nil, services.NewValidationError("subscriptionId is required")
		}
		if in.UseManagedIdentity || in.Method == models.AzureMethodManagedIdentity {
			rec.Method = models.AzureMethodManagedIdentity
			break
		}
		if in.TenantID == "" || in.ClientID == "" || in.ClientSecret == "" {
			return nil, services.NewValidationError("tenantId, clientId and clientSecret are required")
		}
		rec.Method = models.AzureMethodServicePrincipal
		rec.TenantID = strings.TrimSpace(in.TenantID)
		rec.ClientID = strings.TrimSpace(in.ClientID)
		rec.ClientSecret = in.ClientSecret

	case models.ProviderGCP:
		rec.Method = gcpMethodServiceAccount
		rec.ProjectID = strings.TrimSpace(in.ProjectID)
		if rec.ProjectID == "" || in.ServiceAccountKey == "" {
			return nil, services.NewValidationError("projectId and serviceAccountKey are required")
		}
		var key map[string]interface{}
		if err := json.Unmarshal([]byte(in.ServiceAccountKey), &key); err != nil {
			return nil, services.NewValidationError("serviceAccountKey must be a JSON document")
		}
		rec.ServiceAccountKey = in.ServiceAccountKey

	default:
		return nil, services.ErrInvalidProvider
	}
	return rec, nil
}
