package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/multicloud-dashboard/internal/crypto"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories/memory"
	"github.com/upb/multicloud-dashboard/services"
	"go.uber.org/zap"
)

func TestBuildRecord(t *testing.T) {
	tests := []struct {
		name     string
		provider models.Provider
		input    StoreInput
		wantErr  bool
		method   string
	}{
		{"aws access key", models.ProviderAWS, StoreInput{AccessKeyID: "AKIA", SecretAccessKey: "s"}, false, models.AWSMethodAccessKey},
		{"aws access key missing secret", models.ProviderAWS, StoreInput{AccessKeyID: "AKIA"}, true, ""},
		{"aws assume role", models.ProviderAWS, StoreInput{Method: "assume-role", RoleARN: "arn:aws:iam::1:role/r"}, false, models.AWSMethodAssumeRole},
		{"aws assume role bad arn", models.ProviderAWS, StoreInput{Method: "assume-role", RoleARN: "my-role"}, true, ""},
		{"aws unknown method", models.ProviderAWS, StoreInput{Method: "sso"}, true, ""},
		{"azure service principal", models.ProviderAzure, StoreInput{TenantID: "t", ClientID: "c", ClientSecret: "s", SubscriptionID: "sub"}, false, models.AzureMethodServicePrincipal},
		{"azure missing secret", models.ProviderAzure, StoreInput{TenantID: "t", ClientID: "c", SubscriptionID: "sub"}, true, ""},
		{"azure managed identity", models.ProviderAzure, StoreInput{UseManagedIdentity: true, SubscriptionID: "sub"}, false, models.AzureMethodManagedIdentity},
		{"azure managed identity missing subscription", models.ProviderAzure, StoreInput{UseManagedIdentity: true}, true, ""},
		{"gcp service account", models.ProviderGCP, StoreInput{ProjectID: "p", ServiceAccountKey: `{"type":"service_account"}`}, false, "service-account"},
		{"gcp key not json", models.ProviderGCP, StoreInput{ProjectID: "p", ServiceAccountKey: "not-json"}, true, ""},
		{"gcp missing project", models.ProviderGCP, StoreInput{ServiceAccountKey: `{}`}, true, ""},
		{"unknown provider", models.Provider("oracle"), StoreInput{}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := BuildRecord(tt.provider, tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, services.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.method, rec.Method)
			assert.Equal(t, tt.provider, rec.Provider)
		})
	}
}

// fakeResolverControl records invalidations
type fakeResolverControl struct {
	invalidated []string
}

func (f *fakeResolverControl) Invalidate(_ context.Context, principalID string, providers ...models.Provider) {
	for _, p := range providers {
		f.invalidated = append(f.invalidated, CacheKey(p, principalID))
	}
}

func (f *fakeResolverControl) StrategyFor(models.Provider) (models.CredentialStrategy, bool) {
	return models.StrategyUserSupplied, true
}

func newRecordService(t *testing.T) (*RecordService, *memory.CredentialRepository, *fakeResolverControl, *fakeRecorder) {
	t.Helper()
	sealer, err := crypto.NewEphemeralSealer()
	require.NoError(t, err)
	repo := memory.NewCredentialRepository()
	ctl := &fakeResolverControl{}
	rec := &fakeRecorder{}
	return NewRecordService(repo, sealer, ctl, rec, zap.NewNop()), repo, ctl, rec
}

func TestRecordService_StoreSealsSecretsAndInvalidates(t *testing.T) {
	svc, repo, ctl, rec := newRecordService(t)
	ctx := context.Background()

	status, err := svc.Store(ctx, "u1", models.ProviderAWS, StoreInput{
		AccessKeyID: "AKIA", SecretAccessKey: "plain-secret", Region: "us-west-2",
	})
	require.NoError(t, err)
	assert.True(t, status.Configured)
	assert.Equal(t, models.AWSMethodAccessKey, status.Method)
	assert.Equal(t, "us-west-2", status.Region)

	stored, err := repo.Get(ctx, "u1", models.ProviderAWS)
	require.NoError(t, err)
	assert.True(t, crypto.IsSealed(stored.SecretAccessKey))
	assert.NotContains(t, stored.SecretAccessKey, "plain-secret")
	assert.WithinDuration(t, time.Now(), stored.CreatedAt, time.Minute)

	assert.Equal(t, []string{"aws-u1"}, ctl.invalidated)
	assert.Equal(t, []models.AuditAction{models.AuditActionCredentialsStored}, rec.actions())
}

func TestRecordService_StoreRejectsInvalidInput(t *testing.T) {
	svc, repo, ctl, _ := newRecordService(t)
	ctx := context.Background()

	_, err := svc.Store(ctx, "u1", models.ProviderGCP, StoreInput{ProjectID: "p", ServiceAccountKey: "{"})
	assert.True(t, services.IsValidationError(err))

	recs, err := repo.ListByPrincipal(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, ctl.invalidated)
}

func TestRecordService_Status(t *testing.T) {
	svc, _, _, _ := newRecordService(t)
	ctx := context.Background()

	_, err := svc.Store(ctx, "u1", models.ProviderAzure, StoreInput{UseManagedIdentity: true, SubscriptionID: "sub-1"})
	require.NoError(t, err)

	statuses, err := svc.Status(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	assert.Equal(t, models.ProviderAWS, statuses[0].Provider)
	assert.False(t, statuses[0].Configured)
	assert.Equal(t, models.StrategyUserSupplied, statuses[0].Strategy)

	assert.Equal(t, models.ProviderAzure, statuses[1].Provider)
	assert.True(t, statuses[1].Configured)
	assert.Equal(t, "sub-1", statuses[1].SubscriptionID)
	assert.Equal(t, models.AzureMethodManagedIdentity, statuses[1].Method)

	assert.False(t, statuses[2].Configured)
}

func TestRecordService_Delete(t *testing.T) {
	svc, _, ctl, rec := newRecordService(t)
	ctx := context.Background()

	err := svc.Delete(ctx, "u1", models.ProviderGCP)
	assert.True(t, services.IsNotFoundError(err))

	_, err = svc.Store(ctx, "u1", models.ProviderGCP, StoreInput{ProjectID: "p", ServiceAccountKey: `{}`})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "u1", models.ProviderGCP))

	assert.Equal(t, []string{"gcp-u1", "gcp-u1"}, ctl.invalidated)
	assert.Contains(t, rec.actions(), models.AuditActionCredentialsDeleted)

	err = svc.Delete(ctx, "u1", models.Provider("oracle"))
	assert.True(t, services.IsValidationError(err))
}
