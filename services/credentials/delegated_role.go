package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v5"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"github.com/upb/multicloud-dashboard/services"
	"go.uber.org/zap"
)

const (
	sessionNamePrefix   = "dashboard-"
	maxSessionNameLen   = 64
	defaultAssumeTries  = 3
	defaultAssumeWindow = 10 * time.Second
)

// permanentSTSCodes are STS error codes that retrying cannot fix
var permanentSTSCodes = map[string]struct{}{
	"AccessDenied":            {},
	"ValidationError":         {},
	"MalformedPolicyDocument": {},
	"RegionDisabledException": {},
	"InvalidClientTokenId":    {},
	"ExpiredTokenException":   {},
}

// DelegatedRoleConfig configures AWS role assumption
type DelegatedRoleConfig struct {
	Region          string
	SessionDuration time.Duration
	Timeout         time.Duration
	MaxTries        uint
	// NewBackOff returns the retry schedule for one exchange. Defaults to exponential.
	NewBackOff func() backoff.BackOff
}

// DelegatedRoleStrategy assumes the principal's configured AWS role through STS
type DelegatedRoleStrategy struct {
	records repositories.CredentialRepository
	client  stscreds.AssumeRoleAPIClient
	cfg     DelegatedRoleConfig
	logger  *zap.Logger
}

// NewDelegatedRoleStrategy creates the strategy. client may be nil when STS is
// unreachable from this process; resolution then fails as upstream_unavailable.
func NewDelegatedRoleStrategy(records repositories.CredentialRepository, client stscreds.AssumeRoleAPIClient, cfg DelegatedRoleConfig, logger *zap.Logger) *DelegatedRoleStrategy {
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = DefaultSessionDuration
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAssumeWindow
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultAssumeTries
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	return &DelegatedRoleStrategy{
		records: records,
		client:  client,
		cfg:     cfg,
		logger:  logger,
	}
}

// Kind implements Strategy
func (s *DelegatedRoleStrategy) Kind() models.CredentialStrategy {
	return models.StrategyDelegatedRole
}

// Resolve implements Strategy
func (s *DelegatedRoleStrategy) Resolve(ctx context.Context, provider models.Provider, principal *models.Principal) (*models.Credentials, error) {
	if provider != models.ProviderAWS {
		return nil, services.NewCredentialError(services.CredentialMissingConfiguration,
			fmt.Sprintf("delegated role assumption is not supported for %s", provider.DisplayName()), nil)
	}
	if principal == nil {
		return nil, services.NewCredentialError(services.CredentialMissingConfiguration,
			"delegated role assumption requires a signed-in user with a configured role", nil)
	}

	rec, err := s.records.Get(ctx, principal.ID, models.ProviderAWS)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("load role configuration: %w", err)
	}
	if rec == nil || rec.RoleARN == "" {
		return nil, services.NewCredentialError(services.CredentialMissingConfiguration,
			"no AWS role configured for this user", nil)
	}

	region := rec.Region
	if region == "" {
		region = s.cfg.Region
	}
	return s.Assume(ctx, principal.ID, rec.RoleARN, region)
}

// Assume performs a time-boxed role assumption exchange, retrying transient failures
func (s *DelegatedRoleStrategy) Assume(ctx context.Context, principalID, roleARN, region string) (*models.Credentials, error) {
	if s.client == nil {
		return nil, services.NewCredentialError(services.CredentialUpstreamUnavailable,
			"AWS security token service is not configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	provider := stscreds.NewAssumeRoleProvider(s.client, roleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = SessionName(principalID)
		o.Duration = s.cfg.SessionDuration
	})

	attempt := 0
	v, err := backoff.Retry(ctx, func() (aws.Credentials, error) {
		attempt++
		v, err := provider.Retrieve(ctx)
		if err != nil && isPermanentSTSError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(s.cfg.NewBackOff()),
		backoff.WithMaxTries(s.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("role assumption failed, retrying",
				zap.String("role_arn", roleARN),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		return nil, services.NewCredentialError(services.CredentialUpstreamUnavailable,
			"failed to assume AWS role", err)
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
	return &models.Credentials{
		Provider: models.ProviderAWS,
		Strategy: models.StrategyDelegatedRole,
		AWS:      c,
	}, nil
}

// SessionName returns the STS session name recorded for a principal
func SessionName(principalID string) string {
	if principalID == "" {
		principalID = DefaultPrincipalKey
	}
	name := sessionNamePrefix + principalID
	if len(name) > maxSessionNameLen {
		name = name[:maxSessionNameLen]
	}
	return name
}

func isPermanentSTSError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		_, ok := permanentSTSCodes[apiErr.ErrorCode()]
		return ok
	}
	return false
}
