package credentials

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/upb/multicloud-dashboard/internal/crypto"
	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
	"go.uber.org/zap"
)

// StrategyConfig selects and configures one strategy per provider
type StrategyConfig struct {
	Strategies   map[models.Provider]models.CredentialStrategy
	Environment  EnvironmentConfig
	ProbeTimeout time.Duration
	Delegated    DelegatedRoleConfig
}

// BuildStrategies constructs the strategy of every configured provider
func BuildStrategies(
	ctx context.Context,
	cfg StrategyConfig,
	records repositories.CredentialRepository,
	sealer *crypto.Sealer,
	logger *zap.Logger,
) (map[models.Provider]Strategy, error) {
	env := NewEnvironmentStrategy(cfg.Environment)
	if cfg.Delegated.Region == "" {
		cfg.Delegated.Region = cfg.Environment.AWS.Region
	}

	var delegated *DelegatedRoleStrategy
	needsSTS := cfg.Strategies[models.ProviderAWS] == models.StrategyDelegatedRole ||
		cfg.Strategies[models.ProviderAWS] == models.StrategyUserSupplied
	if needsSTS {
		client, err := newSTSClient(ctx, cfg.Environment.AWS)
		if err != nil {
			return nil, err
		}
		delegated = NewDelegatedRoleStrategy(records, client, cfg.Delegated, logger)
	}

	out := make(map[models.Provider]Strategy, len(models.AllProviders))
	for _, p := range models.AllProviders {
		kind, ok := cfg.Strategies[p]
		if !ok {
			kind = models.StrategyEnvironment
		}

		switch kind {
		case models.StrategyEnvironment:
			out[p] = env
		case models.StrategyInstanceIdentity:
			probes := map[models.Provider]IdentityProbe{p: identityProbeFor(p, cfg.Environment)}
			out[p] = NewInstanceIdentityStrategy(probes, env, cfg.ProbeTimeout, logger)
		case models.StrategyDelegatedRole:
			if p != models.ProviderAWS {
				return nil, fmt.Errorf("%s: delegated role assumption is only supported for AWS", p)
			}
			out[p] = delegated
		case models.StrategyUserSupplied:
			out[p] = NewUserSuppliedStrategy(records, sealer, delegated, cfg.Environment.AWS.Region)
		default:
			return nil, fmt.Errorf("%s: unknown credential strategy %q", p, kind)
		}

		logger.Info("credential strategy configured",
			zap.String("provider", string(p)),
			zap.String("strategy", string(kind)))
	}
	return out, nil
}

func identityProbeFor(p models.Provider, env EnvironmentConfig) IdentityProbe {
	switch p {
	case models.ProviderAWS:
		return AWSInstanceProbe(env.AWS.Region)
	case models.ProviderAzure:
		return AzureManagedIdentityProbe(env.Azure.SubscriptionID, env.Azure.StorageAccount)
	default:
		return GCPMetadataProbe()
	}
}

// newSTSClient builds the client used for role assumption. Static keys from the
// environment take precedence over the default credential chain.
func newSTSClient(ctx context.Context, c models.AWSCredentials) (*sts.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return sts.NewFromConfig(cfg, func(o *sts.Options) {
		o.RetryMaxAttempts = 1
	}), nil
}
