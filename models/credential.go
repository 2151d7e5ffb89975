package models

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies one cloud backend
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
)

// AllProviders lists the known providers in canonical order
var AllProviders = []Provider{ProviderAWS, ProviderAzure, ProviderGCP}

// ParseProvider parses a provider name (case-insensitive)
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

// IsValid reports whether p is a known provider
func (p Provider) IsValid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}

// DisplayName returns the upper-cased label used in dashboard output
func (p Provider) DisplayName() string {
	switch p {
	case ProviderAWS:
		return "AWS"
	case ProviderAzure:
		return "Azure"
	case ProviderGCP:
		return "GCP"
	}
	return strings.ToUpper(string(p))
}

// CredentialStrategy is the method used to obtain provider credentials
type CredentialStrategy string

const (
	StrategyInstanceIdentity CredentialStrategy = "instance-identity"
	StrategyDelegatedRole    CredentialStrategy = "delegated-role"
	StrategyUserSupplied     CredentialStrategy = "user-supplied"
	StrategyEnvironment      CredentialStrategy = "environment"
)

// ParseCredentialStrategy maps configuration strings, including the legacy
// per-vendor aliases, onto a strategy variant.
func ParseCredentialStrategy(s string) (CredentialStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "environment", "env":
		return StrategyEnvironment, nil
	case "instance-identity", "iam-role", "managed-identity", "service-account":
		return StrategyInstanceIdentity, nil
	case "delegated-role", "assume-role":
		return StrategyDelegatedRole, nil
	case "user-supplied", "user-provided":
		return StrategyUserSupplied, nil
	}
	return "", fmt.Errorf("unknown credential strategy %q", s)
}

// AWS credential record methods
const (
	AWSMethodAccessKey  = "access-key"
	AWSMethodAssumeRole = "assume-role"
)

// Azure credential record methods
const (
	AzureMethodServicePrincipal = "service-principal"
	AzureMethodManagedIdentity  = "managed-identity"
)

// CredentialRecord is a user-supplied secret bundle for one (principal, provider).
// Records are replaced wholesale; secret fields hold sealed ciphertext.
type CredentialRecord struct {
	PrincipalID string    `json:"principalId" db:"principal_id"`
	Provider    Provider  `json:"provider" db:"provider"`
	Method      string    `json:"method" db:"method"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`

	// AWS
	AccessKeyID     string `json:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty"`
	RoleARN         string `json:"roleArn,omitempty"`
	Region          string `json:"region,omitempty"`

	// Azure
	TenantID       string `json:"tenantId,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
	ClientSecret   string `json:"clientSecret,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	StorageAccount string `json:"storageAccount,omitempty"`

	// GCP
	ProjectID         string `json:"projectId,omitempty"`
	ServiceAccountKey string `json:"serviceAccountKey,omitempty"`
}

// AWSCredentials is a resolved AWS key pair, optionally session-scoped
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	Expires         time.Time
}

// AzureCredentials is a resolved Azure identity
type AzureCredentials struct {
	TenantID           string
	ClientID           string
	ClientSecret       string
	SubscriptionID     string
	StorageAccount     string
	UseManagedIdentity bool
}

// GCPCredentials is a resolved GCP identity. When neither key source is set the
// client falls back to application default credentials.
type GCPCredentials struct {
	ProjectID          string
	KeyFile            string
	ServiceAccountJSON []byte
	UseMetadata        bool
}

// Credentials are provider-specific access credentials. Exactly one of the
// provider bundles is set and matches Provider.
type Credentials struct {
	Provider Provider
	Strategy CredentialStrategy
	AWS      *AWSCredentials
	Azure    *AzureCredentials
	GCP      *GCPCredentials
}
