package providers

import (
	"context"

	"github.com/upb/multicloud-dashboard/models"
)

// Client fetches one provider's live inventory. Implementations resolve
// credentials through a CredentialSource before querying the provider API.
type Client interface {
	// Provider returns the provider this client serves
	Provider() models.Provider

	// FetchInventory returns the live inventory visible to principal.
	// principal is nil for anonymous requests.
	FetchInventory(ctx context.Context, principal *models.Principal) (*models.ProviderInventory, error)
}

// CredentialSource resolves provider credentials for a principal
type CredentialSource interface {
	GetCredentials(ctx context.Context, provider models.Provider, principal *models.Principal) (*models.Credentials, error)
}

// Rates are the flat monthly cost estimates per resource kind
type Rates struct {
	Instance float64
	Storage  float64
	Database float64
}

// Flat monthly rates used to estimate provider cost
var (
	AWSRates   = Rates{Instance: 150, Storage: 50, Database: 200}
	AzureRates = Rates{Instance: 120, Storage: 40, Database: 180}
	GCPRates   = Rates{Instance: 130, Storage: 45, Database: 190}
)

// Health classifies a resource for the provider status counters
type Health int

const (
	Healthy Health = iota
	Warning
	Critical
)

// ProviderError is a failed inventory fetch for one provider
type ProviderError struct {
	Provider  models.Provider
	Operation string
	Cause     error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	return string(e.Provider) + " " + e.Operation + ": " + e.Cause.Error()
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider models.Provider, operation string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Operation: operation, Cause: cause}
}
