package credentials

import (
	"context"
	"time"

	"github.com/upb/multicloud-dashboard/models"
)

// Strategy resolves credentials for one provider family. Resolve returns
// (nil, nil) when the strategy has nothing configured for the principal; the
// resolver reports that as a not_configured credential error.
type Strategy interface {
	Kind() models.CredentialStrategy
	Resolve(ctx context.Context, provider models.Provider, principal *models.Principal) (*models.Credentials, error)
}

// IdentityProbe asks the local cloud identity service for ambient credentials
type IdentityProbe interface {
	Probe(ctx context.Context) (*models.Credentials, error)
}

// ProbeFunc adapts a function to IdentityProbe
type ProbeFunc func(ctx context.Context) (*models.Credentials, error)

// Probe implements IdentityProbe
func (f ProbeFunc) Probe(ctx context.Context) (*models.Credentials, error) {
	return f(ctx)
}

// DefaultProbeTimeout bounds a single identity service probe
const DefaultProbeTimeout = time.Second

// DefaultSessionDuration is the lifetime requested for assumed role sessions
const DefaultSessionDuration = time.Hour

func principalID(p *models.Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}
