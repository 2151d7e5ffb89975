package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
)

type credentialKey struct {
	principalID string
	provider    models.Provider
}

// CredentialRepository is a non-durable in-memory credential record store
type CredentialRepository struct {
	mu      sync.RWMutex
	records map[credentialKey]models.CredentialRecord
}

// NewCredentialRepository creates an empty credential store
func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{records: make(map[credentialKey]models.CredentialRecord)}
}

var _ repositories.CredentialRepository = (*CredentialRepository)(nil)

// Put stores or replaces a record
func (r *CredentialRepository) Put(ctx context.Context, rec *models.CredentialRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := credentialKey{rec.PrincipalID, rec.Provider}
	prev, existed := r.records[key]
	r.records[key] = *rec
	onRollback(ctx, func() {
		if existed {
			r.restore(map[credentialKey]models.CredentialRecord{key: prev})
			return
		}
		r.mu.Lock()
		delete(r.records, key)
		r.mu.Unlock()
	})
	return nil
}

// Get retrieves the record for a principal and provider
func (r *CredentialRepository) Get(_ context.Context, principalID string, provider models.Provider) (*models.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[credentialKey{principalID, provider}]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &rec, nil
}

// ListByPrincipal returns all records owned by a principal in provider order
func (r *CredentialRepository) ListByPrincipal(_ context.Context, principalID string) ([]*models.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.CredentialRecord
	for key, rec := range r.records {
		if key.principalID == principalID {
			rec := rec
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

// Delete removes one record
func (r *CredentialRepository) Delete(ctx context.Context, principalID string, provider models.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := credentialKey{principalID, provider}
	prev, ok := r.records[key]
	if !ok {
		return repositories.ErrNotFound
	}
	delete(r.records, key)
	onRollback(ctx, func() { r.restore(map[credentialKey]models.CredentialRecord{key: prev}) })
	return nil
}

// DeleteByPrincipal removes all records owned by a principal
func (r *CredentialRepository) DeleteByPrincipal(ctx context.Context, principalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make(map[credentialKey]models.CredentialRecord)
	for key, rec := range r.records {
		if key.principalID == principalID {
			removed[key] = rec
			delete(r.records, key)
		}
	}
	if len(removed) > 0 {
		onRollback(ctx, func() { r.restore(removed) })
	}
	return nil
}

func (r *CredentialRepository) restore(recs map[credentialKey]models.CredentialRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, rec := range recs {
		r.records[key] = rec
	}
}
