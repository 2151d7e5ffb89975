package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/upb/multicloud-dashboard/models"
	"github.com/upb/multicloud-dashboard/repositories"
)

// PrincipalRepository is a non-durable in-memory principal store
type PrincipalRepository struct {
	mu   sync.RWMutex
	byID map[string]*models.Principal
}

// NewPrincipalRepository creates an empty principal store
func NewPrincipalRepository() *PrincipalRepository {
	return &PrincipalRepository{byID: make(map[string]*models.Principal)}
}

var _ repositories.PrincipalRepository = (*PrincipalRepository)(nil)

// Create inserts a principal
func (r *PrincipalRepository) Create(ctx context.Context, p *models.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[p.ID]; ok {
		return repositories.ErrDuplicate
	}
	if r.conflictLocked(p) {
		return repositories.ErrDuplicate
	}
	r.byID[p.ID] = p.Clone()
	onRollback(ctx, func() { r.restore(p.ID, nil) })
	return nil
}

// GetByID retrieves a principal by ID
func (r *PrincipalRepository) GetByID(_ context.Context, id string) (*models.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return p.Clone(), nil
}

// GetByUsername retrieves a principal by username (case-insensitive)
func (r *PrincipalRepository) GetByUsername(_ context.Context, username string) (*models.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.byID {
		if strings.EqualFold(p.Username, username) {
			return p.Clone(), nil
		}
	}
	return nil, repositories.ErrNotFound
}

// GetByEmail retrieves a principal by email
func (r *PrincipalRepository) GetByEmail(_ context.Context, email string) (*models.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.byID {
		if strings.EqualFold(p.Email, email) {
			return p.Clone(), nil
		}
	}
	return nil, repositories.ErrNotFound
}

// List returns every principal ordered by creation time
func (r *PrincipalRepository) List(_ context.Context) ([]*models.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Principal, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Username < out[j].Username
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update replaces a stored principal
func (r *PrincipalRepository) Update(ctx context.Context, p *models.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.byID[p.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	if r.conflictLocked(p) {
		return repositories.ErrDuplicate
	}
	r.byID[p.ID] = p.Clone()
	onRollback(ctx, func() { r.restore(p.ID, prev) })
	return nil
}

// Delete removes a principal
func (r *PrincipalRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	delete(r.byID, id)
	onRollback(ctx, func() { r.restore(id, prev) })
	return nil
}

// restore puts back the stored value of id; nil removes it
func (r *PrincipalRepository) restore(id string, prev *models.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev == nil {
		delete(r.byID, id)
		return
	}
	r.byID[id] = prev
}

// CountActiveByRole counts active principals holding role
func (r *PrincipalRepository) CountActiveByRole(_ context.Context, role models.Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, p := range r.byID {
		if p.Active && p.Role == role {
			n++
		}
	}
	return n, nil
}

// conflictLocked reports whether another principal already uses p's username or email
func (r *PrincipalRepository) conflictLocked(p *models.Principal) bool {
	for id, existing := range r.byID {
		if id == p.ID {
			continue
		}
		if strings.EqualFold(existing.Username, p.Username) || strings.EqualFold(existing.Email, p.Email) {
			return true
		}
	}
	return false
}
