package providers

import (
	"errors"
	"sort"
	"sync"

	"github.com/upb/multicloud-dashboard/models"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry maps providers to their inventory clients
type Registry struct {
	mu      sync.RWMutex
	clients map[models.Provider]Client
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[models.Provider]Client),
	}
}

// RegisterClient registers a client instance
func (r *Registry) RegisterClient(client Client) error {
	if client == nil {
		return errors.New("client cannot be nil")
	}

	p := client.Provider()
	if !p.IsValid() {
		return errors.New("client serves an unknown provider")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[p]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.clients[p] = client
	return nil
}

// UnregisterClient removes a client from the registry
func (r *Registry) UnregisterClient(p models.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[p]; !exists {
		return ErrProviderNotFound
	}
	delete(r.clients, p)
	return nil
}

// GetClient retrieves the client of a provider
func (r *Registry) GetClient(p models.Provider) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[p]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return client, nil
}

// ListProviders returns the registered providers in canonical order
func (r *Registry) ListProviders() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Provider, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	order := make(map[models.Provider]int, len(models.AllProviders))
	for i, p := range models.AllProviders {
		order[p] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}

// GetProviderCount returns the number of registered providers
func (r *Registry) GetProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}
