package providers

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClientNotRegistered is returned when no client is bound to a provider identifier
	ErrClientNotRegistered = errors.New("provider not registered")

	// ErrClientAlreadyRegistered is returned when trying to register a duplicate identifier
	ErrClientAlreadyRegistered = errors.New("provider already registered")
)

// Registry maps provider identifiers to ChatClient implementations.
// An identifier may be bound to a client whose Provider() differs,
// which is how anthropic-model traffic is served through OpenRouter
// when no native endpoint is configured.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]ChatClient
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]ChatClient),
	}
}

// Register binds a client to a provider identifier
func (r *Registry) Register(identifier string, client ChatClient) error {
	if identifier == "" {
		return errors.New("provider identifier cannot be empty")
	}
	if client == nil {
		return errors.New("client cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[identifier]; exists {
		return fmt.Errorf("%w: %s", ErrClientAlreadyRegistered, identifier)
	}

	r.clients[identifier] = client
	return nil
}

// ClientFor retrieves the client bound to a provider identifier
func (r *Registry) ClientFor(identifier string) (ChatClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[identifier]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrClientNotRegistered, identifier)
	}

	return client, nil
}

// Providers returns all registered provider identifiers
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}

	return names
}

// Count returns the number of registered identifiers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}
