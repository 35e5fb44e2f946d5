package services

import (
	"fmt"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
	apperrors "confsync/pkg/errors"
)

// ProviderRegistry maps a synchronized object kind to the provider computing
// its value. All providers are registered during startup wiring; the registry
// is never mutated afterwards and is shared read-only across all conferences.
type ProviderRegistry struct {
	providers map[string]ports.SynchronizedObjectProvider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]ports.SynchronizedObjectProvider)}
}

// Register adds providers, one per kind. A duplicate kind is a configuration
// error and must abort startup.
func (r *ProviderRegistry) Register(providers ...ports.SynchronizedObjectProvider) error {
	for _, provider := range providers {
		if _, exists := r.providers[provider.Kind()]; exists {
			return apperrors.NewConfigurationError(
				fmt.Sprintf("duplicate synchronized object provider for kind %q", provider.Kind()))
		}
		r.providers[provider.Kind()] = provider
	}
	return nil
}

// Resolve returns the provider for the id's kind. A miss is a configuration
// error: every kind in use must have been registered at startup.
func (r *ProviderRegistry) Resolve(id domain.SynchronizedObjectID) (ports.SynchronizedObjectProvider, error) {
	provider, exists := r.providers[id.Kind]
	if !exists {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("no synchronized object provider registered for kind %q", id.Kind))
	}
	return provider, nil
}
