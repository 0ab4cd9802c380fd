package core

import (
	"fmt"
	"sort"
	"sync"
)

type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[Provider]CalendarProvider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[Provider]CalendarProvider)}
}

func (r *ProviderRegistry) Register(provider CalendarProvider) error {
	if provider == nil {
		return fmt.Errorf("core: provider is nil")
	}
	id, err := ParseProvider(string(provider.ID()))
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	r.providers[id] = provider
	return nil
}

func (r *ProviderRegistry) Get(provider Provider) (CalendarProvider, bool) {
	id, err := ParseProvider(string(provider))
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	found, ok := r.providers[id]
	r.mu.RUnlock()
	return found, ok
}

func (r *ProviderRegistry) List() []CalendarProvider {
	r.mu.RLock()
	keys := make([]string, 0, len(r.providers))
	for id := range r.providers {
		keys = append(keys, string(id))
	}
	r.mu.RUnlock()
	sort.Strings(keys)

	providers := make([]CalendarProvider, 0, len(keys))
	r.mu.RLock()
	for _, id := range keys {
		providers = append(providers, r.providers[Provider(id)])
	}
	r.mu.RUnlock()
	return providers
}
