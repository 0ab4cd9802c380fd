package calendarsync

import (
	"fmt"

	"github.com/goliatone/go-calendar-sync/core"
	"github.com/goliatone/go-calendar-sync/identity"
	"github.com/goliatone/go-calendar-sync/providers/google"
	"github.com/goliatone/go-calendar-sync/providers/microsoft"
)

// BuildProviders constructs one calendar provider per enabled credential
// block in the configuration.
func BuildProviders(cfg core.Config) ([]core.CalendarProvider, error) {
	var built []core.CalendarProvider

	if cfg.OAuth.Google.Enabled() {
		provider, err := google.New(google.Config{
			ClientID:     cfg.OAuth.Google.ClientID,
			ClientSecret: cfg.OAuth.Google.ClientSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("calendarsync: build google provider: %w", err)
		}
		built = append(built, provider)
	}

	if cfg.OAuth.Microsoft.Enabled() {
		provider, err := microsoft.New(microsoft.Config{
			ClientID:     cfg.OAuth.Microsoft.ClientID,
			ClientSecret: cfg.OAuth.Microsoft.ClientSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("calendarsync: build microsoft provider: %w", err)
		}
		built = append(built, provider)
	}

	if len(built) == 0 {
		return nil, fmt.Errorf("calendarsync: no oauth provider is configured")
	}
	return built, nil
}

// BuildRegistry assembles a provider registry from the configuration.
func BuildRegistry(cfg core.Config) (core.Registry, error) {
	providers, err := BuildProviders(cfg)
	if err != nil {
		return nil, err
	}
	registry := core.NewProviderRegistry()
	for _, provider := range providers {
		if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("calendarsync: register provider %q: %w", provider.ID(), err)
		}
	}
	return registry, nil
}

// BuildIdentityResolver returns the default userinfo-backed account resolver.
func BuildIdentityResolver() core.IdentityResolver {
	return identity.NewResolver(identity.Config{})
}
