package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type ProviderCredentialsConfig struct {
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret"`
}

func (c ProviderCredentialsConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

type OAuthConfig struct {
	// RedirectURI is the single canonical, provider-registered callback URI
	// for this environment. Every auth URL and token exchange uses exactly
	// this value; per-call overrides are rejected at validation time.
	RedirectURI string                    `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	StateSecret string                    `koanf:"state_secret" mapstructure:"state_secret"`
	StateTTL    time.Duration             `koanf:"state_ttl" mapstructure:"state_ttl"`
	Google      ProviderCredentialsConfig `koanf:"google" mapstructure:"google"`
	Microsoft   ProviderCredentialsConfig `koanf:"microsoft" mapstructure:"microsoft"`
}

type SyncConfig struct {
	DefaultDirection  string        `koanf:"default_direction" mapstructure:"default_direction"`
	RefreshLeadWindow time.Duration `koanf:"refresh_lead_window" mapstructure:"refresh_lead_window"`
	LockTTL           time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
}

type Config struct {
	ServiceName string      `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig `koanf:"oauth" mapstructure:"oauth"`
	Sync        SyncConfig  `koanf:"sync" mapstructure:"sync"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "calendar-sync",
		OAuth: OAuthConfig{
			StateTTL: defaultOAuthStateTTL,
		},
		Sync: SyncConfig{
			DefaultDirection:  string(SyncDirectionBidirectional),
			RefreshLeadWindow: DefaultRefreshLeadWindow,
			LockTTL:           defaultLockTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	redirect := strings.TrimSpace(c.OAuth.RedirectURI)
	if redirect == "" {
		return fmt.Errorf("core: oauth.redirect_uri is required")
	}
	parsed, err := url.Parse(redirect)
	if err != nil || !parsed.IsAbs() {
		return fmt.Errorf("core: oauth.redirect_uri must be an absolute URL: %q", redirect)
	}
	if !c.OAuth.Google.Enabled() && !c.OAuth.Microsoft.Enabled() {
		return fmt.Errorf("core: at least one oauth provider must be configured")
	}
	if c.OAuth.Google.Enabled() && strings.TrimSpace(c.OAuth.Google.ClientSecret) == "" {
		return fmt.Errorf("core: oauth.google.client_secret is required when google is enabled")
	}
	if c.OAuth.Microsoft.Enabled() && strings.TrimSpace(c.OAuth.Microsoft.ClientSecret) == "" {
		return fmt.Errorf("core: oauth.microsoft.client_secret is required when microsoft is enabled")
	}
	if strings.TrimSpace(c.Sync.DefaultDirection) != "" {
		if _, err := ParseSyncDirection(c.Sync.DefaultDirection); err != nil {
			return err
		}
	}
	return nil
}
