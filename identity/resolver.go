package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
)

const (
	defaultRequestTimeout   = 10 * time.Second
	maxProfileResponseBytes = 1 << 20 // 1 MiB

	GoogleUserInfoURL    = "https://openidconnect.googleapis.com/v1/userinfo"
	MicrosoftUserInfoURL = "https://graph.microsoft.com/v1.0/me"
)

var ErrProfileNotFound = errors.New("identity: profile not found")

type ProfileNotFoundError struct {
	Cause error
}

func (e *ProfileNotFoundError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrProfileNotFound.Error()
	}
	return ErrProfileNotFound.Error() + ": " + e.Cause.Error()
}

func (e *ProfileNotFoundError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return ErrProfileNotFound
	}
	return errors.Join(ErrProfileNotFound, e.Cause)
}

func profileNotFound(cause error) error {
	return &ProfileNotFoundError{Cause: cause}
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ProfileNormalizer maps a raw userinfo payload to the provider account.
type ProfileNormalizer func(payload map[string]any) core.ProviderAccount

type ProviderUserInfoConfig struct {
	URL        string
	Normalizer ProfileNormalizer
}

type Config struct {
	HTTPClient       HTTPDoer
	RequestTimeout   time.Duration
	ProviderUserInfo map[core.Provider]ProviderUserInfoConfig
}

// Resolver fetches the authorizing account's identity from the provider's
// userinfo endpoint using the freshly exchanged access token.
type Resolver struct {
	httpClient       HTTPDoer
	requestTimeout   time.Duration
	providerUserInfo map[core.Provider]ProviderUserInfoConfig
}

func NewResolver(cfg Config) *Resolver {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	providerUserInfo := defaultProviderUserInfoConfigs()
	for key, value := range cfg.ProviderUserInfo {
		id, err := core.ParseProvider(string(key))
		if err != nil {
			continue
		}
		merged := providerUserInfo[id]
		if strings.TrimSpace(value.URL) != "" {
			merged.URL = strings.TrimSpace(value.URL)
		}
		if value.Normalizer != nil {
			merged.Normalizer = value.Normalizer
		}
		providerUserInfo[id] = merged
	}

	return &Resolver{
		httpClient:       httpClient,
		requestTimeout:   requestTimeout,
		providerUserInfo: providerUserInfo,
	}
}

func DefaultResolver() *Resolver {
	return NewResolver(Config{})
}

func (r *Resolver) Resolve(ctx context.Context, provider core.Provider, accessToken string) (core.ProviderAccount, error) {
	if r == nil {
		return core.ProviderAccount{}, profileNotFound(nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id, err := core.ParseProvider(string(provider))
	if err != nil {
		return core.ProviderAccount{}, profileNotFound(err)
	}

	endpoint, ok := r.providerUserInfo[id]
	if !ok || strings.TrimSpace(endpoint.URL) == "" {
		return core.ProviderAccount{}, profileNotFound(fmt.Errorf("identity: no userinfo endpoint for provider %q", id))
	}

	payload, fetchErr := r.fetchUserInfo(ctx, endpoint.URL, strings.TrimSpace(accessToken))
	if fetchErr != nil {
		return core.ProviderAccount{}, profileNotFound(fetchErr)
	}

	normalizer := endpoint.Normalizer
	if normalizer == nil {
		normalizer = normalizeOIDCProfile
	}
	account := normalizer(payload)
	if strings.TrimSpace(account.ID) == "" {
		return core.ProviderAccount{}, profileNotFound(nil)
	}
	return account, nil
}

func defaultProviderUserInfoConfigs() map[core.Provider]ProviderUserInfoConfig {
	return map[core.Provider]ProviderUserInfoConfig{
		core.ProviderGoogle: {
			URL:        GoogleUserInfoURL,
			Normalizer: normalizeOIDCProfile,
		},
		core.ProviderMicrosoft: {
			URL:        MicrosoftUserInfoURL,
			Normalizer: normalizeGraphProfile,
		},
	}
}

func (r *Resolver) fetchUserInfo(ctx context.Context, endpoint string, accessToken string) (map[string]any, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("identity: access token is required")
	}

	requestCtx := ctx
	cancel := func() {}
	if r.requestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, r.requestTimeout)
	}
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	response, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: userinfo request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxProfileResponseBytes))
	if readErr != nil {
		return nil, fmt.Errorf("identity: read userinfo response: %w", readErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("identity: userinfo endpoint error (%d)", response.StatusCode)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("identity: decode userinfo response: %w", err)
	}
	return payload, nil
}

// normalizeOIDCProfile handles OpenID Connect userinfo shapes (google).
func normalizeOIDCProfile(payload map[string]any) core.ProviderAccount {
	return core.ProviderAccount{
		ID:          readString(payload["sub"]),
		Email:       readString(payload["email"]),
		DisplayName: readString(payload["name"]),
	}
}

// normalizeGraphProfile handles the Microsoft Graph /me shape.
func normalizeGraphProfile(payload map[string]any) core.ProviderAccount {
	email := readString(payload["mail"])
	if email == "" {
		email = readString(payload["userPrincipalName"])
	}
	return core.ProviderAccount{
		ID:          readString(payload["id"]),
		Email:       email,
		DisplayName: readString(payload["displayName"]),
	}
}

func readString(value any) string {
	if value == nil {
		return ""
	}
	if typed, ok := value.(string); ok {
		return strings.TrimSpace(typed)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

var _ core.IdentityResolver = (*Resolver)(nil)
