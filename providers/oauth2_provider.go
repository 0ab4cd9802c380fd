package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CalendarAPI is the provider-specific REST surface. The generic OAuth2
// provider owns the token lifecycle; list/create/update calls delegate here.
type CalendarAPI interface {
	ListCalendars(ctx context.Context, client HTTPDoer, accessToken string) ([]core.CalendarDescriptor, error)
	ListEvents(ctx context.Context, client HTTPDoer, accessToken string, calendarID string, updatedSince *time.Time) ([]core.CalendarEvent, error)
	CreateEvent(ctx context.Context, client HTTPDoer, accessToken string, calendarID string, event core.CalendarEvent) (core.CalendarEvent, error)
	UpdateEvent(ctx context.Context, client HTTPDoer, accessToken string, calendarID string, event core.CalendarEvent) (core.CalendarEvent, error)
}

type OAuth2Config struct {
	Provider            core.Provider
	AuthURL             string
	TokenURL            string
	ClientID            string
	ClientSecret        string
	ClientSecretInBody  bool
	DefaultScopes       []string
	ExtraAuthParams     map[string]string
	TokenTTL            time.Duration
	TokenRequestTimeout time.Duration
	Now                 func() time.Time
	HTTPClient          HTTPDoer
	CalendarAPI         CalendarAPI
}

type OAuth2Provider struct {
	cfg        OAuth2Config
	httpClient HTTPDoer
	api        CalendarAPI
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	id, err := core.ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, err
	}
	cfg.Provider = id
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return nil, fmt.Errorf("providers: auth url is required for provider %q", id)
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("providers: token url is required for provider %q", id)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("providers: client id is required for provider %q", id)
	}
	if cfg.CalendarAPI == nil {
		return nil, fmt.Errorf("providers: calendar api is required for provider %q", id)
	}

	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.DefaultScopes = normalizeScopes(cfg.DefaultScopes)
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time {
			return time.Now().UTC()
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}

	return &OAuth2Provider{
		cfg:        cfg,
		httpClient: httpClient,
		api:        cfg.CalendarAPI,
	}, nil
}

func (p *OAuth2Provider) ID() core.Provider {
	if p == nil {
		return ""
	}
	return p.cfg.Provider
}

func (p *OAuth2Provider) BeginAuth(_ context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if p == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: oauth state is required")
	}
	scopes := normalizeScopes(req.Scopes)
	if len(scopes) == 0 {
		scopes = append([]string(nil), p.cfg.DefaultScopes...)
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", p.cfg.ClientID)
	if redirectURI := strings.TrimSpace(req.RedirectURI); redirectURI != "" {
		values.Set("redirect_uri", redirectURI)
	}
	values.Set("scope", strings.Join(scopes, " "))
	values.Set("state", state)
	for key, value := range p.cfg.ExtraAuthParams {
		if strings.TrimSpace(key) == "" {
			continue
		}
		values.Set(key, value)
	}

	authURL := p.cfg.AuthURL
	if strings.Contains(authURL, "?") {
		authURL += "&" + values.Encode()
	} else {
		authURL += "?" + values.Encode()
	}

	return core.BeginAuthResponse{
		URL:    authURL,
		State:  state,
		Scopes: scopes,
	}, nil
}

func (p *OAuth2Provider) CompleteAuth(ctx context.Context, req core.CompleteAuthRequest) (core.CompleteAuthResponse, error) {
	if p == nil {
		return core.CompleteAuthResponse{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.CompleteAuthResponse{}, fmt.Errorf("providers: auth code is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI := strings.TrimSpace(req.RedirectURI); redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}

	token, err := p.fetchToken(ctx, form)
	if err != nil {
		return core.CompleteAuthResponse{}, err
	}

	return core.CompleteAuthResponse{
		Grant: p.grantFromPayload(token),
	}, nil
}

func (p *OAuth2Provider) Refresh(ctx context.Context, refreshToken string) (core.TokenGrant, error) {
	if p == nil {
		return core.TokenGrant{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenGrant{}, fmt.Errorf("providers: refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	if len(p.cfg.DefaultScopes) > 0 {
		form.Set("scope", strings.Join(p.cfg.DefaultScopes, " "))
	}

	token, err := p.fetchToken(ctx, form)
	if err != nil {
		return core.TokenGrant{}, err
	}
	return p.grantFromPayload(token), nil
}

func (p *OAuth2Provider) ListCalendars(ctx context.Context, accessToken string) ([]core.CalendarDescriptor, error) {
	if p == nil || p.api == nil {
		return nil, fmt.Errorf("providers: calendar api is not configured")
	}
	return p.api.ListCalendars(ctx, p.httpClient, accessToken)
}

func (p *OAuth2Provider) ListEvents(ctx context.Context, accessToken string, calendarID string, updatedSince *time.Time) ([]core.CalendarEvent, error) {
	if p == nil || p.api == nil {
		return nil, fmt.Errorf("providers: calendar api is not configured")
	}
	return p.api.ListEvents(ctx, p.httpClient, accessToken, calendarID, updatedSince)
}

func (p *OAuth2Provider) CreateEvent(ctx context.Context, accessToken string, calendarID string, event core.CalendarEvent) (core.CalendarEvent, error) {
	if p == nil || p.api == nil {
		return core.CalendarEvent{}, fmt.Errorf("providers: calendar api is not configured")
	}
	return p.api.CreateEvent(ctx, p.httpClient, accessToken, calendarID, event)
}

func (p *OAuth2Provider) UpdateEvent(ctx context.Context, accessToken string, calendarID string, event core.CalendarEvent) (core.CalendarEvent, error) {
	if p == nil || p.api == nil {
		return core.CalendarEvent{}, fmt.Errorf("providers: calendar api is not configured")
	}
	return p.api.UpdateEvent(ctx, p.httpClient, accessToken, calendarID, event)
}

func (p *OAuth2Provider) grantFromPayload(token tokenEndpointPayload) core.TokenGrant {
	now := p.cfg.Now().UTC()
	return core.TokenGrant{
		TokenType:    normalizeTokenType(token.TokenType),
		AccessToken:  strings.TrimSpace(token.AccessToken),
		RefreshToken: strings.TrimSpace(token.RefreshToken),
		Scope:        strings.TrimSpace(token.Scope),
		ExpiresAt:    p.resolveExpiresAt(now, token.ExpiresIn),
	}
}

func (p *OAuth2Provider) fetchToken(ctx context.Context, form url.Values) (tokenEndpointPayload, error) {
	if p.httpClient == nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: oauth2 http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecretInBody && p.cfg.ClientSecret != "" {
		values.Set("client_secret", p.cfg.ClientSecret)
	}

	requestCtx := ctx
	cancel := func() {}
	if p.cfg.TokenRequestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, p.cfg.TokenRequestTimeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		p.cfg.TokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if !p.cfg.ClientSecretInBody && p.cfg.ClientSecret != "" {
		httpReq.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	}

	response, err := p.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: read token response: %w", readErr)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token response exceeds %d bytes", maxTokenResponseBodyBytes)
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if parseErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: decode token response: %w", parseErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, &core.TokenExchangeError{
			Provider: p.cfg.Provider,
			Status:   response.StatusCode,
			Detail:   describeTokenError(payload),
		}
	}
	if payload.ErrorCode != "" {
		return tokenEndpointPayload{}, &core.TokenExchangeError{
			Provider: p.cfg.Provider,
			Status:   response.StatusCode,
			Detail:   describeTokenError(payload),
		}
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, &core.TokenExchangeError{
			Provider: p.cfg.Provider,
			Status:   response.StatusCode,
			Detail:   "token endpoint response missing access token",
		}
	}
	return payload, nil
}

func describeTokenError(payload tokenEndpointPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

func (p *OAuth2Provider) resolveExpiresAt(now time.Time, expiresIn int64) *time.Time {
	ttl := p.cfg.TokenTTL
	if expiresIn > 0 {
		ttl = time.Duration(expiresIn) * time.Second
	}
	if ttl <= 0 {
		return nil
	}
	expiresAt := now.Add(ttl)
	return &expiresAt
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func normalizeScopes(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	values := make([]string, 0, len(input))
	seen := map[string]struct{}{}
	for _, value := range input {
		normalized := strings.TrimSpace(value)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		values = append(values, normalized)
	}
	sort.Strings(values)
	return values
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

var _ core.CalendarProvider = (*OAuth2Provider)(nil)
