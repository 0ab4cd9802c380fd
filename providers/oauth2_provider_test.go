package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
)

type nopCalendarAPI struct{}

func (nopCalendarAPI) ListCalendars(context.Context, HTTPDoer, string) ([]core.CalendarDescriptor, error) {
	return nil, nil
}

func (nopCalendarAPI) ListEvents(context.Context, HTTPDoer, string, string, *time.Time) ([]core.CalendarEvent, error) {
	return nil, nil
}

func (nopCalendarAPI) CreateEvent(_ context.Context, _ HTTPDoer, _ string, _ string, event core.CalendarEvent) (core.CalendarEvent, error) {
	return event, nil
}

func (nopCalendarAPI) UpdateEvent(_ context.Context, _ HTTPDoer, _ string, _ string, event core.CalendarEvent) (core.CalendarEvent, error) {
	return event, nil
}

func newTestProvider(t *testing.T, tokenURL string) *OAuth2Provider {
	t.Helper()
	provider, err := NewOAuth2Provider(OAuth2Config{
		Provider:           core.ProviderGoogle,
		AuthURL:            "https://auth.example.com/authorize",
		TokenURL:           tokenURL,
		ClientID:           "client-id",
		ClientSecret:       "client-secret",
		ClientSecretInBody: true,
		DefaultScopes:      []string{"calendar.readwrite", "email"},
		ExtraAuthParams:    map[string]string{"access_type": "offline"},
		CalendarAPI:        nopCalendarAPI{},
	})
	if err != nil {
		t.Fatalf("NewOAuth2Provider: %v", err)
	}
	return provider
}

func TestNewOAuth2ProviderValidation(t *testing.T) {
	if _, err := NewOAuth2Provider(OAuth2Config{
		Provider:    core.Provider("caldav"),
		AuthURL:     "https://a",
		TokenURL:    "https://t",
		ClientID:    "c",
		CalendarAPI: nopCalendarAPI{},
	}); !errors.Is(err, core.ErrInvalidProvider) {
		t.Fatalf("unknown provider err = %v", err)
	}
	if _, err := NewOAuth2Provider(OAuth2Config{
		Provider: core.ProviderGoogle,
		AuthURL:  "https://a",
		TokenURL: "https://t",
		ClientID: "c",
	}); err == nil {
		t.Fatal("expected missing calendar api to be rejected")
	}
}

func TestBeginAuthBuildsURL(t *testing.T) {
	provider := newTestProvider(t, "https://token.example.com/token")
	response, err := provider.BeginAuth(context.Background(), core.BeginAuthRequest{
		UserID:      "user-1",
		RedirectURI: "https://app.example.com/oauth/callback",
		State:       "the-state",
	})
	if err != nil {
		t.Fatalf("BeginAuth: %v", err)
	}
	parsed, err := url.Parse(response.URL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	query := parsed.Query()
	if query.Get("response_type") != "code" {
		t.Fatalf("response_type = %s", query.Get("response_type"))
	}
	if query.Get("client_id") != "client-id" {
		t.Fatalf("client_id = %s", query.Get("client_id"))
	}
	if query.Get("redirect_uri") != "https://app.example.com/oauth/callback" {
		t.Fatalf("redirect_uri = %s", query.Get("redirect_uri"))
	}
	if query.Get("state") != "the-state" {
		t.Fatalf("state = %s", query.Get("state"))
	}
	if query.Get("access_type") != "offline" {
		t.Fatalf("access_type = %s", query.Get("access_type"))
	}
	if !strings.Contains(query.Get("scope"), "calendar.readwrite") {
		t.Fatalf("scope = %s", query.Get("scope"))
	}
}

func TestBeginAuthRequiresState(t *testing.T) {
	provider := newTestProvider(t, "https://token.example.com/token")
	if _, err := provider.BeginAuth(context.Background(), core.BeginAuthRequest{UserID: "u"}); err == nil {
		t.Fatal("expected missing state to be rejected")
	}
}

func TestCompleteAuthExchangesCode(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "at-1",
			"token_type": "Bearer",
			"refresh_token": "rt-1",
			"scope": "calendar.readwrite",
			"expires_in": 3600
		}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	response, err := provider.CompleteAuth(context.Background(), core.CompleteAuthRequest{
		UserID:      "user-1",
		Code:        "auth-code",
		RedirectURI: "https://app.example.com/oauth/callback",
	})
	if err != nil {
		t.Fatalf("CompleteAuth: %v", err)
	}
	grant := response.Grant
	if grant.AccessToken != "at-1" || grant.RefreshToken != "rt-1" {
		t.Fatalf("unexpected grant: %+v", grant)
	}
	if grant.TokenType != "bearer" {
		t.Fatalf("token type = %s", grant.TokenType)
	}
	if grant.ExpiresAt == nil {
		t.Fatal("expected expires_at from expires_in")
	}
	until := time.Until(*grant.ExpiresAt)
	if until < 55*time.Minute || until > 65*time.Minute {
		t.Fatalf("expires_at %v not ~1h out", until)
	}

	if gotForm.Get("grant_type") != "authorization_code" {
		t.Fatalf("grant_type = %s", gotForm.Get("grant_type"))
	}
	if gotForm.Get("code") != "auth-code" {
		t.Fatalf("code = %s", gotForm.Get("code"))
	}
	if gotForm.Get("redirect_uri") != "https://app.example.com/oauth/callback" {
		t.Fatalf("redirect_uri = %s", gotForm.Get("redirect_uri"))
	}
	if gotForm.Get("client_secret") != "client-secret" {
		t.Fatal("expected client secret in body")
	}
}

func TestCompleteAuthRejectionBecomesTokenExchangeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code already redeemed"}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	_, err := provider.CompleteAuth(context.Background(), core.CompleteAuthRequest{Code: "stale"})
	var exchangeErr *core.TokenExchangeError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("err = %v, want TokenExchangeError", err)
	}
	if exchangeErr.Status != http.StatusBadRequest {
		t.Fatalf("status = %d", exchangeErr.Status)
	}
	if !strings.Contains(exchangeErr.Detail, "code already redeemed") {
		t.Fatalf("detail = %s", exchangeErr.Detail)
	}
}

func TestCompleteAuthMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	_, err := provider.CompleteAuth(context.Background(), core.CompleteAuthRequest{Code: "code"})
	var exchangeErr *core.TokenExchangeError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("err = %v, want TokenExchangeError", err)
	}
}

func TestRefreshSendsRefreshGrant(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","expires_in":"1800"}`))
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL)
	grant, err := provider.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if grant.AccessToken != "at-2" {
		t.Fatalf("access token = %s", grant.AccessToken)
	}
	// Providers that do not rotate omit the refresh token.
	if grant.RefreshToken != "" {
		t.Fatalf("refresh token = %s, want empty", grant.RefreshToken)
	}
	if gotForm.Get("grant_type") != "refresh_token" {
		t.Fatalf("grant_type = %s", gotForm.Get("grant_type"))
	}
	if gotForm.Get("refresh_token") != "rt-1" {
		t.Fatalf("refresh_token = %s", gotForm.Get("refresh_token"))
	}
}

func TestParseTokenPayloadFormEncoding(t *testing.T) {
	payload, err := parseTokenPayload([]byte("access_token=at&token_type=bearer&expires_in=120"), "application/x-www-form-urlencoded")
	if err != nil {
		t.Fatalf("parseTokenPayload: %v", err)
	}
	if payload.AccessToken != "at" || payload.ExpiresIn != 120 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
