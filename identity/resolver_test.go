package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-calendar-sync/core"
)

func TestResolveGoogleProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"108123456789","email":"user@example.com","name":"Test User"}`))
	}))
	defer server.Close()

	resolver := NewResolver(Config{
		ProviderUserInfo: map[core.Provider]ProviderUserInfoConfig{
			core.ProviderGoogle: {URL: server.URL},
		},
	})
	account, err := resolver.Resolve(context.Background(), core.ProviderGoogle, "access-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if account.ID != "108123456789" {
		t.Fatalf("id = %s", account.ID)
	}
	if account.Email != "user@example.com" || account.DisplayName != "Test User" {
		t.Fatalf("unexpected account: %+v", account)
	}
}

func TestResolveMicrosoftProfileFallsBackToUPN(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ms-user-1","mail":null,"userPrincipalName":"user@contoso.com","displayName":"Contoso User"}`))
	}))
	defer server.Close()

	resolver := NewResolver(Config{
		ProviderUserInfo: map[core.Provider]ProviderUserInfoConfig{
			core.ProviderMicrosoft: {URL: server.URL},
		},
	})
	account, err := resolver.Resolve(context.Background(), core.ProviderMicrosoft, "access-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if account.ID != "ms-user-1" {
		t.Fatalf("id = %s", account.ID)
	}
	if account.Email != "user@contoso.com" {
		t.Fatalf("email = %s", account.Email)
	}
}

func TestResolveEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	resolver := NewResolver(Config{
		ProviderUserInfo: map[core.Provider]ProviderUserInfoConfig{
			core.ProviderGoogle: {URL: server.URL},
		},
	})
	_, err := resolver.Resolve(context.Background(), core.ProviderGoogle, "access-token")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
}

func TestResolveMissingSubject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"user@example.com"}`))
	}))
	defer server.Close()

	resolver := NewResolver(Config{
		ProviderUserInfo: map[core.Provider]ProviderUserInfoConfig{
			core.ProviderGoogle: {URL: server.URL},
		},
	})
	if _, err := resolver.Resolve(context.Background(), core.ProviderGoogle, "access-token"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
}

func TestResolveUnknownProvider(t *testing.T) {
	resolver := DefaultResolver()
	if _, err := resolver.Resolve(context.Background(), core.Provider("caldav"), "token"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
}
