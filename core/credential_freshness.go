package core

import (
	"strings"
	"time"
)

const (
	DefaultExpiringSoonWindow = 5 * time.Minute
	DefaultRefreshLeadWindow  = 5 * time.Minute
)

// TokenState captures access/refresh lifecycle state derived from an
// integration's stored grant.
type TokenState struct {
	ExpiresAt       *time.Time
	HasAccessToken  bool
	HasRefreshToken bool
	IsExpired       bool
	IsExpiringSoon  bool
}

// ResolveTokenState evaluates expiry flags for an integration's tokens.
func ResolveTokenState(now time.Time, integration Integration, expiringSoonWindow time.Duration) TokenState {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	if expiringSoonWindow <= 0 {
		expiringSoonWindow = DefaultExpiringSoonWindow
	}

	state := TokenState{
		HasAccessToken:  strings.TrimSpace(integration.AccessToken) != "",
		HasRefreshToken: strings.TrimSpace(integration.RefreshToken) != "",
	}
	if integration.ExpiresAt == nil {
		return state
	}
	expiresAt := integration.ExpiresAt.UTC()
	state.ExpiresAt = &expiresAt
	if !expiresAt.After(now) {
		state.IsExpired = true
		return state
	}
	state.IsExpiringSoon = !expiresAt.After(now.Add(expiringSoonWindow))
	return state
}

// ShouldRefresh returns true when a token refresh should be attempted before
// calling the provider. Tokens are refreshed ahead of expiry so a request
// never leaves with a token that dies mid-flight.
func ShouldRefresh(now time.Time, state TokenState, refreshLeadWindow time.Duration) bool {
	if !state.HasRefreshToken {
		return false
	}
	if !state.HasAccessToken {
		return true
	}
	if state.ExpiresAt == nil {
		return false
	}
	if refreshLeadWindow <= 0 {
		refreshLeadWindow = DefaultRefreshLeadWindow
	}
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	return !state.ExpiresAt.UTC().After(now.Add(refreshLeadWindow))
}
