package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const integrationListCacheKeyPrefix = "go-calendar-sync::integration_list::v1"

// CachedIntegrationStore caches per-user integration listings in front of a
// base store. Only List is cached; every mutation and token write goes to the
// base store and drops the owner's cache entry, so reads after a mutation are
// served fresh.
type CachedIntegrationStore struct {
	base  core.IntegrationStore
	cache repositorycache.CacheService
}

func NewCachedIntegrationStore(
	base core.IntegrationStore,
	cacheService repositorycache.CacheService,
) (*CachedIntegrationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base integration store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: integration cache service is required")
	}
	return &CachedIntegrationStore{base: base, cache: cacheService}, nil
}

// IntegrationListCacheKey returns the cache key contract for per-user list
// reads: go-calendar-sync::integration_list::v1::<user_id> with the user id
// URL-path escaped.
func IntegrationListCacheKey(userID string) (string, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: user id is required")
	}
	return integrationListCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedIntegrationStore) List(ctx context.Context, userID string) ([]core.Integration, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	cacheKey, err := IntegrationListCacheKey(userID)
	if err != nil {
		return nil, err
	}

	integrations, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.Integration, error) {
		return s.base.List(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return append([]core.Integration(nil), integrations...), nil
}

func (s *CachedIntegrationStore) ListSyncEnabled(ctx context.Context, userID string) ([]core.Integration, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	return s.base.ListSyncEnabled(ctx, userID)
}

func (s *CachedIntegrationStore) Get(ctx context.Context, userID string, id string) (core.Integration, error) {
	if s == nil || s.base == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	return s.base.Get(ctx, userID, id)
}

func (s *CachedIntegrationStore) Create(ctx context.Context, in core.CreateIntegrationInput) (core.Integration, error) {
	if s == nil || s.base == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	created, err := s.base.Create(ctx, in)
	if err != nil {
		return core.Integration{}, err
	}
	if err := s.invalidateUser(ctx, created.UserID); err != nil {
		return core.Integration{}, err
	}
	return created, nil
}

func (s *CachedIntegrationStore) Update(ctx context.Context, userID string, id string, patch core.IntegrationPatch) (core.Integration, error) {
	if s == nil || s.base == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	updated, err := s.base.Update(ctx, userID, id, patch)
	if err != nil {
		return core.Integration{}, err
	}
	if err := s.invalidateUser(ctx, userID); err != nil {
		return core.Integration{}, err
	}
	return updated, nil
}

func (s *CachedIntegrationStore) Delete(ctx context.Context, userID string, id string) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	if err := s.base.Delete(ctx, userID, id); err != nil {
		return err
	}
	return s.invalidateUser(ctx, userID)
}

func (s *CachedIntegrationStore) SaveTokens(ctx context.Context, id string, grant core.TokenGrant) error {
	return s.writeThrough(ctx, id, func() error {
		return s.base.SaveTokens(ctx, id, grant)
	})
}

func (s *CachedIntegrationStore) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return s.writeThrough(ctx, id, func() error {
		return s.base.MarkSynced(ctx, id, at)
	})
}

func (s *CachedIntegrationStore) UpdateStatus(ctx context.Context, id string, status core.IntegrationStatus, reason string) error {
	return s.writeThrough(ctx, id, func() error {
		return s.base.UpdateStatus(ctx, id, status, reason)
	})
}

// writeThrough runs an id-keyed mutation against the base store. These
// mutations carry no user id, so the owner is looked up afterwards to drop
// the right list entry; a lookup miss just skips invalidation.
func (s *CachedIntegrationStore) writeThrough(ctx context.Context, id string, mutate func() error) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	if err := mutate(); err != nil {
		return err
	}
	owner, ok := s.lookupOwner(ctx, id)
	if !ok {
		return nil
	}
	return s.invalidateUser(ctx, owner)
}

func (s *CachedIntegrationStore) lookupOwner(ctx context.Context, id string) (string, bool) {
	type ownerLookup interface {
		getByID(ctx context.Context, id string) (*integrationRecord, error)
	}
	base, ok := s.base.(ownerLookup)
	if !ok {
		return "", false
	}
	record, err := base.getByID(ctx, id)
	if err != nil || record == nil {
		return "", false
	}
	return record.UserID, true
}

func (s *CachedIntegrationStore) invalidateUser(ctx context.Context, userID string) error {
	cacheKey, err := IntegrationListCacheKey(userID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.IntegrationStore = (*CachedIntegrationStore)(nil)
