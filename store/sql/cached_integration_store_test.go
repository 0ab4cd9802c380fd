package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubIntegrationStore struct {
	mu           sync.Mutex
	integrations map[string]core.Integration
	listCalls    int
	listErr      error
}

func newStubIntegrationStore() *stubIntegrationStore {
	return &stubIntegrationStore{integrations: map[string]core.Integration{}}
}

func (s *stubIntegrationStore) List(_ context.Context, userID string) ([]core.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []core.Integration{}
	for _, integration := range s.integrations {
		if integration.UserID == userID {
			out = append(out, integration)
		}
	}
	return out, nil
}

func (s *stubIntegrationStore) ListSyncEnabled(ctx context.Context, userID string) ([]core.Integration, error) {
	listed, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := []core.Integration{}
	for _, integration := range listed {
		if integration.SyncEnabled {
			out = append(out, integration)
		}
	}
	return out, nil
}

func (s *stubIntegrationStore) Get(_ context.Context, userID string, id string) (core.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.integrations[id]
	if !ok {
		return core.Integration{}, core.ErrIntegrationNotFound
	}
	if integration.UserID != userID {
		return core.Integration{}, core.ErrIntegrationOwnership
	}
	return integration, nil
}

func (s *stubIntegrationStore) Create(_ context.Context, in core.CreateIntegrationInput) (core.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration := core.Integration{
		ID:                "int_" + in.ProviderAccountID,
		UserID:            in.UserID,
		Provider:          in.Provider,
		ProviderAccountID: in.ProviderAccountID,
		AccessToken:       in.AccessToken,
		SyncEnabled:       in.SyncEnabled,
		Status:            core.IntegrationStatusActive,
	}
	s.integrations[integration.ID] = integration
	return integration, nil
}

func (s *stubIntegrationStore) Update(_ context.Context, userID string, id string, patch core.IntegrationPatch) (core.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.integrations[id]
	if !ok || integration.UserID != userID {
		return core.Integration{}, core.ErrIntegrationNotFound
	}
	if patch.SyncEnabled != nil {
		integration.SyncEnabled = *patch.SyncEnabled
	}
	s.integrations[id] = integration
	return integration, nil
}

func (s *stubIntegrationStore) Delete(_ context.Context, userID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.integrations[id]
	if !ok || integration.UserID != userID {
		return core.ErrIntegrationNotFound
	}
	delete(s.integrations, id)
	return nil
}

func (s *stubIntegrationStore) SaveTokens(_ context.Context, id string, grant core.TokenGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.integrations[id]
	if !ok {
		return core.ErrIntegrationNotFound
	}
	integration.AccessToken = grant.AccessToken
	s.integrations[id] = integration
	return nil
}

func (s *stubIntegrationStore) MarkSynced(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.integrations[id]
	if !ok {
		return core.ErrIntegrationNotFound
	}
	syncedAt := at.UTC()
	integration.LastSyncAt = &syncedAt
	s.integrations[id] = integration
	return nil
}

func (s *stubIntegrationStore) UpdateStatus(_ context.Context, id string, status core.IntegrationStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.integrations[id]
	if !ok {
		return core.ErrIntegrationNotFound
	}
	integration.Status = status
	integration.LastError = reason
	s.integrations[id] = integration
	return nil
}

func TestCachedIntegrationStore_List_MissFetchThenHit(t *testing.T) {
	cacheService := newTestIntegrationCacheService(t)
	base := newStubIntegrationStore()
	if _, err := base.Create(context.Background(), core.CreateIntegrationInput{
		UserID:            "usr_1",
		Provider:          core.ProviderGoogle,
		ProviderAccountID: "acct_1",
		AccessToken:       "access-1",
		SyncEnabled:       true,
	}); err != nil {
		t.Fatalf("seed base store: %v", err)
	}

	store, err := NewCachedIntegrationStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached integration store: %v", err)
	}

	if _, err := store.List(context.Background(), "usr_1"); err != nil {
		t.Fatalf("first list: %v", err)
	}
	if base.listCalls != 1 {
		t.Fatalf("expected first list to fetch base store once, got %d", base.listCalls)
	}

	if _, err := store.List(context.Background(), "usr_1"); err != nil {
		t.Fatalf("second list: %v", err)
	}
	if base.listCalls != 1 {
		t.Fatalf("expected second list to be cache hit, base list calls=%d", base.listCalls)
	}
}

func TestCachedIntegrationStore_MutationsInvalidateOwnerList(t *testing.T) {
	cacheService := newTestIntegrationCacheService(t)
	base := newStubIntegrationStore()
	store, err := NewCachedIntegrationStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached integration store: %v", err)
	}

	created, err := store.Create(context.Background(), core.CreateIntegrationInput{
		UserID:            "usr_1",
		Provider:          core.ProviderGoogle,
		ProviderAccountID: "acct_1",
		AccessToken:       "access-1",
		SyncEnabled:       true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	listed, err := store.List(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 integration, got %d", len(listed))
	}

	off := false
	if _, err := store.Update(context.Background(), "usr_1", created.ID, core.IntegrationPatch{SyncEnabled: &off}); err != nil {
		t.Fatalf("update: %v", err)
	}

	callsBefore := base.listCalls
	if _, err := store.List(context.Background(), "usr_1"); err != nil {
		t.Fatalf("list after update: %v", err)
	}
	if base.listCalls != callsBefore+1 {
		t.Fatalf("expected update to drop cached list, base list calls=%d", base.listCalls)
	}

	if err := store.Delete(context.Background(), "usr_1", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	listed, err = store.List(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty list after delete, got %d", len(listed))
	}
}

func TestCachedIntegrationStore_ListPropagatesBaseError(t *testing.T) {
	cacheService := newTestIntegrationCacheService(t)
	base := newStubIntegrationStore()
	base.listErr = errors.New("base store unavailable")

	store, err := NewCachedIntegrationStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached integration store: %v", err)
	}

	if _, err := store.List(context.Background(), "usr_1"); err == nil {
		t.Fatalf("expected base store error to propagate")
	}
}

func TestIntegrationListCacheKey_EscapesUserID(t *testing.T) {
	key, err := IntegrationListCacheKey("user with spaces/1")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	want := integrationListCacheKeyPrefix + "::user%20with%20spaces%2F1"
	if key != want {
		t.Fatalf("expected %q, got %q", want, key)
	}

	if _, err := IntegrationListCacheKey("   "); err == nil {
		t.Fatalf("expected error for blank user id")
	}
}

func newTestIntegrationCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
