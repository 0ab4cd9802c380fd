package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
	calendarmigrations "github.com/goliatone/go-calendar-sync/migrations"
	sqlstore "github.com/goliatone/go-calendar-sync/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-calendar-sync-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"calendar_integrations",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "calendar_integrations" {
		t.Fatalf("expected calendar_integrations table, got %q", tableName)
	}
}

func TestIntegrationStore_CreateEnforcesAccountUniqueness(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newIntegrationStore(t, client)

	integration, err := store.Create(ctx, core.CreateIntegrationInput{
		UserID:            "usr_1",
		Provider:          core.ProviderGoogle,
		ProviderAccountID: "acct_1",
		AccessToken:       "access-1",
		RefreshToken:      "refresh-1",
		CalendarID:        "primary",
		CalendarName:      "Primary Calendar",
		IsPrimary:         true,
		SyncEnabled:       true,
		SyncDirection:     core.SyncDirectionBidirectional,
	})
	if err != nil {
		t.Fatalf("create integration: %v", err)
	}
	if integration.ID == "" {
		t.Fatalf("expected generated integration id")
	}
	if integration.Status != core.IntegrationStatusActive {
		t.Fatalf("expected active status, got %q", integration.Status)
	}

	_, err = store.Create(ctx, core.CreateIntegrationInput{
		UserID:            "usr_1",
		Provider:          core.ProviderGoogle,
		ProviderAccountID: "acct_1",
		AccessToken:       "access-2",
		CalendarID:        "primary",
		SyncDirection:     core.SyncDirectionBidirectional,
	})
	if !errors.Is(err, core.ErrDuplicateIntegration) {
		t.Fatalf("expected duplicate integration error, got %v", err)
	}

	// same account under a different user is a separate integration
	if _, err := store.Create(ctx, core.CreateIntegrationInput{
		UserID:            "usr_2",
		Provider:          core.ProviderGoogle,
		ProviderAccountID: "acct_1",
		AccessToken:       "access-3",
		CalendarID:        "primary",
		SyncDirection:     core.SyncDirectionBidirectional,
	}); err != nil {
		t.Fatalf("create integration for second user: %v", err)
	}
}

func TestIntegrationStore_GetEnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newIntegrationStore(t, client)
	integration := seedIntegration(t, store, "usr_1", "acct_1")

	if _, err := store.Get(ctx, "usr_1", integration.ID); err != nil {
		t.Fatalf("get as owner: %v", err)
	}

	_, err := store.Get(ctx, "usr_2", integration.ID)
	if !errors.Is(err, core.ErrIntegrationOwnership) {
		t.Fatalf("expected ownership error, got %v", err)
	}

	_, err = store.Get(ctx, "usr_1", "0e4cbd9a-8f37-4f2b-9d5b-0a3f9ce41d11")
	if !errors.Is(err, core.ErrIntegrationNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestIntegrationStore_UpdateAppliesPatch(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newIntegrationStore(t, client)
	integration := seedIntegration(t, store, "usr_1", "acct_1")

	calendarID := "team-calendar"
	calendarName := "Team Calendar"
	syncEnabled := false
	direction := core.SyncDirectionInbound
	updated, err := store.Update(ctx, "usr_1", integration.ID, core.IntegrationPatch{
		CalendarID:    &calendarID,
		CalendarName:  &calendarName,
		SyncEnabled:   &syncEnabled,
		SyncDirection: &direction,
	})
	if err != nil {
		t.Fatalf("update integration: %v", err)
	}
	if updated.CalendarID != "team-calendar" || updated.CalendarName != "Team Calendar" {
		t.Fatalf("expected calendar patch applied, got %q/%q", updated.CalendarID, updated.CalendarName)
	}
	if updated.SyncEnabled {
		t.Fatalf("expected sync disabled")
	}
	if updated.SyncDirection != core.SyncDirectionInbound {
		t.Fatalf("expected inbound direction, got %q", updated.SyncDirection)
	}

	invalid := core.SyncDirection("sideways")
	if _, err := store.Update(ctx, "usr_1", integration.ID, core.IntegrationPatch{
		SyncDirection: &invalid,
	}); !errors.Is(err, core.ErrInvalidSyncDirection) {
		t.Fatalf("expected invalid direction error, got %v", err)
	}

	if _, err := store.Update(ctx, "usr_2", integration.ID, core.IntegrationPatch{
		SyncEnabled: &syncEnabled,
	}); !errors.Is(err, core.ErrIntegrationOwnership) {
		t.Fatalf("expected ownership error, got %v", err)
	}
}

func TestIntegrationStore_DeleteSoftDeletesAndAllowsReconnect(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newIntegrationStore(t, client)
	integration := seedIntegration(t, store, "usr_1", "acct_1")

	if err := store.Delete(ctx, "usr_1", integration.ID); err != nil {
		t.Fatalf("delete integration: %v", err)
	}

	if _, err := store.Get(ctx, "usr_1", integration.ID); !errors.Is(err, core.ErrIntegrationNotFound) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}

	listed, err := store.List(ctx, "usr_1")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty list after delete, got %d rows", len(listed))
	}

	// the account can be connected again after a disconnect
	if _, err := store.Create(ctx, core.CreateIntegrationInput{
		UserID:            "usr_1",
		Provider:          core.ProviderGoogle,
		ProviderAccountID: "acct_1",
		AccessToken:       "access-reconnect",
		CalendarID:        "primary",
		SyncDirection:     core.SyncDirectionBidirectional,
	}); err != nil {
		t.Fatalf("reconnect after delete: %v", err)
	}
}

func TestIntegrationStore_SaveTokensKeepsRefreshTokenWhenOmitted(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newIntegrationStore(t, client)
	integration := seedIntegration(t, store, "usr_1", "acct_1")

	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := store.SaveTokens(ctx, integration.ID, core.TokenGrant{
		TokenType:   "bearer",
		AccessToken: "access-rotated",
		ExpiresAt:   &expiresAt,
	}); err != nil {
		t.Fatalf("save tokens: %v", err)
	}

	reloaded, err := store.Get(ctx, "usr_1", integration.ID)
	if err != nil {
		t.Fatalf("reload integration: %v", err)
	}
	if reloaded.AccessToken != "access-rotated" {
		t.Fatalf("expected rotated access token, got %q", reloaded.AccessToken)
	}
	if reloaded.RefreshToken != "refresh-seed" {
		t.Fatalf("expected refresh token preserved, got %q", reloaded.RefreshToken)
	}
	if reloaded.ExpiresAt == nil || !reloaded.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected expiry %v, got %v", expiresAt, reloaded.ExpiresAt)
	}
}

func TestIntegrationStore_StatusTransitionsAndMarkSynced(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newIntegrationStore(t, client)
	integration := seedIntegration(t, store, "usr_1", "acct_1")

	if err := store.UpdateStatus(ctx, integration.ID, core.IntegrationStatusPendingReauth, "refresh failed"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	reloaded, err := store.Get(ctx, "usr_1", integration.ID)
	if err != nil {
		t.Fatalf("reload integration: %v", err)
	}
	if reloaded.Status != core.IntegrationStatusPendingReauth {
		t.Fatalf("expected pending_reauth, got %q", reloaded.Status)
	}
	if reloaded.LastError != "refresh failed" {
		t.Fatalf("expected last error recorded, got %q", reloaded.LastError)
	}

	if err := store.UpdateStatus(ctx, integration.ID, core.IntegrationStatusErrored, "boom"); !errors.Is(err, core.ErrInvalidIntegrationStatusTransition) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}

	if err := store.UpdateStatus(ctx, integration.ID, core.IntegrationStatusActive, ""); err != nil {
		t.Fatalf("reactivate: %v", err)
	}

	syncedAt := time.Now().UTC().Truncate(time.Second)
	if err := store.MarkSynced(ctx, integration.ID, syncedAt); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	reloaded, err = store.Get(ctx, "usr_1", integration.ID)
	if err != nil {
		t.Fatalf("reload integration: %v", err)
	}
	if reloaded.LastSyncAt == nil || !reloaded.LastSyncAt.Equal(syncedAt) {
		t.Fatalf("expected last sync at %v, got %v", syncedAt, reloaded.LastSyncAt)
	}
	if reloaded.LastError != "" {
		t.Fatalf("expected last error cleared, got %q", reloaded.LastError)
	}
}

func TestIntegrationStore_ListSyncEnabledFiltersDisabledRows(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store := newIntegrationStore(t, client)
	enabled := seedIntegration(t, store, "usr_1", "acct_enabled")
	disabled := seedIntegration(t, store, "usr_1", "acct_disabled")

	off := false
	if _, err := store.Update(ctx, "usr_1", disabled.ID, core.IntegrationPatch{SyncEnabled: &off}); err != nil {
		t.Fatalf("disable sync: %v", err)
	}

	listed, err := store.ListSyncEnabled(ctx, "usr_1")
	if err != nil {
		t.Fatalf("list sync enabled: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 sync-enabled integration, got %d", len(listed))
	}
	if listed[0].ID != enabled.ID {
		t.Fatalf("expected %q, got %q", enabled.ID, listed[0].ID)
	}
}

func TestSyncLogStore_AppendAndListNewestFirst(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	integrationStore := factory.IntegrationStore()
	logStore := factory.SyncLogStore()
	if integrationStore == nil || logStore == nil {
		t.Fatalf("expected integration and sync log stores from factory")
	}

	integration, err := integrationStore.Create(ctx, core.CreateIntegrationInput{
		UserID:            "usr_1",
		Provider:          core.ProviderMicrosoft,
		ProviderAccountID: "acct_1",
		AccessToken:       "access-1",
		CalendarID:        "primary",
		SyncDirection:     core.SyncDirectionOutbound,
	})
	if err != nil {
		t.Fatalf("create integration: %v", err)
	}

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		startedAt := base.Add(time.Duration(i) * time.Hour)
		entry := core.SyncLogEntry{
			IntegrationID: integration.ID,
			UserID:        "usr_1",
			Provider:      core.ProviderMicrosoft,
			Direction:     core.SyncDirectionOutbound,
			Status:        core.SyncLogStatusSucceeded,
			Processed:     i + 1,
			StartedAt:     startedAt,
			FinishedAt:    startedAt.Add(time.Minute),
		}
		if _, err := logStore.Append(ctx, entry); err != nil {
			t.Fatalf("append entry %d: %v", i, err)
		}
	}

	entries, err := logStore.ListByIntegration(ctx, integration.ID, 2)
	if err != nil {
		t.Fatalf("list sync log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].StartedAt.After(entries[1].StartedAt) {
		t.Fatalf("expected newest-first ordering, got %v then %v", entries[0].StartedAt, entries[1].StartedAt)
	}
	if entries[0].Processed != 3 {
		t.Fatalf("expected newest entry processed=3, got %d", entries[0].Processed)
	}
}

func newIntegrationStore(t *testing.T, client *persistence.Client) core.IntegrationStore {
	t.Helper()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.IntegrationStore()
	if store == nil {
		t.Fatalf("expected integration store from factory")
	}
	return store
}

func seedIntegration(t *testing.T, store core.IntegrationStore, userID string, accountID string) core.Integration {
	t.Helper()
	integration, err := store.Create(context.Background(), core.CreateIntegrationInput{
		UserID:            userID,
		Provider:          core.ProviderGoogle,
		ProviderAccountID: accountID,
		AccessToken:       "access-seed",
		RefreshToken:      "refresh-seed",
		CalendarID:        "primary",
		CalendarName:      "Primary Calendar",
		IsPrimary:         true,
		SyncEnabled:       true,
		SyncDirection:     core.SyncDirectionBidirectional,
	})
	if err != nil {
		t.Fatalf("seed integration: %v", err)
	}
	return integration
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:calendar-sync-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = calendarmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != calendarmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, calendarmigrations.WithValidationTargets(calendarmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
