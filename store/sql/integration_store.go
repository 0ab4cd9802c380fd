package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// IntegrationStore persists calendar integrations through go-repository-bun.
// Reads and mutations are scoped by the owning user; a row owned by another
// user surfaces core.ErrIntegrationOwnership instead of not-found so callers
// can tell the two apart.
type IntegrationStore struct {
	db   *bun.DB
	repo repository.Repository[*integrationRecord]
}

func (s *IntegrationStore) List(ctx context.Context, userID string) ([]core.Integration, error) {
	return s.list(ctx, userID, false)
}

func (s *IntegrationStore) ListSyncEnabled(ctx context.Context, userID string) ([]core.Integration, error) {
	return s.list(ctx, userID, true)
}

func (s *IntegrationStore) list(ctx context.Context, userID string, syncEnabledOnly bool) ([]core.Integration, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	trimmedUserID := strings.TrimSpace(userID)
	if trimmedUserID == "" {
		return nil, fmt.Errorf("sqlstore: user id is required")
	}

	criteria := []repository.SelectCriteria{
		repository.SelectBy("user_id", "=", trimmedUserID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	}
	if syncEnabledOnly {
		criteria = append(criteria, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.sync_enabled = ?", true)
		}))
	}

	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}

	out := make([]core.Integration, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *IntegrationStore) Get(ctx context.Context, userID string, id string) (core.Integration, error) {
	record, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return core.Integration{}, err
	}
	return record.toDomain(), nil
}

func (s *IntegrationStore) Create(ctx context.Context, in core.CreateIntegrationInput) (core.Integration, error) {
	if s == nil || s.repo == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.ProviderAccountID = strings.TrimSpace(in.ProviderAccountID)
	if in.UserID == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: user id is required")
	}
	if _, err := core.ParseProvider(string(in.Provider)); err != nil {
		return core.Integration{}, err
	}
	if in.ProviderAccountID == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: provider account id is required")
	}
	if strings.TrimSpace(in.AccessToken) == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: access token is required")
	}
	if strings.TrimSpace(string(in.SyncDirection)) == "" {
		in.SyncDirection = core.SyncDirectionBidirectional
	}
	if _, err := core.ParseSyncDirection(string(in.SyncDirection)); err != nil {
		return core.Integration{}, err
	}
	if strings.TrimSpace(in.CalendarID) == "" {
		in.CalendarID = core.PrimaryCalendarID
	}

	existing, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", in.UserID),
		repository.SelectBy("provider", "=", string(in.Provider)),
		repository.SelectBy("provider_account_id", "=", in.ProviderAccountID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
	)
	if err != nil {
		return core.Integration{}, err
	}
	if len(existing) > 0 {
		return core.Integration{}, fmt.Errorf("sqlstore: %s account %q already connected for user %q: %w",
			in.Provider, in.ProviderAccountID, in.UserID, core.ErrDuplicateIntegration)
	}

	record := newIntegrationRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Integration{}, err
	}
	return created.toDomain(), nil
}

func (s *IntegrationStore) Update(ctx context.Context, userID string, id string, patch core.IntegrationPatch) (core.Integration, error) {
	record, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return core.Integration{}, err
	}

	if patch.CalendarID != nil {
		record.CalendarID = strings.TrimSpace(*patch.CalendarID)
	}
	if patch.CalendarName != nil {
		record.CalendarName = strings.TrimSpace(*patch.CalendarName)
	}
	if patch.IsPrimary != nil {
		record.IsPrimary = *patch.IsPrimary
	}
	if patch.SyncEnabled != nil {
		record.SyncEnabled = *patch.SyncEnabled
	}
	if patch.SyncDirection != nil {
		direction, err := core.ParseSyncDirection(string(*patch.SyncDirection))
		if err != nil {
			return core.Integration{}, err
		}
		record.SyncDirection = string(direction)
	}
	record.UpdatedAt = time.Now().UTC()

	updated, err := s.repo.Update(ctx, record, repository.UpdateByID(record.ID))
	if err != nil {
		return core.Integration{}, err
	}
	return updated.toDomain(), nil
}

func (s *IntegrationStore) Delete(ctx context.Context, userID string, id string) error {
	record, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return err
	}

	// soft_delete on the model makes this set deleted_at instead of removing the row
	_, err = s.db.NewDelete().
		Model(record).
		WherePK().
		Exec(ctx)
	return err
}

func (s *IntegrationStore) SaveTokens(ctx context.Context, id string, grant core.TokenGrant) error {
	record, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(grant.AccessToken) == "" {
		return fmt.Errorf("sqlstore: access token is required")
	}

	record.AccessToken = grant.AccessToken
	if strings.TrimSpace(grant.RefreshToken) != "" {
		record.RefreshToken = grant.RefreshToken
	}
	if strings.TrimSpace(grant.Scope) != "" {
		record.Scope = grant.Scope
	}
	record.ExpiresAt = nil
	if grant.ExpiresAt != nil {
		expiresAt := grant.ExpiresAt.UTC()
		record.ExpiresAt = &expiresAt
	}
	record.UpdatedAt = time.Now().UTC()

	_, err = s.repo.Update(ctx, record, repository.UpdateByID(record.ID))
	return err
}

func (s *IntegrationStore) MarkSynced(ctx context.Context, id string, at time.Time) error {
	record, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}

	syncedAt := at.UTC()
	record.LastSyncAt = &syncedAt
	record.LastError = ""
	record.UpdatedAt = time.Now().UTC()

	_, err = s.repo.Update(ctx, record, repository.UpdateByID(record.ID))
	return err
}

func (s *IntegrationStore) UpdateStatus(ctx context.Context, id string, status core.IntegrationStatus, reason string) error {
	record, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}

	integration := record.toDomain()
	now := time.Now().UTC()
	if err := integration.TransitionTo(status, reason, now); err != nil {
		return err
	}

	record.Status = string(integration.Status)
	record.LastError = integration.LastError
	record.UpdatedAt = now

	_, err = s.repo.Update(ctx, record, repository.UpdateByID(record.ID))
	return err
}

func (s *IntegrationStore) getOwned(ctx context.Context, userID string, id string) (*integrationRecord, error) {
	record, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	trimmedUserID := strings.TrimSpace(userID)
	if trimmedUserID == "" {
		return nil, fmt.Errorf("sqlstore: user id is required")
	}
	if record.UserID != trimmedUserID {
		return nil, fmt.Errorf("sqlstore: integration %q is not owned by user %q: %w",
			record.ID, trimmedUserID, core.ErrIntegrationOwnership)
	}
	return record, nil
}

func (s *IntegrationStore) getByID(ctx context.Context, id string) (*integrationRecord, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: integration store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return nil, fmt.Errorf("sqlstore: integration id is required")
	}

	record := &integrationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", trimmedID).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sqlstore: integration %q: %w", trimmedID, core.ErrIntegrationNotFound)
		}
		return nil, err
	}
	return record, nil
}

var _ core.IntegrationStore = (*IntegrationStore)(nil)
