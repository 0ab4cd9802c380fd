package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-calendar-sync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const defaultSyncLogLimit = 50

// SyncLogStore is append-only; entries are never updated after the fact.
type SyncLogStore struct {
	db   *bun.DB
	repo repository.Repository[*syncLogRecord]
}

func (s *SyncLogStore) Append(ctx context.Context, entry core.SyncLogEntry) (core.SyncLogEntry, error) {
	if s == nil || s.repo == nil {
		return core.SyncLogEntry{}, fmt.Errorf("sqlstore: sync log store is not configured")
	}
	if strings.TrimSpace(entry.IntegrationID) == "" {
		return core.SyncLogEntry{}, fmt.Errorf("sqlstore: integration id is required")
	}
	if strings.TrimSpace(entry.UserID) == "" {
		return core.SyncLogEntry{}, fmt.Errorf("sqlstore: user id is required")
	}
	if strings.TrimSpace(string(entry.Status)) == "" {
		return core.SyncLogEntry{}, fmt.Errorf("sqlstore: sync log status is required")
	}

	created, err := s.repo.Create(ctx, newSyncLogRecord(entry))
	if err != nil {
		return core.SyncLogEntry{}, err
	}
	return created.toDomain(), nil
}

func (s *SyncLogStore) ListByIntegration(ctx context.Context, integrationID string, limit int) ([]core.SyncLogEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: sync log store is not configured")
	}
	trimmedID := strings.TrimSpace(integrationID)
	if trimmedID == "" {
		return nil, fmt.Errorf("sqlstore: integration id is required")
	}
	if limit <= 0 {
		limit = defaultSyncLogLimit
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("integration_id", "=", trimmedID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Limit(limit)
		}),
		repository.OrderBy("started_at DESC"),
	)
	if err != nil {
		return nil, err
	}

	out := make([]core.SyncLogEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.SyncLogStore = (*SyncLogStore)(nil)
