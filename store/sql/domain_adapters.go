package sqlstore

import (
	"time"

	"github.com/goliatone/go-calendar-sync/core"
)

func newIntegrationRecord(in core.CreateIntegrationInput, now time.Time) *integrationRecord {
	record := &integrationRecord{
		UserID:            in.UserID,
		Provider:          string(in.Provider),
		ProviderAccountID: in.ProviderAccountID,
		AccessToken:       in.AccessToken,
		RefreshToken:      in.RefreshToken,
		Scope:             in.Scope,
		CalendarID:        in.CalendarID,
		CalendarName:      in.CalendarName,
		IsPrimary:         in.IsPrimary,
		SyncEnabled:       in.SyncEnabled,
		SyncDirection:     string(in.SyncDirection),
		Status:            string(core.IntegrationStatusActive),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.ExpiresAt != nil {
		expiresAt := in.ExpiresAt.UTC()
		record.ExpiresAt = &expiresAt
	}
	return record
}

func (r *integrationRecord) toDomain() core.Integration {
	if r == nil {
		return core.Integration{}
	}
	integration := core.Integration{
		ID:                r.ID,
		UserID:            r.UserID,
		Provider:          core.Provider(r.Provider),
		ProviderAccountID: r.ProviderAccountID,
		AccessToken:       r.AccessToken,
		RefreshToken:      r.RefreshToken,
		Scope:             r.Scope,
		CalendarID:        r.CalendarID,
		CalendarName:      r.CalendarName,
		IsPrimary:         r.IsPrimary,
		SyncEnabled:       r.SyncEnabled,
		SyncDirection:     core.SyncDirection(r.SyncDirection),
		Status:            core.IntegrationStatus(r.Status),
		LastError:         r.LastError,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		expiresAt := r.ExpiresAt.UTC()
		integration.ExpiresAt = &expiresAt
	}
	if r.LastSyncAt != nil {
		lastSyncAt := r.LastSyncAt.UTC()
		integration.LastSyncAt = &lastSyncAt
	}
	return integration
}

func newSyncLogRecord(entry core.SyncLogEntry) *syncLogRecord {
	return &syncLogRecord{
		ID:            entry.ID,
		IntegrationID: entry.IntegrationID,
		UserID:        entry.UserID,
		Provider:      string(entry.Provider),
		Direction:     string(entry.Direction),
		Status:        string(entry.Status),
		Processed:     entry.Processed,
		Created:       entry.Created,
		Updated:       entry.Updated,
		Error:         entry.Error,
		StartedAt:     entry.StartedAt.UTC(),
		FinishedAt:    entry.FinishedAt.UTC(),
	}
}

func (r *syncLogRecord) toDomain() core.SyncLogEntry {
	if r == nil {
		return core.SyncLogEntry{}
	}
	return core.SyncLogEntry{
		ID:            r.ID,
		IntegrationID: r.IntegrationID,
		UserID:        r.UserID,
		Provider:      core.Provider(r.Provider),
		Direction:     core.SyncDirection(r.Direction),
		Status:        core.SyncLogStatus(r.Status),
		Processed:     r.Processed,
		Created:       r.Created,
		Updated:       r.Updated,
		Error:         r.Error,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
}
