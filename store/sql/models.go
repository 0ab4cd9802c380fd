package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type integrationRecord struct {
	bun.BaseModel `bun:"table:calendar_integrations,alias:ci"`

	ID                string     `bun:"id,pk"`
	UserID            string     `bun:"user_id,notnull"`
	Provider          string     `bun:"provider,notnull"`
	ProviderAccountID string     `bun:"provider_account_id,notnull"`
	AccessToken       string     `bun:"access_token,notnull"`
	RefreshToken      string     `bun:"refresh_token"`
	ExpiresAt         *time.Time `bun:"expires_at,nullzero"`
	Scope             string     `bun:"scope"`
	CalendarID        string     `bun:"calendar_id,notnull"`
	CalendarName      string     `bun:"calendar_name"`
	IsPrimary         bool       `bun:"is_primary,notnull"`
	SyncEnabled       bool       `bun:"sync_enabled,notnull"`
	SyncDirection     string     `bun:"sync_direction,notnull"`
	Status            string     `bun:"status,notnull"`
	LastError         string     `bun:"last_error"`
	LastSyncAt        *time.Time `bun:"last_sync_at,nullzero"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete"`
}

type syncLogRecord struct {
	bun.BaseModel `bun:"table:calendar_sync_logs,alias:csl"`

	ID            string    `bun:"id,pk"`
	IntegrationID string    `bun:"integration_id,notnull"`
	UserID        string    `bun:"user_id,notnull"`
	Provider      string    `bun:"provider,notnull"`
	Direction     string    `bun:"direction,notnull"`
	Status        string    `bun:"status,notnull"`
	Processed     int       `bun:"processed,notnull"`
	Created       int       `bun:"created,notnull"`
	Updated       int       `bun:"updated,notnull"`
	Error         string    `bun:"error"`
	StartedAt     time.Time `bun:"started_at,nullzero,notnull"`
	FinishedAt    time.Time `bun:"finished_at,nullzero,notnull"`
}
