package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type BeginAuthRequest struct {
	UserID      string
	RedirectURI string
	State       string
	Scopes      []string
	Metadata    map[string]any
}

type BeginAuthResponse struct {
	URL      string
	State    string
	Scopes   []string
	Metadata map[string]any
}

type CompleteAuthRequest struct {
	UserID      string
	Code        string
	State       string
	RedirectURI string
	Metadata    map[string]any
}

// TokenGrant is the normalized token-endpoint result.
type TokenGrant struct {
	TokenType    string
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresAt    *time.Time
}

type CompleteAuthResponse struct {
	Grant    TokenGrant
	Metadata map[string]any
}

// CalendarProvider is the provider contract: token exchange, refresh, the
// calendar directory, and the event operations sync reconciles against.
type CalendarProvider interface {
	ID() Provider

	BeginAuth(ctx context.Context, req BeginAuthRequest) (BeginAuthResponse, error)
	CompleteAuth(ctx context.Context, req CompleteAuthRequest) (CompleteAuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (TokenGrant, error)

	ListCalendars(ctx context.Context, accessToken string) ([]CalendarDescriptor, error)

	ListEvents(ctx context.Context, accessToken string, calendarID string, updatedSince *time.Time) ([]CalendarEvent, error)
	CreateEvent(ctx context.Context, accessToken string, calendarID string, event CalendarEvent) (CalendarEvent, error)
	UpdateEvent(ctx context.Context, accessToken string, calendarID string, event CalendarEvent) (CalendarEvent, error)
}

type Registry interface {
	Register(provider CalendarProvider) error
	Get(provider Provider) (CalendarProvider, bool)
	List() []CalendarProvider
}

type CreateIntegrationInput struct {
	UserID            string
	Provider          Provider
	ProviderAccountID string
	AccessToken       string
	RefreshToken      string
	ExpiresAt         *time.Time
	Scope             string
	CalendarID        string
	CalendarName      string
	IsPrimary         bool
	SyncEnabled       bool
	SyncDirection     SyncDirection
}

// IntegrationPatch carries the user-settable fields. ID and UserID are
// immutable by contract; the stores reject attempts to move ownership.
type IntegrationPatch struct {
	CalendarID    *string
	CalendarName  *string
	IsPrimary     *bool
	SyncEnabled   *bool
	SyncDirection *SyncDirection
}

// IntegrationStore persists Integration records. Every operation scopes by
// the owning user id; operations against rows owned by someone else fail
// with ErrIntegrationOwnership rather than silently matching nothing.
type IntegrationStore interface {
	List(ctx context.Context, userID string) ([]Integration, error)
	Get(ctx context.Context, userID string, id string) (Integration, error)
	Create(ctx context.Context, in CreateIntegrationInput) (Integration, error)
	Update(ctx context.Context, userID string, id string, patch IntegrationPatch) (Integration, error)
	Delete(ctx context.Context, userID string, id string) error

	SaveTokens(ctx context.Context, id string, grant TokenGrant) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
	UpdateStatus(ctx context.Context, id string, status IntegrationStatus, reason string) error
	ListSyncEnabled(ctx context.Context, userID string) ([]Integration, error)
}

type SyncLogStore interface {
	Append(ctx context.Context, entry SyncLogEntry) (SyncLogEntry, error)
	ListByIntegration(ctx context.Context, integrationID string, limit int) ([]SyncLogEntry, error)
}

// AppointmentStore is the external collaborator owned by the wider
// application; sync only reads and writes through this surface.
type AppointmentStore interface {
	ListByUser(ctx context.Context, userID string, updatedSince *time.Time) ([]Appointment, error)
	FindByExternalEvent(ctx context.Context, userID string, provider Provider, externalEventID string) (Appointment, bool, error)
	Create(ctx context.Context, appointment Appointment) (Appointment, error)
	Update(ctx context.Context, appointment Appointment) (Appointment, error)
}

type NotificationLevel string

const (
	NotificationLevelSuccess NotificationLevel = "success"
	NotificationLevelError   NotificationLevel = "error"
)

// Notifier is the toast sink consumed by the UI layer.
type Notifier interface {
	Notify(ctx context.Context, level NotificationLevel, title string, message string)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, NotificationLevel, string, string) {}

// IntegrationLocker serializes mutating work against one integration,
// at most one holder at a time.
type LockHandle interface {
	Unlock(ctx context.Context) error
}

type IntegrationLocker interface {
	Acquire(ctx context.Context, integrationID string, ttl time.Duration) (LockHandle, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}
