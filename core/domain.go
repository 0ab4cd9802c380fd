package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidProvider                    = errors.New("core: invalid calendar provider")
	ErrInvalidSyncDirection               = errors.New("core: invalid sync direction")
	ErrInvalidIntegrationStatusTransition = errors.New("core: invalid integration status transition")
	ErrIntegrationNotFound                = errors.New("core: integration not found")
	ErrIntegrationOwnership               = errors.New("core: integration not owned by caller")
	ErrDuplicateIntegration               = errors.New("core: integration already exists for provider account")
)

type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
)

func ParseProvider(value string) (Provider, error) {
	normalized := Provider(strings.TrimSpace(strings.ToLower(value)))
	switch normalized {
	case ProviderGoogle, ProviderMicrosoft:
		return normalized, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidProvider, value)
}

type SyncDirection string

const (
	SyncDirectionInbound       SyncDirection = "inbound"
	SyncDirectionOutbound      SyncDirection = "outbound"
	SyncDirectionBidirectional SyncDirection = "bidirectional"
)

func ParseSyncDirection(value string) (SyncDirection, error) {
	normalized := SyncDirection(strings.TrimSpace(strings.ToLower(value)))
	switch normalized {
	case SyncDirectionInbound, SyncDirectionOutbound, SyncDirectionBidirectional:
		return normalized, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSyncDirection, value)
}

type IntegrationStatus string

const (
	IntegrationStatusActive        IntegrationStatus = "active"
	IntegrationStatusDisconnected  IntegrationStatus = "disconnected"
	IntegrationStatusErrored       IntegrationStatus = "errored"
	IntegrationStatusPendingReauth IntegrationStatus = "pending_reauth"
)

// Integration is one persisted link between an internal user and an external
// calendar account. Tokens live here server-side only; the HTTP layer strips
// them before anything crosses back to the popup opener.
type Integration struct {
	ID                string
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
	Status            IntegrationStatus
	LastError         string
	LastSyncAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Redacted strips the token secrets for payloads that leave the server,
// such as the cross-window handshake message.
func (i Integration) Redacted() Integration {
	i.AccessToken = ""
	i.RefreshToken = ""
	return i
}

func (i *Integration) TransitionTo(status IntegrationStatus, reason string, now time.Time) error {
	if i == nil {
		return nil
	}
	if i.Status == status {
		i.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			i.LastError = strings.TrimSpace(reason)
		}
		return nil
	}
	if !integrationTransitionAllowed(i.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidIntegrationStatusTransition, i.Status, status)
	}
	i.Status = status
	i.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		i.LastError = strings.TrimSpace(reason)
	}
	if status == IntegrationStatusActive {
		i.LastError = ""
	}
	return nil
}

func integrationTransitionAllowed(current, next IntegrationStatus) bool {
	allowed := map[IntegrationStatus]map[IntegrationStatus]struct{}{
		IntegrationStatusActive: {
			IntegrationStatusDisconnected:  {},
			IntegrationStatusErrored:       {},
			IntegrationStatusPendingReauth: {},
		},
		IntegrationStatusErrored: {
			IntegrationStatusActive:        {},
			IntegrationStatusPendingReauth: {},
			IntegrationStatusDisconnected:  {},
		},
		IntegrationStatusPendingReauth: {
			IntegrationStatusActive:       {},
			IntegrationStatusDisconnected: {},
		},
		IntegrationStatusDisconnected: {
			IntegrationStatusActive: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// TokenExpired reports whether the stored access token is unusable at the
// given instant, applying the refresh-before-use safety margin.
func (i Integration) TokenExpired(now time.Time, leadWindow time.Duration) bool {
	if i.ExpiresAt == nil {
		return false
	}
	if leadWindow < 0 {
		leadWindow = 0
	}
	return !i.ExpiresAt.UTC().After(now.UTC().Add(leadWindow))
}

type SyncLogStatus string

const (
	SyncLogStatusSucceeded SyncLogStatus = "succeeded"
	SyncLogStatusFailed    SyncLogStatus = "failed"
)

type SyncLogEntry struct {
	ID            string
	IntegrationID string
	UserID        string
	Provider      Provider
	Direction     SyncDirection
	Status        SyncLogStatus
	Processed     int
	Created       int
	Updated       int
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// SyncResult is the per-invocation outcome of the sync orchestrator. It is
// ephemeral beyond the log entry referenced by SyncLogID.
type SyncResult struct {
	IntegrationID string
	Success       bool
	SyncLogID     string
	Processed     int
	Created       int
	Updated       int
	Error         string
}

func (r SyncResult) Summary() string {
	if !r.Success {
		return fmt.Sprintf("sync failed: %s", r.Error)
	}
	return fmt.Sprintf("%d processed, %d created, %d updated", r.Processed, r.Created, r.Updated)
}

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Appointment is the internal record the orchestrator reconciles external
// events against. The wider practice-management schema is out of scope; only
// the fields sync needs are modeled.
type Appointment struct {
	ID              string
	UserID          string
	Title           string
	Description     string
	StartsAt        time.Time
	EndsAt          time.Time
	Status          AppointmentStatus
	ExternalEventID string
	SourceProvider  Provider
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CalendarEvent is the provider-normalized external event shape.
type CalendarEvent struct {
	ID          string
	CalendarID  string
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
	Cancelled   bool
	UpdatedAt   time.Time
}

// CalendarDescriptor is the provider-normalized entry of a calendar list.
type CalendarDescriptor struct {
	ID          string
	Name        string
	Description string
	Primary     bool
}

const (
	PrimaryCalendarID   = "primary"
	PrimaryCalendarName = "Primary Calendar"
)

// PrimaryCalendarFallback is used when the directory fetch fails after a
// successful token exchange: the integration is still created against the
// account's primary calendar.
func PrimaryCalendarFallback() CalendarDescriptor {
	return CalendarDescriptor{
		ID:      PrimaryCalendarID,
		Name:    PrimaryCalendarName,
		Primary: true,
	}
}
