// Package sync reconciles connected external calendars against the internal
// appointment store, one integration at a time.
package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
)

const defaultLockTTL = 2 * time.Minute

// TokenSource hands back an integration whose access token is safe to use.
// core.Service implements this with its refresh-before-use flow.
type TokenSource interface {
	EnsureFreshToken(ctx context.Context, userID string, integrationID string) (core.Integration, error)
}

// Orchestrator runs one reconciliation pass per invocation. Concurrent runs
// against the same integration are rejected through the locker; runs against
// different integrations are independent.
type Orchestrator struct {
	Tokens       TokenSource
	Integrations core.IntegrationStore
	Appointments core.AppointmentStore
	Logs         core.SyncLogStore
	Registry     core.Registry
	Locker       core.IntegrationLocker
	Notifier     core.Notifier
	LockTTL      time.Duration
	Now          func() time.Time
}

func NewOrchestrator(
	tokens TokenSource,
	integrations core.IntegrationStore,
	appointments core.AppointmentStore,
	logs core.SyncLogStore,
	registry core.Registry,
) *Orchestrator {
	return &Orchestrator{
		Tokens:       tokens,
		Integrations: integrations,
		Appointments: appointments,
		Logs:         logs,
		Registry:     registry,
		Locker:       core.NewMemoryIntegrationLocker(),
		Notifier:     core.NopNotifier{},
		LockTTL:      defaultLockTTL,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type syncCounts struct {
	processed int
	created   int
	updated   int
}

// SyncCalendar reconciles a single integration. An empty direction falls back
// to the integration's configured direction. lastSyncAt moves only on success.
func (o *Orchestrator) SyncCalendar(
	ctx context.Context,
	userID string,
	integrationID string,
	direction core.SyncDirection,
) (core.SyncResult, error) {
	result := core.SyncResult{IntegrationID: strings.TrimSpace(integrationID)}
	if o == nil || o.Integrations == nil || o.Appointments == nil || o.Registry == nil {
		return result, fmt.Errorf("sync: orchestrator requires integration store, appointment store, and registry")
	}
	userID = strings.TrimSpace(userID)
	integrationID = strings.TrimSpace(integrationID)
	if userID == "" || integrationID == "" {
		return result, fmt.Errorf("sync: user id and integration id are required")
	}

	integration, err := o.freshIntegration(ctx, userID, integrationID)
	if err != nil {
		return o.fail(ctx, result, integration, direction, time.Time{}, err)
	}

	if strings.TrimSpace(string(direction)) == "" {
		direction = integration.SyncDirection
	}
	direction, err = core.ParseSyncDirection(string(direction))
	if err != nil {
		return o.fail(ctx, result, integration, direction, time.Time{}, err)
	}

	unlock, err := o.acquireLock(ctx, integrationID)
	if err != nil {
		return result, fmt.Errorf("sync: integration %q has a sync in flight: %w", integrationID, core.ErrSyncInFlight)
	}
	defer unlock()

	provider, ok := o.Registry.Get(integration.Provider)
	if !ok {
		return o.fail(ctx, result, integration, direction, time.Time{},
			fmt.Errorf("sync: provider %q is not registered: %w", integration.Provider, core.ErrInvalidProvider))
	}

	startedAt := o.now()
	counts := syncCounts{}

	if direction == core.SyncDirectionInbound || direction == core.SyncDirectionBidirectional {
		if err := o.pullExternalEvents(ctx, provider, integration, &counts); err != nil {
			return o.fail(ctx, result, integration, direction, startedAt, err)
		}
	}
	if direction == core.SyncDirectionOutbound || direction == core.SyncDirectionBidirectional {
		if err := o.pushAppointments(ctx, provider, integration, &counts); err != nil {
			return o.fail(ctx, result, integration, direction, startedAt, err)
		}
	}

	finishedAt := o.now()
	result.Success = true
	result.Processed = counts.processed
	result.Created = counts.created
	result.Updated = counts.updated

	if o.Logs != nil {
		entry, logErr := o.Logs.Append(ctx, core.SyncLogEntry{
			IntegrationID: integration.ID,
			UserID:        integration.UserID,
			Provider:      integration.Provider,
			Direction:     direction,
			Status:        core.SyncLogStatusSucceeded,
			Processed:     counts.processed,
			Created:       counts.created,
			Updated:       counts.updated,
			StartedAt:     startedAt,
			FinishedAt:    finishedAt,
		})
		if logErr == nil {
			result.SyncLogID = entry.ID
		}
	}

	if err := o.Integrations.MarkSynced(ctx, integration.ID, finishedAt); err != nil {
		return result, fmt.Errorf("sync: record last sync time: %w", err)
	}

	o.notify(ctx, core.NotificationLevelSuccess, "Calendar synced", result.Summary())
	return result, nil
}

// SyncAll runs the single-integration sync sequentially over every
// sync-enabled integration. One integration failing does not stop the rest;
// the per-integration outcome lands in its SyncResult.
func (o *Orchestrator) SyncAll(ctx context.Context, userID string) ([]core.SyncResult, error) {
	if o == nil || o.Integrations == nil {
		return nil, fmt.Errorf("sync: orchestrator requires integration store")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("sync: user id is required")
	}

	integrations, err := o.Integrations.ListSyncEnabled(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sync: list sync-enabled integrations: %w", err)
	}

	results := make([]core.SyncResult, 0, len(integrations))
	for _, integration := range integrations {
		result, syncErr := o.SyncCalendar(ctx, userID, integration.ID, integration.SyncDirection)
		if syncErr != nil && result.Error == "" {
			result.Error = syncErr.Error()
		}
		results = append(results, result)
	}
	return results, nil
}

func (o *Orchestrator) pullExternalEvents(
	ctx context.Context,
	provider core.CalendarProvider,
	integration core.Integration,
	counts *syncCounts,
) error {
	events, err := provider.ListEvents(ctx, integration.AccessToken, integration.CalendarID, integration.LastSyncAt)
	if err != nil {
		return fmt.Errorf("sync: list external events: %w", err)
	}

	for _, event := range events {
		counts.processed++
		if strings.TrimSpace(event.ID) == "" {
			continue
		}

		appointment, found, err := o.Appointments.FindByExternalEvent(ctx, integration.UserID, integration.Provider, event.ID)
		if err != nil {
			return fmt.Errorf("sync: look up appointment for event %q: %w", event.ID, err)
		}

		if !found {
			if event.Cancelled {
				continue
			}
			if _, err := o.Appointments.Create(ctx, core.Appointment{
				UserID:          integration.UserID,
				Title:           event.Title,
				Description:     event.Description,
				StartsAt:        event.StartsAt,
				EndsAt:          event.EndsAt,
				Status:          core.AppointmentStatusScheduled,
				ExternalEventID: event.ID,
				SourceProvider:  integration.Provider,
			}); err != nil {
				return fmt.Errorf("sync: create appointment for event %q: %w", event.ID, err)
			}
			counts.created++
			continue
		}

		if event.Cancelled {
			if appointment.Status == core.AppointmentStatusCancelled {
				continue
			}
			appointment.Status = core.AppointmentStatusCancelled
			appointment.UpdatedAt = event.UpdatedAt
			if _, err := o.Appointments.Update(ctx, appointment); err != nil {
				return fmt.Errorf("sync: cancel appointment %q: %w", appointment.ID, err)
			}
			counts.updated++
			continue
		}

		if !event.UpdatedAt.After(appointment.UpdatedAt) {
			continue
		}
		appointment.Title = event.Title
		appointment.Description = event.Description
		appointment.StartsAt = event.StartsAt
		appointment.EndsAt = event.EndsAt
		appointment.Status = core.AppointmentStatusScheduled
		appointment.UpdatedAt = event.UpdatedAt
		if _, err := o.Appointments.Update(ctx, appointment); err != nil {
			return fmt.Errorf("sync: update appointment %q: %w", appointment.ID, err)
		}
		counts.updated++
	}
	return nil
}

func (o *Orchestrator) pushAppointments(
	ctx context.Context,
	provider core.CalendarProvider,
	integration core.Integration,
	counts *syncCounts,
) error {
	appointments, err := o.Appointments.ListByUser(ctx, integration.UserID, integration.LastSyncAt)
	if err != nil {
		return fmt.Errorf("sync: list appointments: %w", err)
	}

	for _, appointment := range appointments {
		// rows sourced from another provider belong to that provider's sync
		if appointment.SourceProvider != "" && appointment.SourceProvider != integration.Provider {
			continue
		}
		counts.processed++

		event := core.CalendarEvent{
			ID:          appointment.ExternalEventID,
			CalendarID:  integration.CalendarID,
			Title:       appointment.Title,
			Description: appointment.Description,
			StartsAt:    appointment.StartsAt,
			EndsAt:      appointment.EndsAt,
			Cancelled:   appointment.Status == core.AppointmentStatusCancelled,
			UpdatedAt:   appointment.UpdatedAt,
		}

		if strings.TrimSpace(appointment.ExternalEventID) == "" {
			if event.Cancelled {
				continue
			}
			created, err := provider.CreateEvent(ctx, integration.AccessToken, integration.CalendarID, event)
			if err != nil {
				return fmt.Errorf("sync: create external event for appointment %q: %w", appointment.ID, err)
			}
			appointment.ExternalEventID = created.ID
			appointment.SourceProvider = integration.Provider
			if _, err := o.Appointments.Update(ctx, appointment); err != nil {
				return fmt.Errorf("sync: link appointment %q to external event: %w", appointment.ID, err)
			}
			counts.created++
			continue
		}

		if _, err := provider.UpdateEvent(ctx, integration.AccessToken, integration.CalendarID, event); err != nil {
			return fmt.Errorf("sync: update external event %q: %w", appointment.ExternalEventID, err)
		}
		counts.updated++
	}
	return nil
}

func (o *Orchestrator) freshIntegration(ctx context.Context, userID string, integrationID string) (core.Integration, error) {
	if o.Tokens != nil {
		return o.Tokens.EnsureFreshToken(ctx, userID, integrationID)
	}
	return o.Integrations.Get(ctx, userID, integrationID)
}

func (o *Orchestrator) fail(
	ctx context.Context,
	result core.SyncResult,
	integration core.Integration,
	direction core.SyncDirection,
	startedAt time.Time,
	cause error,
) (core.SyncResult, error) {
	result.Success = false
	result.Error = cause.Error()

	if o.Logs != nil && strings.TrimSpace(integration.ID) != "" {
		if startedAt.IsZero() {
			startedAt = o.now()
		}
		entry, logErr := o.Logs.Append(ctx, core.SyncLogEntry{
			IntegrationID: integration.ID,
			UserID:        integration.UserID,
			Provider:      integration.Provider,
			Direction:     direction,
			Status:        core.SyncLogStatusFailed,
			Processed:     result.Processed,
			Created:       result.Created,
			Updated:       result.Updated,
			Error:         result.Error,
			StartedAt:     startedAt,
			FinishedAt:    o.now(),
		})
		if logErr == nil {
			result.SyncLogID = entry.ID
		}
	}

	o.notify(ctx, core.NotificationLevelError, "Calendar sync failed", result.Summary())
	return result, cause
}

func (o *Orchestrator) acquireLock(ctx context.Context, integrationID string) (func(), error) {
	if o.Locker == nil {
		return func() {}, nil
	}
	ttl := o.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	handle, err := o.Locker.Acquire(ctx, integrationID, ttl)
	if err != nil {
		return nil, err
	}
	return func() {
		_ = handle.Unlock(context.WithoutCancel(ctx))
	}, nil
}

func (o *Orchestrator) notify(ctx context.Context, level core.NotificationLevel, title string, message string) {
	if o.Notifier == nil {
		return
	}
	o.Notifier.Notify(ctx, level, title, message)
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}
