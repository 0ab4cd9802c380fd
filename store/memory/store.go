// Package memory provides in-memory store implementations backing tests,
// examples, and single-process deployments that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
	"github.com/google/uuid"
)

type IntegrationStore struct {
	mu           sync.Mutex
	integrations map[string]core.Integration
	nowFn        func() time.Time
}

func NewIntegrationStore() *IntegrationStore {
	return &IntegrationStore{
		integrations: map[string]core.Integration{},
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the store clock. Tests use it to make creation
// ordering deterministic.
func (s *IntegrationStore) SetNowFunc(now func() time.Time) {
	if s == nil || now == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
}

func (s *IntegrationStore) List(_ context.Context, userID string) ([]core.Integration, error) {
	return s.list(userID, false)
}

func (s *IntegrationStore) ListSyncEnabled(_ context.Context, userID string) ([]core.Integration, error) {
	return s.list(userID, true)
}

func (s *IntegrationStore) list(userID string, syncEnabledOnly bool) ([]core.Integration, error) {
	if s == nil {
		return nil, fmt.Errorf("memory: integration store is not configured")
	}
	trimmedUserID := strings.TrimSpace(userID)
	if trimmedUserID == "" {
		return nil, fmt.Errorf("memory: user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []core.Integration{}
	for _, integration := range s.integrations {
		if integration.UserID != trimmedUserID {
			continue
		}
		if syncEnabledOnly && !integration.SyncEnabled {
			continue
		}
		out = append(out, integration)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *IntegrationStore) Get(_ context.Context, userID string, id string) (core.Integration, error) {
	if s == nil {
		return core.Integration{}, fmt.Errorf("memory: integration store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOwnedLocked(userID, id)
}

func (s *IntegrationStore) Create(_ context.Context, in core.CreateIntegrationInput) (core.Integration, error) {
	if s == nil {
		return core.Integration{}, fmt.Errorf("memory: integration store is not configured")
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.ProviderAccountID = strings.TrimSpace(in.ProviderAccountID)
	if in.UserID == "" {
		return core.Integration{}, fmt.Errorf("memory: user id is required")
	}
	if _, err := core.ParseProvider(string(in.Provider)); err != nil {
		return core.Integration{}, err
	}
	if in.ProviderAccountID == "" {
		return core.Integration{}, fmt.Errorf("memory: provider account id is required")
	}
	if strings.TrimSpace(in.AccessToken) == "" {
		return core.Integration{}, fmt.Errorf("memory: access token is required")
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

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.integrations {
		if existing.UserID == in.UserID &&
			existing.Provider == in.Provider &&
			existing.ProviderAccountID == in.ProviderAccountID {
			return core.Integration{}, fmt.Errorf("memory: %s account %q already connected for user %q: %w",
				in.Provider, in.ProviderAccountID, in.UserID, core.ErrDuplicateIntegration)
		}
	}

	now := s.now()
	integration := core.Integration{
		ID:                uuid.New().String(),
		UserID:            in.UserID,
		Provider:          in.Provider,
		ProviderAccountID: in.ProviderAccountID,
		AccessToken:       in.AccessToken,
		RefreshToken:      in.RefreshToken,
		Scope:             in.Scope,
		CalendarID:        in.CalendarID,
		CalendarName:      in.CalendarName,
		IsPrimary:         in.IsPrimary,
		SyncEnabled:       in.SyncEnabled,
		SyncDirection:     in.SyncDirection,
		Status:            core.IntegrationStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.ExpiresAt != nil {
		expiresAt := in.ExpiresAt.UTC()
		integration.ExpiresAt = &expiresAt
	}

	s.integrations[integration.ID] = integration
	return integration, nil
}

func (s *IntegrationStore) Update(_ context.Context, userID string, id string, patch core.IntegrationPatch) (core.Integration, error) {
	if s == nil {
		return core.Integration{}, fmt.Errorf("memory: integration store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	integration, err := s.getOwnedLocked(userID, id)
	if err != nil {
		return core.Integration{}, err
	}

	if patch.CalendarID != nil {
		integration.CalendarID = strings.TrimSpace(*patch.CalendarID)
	}
	if patch.CalendarName != nil {
		integration.CalendarName = strings.TrimSpace(*patch.CalendarName)
	}
	if patch.IsPrimary != nil {
		integration.IsPrimary = *patch.IsPrimary
	}
	if patch.SyncEnabled != nil {
		integration.SyncEnabled = *patch.SyncEnabled
	}
	if patch.SyncDirection != nil {
		direction, err := core.ParseSyncDirection(string(*patch.SyncDirection))
		if err != nil {
			return core.Integration{}, err
		}
		integration.SyncDirection = direction
	}
	integration.UpdatedAt = s.now()

	s.integrations[integration.ID] = integration
	return integration, nil
}

func (s *IntegrationStore) Delete(_ context.Context, userID string, id string) error {
	if s == nil {
		return fmt.Errorf("memory: integration store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	integration, err := s.getOwnedLocked(userID, id)
	if err != nil {
		return err
	}
	delete(s.integrations, integration.ID)
	return nil
}

func (s *IntegrationStore) SaveTokens(_ context.Context, id string, grant core.TokenGrant) error {
	if s == nil {
		return fmt.Errorf("memory: integration store is not configured")
	}
	if strings.TrimSpace(grant.AccessToken) == "" {
		return fmt.Errorf("memory: access token is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	integration, err := s.getLocked(id)
	if err != nil {
		return err
	}

	integration.AccessToken = grant.AccessToken
	if strings.TrimSpace(grant.RefreshToken) != "" {
		integration.RefreshToken = grant.RefreshToken
	}
	if strings.TrimSpace(grant.Scope) != "" {
		integration.Scope = grant.Scope
	}
	integration.ExpiresAt = nil
	if grant.ExpiresAt != nil {
		expiresAt := grant.ExpiresAt.UTC()
		integration.ExpiresAt = &expiresAt
	}
	integration.UpdatedAt = s.now()

	s.integrations[integration.ID] = integration
	return nil
}

func (s *IntegrationStore) MarkSynced(_ context.Context, id string, at time.Time) error {
	if s == nil {
		return fmt.Errorf("memory: integration store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	integration, err := s.getLocked(id)
	if err != nil {
		return err
	}

	syncedAt := at.UTC()
	integration.LastSyncAt = &syncedAt
	integration.LastError = ""
	integration.UpdatedAt = s.now()

	s.integrations[integration.ID] = integration
	return nil
}

func (s *IntegrationStore) UpdateStatus(_ context.Context, id string, status core.IntegrationStatus, reason string) error {
	if s == nil {
		return fmt.Errorf("memory: integration store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	integration, err := s.getLocked(id)
	if err != nil {
		return err
	}
	if err := integration.TransitionTo(status, reason, s.now()); err != nil {
		return err
	}

	s.integrations[integration.ID] = integration
	return nil
}

func (s *IntegrationStore) getOwnedLocked(userID string, id string) (core.Integration, error) {
	integration, err := s.getLocked(id)
	if err != nil {
		return core.Integration{}, err
	}
	trimmedUserID := strings.TrimSpace(userID)
	if trimmedUserID == "" {
		return core.Integration{}, fmt.Errorf("memory: user id is required")
	}
	if integration.UserID != trimmedUserID {
		return core.Integration{}, fmt.Errorf("memory: integration %q is not owned by user %q: %w",
			integration.ID, trimmedUserID, core.ErrIntegrationOwnership)
	}
	return integration, nil
}

func (s *IntegrationStore) getLocked(id string) (core.Integration, error) {
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return core.Integration{}, fmt.Errorf("memory: integration id is required")
	}
	integration, ok := s.integrations[trimmedID]
	if !ok {
		return core.Integration{}, fmt.Errorf("memory: integration %q: %w", trimmedID, core.ErrIntegrationNotFound)
	}
	return integration, nil
}

func (s *IntegrationStore) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn().UTC()
	}
	return time.Now().UTC()
}

type SyncLogStore struct {
	mu      sync.Mutex
	entries []core.SyncLogEntry
}

func NewSyncLogStore() *SyncLogStore {
	return &SyncLogStore{}
}

func (s *SyncLogStore) Append(_ context.Context, entry core.SyncLogEntry) (core.SyncLogEntry, error) {
	if s == nil {
		return core.SyncLogEntry{}, fmt.Errorf("memory: sync log store is not configured")
	}
	if strings.TrimSpace(entry.IntegrationID) == "" {
		return core.SyncLogEntry{}, fmt.Errorf("memory: integration id is required")
	}
	if strings.TrimSpace(string(entry.Status)) == "" {
		return core.SyncLogEntry{}, fmt.Errorf("memory: sync log status is required")
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *SyncLogStore) ListByIntegration(_ context.Context, integrationID string, limit int) ([]core.SyncLogEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("memory: sync log store is not configured")
	}
	trimmedID := strings.TrimSpace(integrationID)
	if trimmedID == "" {
		return nil, fmt.Errorf("memory: integration id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []core.SyncLogEntry{}
	for _, entry := range s.entries {
		if entry.IntegrationID == trimmedID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type AppointmentStore struct {
	mu           sync.Mutex
	appointments map[string]core.Appointment
	nowFn        func() time.Time
}

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{
		appointments: map[string]core.Appointment{},
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *AppointmentStore) ListByUser(_ context.Context, userID string, updatedSince *time.Time) ([]core.Appointment, error) {
	if s == nil {
		return nil, fmt.Errorf("memory: appointment store is not configured")
	}
	trimmedUserID := strings.TrimSpace(userID)
	if trimmedUserID == "" {
		return nil, fmt.Errorf("memory: user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []core.Appointment{}
	for _, appointment := range s.appointments {
		if appointment.UserID != trimmedUserID {
			continue
		}
		if updatedSince != nil && !appointment.UpdatedAt.After(*updatedSince) {
			continue
		}
		out = append(out, appointment)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}

func (s *AppointmentStore) FindByExternalEvent(_ context.Context, userID string, provider core.Provider, externalEventID string) (core.Appointment, bool, error) {
	if s == nil {
		return core.Appointment{}, false, fmt.Errorf("memory: appointment store is not configured")
	}
	trimmedEventID := strings.TrimSpace(externalEventID)
	if trimmedEventID == "" {
		return core.Appointment{}, false, fmt.Errorf("memory: external event id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, appointment := range s.appointments {
		if appointment.UserID == strings.TrimSpace(userID) &&
			appointment.SourceProvider == provider &&
			appointment.ExternalEventID == trimmedEventID {
			return appointment, true, nil
		}
	}
	return core.Appointment{}, false, nil
}

func (s *AppointmentStore) Create(_ context.Context, appointment core.Appointment) (core.Appointment, error) {
	if s == nil {
		return core.Appointment{}, fmt.Errorf("memory: appointment store is not configured")
	}
	if strings.TrimSpace(appointment.UserID) == "" {
		return core.Appointment{}, fmt.Errorf("memory: user id is required")
	}
	if strings.TrimSpace(appointment.ID) == "" {
		appointment.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = now
	}
	if appointment.UpdatedAt.IsZero() {
		appointment.UpdatedAt = now
	}
	s.appointments[appointment.ID] = appointment
	return appointment, nil
}

func (s *AppointmentStore) Update(_ context.Context, appointment core.Appointment) (core.Appointment, error) {
	if s == nil {
		return core.Appointment{}, fmt.Errorf("memory: appointment store is not configured")
	}
	trimmedID := strings.TrimSpace(appointment.ID)
	if trimmedID == "" {
		return core.Appointment{}, fmt.Errorf("memory: appointment id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[trimmedID]; !ok {
		return core.Appointment{}, fmt.Errorf("memory: appointment %q not found", trimmedID)
	}
	if appointment.UpdatedAt.IsZero() {
		appointment.UpdatedAt = s.now()
	}
	s.appointments[trimmedID] = appointment
	return appointment, nil
}

func (s *AppointmentStore) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn().UTC()
	}
	return time.Now().UTC()
}

var (
	_ core.IntegrationStore = (*IntegrationStore)(nil)
	_ core.SyncLogStore     = (*SyncLogStore)(nil)
	_ core.AppointmentStore = (*AppointmentStore)(nil)
)
