package calendarsync

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-calendar-sync/core"
)

type stubIntegrationService struct {
	connectFn  func(ctx context.Context, req core.ConnectRequest) (core.ConnectResponse, error)
	listFn     func(ctx context.Context, userID string) ([]core.Integration, error)
	getFn      func(ctx context.Context, userID string, id string) (core.Integration, error)
	updateFn   func(ctx context.Context, userID string, id string, patch core.IntegrationPatch) (core.Integration, error)
	disconnect func(ctx context.Context, userID string, id string) error
}

func (s stubIntegrationService) Connect(ctx context.Context, req core.ConnectRequest) (core.ConnectResponse, error) {
	return s.connectFn(ctx, req)
}

func (s stubIntegrationService) ListIntegrations(ctx context.Context, userID string) ([]core.Integration, error) {
	return s.listFn(ctx, userID)
}

func (s stubIntegrationService) GetIntegration(ctx context.Context, userID string, id string) (core.Integration, error) {
	return s.getFn(ctx, userID, id)
}

func (s stubIntegrationService) UpdateSettings(ctx context.Context, userID string, id string, patch core.IntegrationPatch) (core.Integration, error) {
	return s.updateFn(ctx, userID, id, patch)
}

func (s stubIntegrationService) Disconnect(ctx context.Context, userID string, id string) error {
	return s.disconnect(ctx, userID, id)
}

type stubConnectFlow struct {
	integration core.Integration
	err         error
	authURL     string
}

func (s *stubConnectFlow) Connect(_ context.Context, authURL string) (core.Integration, error) {
	s.authURL = authURL
	if s.err != nil {
		return core.Integration{}, s.err
	}
	return s.integration, nil
}

type stubFacadeSyncRunner struct {
	result  core.SyncResult
	results []core.SyncResult
	err     error
}

func (s stubFacadeSyncRunner) SyncCalendar(_ context.Context, _ string, _ string, _ core.SyncDirection) (core.SyncResult, error) {
	return s.result, s.err
}

func (s stubFacadeSyncRunner) SyncAll(_ context.Context, _ string) ([]core.SyncResult, error) {
	return s.results, s.err
}

type recordingNotifier struct {
	levels   []core.NotificationLevel
	titles   []string
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, level core.NotificationLevel, title string, message string) {
	n.levels = append(n.levels, level)
	n.titles = append(n.titles, title)
	n.messages = append(n.messages, message)
}

func TestConnectCalendarDrivesHandshakeAndNotifiesSuccess(t *testing.T) {
	flow := &stubConnectFlow{
		integration: core.Integration{ID: "int_1", Provider: core.ProviderGoogle, CalendarName: "Primary"},
	}
	notifier := &recordingNotifier{}
	service := stubIntegrationService{
		connectFn: func(_ context.Context, req core.ConnectRequest) (core.ConnectResponse, error) {
			if req.UserID != "user_1" || req.Provider != core.ProviderGoogle {
				t.Fatalf("unexpected connect request: %+v", req)
			}
			return core.ConnectResponse{
				Provider: core.ProviderGoogle,
				AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth?state=signed",
			}, nil
		},
	}

	client, err := NewClient(ClientConfig{Service: service, Flow: flow, Notifier: notifier})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	integration, err := client.ConnectCalendar(context.Background(), "user_1", core.ProviderGoogle)
	if err != nil {
		t.Fatalf("ConnectCalendar: %v", err)
	}
	if integration.ID != "int_1" {
		t.Fatalf("unexpected integration: %+v", integration)
	}
	if flow.authURL != "https://accounts.google.com/o/oauth2/v2/auth?state=signed" {
		t.Fatalf("handshake got wrong auth url: %q", flow.authURL)
	}
	if len(notifier.levels) != 1 || notifier.levels[0] != core.NotificationLevelSuccess {
		t.Fatalf("expected one success toast, got %v", notifier.levels)
	}
}

func TestConnectCalendarNotifiesOnPopupBlocked(t *testing.T) {
	flow := &stubConnectFlow{err: core.ErrPopupBlocked}
	notifier := &recordingNotifier{}
	service := stubIntegrationService{
		connectFn: func(_ context.Context, _ core.ConnectRequest) (core.ConnectResponse, error) {
			return core.ConnectResponse{AuthURL: "https://accounts.google.com/auth"}, nil
		},
	}

	client, err := NewClient(ClientConfig{Service: service, Flow: flow, Notifier: notifier})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.ConnectCalendar(context.Background(), "user_1", core.ProviderGoogle)
	if !errors.Is(err, core.ErrPopupBlocked) {
		t.Fatalf("expected ErrPopupBlocked, got %v", err)
	}
	if len(notifier.levels) != 1 || notifier.levels[0] != core.NotificationLevelError {
		t.Fatalf("expected one error toast, got %v", notifier.levels)
	}
}

func TestUpdateAndRemoveIntegrationNotify(t *testing.T) {
	notifier := &recordingNotifier{}
	enabled := false
	service := stubIntegrationService{
		updateFn: func(_ context.Context, userID string, id string, patch core.IntegrationPatch) (core.Integration, error) {
			if userID != "user_1" || id != "int_1" || patch.SyncEnabled == nil {
				t.Fatalf("unexpected update call: %q %q %+v", userID, id, patch)
			}
			return core.Integration{ID: id, Provider: core.ProviderMicrosoft, CalendarName: "Work"}, nil
		},
		disconnect: func(_ context.Context, userID string, id string) error {
			if userID != "user_1" || id != "int_1" {
				t.Fatalf("unexpected disconnect call: %q %q", userID, id)
			}
			return nil
		},
	}

	client, err := NewClient(ClientConfig{Service: service, Notifier: notifier})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	integration, err := client.UpdateIntegration(context.Background(), "user_1", "int_1", core.IntegrationPatch{SyncEnabled: &enabled})
	if err != nil {
		t.Fatalf("UpdateIntegration: %v", err)
	}
	if integration.CalendarName != "Work" {
		t.Fatalf("unexpected integration: %+v", integration)
	}

	if err := client.RemoveIntegration(context.Background(), "user_1", "int_1"); err != nil {
		t.Fatalf("RemoveIntegration: %v", err)
	}

	if len(notifier.levels) != 2 {
		t.Fatalf("expected two toasts, got %v", notifier.titles)
	}
	for _, level := range notifier.levels {
		if level != core.NotificationLevelSuccess {
			t.Fatalf("expected success toasts, got %v", notifier.levels)
		}
	}
}

func TestRemoveIntegrationSurfacesOwnershipError(t *testing.T) {
	notifier := &recordingNotifier{}
	service := stubIntegrationService{
		disconnect: func(_ context.Context, _ string, _ string) error {
			return core.ErrIntegrationOwnership
		},
	}

	client, err := NewClient(ClientConfig{Service: service, Notifier: notifier})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	err = client.RemoveIntegration(context.Background(), "user_2", "int_1")
	if !errors.Is(err, core.ErrIntegrationOwnership) {
		t.Fatalf("expected ownership error, got %v", err)
	}
	if len(notifier.levels) != 1 || notifier.levels[0] != core.NotificationLevelError {
		t.Fatalf("expected one error toast, got %v", notifier.levels)
	}
}

func TestSyncMethodsDelegateToRunner(t *testing.T) {
	runner := stubFacadeSyncRunner{
		result:  core.SyncResult{IntegrationID: "int_1", Success: true, Processed: 2},
		results: []core.SyncResult{{IntegrationID: "int_1", Success: true}},
	}
	client, err := NewClient(ClientConfig{Service: stubIntegrationService{}, Sync: runner})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	result, err := client.SyncCalendar(context.Background(), "user_1", "int_1")
	if err != nil {
		t.Fatalf("SyncCalendar: %v", err)
	}
	if result.Processed != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	results, err := client.SyncAll(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestBuildRegistryRegistersEnabledProviders(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.OAuth.RedirectURI = "https://app.example.com/oauth/calendar/callback"
	cfg.OAuth.Google = core.ProviderCredentialsConfig{ClientID: "gid", ClientSecret: "gsecret"}
	cfg.OAuth.Microsoft = core.ProviderCredentialsConfig{ClientID: "mid", ClientSecret: "msecret"}

	registry, err := BuildRegistry(cfg)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if _, ok := registry.Get(core.ProviderGoogle); !ok {
		t.Fatal("expected google provider registered")
	}
	if _, ok := registry.Get(core.ProviderMicrosoft); !ok {
		t.Fatal("expected microsoft provider registered")
	}

	cfg.OAuth.Microsoft = core.ProviderCredentialsConfig{}
	registry, err = BuildRegistry(cfg)
	if err != nil {
		t.Fatalf("BuildRegistry google only: %v", err)
	}
	if _, ok := registry.Get(core.ProviderMicrosoft); ok {
		t.Fatal("microsoft provider should not be registered without credentials")
	}

	cfg.OAuth.Google = core.ProviderCredentialsConfig{}
	if _, err := BuildRegistry(cfg); err == nil {
		t.Fatal("expected error with no providers configured")
	}
}
