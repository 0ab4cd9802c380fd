// Package calendarsync is the embedding surface for calendar OAuth
// integrations: the Client below is what UI-facing code talks to for
// connecting, listing, syncing, and removing calendar integrations.
package calendarsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-calendar-sync/core"
)

// IntegrationService is the slice of the core service the client consumes.
type IntegrationService interface {
	Connect(ctx context.Context, req core.ConnectRequest) (core.ConnectResponse, error)
	ListIntegrations(ctx context.Context, userID string) ([]core.Integration, error)
	GetIntegration(ctx context.Context, userID string, id string) (core.Integration, error)
	UpdateSettings(ctx context.Context, userID string, id string, patch core.IntegrationPatch) (core.Integration, error)
	Disconnect(ctx context.Context, userID string, id string) error
}

// SyncRunner matches the sync orchestrator.
type SyncRunner interface {
	SyncCalendar(ctx context.Context, userID string, integrationID string, direction core.SyncDirection) (core.SyncResult, error)
	SyncAll(ctx context.Context, userID string) ([]core.SyncResult, error)
}

// ConnectFlow drives the popup handshake and resolves to the connected
// integration. The handshake package provides the canonical implementation.
type ConnectFlow interface {
	Connect(ctx context.Context, authURL string) (core.Integration, error)
}

type ClientConfig struct {
	Service  IntegrationService
	Sync     SyncRunner
	Flow     ConnectFlow
	Notifier core.Notifier
}

// Client is the integration hook: every method reports its outcome through
// the notifier (toasts in a UI embedding) and returns the error for callers
// that branch on it.
type Client struct {
	service  IntegrationService
	sync     SyncRunner
	flow     ConnectFlow
	notifier core.Notifier
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("calendarsync: integration service is required")
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = core.NopNotifier{}
	}
	return &Client{
		service:  cfg.Service,
		sync:     cfg.Sync,
		flow:     cfg.Flow,
		notifier: notifier,
	}, nil
}

func (c *Client) ListIntegrations(ctx context.Context, userID string) ([]core.Integration, error) {
	if c == nil || c.service == nil {
		return nil, fmt.Errorf("calendarsync: client is not configured")
	}
	return c.service.ListIntegrations(ctx, userID)
}

// ConnectCalendar runs the full connect flow: build the authorization URL,
// drive the popup handshake, and hand back the integration the callback
// persisted. The handshake resolves only after the server side finished the
// exchange, so no token material ever crosses this boundary.
func (c *Client) ConnectCalendar(ctx context.Context, userID string, provider core.Provider) (core.Integration, error) {
	if c == nil || c.service == nil {
		return core.Integration{}, fmt.Errorf("calendarsync: client is not configured")
	}
	if c.flow == nil {
		return core.Integration{}, fmt.Errorf("calendarsync: connect flow is not configured")
	}

	response, err := c.service.Connect(ctx, core.ConnectRequest{
		UserID:   userID,
		Provider: provider,
	})
	if err != nil {
		c.notifyError(ctx, "Calendar connection failed", err)
		return core.Integration{}, err
	}

	integration, err := c.flow.Connect(ctx, response.AuthURL)
	if err != nil {
		c.notifyError(ctx, "Calendar connection failed", err)
		return core.Integration{}, err
	}

	c.notifier.Notify(ctx, core.NotificationLevelSuccess, "Calendar connected",
		fmt.Sprintf("Your %s calendar is now connected.", integration.Provider))
	return integration, nil
}

func (c *Client) SyncCalendar(ctx context.Context, userID string, integrationID string) (core.SyncResult, error) {
	if c == nil || c.sync == nil {
		return core.SyncResult{}, fmt.Errorf("calendarsync: sync runner is not configured")
	}
	return c.sync.SyncCalendar(ctx, userID, integrationID, "")
}

func (c *Client) SyncAll(ctx context.Context, userID string) ([]core.SyncResult, error) {
	if c == nil || c.sync == nil {
		return nil, fmt.Errorf("calendarsync: sync runner is not configured")
	}
	return c.sync.SyncAll(ctx, userID)
}

func (c *Client) UpdateIntegration(ctx context.Context, userID string, integrationID string, patch core.IntegrationPatch) (core.Integration, error) {
	if c == nil || c.service == nil {
		return core.Integration{}, fmt.Errorf("calendarsync: client is not configured")
	}
	integration, err := c.service.UpdateSettings(ctx, userID, integrationID, patch)
	if err != nil {
		c.notifyError(ctx, "Calendar settings update failed", err)
		return core.Integration{}, err
	}
	c.notifier.Notify(ctx, core.NotificationLevelSuccess, "Calendar settings updated",
		fmt.Sprintf("Settings for %s were saved.", integrationLabel(integration)))
	return integration, nil
}

func (c *Client) RemoveIntegration(ctx context.Context, userID string, integrationID string) error {
	if c == nil || c.service == nil {
		return fmt.Errorf("calendarsync: client is not configured")
	}
	if err := c.service.Disconnect(ctx, userID, integrationID); err != nil {
		c.notifyError(ctx, "Calendar removal failed", err)
		return err
	}
	c.notifier.Notify(ctx, core.NotificationLevelSuccess, "Calendar removed",
		"The calendar integration has been removed.")
	return nil
}

func (c *Client) notifyError(ctx context.Context, title string, err error) {
	message := core.UserFacingMessage(err)
	if strings.TrimSpace(message) == "" {
		message = "Something went wrong. Please try again."
	}
	c.notifier.Notify(ctx, core.NotificationLevelError, title, message)
}

func integrationLabel(integration core.Integration) string {
	name := strings.TrimSpace(integration.CalendarName)
	if name != "" {
		return name
	}
	return string(integration.Provider)
}
