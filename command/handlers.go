package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-calendar-sync/core"
)

// MutatingService is the slice of the core service command handlers mutate
// through.
type MutatingService interface {
	Connect(ctx context.Context, req core.ConnectRequest) (core.ConnectResponse, error)
	CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackResult, error)
	UpdateSettings(ctx context.Context, userID string, id string, patch core.IntegrationPatch) (core.Integration, error)
	Disconnect(ctx context.Context, userID string, id string) error
}

// SyncRunner is implemented by the sync orchestrator.
type SyncRunner interface {
	SyncCalendar(ctx context.Context, userID string, integrationID string, direction core.SyncDirection) (core.SyncResult, error)
	SyncAll(ctx context.Context, userID string) ([]core.SyncResult, error)
}

type ConnectCommand struct {
	service MutatingService
}

func NewConnectCommand(service MutatingService) *ConnectCommand {
	return &ConnectCommand{service: service}
}

func (c *ConnectCommand) Execute(ctx context.Context, msg ConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connect service is required")
	}
	out, err := c.service.Connect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	service MutatingService
}

func NewCompleteCallbackCommand(service MutatingService) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.CompleteCallback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateSettingsCommand struct {
	service MutatingService
}

func NewUpdateSettingsCommand(service MutatingService) *UpdateSettingsCommand {
	return &UpdateSettingsCommand{service: service}
}

func (c *UpdateSettingsCommand) Execute(ctx context.Context, msg UpdateSettingsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: settings service is required")
	}
	out, err := c.service.UpdateSettings(ctx, msg.UserID, msg.IntegrationID, msg.Patch)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: disconnect service is required")
	}
	return c.service.Disconnect(ctx, msg.UserID, msg.IntegrationID)
}

type SyncCalendarCommand struct {
	runner SyncRunner
}

func NewSyncCalendarCommand(runner SyncRunner) *SyncCalendarCommand {
	return &SyncCalendarCommand{runner: runner}
}

func (c *SyncCalendarCommand) Execute(ctx context.Context, msg SyncCalendarMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: sync runner is required")
	}
	out, err := c.runner.SyncCalendar(ctx, msg.UserID, msg.IntegrationID, msg.Direction)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SyncAllCommand struct {
	runner SyncRunner
}

func NewSyncAllCommand(runner SyncRunner) *SyncAllCommand {
	return &SyncAllCommand{runner: runner}
}

func (c *SyncAllCommand) Execute(ctx context.Context, msg SyncAllMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: sync runner is required")
	}
	out, err := c.runner.SyncAll(ctx, msg.UserID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
