package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-calendar-sync/core"
)

const (
	TypeConnect          = "calendarsync.command.connect"
	TypeCompleteCallback = "calendarsync.command.callback.complete"
	TypeUpdateSettings   = "calendarsync.command.settings.update"
	TypeDisconnect       = "calendarsync.command.disconnect"
	TypeSyncCalendar     = "calendarsync.command.sync.calendar"
	TypeSyncAll          = "calendarsync.command.sync.all"
)

type ConnectMessage struct {
	Request core.ConnectRequest
}

func (ConnectMessage) Type() string { return TypeConnect }

func (m ConnectMessage) Validate() error {
	if strings.TrimSpace(m.Request.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	if _, err := core.ParseProvider(string(m.Request.Provider)); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}

type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

func (m CompleteCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Request.Code) == "" {
		return fmt.Errorf("command: authorization code is required")
	}
	if strings.TrimSpace(m.Request.State) == "" {
		return fmt.Errorf("command: oauth state is required")
	}
	return nil
}

type UpdateSettingsMessage struct {
	UserID        string
	IntegrationID string
	Patch         core.IntegrationPatch
}

func (UpdateSettingsMessage) Type() string { return TypeUpdateSettings }

func (m UpdateSettingsMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	if strings.TrimSpace(m.IntegrationID) == "" {
		return fmt.Errorf("command: integration id is required")
	}
	if m.Patch.SyncDirection != nil {
		if _, err := core.ParseSyncDirection(string(*m.Patch.SyncDirection)); err != nil {
			return fmt.Errorf("command: %w", err)
		}
	}
	return nil
}

type DisconnectMessage struct {
	UserID        string
	IntegrationID string
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	if strings.TrimSpace(m.IntegrationID) == "" {
		return fmt.Errorf("command: integration id is required")
	}
	return nil
}

type SyncCalendarMessage struct {
	UserID        string
	IntegrationID string
	Direction     core.SyncDirection
}

func (SyncCalendarMessage) Type() string { return TypeSyncCalendar }

func (m SyncCalendarMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	if strings.TrimSpace(m.IntegrationID) == "" {
		return fmt.Errorf("command: integration id is required")
	}
	if strings.TrimSpace(string(m.Direction)) != "" {
		if _, err := core.ParseSyncDirection(string(m.Direction)); err != nil {
			return fmt.Errorf("command: %w", err)
		}
	}
	return nil
}

type SyncAllMessage struct {
	UserID string
}

func (SyncAllMessage) Type() string { return TypeSyncAll }

func (m SyncAllMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("command: user id is required")
	}
	return nil
}
