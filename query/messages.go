package query

import (
	"fmt"
	"strings"
)

const (
	TypeListIntegrations = "calendarsync.query.integrations.list"
	TypeGetIntegration   = "calendarsync.query.integrations.get"
	TypeListSyncLogs     = "calendarsync.query.sync_logs.list"
)

type ListIntegrationsMessage struct {
	UserID string
}

func (ListIntegrationsMessage) Type() string { return TypeListIntegrations }

func (m ListIntegrationsMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("query: user id is required")
	}
	return nil
}

type GetIntegrationMessage struct {
	UserID        string
	IntegrationID string
}

func (GetIntegrationMessage) Type() string { return TypeGetIntegration }

func (m GetIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("query: user id is required")
	}
	if strings.TrimSpace(m.IntegrationID) == "" {
		return fmt.Errorf("query: integration id is required")
	}
	return nil
}

type ListSyncLogsMessage struct {
	IntegrationID string
	Limit         int
}

func (ListSyncLogsMessage) Type() string { return TypeListSyncLogs }

func (m ListSyncLogsMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return fmt.Errorf("query: integration id is required")
	}
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}
