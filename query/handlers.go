package query

import (
	"context"

	"github.com/goliatone/go-calendar-sync/core"
)

// IntegrationReader is the read slice of the core service.
type IntegrationReader interface {
	ListIntegrations(ctx context.Context, userID string) ([]core.Integration, error)
	GetIntegration(ctx context.Context, userID string, id string) (core.Integration, error)
}

type SyncLogReader interface {
	ListByIntegration(ctx context.Context, integrationID string, limit int) ([]core.SyncLogEntry, error)
}

type ListIntegrationsQuery struct {
	reader IntegrationReader
}

func NewListIntegrationsQuery(reader IntegrationReader) *ListIntegrationsQuery {
	return &ListIntegrationsQuery{reader: reader}
}

func (q *ListIntegrationsQuery) Query(ctx context.Context, msg ListIntegrationsMessage) ([]core.Integration, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: integration reader is required")
	}
	return q.reader.ListIntegrations(ctx, msg.UserID)
}

type GetIntegrationQuery struct {
	reader IntegrationReader
}

func NewGetIntegrationQuery(reader IntegrationReader) *GetIntegrationQuery {
	return &GetIntegrationQuery{reader: reader}
}

func (q *GetIntegrationQuery) Query(ctx context.Context, msg GetIntegrationMessage) (core.Integration, error) {
	if q == nil || q.reader == nil {
		return core.Integration{}, queryDependencyError("query: integration reader is required")
	}
	return q.reader.GetIntegration(ctx, msg.UserID, msg.IntegrationID)
}

type ListSyncLogsQuery struct {
	reader SyncLogReader
}

func NewListSyncLogsQuery(reader SyncLogReader) *ListSyncLogsQuery {
	return &ListSyncLogsQuery{reader: reader}
}

func (q *ListSyncLogsQuery) Query(ctx context.Context, msg ListSyncLogsMessage) ([]core.SyncLogEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: sync log reader is required")
	}
	return q.reader.ListByIntegration(ctx, msg.IntegrationID, msg.Limit)
}
