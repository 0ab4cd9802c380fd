package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-calendar-sync/core"
)

var (
	_ gocmd.Querier[ListIntegrationsMessage, []core.Integration] = (*ListIntegrationsQuery)(nil)
	_ gocmd.Querier[GetIntegrationMessage, core.Integration]     = (*GetIntegrationQuery)(nil)
	_ gocmd.Querier[ListSyncLogsMessage, []core.SyncLogEntry]    = (*ListSyncLogsQuery)(nil)
)
