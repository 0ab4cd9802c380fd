package calendarsync

import "github.com/goliatone/go-calendar-sync/core"

type Config = core.Config
type OAuthConfig = core.OAuthConfig
type SyncConfig = core.SyncConfig

type Option = core.Option

type Service = core.Service

type Integration = core.Integration
type IntegrationPatch = core.IntegrationPatch
type IntegrationStatus = core.IntegrationStatus
type Provider = core.Provider
type SyncDirection = core.SyncDirection
type SyncResult = core.SyncResult
type SyncLogEntry = core.SyncLogEntry
type CalendarDescriptor = core.CalendarDescriptor
type CalendarEvent = core.CalendarEvent
type Appointment = core.Appointment

type ConnectRequest = core.ConnectRequest
type ConnectResponse = core.ConnectResponse
type CallbackRequest = core.CallbackRequest
type CallbackResult = core.CallbackResult

type CalendarProvider = core.CalendarProvider
type Registry = core.Registry
type IntegrationStore = core.IntegrationStore
type SyncLogStore = core.SyncLogStore
type AppointmentStore = core.AppointmentStore
type Notifier = core.Notifier
type IntegrationLocker = core.IntegrationLocker

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithStateCodec        = core.WithStateCodec
	WithOAuthStateStore   = core.WithOAuthStateStore
	WithIntegrationLocker = core.WithIntegrationLocker
	WithRegistry          = core.WithRegistry
	WithIntegrationStore  = core.WithIntegrationStore
	WithSyncLogStore      = core.WithSyncLogStore
	WithAppointmentStore  = core.WithAppointmentStore
	WithIdentityResolver  = core.WithIdentityResolver
	WithNotifier          = core.WithNotifier
	WithPersistenceClient = core.WithPersistenceClient
	WithStoreFactory      = core.WithStoreFactory
	WithNowFunc           = core.WithNowFunc
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
