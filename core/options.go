package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	stateCodec        *StateCodec
	oauthStateStore   OAuthStateStore
	integrationLocker IntegrationLocker
	registry          Registry
	integrationStore  IntegrationStore
	syncLogStore      SyncLogStore
	appointmentStore  AppointmentStore
	identityResolver  IdentityResolver
	notifier          Notifier
	persistenceClient any
	storeFactory      any
	now               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithStateCodec(codec *StateCodec) Option {
	return func(b *serviceBuilder) {
		b.stateCodec = codec
	}
}

func WithOAuthStateStore(store OAuthStateStore) Option {
	return func(b *serviceBuilder) {
		b.oauthStateStore = store
	}
}

func WithIntegrationLocker(locker IntegrationLocker) Option {
	return func(b *serviceBuilder) {
		b.integrationLocker = locker
	}
}

func WithRegistry(registry Registry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

func WithIntegrationStore(store IntegrationStore) Option {
	return func(b *serviceBuilder) {
		b.integrationStore = store
	}
}

func WithSyncLogStore(store SyncLogStore) Option {
	return func(b *serviceBuilder) {
		b.syncLogStore = store
	}
}

func WithAppointmentStore(store AppointmentStore) Option {
	return func(b *serviceBuilder) {
		b.appointmentStore = store
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(b *serviceBuilder) {
		b.notifier = notifier
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithStoreFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.storeFactory = factory
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("calendarsync", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		registry:        NewProviderRegistry(),
		notifier:        NopNotifier{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return calendarErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	oauth := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.OAuth.RedirectURI) != "" {
		oauth["redirect_uri"] = cfg.OAuth.RedirectURI
	}
	if includeZero || strings.TrimSpace(cfg.OAuth.StateSecret) != "" {
		oauth["state_secret"] = cfg.OAuth.StateSecret
	}
	if includeZero || cfg.OAuth.StateTTL > 0 {
		oauth["state_ttl"] = cfg.OAuth.StateTTL
	}
	if includeZero || cfg.OAuth.Google.Enabled() {
		oauth["google"] = map[string]any{
			"client_id":     cfg.OAuth.Google.ClientID,
			"client_secret": cfg.OAuth.Google.ClientSecret,
		}
	}
	if includeZero || cfg.OAuth.Microsoft.Enabled() {
		oauth["microsoft"] = map[string]any{
			"client_id":     cfg.OAuth.Microsoft.ClientID,
			"client_secret": cfg.OAuth.Microsoft.ClientSecret,
		}
	}
	if len(oauth) > 0 {
		layer["oauth"] = oauth
	}

	sync := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Sync.DefaultDirection) != "" {
		sync["default_direction"] = cfg.Sync.DefaultDirection
	}
	if includeZero || cfg.Sync.RefreshLeadWindow > 0 {
		sync["refresh_lead_window"] = cfg.Sync.RefreshLeadWindow
	}
	if includeZero || cfg.Sync.LockTTL > 0 {
		sync["lock_ttl"] = cfg.Sync.LockTTL
	}
	if len(sync) > 0 {
		layer["sync"] = sync
	}
	return layer
}
