package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// ProviderAccount identifies who authorized at the provider. The stable
// account id is what integration dedupe keys on; email and display name are
// presentation only.
type ProviderAccount struct {
	ID          string
	Email       string
	DisplayName string
}

// IdentityResolver turns a freshly exchanged access token into the provider
// account that granted it.
type IdentityResolver interface {
	Resolve(ctx context.Context, provider Provider, accessToken string) (ProviderAccount, error)
}

type Service struct {
	config            Config
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
	now               func() time.Time
}

// IntegrationStoreProvider is implemented by store factories that build the
// persistence-backed stores from an injected client.
type IntegrationStoreProvider interface {
	IntegrationStore() IntegrationStore
	SyncLogStore() SyncLogStore
}

func WithIdentityResolver(resolver IdentityResolver) Option {
	return func(b *serviceBuilder) {
		b.identityResolver = resolver
	}
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("calendarsync", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("calendarsync"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.notifier == nil {
		builder.notifier = NopNotifier{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.stateCodec == nil {
		builder.stateCodec = NewStateCodec(finalConfig.OAuth.StateSecret, finalConfig.OAuth.StateTTL)
	}
	if builder.oauthStateStore == nil {
		builder.oauthStateStore = NewMemoryOAuthStateStore(finalConfig.OAuth.StateTTL)
	}
	if builder.integrationLocker == nil {
		builder.integrationLocker = NewMemoryIntegrationLocker()
	}

	if (builder.integrationStore == nil || builder.syncLogStore == nil) && builder.storeFactory != nil {
		if provider, ok := builder.storeFactory.(IntegrationStoreProvider); ok {
			if builder.integrationStore == nil {
				builder.integrationStore = provider.IntegrationStore()
			}
			if builder.syncLogStore == nil {
				builder.syncLogStore = provider.SyncLogStore()
			}
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		stateCodec:        builder.stateCodec,
		oauthStateStore:   builder.oauthStateStore,
		integrationLocker: builder.integrationLocker,
		registry:          builder.registry,
		integrationStore:  builder.integrationStore,
		syncLogStore:      builder.syncLogStore,
		appointmentStore:  builder.appointmentStore,
		identityResolver:  builder.identityResolver,
		notifier:          builder.notifier,
		persistenceClient: builder.persistenceClient,
		now:               builder.now,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Registry() Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) Notifier() Notifier {
	if s == nil || s.notifier == nil {
		return NopNotifier{}
	}
	return s.notifier
}

type ConnectRequest struct {
	UserID   string
	Provider Provider
	Metadata map[string]any
}

type ConnectResponse struct {
	Provider Provider
	AuthURL  string
	State    string
}

// Connect builds the provider authorization URL for a user. The returned
// state is HMAC signed and carries the provider and user id, so the callback
// can route the code without guessing which provider issued it.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (response ConnectResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider": req.Provider,
		"user_id":  req.UserID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "connect", err, fields)
	}()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		err = s.mapError(fmt.Errorf("core: user id is required"))
		return ConnectResponse{}, err
	}
	provider, err := s.resolveProvider(req.Provider)
	if err != nil {
		return ConnectResponse{}, err
	}

	nonce, nonceErr := generateStateNonce()
	if nonceErr != nil {
		err = s.mapError(nonceErr)
		return ConnectResponse{}, err
	}
	// The nonce is minted here, before encoding, so the payload saved to the
	// one-shot store is the same one the signed state carries.
	payload := StatePayload{
		Provider: provider.ID(),
		UserID:   userID,
		Nonce:    nonce,
		IssuedAt: s.nowUTC(),
	}
	state, encodeErr := s.stateCodec.Encode(payload)
	if encodeErr != nil {
		err = s.mapError(encodeErr)
		return ConnectResponse{}, err
	}

	begin, beginErr := provider.BeginAuth(ctx, BeginAuthRequest{
		UserID:      userID,
		RedirectURI: s.config.OAuth.RedirectURI,
		State:       state,
		Metadata:    copyAnyMap(req.Metadata),
	})
	if beginErr != nil {
		err = s.mapError(beginErr)
		return ConnectResponse{}, err
	}
	if strings.TrimSpace(begin.State) == "" {
		begin.State = state
	}

	if s.oauthStateStore != nil {
		if saveErr := s.oauthStateStore.Save(ctx, begin.State, payload); saveErr != nil {
			err = s.mapError(saveErr)
			return ConnectResponse{}, err
		}
	}

	return ConnectResponse{
		Provider: provider.ID(),
		AuthURL:  begin.URL,
		State:    begin.State,
	}, nil
}

type CallbackRequest struct {
	Code  string
	State string
}

type CallbackResult struct {
	Integration Integration
	Calendars   []CalendarDescriptor
	Created     bool
}

// CompleteCallback finishes the authorization flow: it validates and consumes
// the state, exchanges the code exactly once with the provider the state
// names, resolves the granting account, fetches the calendar directory, and
// creates or refreshes the integration row.
func (s *Service) CompleteCallback(ctx context.Context, req CallbackRequest) (result CallbackResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		if result.Integration.ID != "" {
			fields["integration_id"] = result.Integration.ID
		}
		s.observeOperation(ctx, startedAt, "complete_callback", err, fields)
	}()

	code := strings.TrimSpace(req.Code)
	if code == "" {
		err = s.mapError(fmt.Errorf("core: oauth authorization code is required"))
		return CallbackResult{}, err
	}

	payload, decodeErr := s.stateCodec.Decode(req.State)
	if decodeErr != nil {
		err = s.mapError(decodeErr)
		return CallbackResult{}, err
	}
	if s.oauthStateStore != nil {
		stored, consumeErr := s.oauthStateStore.Consume(ctx, strings.TrimSpace(req.State))
		if consumeErr != nil {
			err = s.mapError(consumeErr)
			return CallbackResult{}, err
		}
		if stored.Nonce != payload.Nonce || stored.UserID != payload.UserID {
			err = s.mapError(fmt.Errorf("core: oauth state mismatch"))
			return CallbackResult{}, err
		}
	}
	fields["provider"] = payload.Provider
	fields["user_id"] = payload.UserID

	provider, err := s.resolveProvider(payload.Provider)
	if err != nil {
		return CallbackResult{}, err
	}

	completion, exchangeErr := provider.CompleteAuth(ctx, CompleteAuthRequest{
		UserID:      payload.UserID,
		Code:        code,
		State:       strings.TrimSpace(req.State),
		RedirectURI: s.config.OAuth.RedirectURI,
	})
	if exchangeErr != nil {
		err = s.mapError(exchangeErr)
		return CallbackResult{}, err
	}

	account := ProviderAccount{}
	if s.identityResolver != nil {
		resolved, resolveErr := s.identityResolver.Resolve(ctx, provider.ID(), completion.Grant.AccessToken)
		if resolveErr != nil {
			err = s.mapError(resolveErr)
			return CallbackResult{}, err
		}
		account = resolved
	}

	calendars := s.fetchCalendarDirectory(ctx, provider, completion.Grant.AccessToken, fields)

	integration, created, persistErr := s.persistCallbackIntegration(ctx, payload, account, completion.Grant, calendars)
	if persistErr != nil {
		err = s.mapError(persistErr)
		return CallbackResult{}, err
	}

	return CallbackResult{
		Integration: integration,
		Calendars:   calendars,
		Created:     created,
	}, nil
}

// fetchCalendarDirectory lists the account's calendars. Directory failures
// are non-fatal: the connection already holds valid tokens, so a listing
// hiccup degrades to the primary-calendar fallback instead of aborting.
func (s *Service) fetchCalendarDirectory(ctx context.Context, provider CalendarProvider, accessToken string, fields map[string]any) []CalendarDescriptor {
	calendars, err := provider.ListCalendars(ctx, accessToken)
	if err != nil {
		s.logError(ctx, "calendar directory fetch failed", map[string]any{
			"provider": provider.ID(),
			"error":    err.Error(),
		})
		fields["directory_fallback"] = true
		return []CalendarDescriptor{PrimaryCalendarFallback()}
	}
	if len(calendars) == 0 {
		return []CalendarDescriptor{PrimaryCalendarFallback()}
	}
	return calendars
}

func (s *Service) persistCallbackIntegration(
	ctx context.Context,
	payload StatePayload,
	account ProviderAccount,
	grant TokenGrant,
	calendars []CalendarDescriptor,
) (Integration, bool, error) {
	if s.integrationStore == nil {
		return Integration{}, false, fmt.Errorf("core: integration store is not configured")
	}

	selected := selectDefaultCalendar(calendars)
	accountID := strings.TrimSpace(account.ID)

	siblings, err := s.integrationStore.List(ctx, payload.UserID)
	if err != nil {
		return Integration{}, false, err
	}

	if accountID != "" {
		existing, found := findByProviderAccount(siblings, payload.Provider, accountID)
		if found {
			if err := s.integrationStore.SaveTokens(ctx, existing.ID, grant); err != nil {
				return Integration{}, false, err
			}
			if err := s.integrationStore.UpdateStatus(ctx, existing.ID, IntegrationStatusActive, "reconnected"); err != nil {
				return Integration{}, false, err
			}
			refreshed, err := s.integrationStore.Get(ctx, payload.UserID, existing.ID)
			if err != nil {
				return Integration{}, false, err
			}
			return refreshed, false, nil
		}
	}

	direction, err := ParseSyncDirection(s.config.Sync.DefaultDirection)
	if err != nil {
		direction = SyncDirectionBidirectional
	}

	// Only a user's first connection becomes the primary; later ones stay
	// secondary until promoted through UpdateSettings.
	integration, err := s.integrationStore.Create(ctx, CreateIntegrationInput{
		UserID:            payload.UserID,
		Provider:          payload.Provider,
		ProviderAccountID: accountID,
		AccessToken:       grant.AccessToken,
		RefreshToken:      grant.RefreshToken,
		ExpiresAt:         grant.ExpiresAt,
		Scope:             grant.Scope,
		CalendarID:        selected.ID,
		CalendarName:      selected.Name,
		IsPrimary:         len(siblings) == 0,
		SyncEnabled:       true,
		SyncDirection:     direction,
	})
	if err != nil {
		return Integration{}, false, err
	}
	return integration, true, nil
}

func findByProviderAccount(integrations []Integration, provider Provider, accountID string) (Integration, bool) {
	for _, integration := range integrations {
		if integration.Provider == provider && integration.ProviderAccountID == accountID {
			return integration, true
		}
	}
	return Integration{}, false
}

func selectDefaultCalendar(calendars []CalendarDescriptor) CalendarDescriptor {
	for _, calendar := range calendars {
		if calendar.Primary {
			return calendar
		}
	}
	if len(calendars) > 0 {
		return calendars[0]
	}
	return PrimaryCalendarFallback()
}

func (s *Service) ListIntegrations(ctx context.Context, userID string) (integrations []Integration, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID}
	defer func() {
		s.observeOperation(ctx, startedAt, "list_integrations", err, fields)
	}()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		err = s.mapError(fmt.Errorf("core: user id is required"))
		return nil, err
	}
	if s.integrationStore == nil {
		err = s.mapError(fmt.Errorf("core: integration store is not configured"))
		return nil, err
	}
	integrations, err = s.integrationStore.List(ctx, userID)
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	return integrations, nil
}

func (s *Service) GetIntegration(ctx context.Context, userID string, id string) (Integration, error) {
	if s == nil || s.integrationStore == nil {
		return Integration{}, s.mapError(fmt.Errorf("core: integration store is not configured"))
	}
	integration, err := s.integrationStore.Get(ctx, strings.TrimSpace(userID), strings.TrimSpace(id))
	if err != nil {
		return Integration{}, s.mapError(err)
	}
	return integration, nil
}

// UpdateSettings patches user-settable integration fields. Promoting an
// integration to primary demotes the user's other integrations so at most
// one is primary at a time.
func (s *Service) UpdateSettings(ctx context.Context, userID string, id string, patch IntegrationPatch) (integration Integration, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "integration_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_settings", err, fields)
	}()

	userID = strings.TrimSpace(userID)
	id = strings.TrimSpace(id)
	if userID == "" || id == "" {
		err = s.mapError(fmt.Errorf("core: user id and integration id are required"))
		return Integration{}, err
	}
	if s.integrationStore == nil {
		err = s.mapError(fmt.Errorf("core: integration store is not configured"))
		return Integration{}, err
	}
	if patch.SyncDirection != nil {
		if _, parseErr := ParseSyncDirection(string(*patch.SyncDirection)); parseErr != nil {
			err = s.mapError(parseErr)
			return Integration{}, err
		}
	}

	if patch.IsPrimary != nil && *patch.IsPrimary {
		if demoteErr := s.demoteOtherPrimaries(ctx, userID, id); demoteErr != nil {
			err = s.mapError(demoteErr)
			return Integration{}, err
		}
	}

	integration, err = s.integrationStore.Update(ctx, userID, id, patch)
	if err != nil {
		err = s.mapError(err)
		return Integration{}, err
	}
	return integration, nil
}

func (s *Service) demoteOtherPrimaries(ctx context.Context, userID string, keepID string) error {
	integrations, err := s.integrationStore.List(ctx, userID)
	if err != nil {
		return err
	}
	demoted := false
	for _, other := range integrations {
		if other.ID == keepID || !other.IsPrimary {
			continue
		}
		isPrimary := false
		if _, err := s.integrationStore.Update(ctx, userID, other.ID, IntegrationPatch{IsPrimary: &isPrimary}); err != nil {
			return err
		}
		demoted = true
	}
	if demoted {
		s.logInfo(ctx, "demoted previous primary integration", map[string]any{"user_id": userID})
	}
	return nil
}

func (s *Service) Disconnect(ctx context.Context, userID string, id string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "integration_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	userID = strings.TrimSpace(userID)
	id = strings.TrimSpace(id)
	if userID == "" || id == "" {
		err = s.mapError(fmt.Errorf("core: user id and integration id are required"))
		return err
	}
	if s.integrationStore == nil {
		err = s.mapError(fmt.Errorf("core: integration store is not configured"))
		return err
	}
	if err = s.integrationStore.Delete(ctx, userID, id); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// EnsureFreshToken returns the integration with a usable access token,
// refreshing ahead of expiry under a per-integration lock. The refresh is
// skipped when another holder already holds the lock and the current token
// is still alive.
func (s *Service) EnsureFreshToken(ctx context.Context, userID string, id string) (integration Integration, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "integration_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "ensure_fresh_token", err, fields)
	}()

	integration, err = s.GetIntegration(ctx, userID, id)
	if err != nil {
		return Integration{}, err
	}
	fields["provider"] = integration.Provider

	now := s.nowUTC()
	state := ResolveTokenState(now, integration, DefaultExpiringSoonWindow)
	if state.IsExpired && !state.HasRefreshToken {
		err = s.markNeedsReauth(ctx, integration, "access token expired and no refresh token is stored")
		return Integration{}, err
	}
	if !ShouldRefresh(now, state, s.refreshLeadWindow()) {
		return integration, nil
	}

	refreshed, refreshErr := s.refreshUnderLock(ctx, integration)
	if refreshErr != nil {
		err = refreshErr
		return Integration{}, err
	}
	return refreshed, nil
}

func (s *Service) refreshUnderLock(ctx context.Context, integration Integration) (Integration, error) {
	if s.integrationLocker != nil {
		handle, lockErr := s.integrationLocker.Acquire(ctx, integration.ID, s.lockTTL())
		if lockErr != nil {
			// Someone else is refreshing. Re-read; their refresh may have
			// already landed.
			current, getErr := s.integrationStore.Get(ctx, integration.UserID, integration.ID)
			if getErr != nil {
				return Integration{}, s.mapError(getErr)
			}
			if !current.TokenExpired(s.nowUTC(), 0) {
				return current, nil
			}
			return Integration{}, s.mapError(lockErr)
		}
		defer func() { _ = handle.Unlock(ctx) }()
	}

	provider, err := s.resolveProvider(integration.Provider)
	if err != nil {
		return Integration{}, err
	}

	grant, refreshErr := provider.Refresh(ctx, integration.RefreshToken)
	if refreshErr != nil {
		if markErr := s.markNeedsReauth(ctx, integration, refreshErr.Error()); markErr != nil {
			return Integration{}, markErr
		}
		return Integration{}, s.mapError(refreshErr)
	}
	// Providers may rotate or withhold the refresh token; keep the previous
	// one when the response omits it.
	if strings.TrimSpace(grant.RefreshToken) == "" {
		grant.RefreshToken = integration.RefreshToken
	}
	if err := s.integrationStore.SaveTokens(ctx, integration.ID, grant); err != nil {
		return Integration{}, s.mapError(err)
	}
	refreshed, err := s.integrationStore.Get(ctx, integration.UserID, integration.ID)
	if err != nil {
		return Integration{}, s.mapError(err)
	}
	return refreshed, nil
}

func (s *Service) markNeedsReauth(ctx context.Context, integration Integration, reason string) error {
	if s.integrationStore == nil {
		return s.mapError(fmt.Errorf("core: integration store is not configured"))
	}
	if err := s.integrationStore.UpdateStatus(ctx, integration.ID, IntegrationStatusPendingReauth, reason); err != nil {
		return s.mapError(err)
	}
	return s.mapError(fmt.Errorf("core: integration %s requires re-authorization: %s", integration.ID, reason))
}

func (s *Service) resolveProvider(id Provider) (CalendarProvider, error) {
	if s == nil || s.registry == nil {
		return nil, s.mapError(fmt.Errorf("core: provider registry is not configured"))
	}
	parsed, err := ParseProvider(string(id))
	if err != nil {
		return nil, s.mapError(err)
	}
	provider, ok := s.registry.Get(parsed)
	if !ok {
		return nil, s.mapError(fmt.Errorf("core: provider not registered: %s", parsed))
	}
	return provider, nil
}

func (s *Service) refreshLeadWindow() time.Duration {
	if s != nil && s.config.Sync.RefreshLeadWindow > 0 {
		return s.config.Sync.RefreshLeadWindow
	}
	return DefaultRefreshLeadWindow
}

func (s *Service) lockTTL() time.Duration {
	if s != nil && s.config.Sync.LockTTL > 0 {
		return s.config.Sync.LockTTL
	}
	return defaultLockTTL
}

func (s *Service) nowUTC() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func copyAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
