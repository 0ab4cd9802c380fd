package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CalendarErrorBadInput             = "CALENDAR_BAD_INPUT"
	CalendarErrorProviderNotFound     = "CALENDAR_PROVIDER_NOT_FOUND"
	CalendarErrorPopupBlocked         = "CALENDAR_POPUP_BLOCKED"
	CalendarErrorTokenExchangeFailed  = "CALENDAR_TOKEN_EXCHANGE_FAILED"
	CalendarErrorDirectoryFetchFailed = "CALENDAR_DIRECTORY_FETCH_FAILED"
	CalendarErrorFlowCancelled        = "CALENDAR_FLOW_CANCELLED"
	CalendarErrorOAuthStateInvalid    = "CALENDAR_OAUTH_STATE_INVALID"
	CalendarErrorOwnershipDenied      = "CALENDAR_OWNERSHIP_DENIED"
	CalendarErrorDuplicate            = "CALENDAR_DUPLICATE_INTEGRATION"
	CalendarErrorSyncFailed           = "CALENDAR_SYNC_FAILED"
	CalendarErrorSyncInFlight         = "CALENDAR_SYNC_IN_FLIGHT"
	CalendarErrorRepository           = "CALENDAR_REPOSITORY_ERROR"
	CalendarErrorInternal             = "CALENDAR_INTERNAL_ERROR"
)

var (
	// ErrPopupBlocked maps the browser refusing to open the OAuth popup;
	// remediation is user-facing ("allow popups"), never a retry loop.
	ErrPopupBlocked = errors.New("core: oauth popup was blocked")
	// ErrFlowCancelled is the normal abort raised when the popup closes
	// without ever delivering a handshake message.
	ErrFlowCancelled = errors.New("core: oauth flow was cancelled")
	ErrSyncInFlight  = errors.New("core: sync already running for integration")
)

// TokenExchangeError carries the provider and HTTP status of a rejected code
// exchange. Authorization codes are single-use, so this is never retried.
type TokenExchangeError struct {
	Provider Provider
	Status   int
	Detail   string
}

func (e *TokenExchangeError) Error() string {
	detail := strings.TrimSpace(e.Detail)
	if detail == "" {
		detail = "token exchange rejected"
	}
	return fmt.Sprintf("core: %s token exchange failed (%d): %s", e.Provider, e.Status, detail)
}

// DirectoryFetchError is non-fatal: callers fall back to the primary
// calendar rather than failing the whole connect flow.
type DirectoryFetchError struct {
	Provider Provider
	Status   int
}

func (e *DirectoryFetchError) Error() string {
	return fmt.Sprintf("core: %s calendar directory fetch failed (%d)", e.Provider, e.Status)
}

// UserFacingMessage extracts a message safe to surface in a toast. Rich
// errors carry one already; anything else falls back to a generic line so
// internals never leak to the UI.
func UserFacingMessage(err error) string {
	if err == nil {
		return ""
	}
	mapped := calendarErrorMapper(err)
	if mapped == nil {
		return ""
	}
	if mapped.Category == goerrors.CategoryInternal {
		return "An unexpected error occurred"
	}
	return strings.TrimSpace(mapped.Message)
}

func calendarErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureCalendarErrorEnvelope(richErr)
	}

	var exchangeErr *TokenExchangeError
	if errors.As(err, &exchangeErr) {
		return newCalendarError(err.Error(), goerrors.CategoryAuth, CalendarErrorTokenExchangeFailed)
	}
	var directoryErr *DirectoryFetchError
	if errors.As(err, &directoryErr) {
		return newCalendarError(err.Error(), goerrors.CategoryOperation, CalendarErrorDirectoryFetchFailed)
	}

	switch {
	case errors.Is(err, ErrPopupBlocked):
		return newCalendarError(err.Error(), goerrors.CategoryOperation, CalendarErrorPopupBlocked)
	case errors.Is(err, ErrFlowCancelled):
		return newCalendarError(err.Error(), goerrors.CategoryOperation, CalendarErrorFlowCancelled)
	case errors.Is(err, ErrSyncInFlight):
		return newCalendarError(err.Error(), goerrors.CategoryConflict, CalendarErrorSyncInFlight)
	case errors.Is(err, ErrIntegrationOwnership):
		return newCalendarError(err.Error(), goerrors.CategoryAuthz, CalendarErrorOwnershipDenied)
	case errors.Is(err, ErrDuplicateIntegration):
		return newCalendarError(err.Error(), goerrors.CategoryConflict, CalendarErrorDuplicate)
	case errors.Is(err, ErrIntegrationNotFound):
		return newCalendarError(err.Error(), goerrors.CategoryNotFound, CalendarErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "provider") && strings.Contains(msg, "not registered"):
		return newCalendarError(err.Error(), goerrors.CategoryNotFound, CalendarErrorProviderNotFound)
	case strings.Contains(msg, "oauth state"):
		return newCalendarError(err.Error(), goerrors.CategoryAuth, CalendarErrorOAuthStateInvalid)
	case strings.Contains(msg, "sync"):
		return newCalendarError(err.Error(), goerrors.CategoryOperation, CalendarErrorSyncFailed)
	case strings.Contains(msg, "store"), strings.Contains(msg, "repository"):
		return newCalendarError(err.Error(), goerrors.CategoryInternal, CalendarErrorRepository)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newCalendarError(err.Error(), goerrors.CategoryBadInput, CalendarErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureCalendarErrorEnvelope(mapped)
}

func newCalendarError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureCalendarErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureCalendarErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = calendarHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultCalendarTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultCalendarTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return CalendarErrorBadInput
	case goerrors.CategoryNotFound:
		return CalendarErrorProviderNotFound
	case goerrors.CategoryAuth:
		return CalendarErrorTokenExchangeFailed
	case goerrors.CategoryAuthz:
		return CalendarErrorOwnershipDenied
	case goerrors.CategoryConflict:
		return CalendarErrorDuplicate
	case goerrors.CategoryOperation:
		return CalendarErrorSyncFailed
	default:
		return CalendarErrorInternal
	}
}

func calendarHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
