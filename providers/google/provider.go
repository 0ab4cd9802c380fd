package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
	"github.com/goliatone/go-calendar-sync/providers"
)

const (
	AuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL = "https://oauth2.googleapis.com/token"
	BaseURL  = "https://www.googleapis.com/calendar/v3"
)

type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	BaseURL      string
	Scopes       []string
	TokenTTL     time.Duration
	HTTPClient   providers.HTTPDoer
	Now          func() time.Time
}

func DefaultConfig() Config {
	return Config{
		AuthURL:  AuthURL,
		TokenURL: TokenURL,
		BaseURL:  BaseURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/calendar",
			"https://www.googleapis.com/auth/userinfo.email",
		},
	}
}

func New(cfg Config) (core.CalendarProvider, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}
	return providers.NewOAuth2Provider(providers.OAuth2Config{
		Provider:           core.ProviderGoogle,
		AuthURL:            cfg.AuthURL,
		TokenURL:           cfg.TokenURL,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		DefaultScopes:      cfg.Scopes,
		// offline access plus forced consent so Google returns a refresh
		// token on every connect, not only the first one.
		ExtraAuthParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
		TokenTTL:    cfg.TokenTTL,
		Now:         cfg.Now,
		HTTPClient:  cfg.HTTPClient,
		CalendarAPI: calendarAPI{baseURL: strings.TrimRight(cfg.BaseURL, "/")},
	})
}

type calendarAPI struct {
	baseURL string
}

type calendarListPayload struct {
	Items []struct {
		ID          string `json:"id"`
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Primary     bool   `json:"primary"`
	} `json:"items"`
}

type eventTimePayload struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventPayload struct {
	ID          string           `json:"id,omitempty"`
	Summary     string           `json:"summary,omitempty"`
	Description string           `json:"description,omitempty"`
	Status      string           `json:"status,omitempty"`
	Start       eventTimePayload `json:"start,omitempty"`
	End         eventTimePayload `json:"end,omitempty"`
	Updated     string           `json:"updated,omitempty"`
}

type eventListPayload struct {
	Items []eventPayload `json:"items"`
}

func (a calendarAPI) ListCalendars(ctx context.Context, client providers.HTTPDoer, accessToken string) ([]core.CalendarDescriptor, error) {
	var payload calendarListPayload
	endpoint := a.baseURL + "/users/me/calendarList"
	if err := providers.DoJSON(ctx, client, http.MethodGet, endpoint, accessToken, nil, &payload); err != nil {
		return nil, wrapDirectoryError(err)
	}
	calendars := make([]core.CalendarDescriptor, 0, len(payload.Items))
	for _, item := range payload.Items {
		calendars = append(calendars, core.CalendarDescriptor{
			ID:          item.ID,
			Name:        item.Summary,
			Description: item.Description,
			Primary:     item.Primary,
		})
	}
	return calendars, nil
}

func (a calendarAPI) ListEvents(ctx context.Context, client providers.HTTPDoer, accessToken string, calendarID string, updatedSince *time.Time) ([]core.CalendarEvent, error) {
	query := url.Values{}
	query.Set("singleEvents", "true")
	query.Set("showDeleted", "true")
	if updatedSince != nil {
		query.Set("updatedMin", updatedSince.UTC().Format(time.RFC3339))
	}
	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", a.baseURL, url.PathEscape(calendarID), query.Encode())

	var payload eventListPayload
	if err := providers.DoJSON(ctx, client, http.MethodGet, endpoint, accessToken, nil, &payload); err != nil {
		return nil, err
	}
	events := make([]core.CalendarEvent, 0, len(payload.Items))
	for _, item := range payload.Items {
		events = append(events, eventFromPayload(item, calendarID))
	}
	return events, nil
}

func (a calendarAPI) CreateEvent(ctx context.Context, client providers.HTTPDoer, accessToken string, calendarID string, event core.CalendarEvent) (core.CalendarEvent, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events", a.baseURL, url.PathEscape(calendarID))
	var created eventPayload
	if err := providers.DoJSON(ctx, client, http.MethodPost, endpoint, accessToken, eventToPayload(event), &created); err != nil {
		return core.CalendarEvent{}, err
	}
	return eventFromPayload(created, calendarID), nil
}

func (a calendarAPI) UpdateEvent(ctx context.Context, client providers.HTTPDoer, accessToken string, calendarID string, event core.CalendarEvent) (core.CalendarEvent, error) {
	if strings.TrimSpace(event.ID) == "" {
		return core.CalendarEvent{}, fmt.Errorf("google: event id is required for update")
	}
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s", a.baseURL, url.PathEscape(calendarID), url.PathEscape(event.ID))
	var updated eventPayload
	if err := providers.DoJSON(ctx, client, http.MethodPut, endpoint, accessToken, eventToPayload(event), &updated); err != nil {
		return core.CalendarEvent{}, err
	}
	return eventFromPayload(updated, calendarID), nil
}

func eventToPayload(event core.CalendarEvent) eventPayload {
	payload := eventPayload{
		Summary:     event.Title,
		Description: event.Description,
		Start:       eventTimePayload{DateTime: event.StartsAt.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         eventTimePayload{DateTime: event.EndsAt.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}
	if event.Cancelled {
		payload.Status = "cancelled"
	}
	return payload
}

func eventFromPayload(payload eventPayload, calendarID string) core.CalendarEvent {
	event := core.CalendarEvent{
		ID:          payload.ID,
		CalendarID:  calendarID,
		Title:       payload.Summary,
		Description: payload.Description,
		Cancelled:   strings.EqualFold(payload.Status, "cancelled"),
		StartsAt:    parseEventTime(payload.Start),
		EndsAt:      parseEventTime(payload.End),
	}
	if updated, err := time.Parse(time.RFC3339, payload.Updated); err == nil {
		event.UpdatedAt = updated.UTC()
	}
	return event
}

func parseEventTime(payload eventTimePayload) time.Time {
	if strings.TrimSpace(payload.DateTime) != "" {
		if parsed, err := time.Parse(time.RFC3339, payload.DateTime); err == nil {
			return parsed.UTC()
		}
	}
	if strings.TrimSpace(payload.Date) != "" {
		if parsed, err := time.Parse("2006-01-02", payload.Date); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func wrapDirectoryError(err error) error {
	var apiErr *providers.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", &core.DirectoryFetchError{Provider: core.ProviderGoogle, Status: apiErr.Status}, apiErr.Body)
	}
	return err
}
