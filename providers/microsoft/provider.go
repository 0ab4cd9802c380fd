package microsoft

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
	AuthURL  = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	TokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	BaseURL  = "https://graph.microsoft.com/v1.0"
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
			"offline_access",
			"Calendars.ReadWrite",
			"User.Read",
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
		Provider:           core.ProviderMicrosoft,
		AuthURL:            cfg.AuthURL,
		TokenURL:           cfg.TokenURL,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		DefaultScopes:      cfg.Scopes,
		ExtraAuthParams: map[string]string{
			"response_mode": "query",
			"prompt":        "consent",
		},
		TokenTTL:    cfg.TokenTTL,
		Now:         cfg.Now,
		HTTPClient:  cfg.HTTPClient,
		CalendarAPI: graphAPI{baseURL: strings.TrimRight(cfg.BaseURL, "/")},
	})
}

type graphAPI struct {
	baseURL string
}

type calendarListPayload struct {
	Value []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		IsDefault   bool   `json:"isDefaultCalendar"`
	} `json:"value"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type eventPayload struct {
	ID           string        `json:"id,omitempty"`
	Subject      string        `json:"subject,omitempty"`
	Body         *graphBody    `json:"body,omitempty"`
	BodyPreview  string        `json:"bodyPreview,omitempty"`
	IsCancelled  bool          `json:"isCancelled,omitempty"`
	Start        graphDateTime `json:"start,omitempty"`
	End          graphDateTime `json:"end,omitempty"`
	LastModified string        `json:"lastModifiedDateTime,omitempty"`
}

type eventListPayload struct {
	Value []eventPayload `json:"value"`
}

// graphTimeLayout is what Graph emits for event start/end: fractional
// seconds, no zone suffix, interpreted via the companion timeZone field.
const graphTimeLayout = "2006-01-02T15:04:05.9999999"

func (a graphAPI) ListCalendars(ctx context.Context, client providers.HTTPDoer, accessToken string) ([]core.CalendarDescriptor, error) {
	var payload calendarListPayload
	if err := providers.DoJSON(ctx, client, http.MethodGet, a.baseURL+"/me/calendars", accessToken, nil, &payload); err != nil {
		return nil, wrapDirectoryError(err)
	}
	calendars := make([]core.CalendarDescriptor, 0, len(payload.Value))
	for _, item := range payload.Value {
		calendars = append(calendars, core.CalendarDescriptor{
			ID:          item.ID,
			Name:        item.Name,
			Description: item.Description,
			Primary:     item.IsDefault,
		})
	}
	return calendars, nil
}

func (a graphAPI) ListEvents(ctx context.Context, client providers.HTTPDoer, accessToken string, calendarID string, updatedSince *time.Time) ([]core.CalendarEvent, error) {
	endpoint := fmt.Sprintf("%s/me/calendars/%s/events", a.baseURL, url.PathEscape(calendarID))
	if updatedSince != nil {
		filter := fmt.Sprintf("lastModifiedDateTime ge %s", updatedSince.UTC().Format(time.RFC3339))
		endpoint += "?" + url.Values{"$filter": []string{filter}}.Encode()
	}
	var payload eventListPayload
	if err := providers.DoJSON(ctx, client, http.MethodGet, endpoint, accessToken, nil, &payload); err != nil {
		return nil, err
	}
	events := make([]core.CalendarEvent, 0, len(payload.Value))
	for _, item := range payload.Value {
		events = append(events, eventFromPayload(item, calendarID))
	}
	return events, nil
}

func (a graphAPI) CreateEvent(ctx context.Context, client providers.HTTPDoer, accessToken string, calendarID string, event core.CalendarEvent) (core.CalendarEvent, error) {
	endpoint := fmt.Sprintf("%s/me/calendars/%s/events", a.baseURL, url.PathEscape(calendarID))
	var created eventPayload
	if err := providers.DoJSON(ctx, client, http.MethodPost, endpoint, accessToken, eventToPayload(event), &created); err != nil {
		return core.CalendarEvent{}, err
	}
	return eventFromPayload(created, calendarID), nil
}

func (a graphAPI) UpdateEvent(ctx context.Context, client providers.HTTPDoer, accessToken string, calendarID string, event core.CalendarEvent) (core.CalendarEvent, error) {
	if strings.TrimSpace(event.ID) == "" {
		return core.CalendarEvent{}, fmt.Errorf("microsoft: event id is required for update")
	}
	endpoint := fmt.Sprintf("%s/me/events/%s", a.baseURL, url.PathEscape(event.ID))
	var updated eventPayload
	if err := providers.DoJSON(ctx, client, http.MethodPatch, endpoint, accessToken, eventToPayload(event), &updated); err != nil {
		return core.CalendarEvent{}, err
	}
	return eventFromPayload(updated, calendarID), nil
}

func eventToPayload(event core.CalendarEvent) eventPayload {
	payload := eventPayload{
		Subject: event.Title,
		Start:   graphDateTime{DateTime: event.StartsAt.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
		End:     graphDateTime{DateTime: event.EndsAt.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
	}
	if strings.TrimSpace(event.Description) != "" {
		payload.Body = &graphBody{ContentType: "text", Content: event.Description}
	}
	return payload
}

func eventFromPayload(payload eventPayload, calendarID string) core.CalendarEvent {
	event := core.CalendarEvent{
		ID:         payload.ID,
		CalendarID: calendarID,
		Title:      payload.Subject,
		Cancelled:  payload.IsCancelled,
		StartsAt:   parseGraphTime(payload.Start),
		EndsAt:     parseGraphTime(payload.End),
	}
	if payload.Body != nil && strings.TrimSpace(payload.Body.Content) != "" {
		event.Description = payload.Body.Content
	} else {
		event.Description = payload.BodyPreview
	}
	if updated, err := time.Parse(time.RFC3339, payload.LastModified); err == nil {
		event.UpdatedAt = updated.UTC()
	}
	return event
}

func parseGraphTime(value graphDateTime) time.Time {
	raw := strings.TrimSpace(value.DateTime)
	if raw == "" {
		return time.Time{}
	}
	location := time.UTC
	if zone := strings.TrimSpace(value.TimeZone); zone != "" && !strings.EqualFold(zone, "UTC") {
		if loaded, err := time.LoadLocation(zone); err == nil {
			location = loaded
		}
	}
	if parsed, err := time.ParseInLocation(graphTimeLayout, raw, location); err == nil {
		return parsed.UTC()
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC()
	}
	return time.Time{}
}

func wrapDirectoryError(err error) error {
	var apiErr *providers.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", &core.DirectoryFetchError{Provider: core.ProviderMicrosoft, Status: apiErr.Status}, apiErr.Body)
	}
	return err
}
