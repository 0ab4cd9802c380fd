package microsoft

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-calendar-sync/core"
)

func newTestGraphServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/me/calendars", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[
			{"id":"AAMk-cal-1","name":"Calendar","isDefaultCalendar":true},
			{"id":"AAMk-cal-2","name":"Birthdays","description":"Contact birthdays"}
		]}`))
	})
	mux.HandleFunc("/me/calendars/AAMk-cal-1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"ev-new","subject":"Created",
				"start":{"dateTime":"2026-09-01T10:00:00.0000000","timeZone":"UTC"},
				"end":{"dateTime":"2026-09-01T11:00:00.0000000","timeZone":"UTC"},
				"lastModifiedDateTime":"2026-08-29T12:00:00Z"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[
			{"id":"ev-1","subject":"Review","bodyPreview":"agenda",
			 "start":{"dateTime":"2026-09-01T09:00:00.0000000","timeZone":"UTC"},
			 "end":{"dateTime":"2026-09-01T10:00:00.0000000","timeZone":"UTC"},
			 "lastModifiedDateTime":"2026-08-28T08:00:00Z"},
			{"id":"ev-2","subject":"Cancelled sync","isCancelled":true,
			 "start":{"dateTime":"2026-09-02T09:00:00.0000000","timeZone":"UTC"},
			 "end":{"dateTime":"2026-09-02T10:00:00.0000000","timeZone":"UTC"},
			 "lastModifiedDateTime":"2026-08-28T09:00:00Z"}
		]}`))
	})
	return httptest.NewServer(mux)
}

func newTestProvider(t *testing.T, baseURL string) core.CalendarProvider {
	t.Helper()
	provider, err := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      baseURL,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return provider
}

func TestProviderID(t *testing.T) {
	provider := newTestProvider(t, BaseURL)
	if provider.ID() != core.ProviderMicrosoft {
		t.Fatalf("id = %s", provider.ID())
	}
}

func TestBeginAuthUsesQueryResponseMode(t *testing.T) {
	provider := newTestProvider(t, BaseURL)
	response, err := provider.BeginAuth(context.Background(), core.BeginAuthRequest{
		UserID:      "user-1",
		RedirectURI: "https://app.example.com/oauth/callback",
		State:       "state-1",
	})
	if err != nil {
		t.Fatalf("BeginAuth: %v", err)
	}
	if !strings.Contains(response.URL, "response_mode=query") {
		t.Fatalf("auth url missing response_mode: %s", response.URL)
	}
	if !strings.Contains(response.URL, "offline_access") {
		t.Fatalf("auth url missing offline_access scope: %s", response.URL)
	}
	if !strings.HasPrefix(response.URL, AuthURL) {
		t.Fatalf("auth url = %s", response.URL)
	}
}

func TestListCalendars(t *testing.T) {
	server := newTestGraphServer(t)
	defer server.Close()
	provider := newTestProvider(t, server.URL)

	calendars, err := provider.ListCalendars(context.Background(), "access-token")
	if err != nil {
		t.Fatalf("ListCalendars: %v", err)
	}
	if len(calendars) != 2 {
		t.Fatalf("calendars = %d, want 2", len(calendars))
	}
	if !calendars[0].Primary || calendars[0].Name != "Calendar" {
		t.Fatalf("unexpected default calendar: %+v", calendars[0])
	}
	if calendars[1].Description != "Contact birthdays" {
		t.Fatalf("description = %q, want %q", calendars[1].Description, "Contact birthdays")
	}
}

func TestListCalendarsFailureIsDirectoryFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	provider := newTestProvider(t, server.URL)

	_, err := provider.ListCalendars(context.Background(), "access-token")
	var directoryErr *core.DirectoryFetchError
	if !errors.As(err, &directoryErr) {
		t.Fatalf("err = %v, want DirectoryFetchError", err)
	}
	if directoryErr.Provider != core.ProviderMicrosoft {
		t.Fatalf("provider = %s", directoryErr.Provider)
	}
}

func TestListEvents(t *testing.T) {
	server := newTestGraphServer(t)
	defer server.Close()
	provider := newTestProvider(t, server.URL)

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	events, err := provider.ListEvents(context.Background(), "access-token", "AAMk-cal-1", &since)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Title != "Review" || events[0].Description != "agenda" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[0].StartsAt != time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC) {
		t.Fatalf("start = %v", events[0].StartsAt)
	}
	if !events[1].Cancelled {
		t.Fatalf("expected cancelled event: %+v", events[1])
	}
}

func TestCreateEvent(t *testing.T) {
	server := newTestGraphServer(t)
	defer server.Close()
	provider := newTestProvider(t, server.URL)

	created, err := provider.CreateEvent(context.Background(), "access-token", "AAMk-cal-1", core.CalendarEvent{
		Title:       "Created",
		Description: "notes",
		StartsAt:    time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		EndsAt:      time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if created.ID != "ev-new" {
		t.Fatalf("created id = %s", created.ID)
	}
	if created.StartsAt != time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) {
		t.Fatalf("start = %v", created.StartsAt)
	}
}

func TestParseGraphTimeZones(t *testing.T) {
	parsed := parseGraphTime(graphDateTime{DateTime: "2026-09-01T09:00:00.0000000", TimeZone: "UTC"})
	if parsed != time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC) {
		t.Fatalf("utc parse = %v", parsed)
	}
	if parseGraphTime(graphDateTime{}) != (time.Time{}) {
		t.Fatal("empty value should parse to zero time")
	}
}
