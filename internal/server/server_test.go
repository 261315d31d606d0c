package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	configtools "github.com/xdoubleu/essentia/v2/pkg/config"
	"google.golang.org/api/calendar/v3"

	"github.com/beekhof/calendar-widget/internal/calendar/calendartest"
	"github.com/beekhof/calendar-widget/internal/config"
	"github.com/beekhof/calendar-widget/internal/format"
	"github.com/beekhof/calendar-widget/internal/render"
	"github.com/beekhof/calendar-widget/internal/widget"
)

var now = time.Date(2025, 4, 15, 6, 0, 0, 0, time.UTC)

func at(id string, hour int) *calendar.Event {
	start := time.Date(2025, 4, 15, hour, 0, 0, 0, time.UTC)
	return &calendar.Event{
		Id:          id,
		Summary:     "Event " + id,
		Description: "About " + id,
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: start.Add(time.Hour).Format(time.RFC3339)},
	}
}

func testConfig(apiKey string) *config.Config {
	return &config.Config{
		APIKey:  apiKey,
		Env:     configtools.TestEnv,
		Refresh: config.DefaultRefresh,
		Strings: format.DefaultStrings(),
		Widgets: []config.Widget{{
			Name:        "team",
			Title:       "Team",
			Calendars:   []string{"cal1@example.com", "cal2@example.com"},
			MaxResults:  5,
			TitleFormat: "[TITLE]",
		}},
	}
}

func newTestServer(t *testing.T, api *calendartest.Server, cfg *config.Config) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader, err := NewLoader(cfg, &widget.GoogleAPI{Endpoint: api.Endpoint()}, logger)
	require.NoError(t, err)
	loader.Now = func() time.Time { return now }

	s, err := NewServer(cfg, loader, logger)
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	return s
}

func do(t *testing.T, h http.Handler, method, path string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_InitialLoadWaitsForReady(t *testing.T) {
	api := calendartest.NewServer()
	defer api.Close()
	api.AddEvent("cal1@example.com", at("a", 9))
	api.AddEvent("cal2@example.com", at("b", 10))

	s := newTestServer(t, api, testConfig("key"))
	h := s.Handler()

	s.Start(context.Background())

	resp, body := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "STARTING", body)

	resp, body = do(t, h, http.MethodGet, "/widgets/team")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, widget.LoadingText)
	assert.Empty(t, api.Requests())

	s.Ready()

	resp, body = do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)

	resp, body = do(t, h, http.MethodGet, "/widgets/team")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("Last-Modified"))
	assert.Contains(t, body, `id="widget-team-widget_title"`)
	assert.Contains(t, body, "Event a")
	assert.Contains(t, body, "Event b")
	assert.Less(t, strings.Index(body, "Event a"), strings.Index(body, "Event b"))
	assert.NotContains(t, body, widget.LoadingText)
	assert.Len(t, api.Requests(), 2)
}

func TestServer_Toggle(t *testing.T) {
	api := calendartest.NewServer()
	defer api.Close()
	api.AddEvent("cal1@example.com", at("a", 9))

	s := newTestServer(t, api, testConfig("key"))
	s.Start(context.Background())
	s.Ready()
	h := s.Handler()

	path := "/widgets/team/items/widget-team-widget_events-item-a/toggle"

	resp, body := do(t, h, http.MethodPost, path)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, render.Expanded.String(), resp.Header.Get("X-Item-State"))
	assert.Contains(t, body, render.ClassEntryBody)
	assert.Contains(t, body, "About a")

	_, page := do(t, h, http.MethodGet, "/widgets/team")
	assert.Contains(t, page, "About a")

	resp, body = do(t, h, http.MethodPost, path)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, render.Collapsed.String(), resp.Header.Get("X-Item-State"))
	assert.NotContains(t, body, render.ClassEntryBody)

	resp, _ = do(t, h, http.MethodPost, "/widgets/team/items/widget-team-widget_events-item-zz/toggle")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, h, http.MethodGet, path)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_UnknownWidget(t *testing.T) {
	api := calendartest.NewServer()
	defer api.Close()

	s := newTestServer(t, api, testConfig("key"))
	h := s.Handler()

	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/widgets/nope"},
		{http.MethodGet, "/widgets/nope/events.ics"},
		{http.MethodPost, "/widgets/nope/items/x/toggle"},
	} {
		resp, _ := do(t, h, tt.method, tt.path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, tt.path)
	}

	assert.Error(t, s.Refresh(context.Background(), "nope"))
}

func TestServer_ICalExport(t *testing.T) {
	api := calendartest.NewServer()
	defer api.Close()
	api.AddEvent("cal1@example.com", at("a", 9))
	api.AddEvent("cal2@example.com", at("b", 10))

	s := newTestServer(t, api, testConfig("key"))
	s.Start(context.Background())
	s.Ready()

	resp, body := do(t, s.Handler(), http.MethodGet, "/widgets/team/events.ics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "team.ics")
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Event a")
	assert.Contains(t, body, "SUMMARY:Event b")
	assert.Less(t, strings.Index(body, "Event a"), strings.Index(body, "Event b"))
}

func TestServer_Refresh(t *testing.T) {
	api := calendartest.NewServer()
	defer api.Close()
	api.AddEvent("cal1@example.com", at("a", 9))

	s := newTestServer(t, api, testConfig("key"))
	s.Start(context.Background())
	s.Ready()
	h := s.Handler()

	_, body := do(t, h, http.MethodGet, "/widgets/team")
	assert.NotContains(t, body, "Event late")

	api.AddEvent("cal2@example.com", at("late", 20))
	s.RefreshAll(context.Background())

	_, body = do(t, h, http.MethodGet, "/widgets/team")
	assert.Contains(t, body, "Event late")
}

func TestServer_MissingAPIKey(t *testing.T) {
	api := calendartest.NewServer()
	defer api.Close()

	s := newTestServer(t, api, testConfig(""))
	s.Start(context.Background())
	s.Ready()
	h := s.Handler()

	_, body := do(t, h, http.MethodGet, "/widgets/team")
	assert.Contains(t, body, widget.MissingAPIKeyMessage)
	assert.Empty(t, api.Requests())

	resp, _ := do(t, h, http.MethodPost, "/widgets/team/items/widget-team-widget_events-item-a/toggle")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, h, http.MethodGet, "/widgets/team/events.ics")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_PanicIsRecovered(t *testing.T) {
	api := calendartest.NewServer()
	defer api.Close()

	s := newTestServer(t, api, testConfig("key"))
	s.mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	resp, _ := do(t, s.Handler(), http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_ToggleFollowsEventAcrossRefresh(t *testing.T) {
	api := calendartest.NewServer()
	defer api.Close()
	api.AddEvent("cal1@example.com", at("a", 9))

	s := newTestServer(t, api, testConfig("key"))
	s.Start(context.Background())
	s.Ready()
	h := s.Handler()

	// An earlier event arrives and shifts "a" down the list.
	api.AddEvent("cal2@example.com", at("early", 7))
	s.RefreshAll(context.Background())

	resp, body := do(t, h, http.MethodPost, "/widgets/team/items/widget-team-widget_events-item-a/toggle")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "About a")
	assert.NotContains(t, body, "About early")
}

func TestNewLoader_InvalidMarkup(t *testing.T) {
	cfg := testConfig("key")
	cfg.Markup = "wiki"
	_, err := NewLoader(cfg, &widget.GoogleAPI{}, nil)
	assert.Error(t, err)
}

func TestWidgetParams(t *testing.T) {
	cfg := testConfig("key")
	p := WidgetParams(cfg, cfg.Widgets[0])
	assert.Equal(t, "key", p.APIKey)
	assert.Equal(t, "widget-team-widget_title", p.TitleElementID)
	assert.Equal(t, "widget-team-widget_events", p.OutputElementID)
	assert.Equal(t, []string{"cal1@example.com", "cal2@example.com"}, p.Calendars)
	assert.Equal(t, 5, p.MaxResults)
}
