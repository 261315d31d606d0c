package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"

	"github.com/beekhof/calendar-widget/internal/calendar/calendartest"
	"github.com/beekhof/calendar-widget/internal/config"
	"github.com/beekhof/calendar-widget/internal/widget"
)

func writeConfig(t *testing.T, endpoint, apiKey string) string {
	t.Helper()
	content := fmt.Sprintf(`
api_key: %q
endpoint: %q
widgets:
  - name: first
    calendars: [cal1@example.com]
  - name: second
    title: Second
    calendars: ["cal1@example.com, cal2@example.com"]
    title_format: "[TITLE]"
`, apiKey, endpoint)
	path := filepath.Join(t.TempDir(), "widgets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func upcoming(id string, in time.Duration) *calendar.Event {
	start := time.Now().Add(in).UTC().Truncate(time.Minute)
	return &calendar.Event{
		Id:      id,
		Summary: "Event " + id,
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: start.Add(time.Hour).Format(time.RFC3339)},
	}
}

func TestRenderCommand(t *testing.T) {
	srv := calendartest.NewServer()
	defer srv.Close()
	srv.AddEvent("cal1@example.com", upcoming("a", 24*time.Hour))
	srv.AddEvent("cal2@example.com", upcoming("b", 48*time.Hour))

	var out bytes.Buffer
	err := newCommand(&out).Run(context.Background(), []string{
		"gcalwidget", "--config", writeConfig(t, srv.Endpoint(), "key"), "render", "--widget", "second",
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), `id="widget-second"`)
	assert.Contains(t, out.String(), "Second")
	assert.Contains(t, out.String(), "Event a")
	assert.Contains(t, out.String(), "Event b")
}

func TestRenderCommand_MissingKeyStillRenders(t *testing.T) {
	srv := calendartest.NewServer()
	defer srv.Close()

	var out bytes.Buffer
	err := newCommand(&out).Run(context.Background(), []string{
		"gcalwidget", "--config", writeConfig(t, srv.Endpoint(), ""), "render",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, widget.ErrMissingAPIKey)
	assert.Contains(t, out.String(), `id="widget-first"`)
	assert.Contains(t, out.String(), widget.MissingAPIKeyMessage)
}

func TestRenderCommand_WithoutConfigFile(t *testing.T) {
	t.Setenv("GCAL_WIDGET_API_KEY", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	var out bytes.Buffer
	err := newCommand(&out).Run(context.Background(), []string{"gcalwidget", "render"})
	assert.ErrorIs(t, err, widget.ErrMissingAPIKey)
	assert.Contains(t, out.String(), `id="widget-calendar-1"`)
	assert.Contains(t, out.String(), widget.MissingAPIKeyMessage)
}

func TestExportCommand(t *testing.T) {
	srv := calendartest.NewServer()
	defer srv.Close()
	srv.AddEvent("cal1@example.com", upcoming("a", 24*time.Hour))

	var out bytes.Buffer
	err := newCommand(&out).Run(context.Background(), []string{
		"gcalwidget", "--config", writeConfig(t, srv.Endpoint(), "key"), "export",
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, out.String(), "UID:a")
	assert.Contains(t, out.String(), "SUMMARY:Event a")
}

func TestSelectWidget(t *testing.T) {
	cfg := &config.Config{Widgets: []config.Widget{{Name: "one"}, {Name: "two"}}}

	w, err := selectWidget(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "one", w.Name)

	w, err = selectWidget(cfg, "two")
	require.NoError(t, err)
	assert.Equal(t, "two", w.Name)

	_, err = selectWidget(cfg, "three")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Available widgets: [one two]")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, false).Debug("hidden")
	assert.Empty(t, buf.String())

	newLogger(&buf, true).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
