package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"golang.org/x/net/html/atom"
	"google.golang.org/api/calendar/v3"

	calclient "github.com/beekhof/calendar-widget/internal/calendar"
	"github.com/beekhof/calendar-widget/internal/feed"
	"github.com/beekhof/calendar-widget/internal/format"
	"github.com/beekhof/calendar-widget/internal/render"
)

// Messages shown inside the output element when loading fails.
const (
	MissingAPIKeyMessage = "Error: Google API Key is not set. Please configure it in the plugin settings."
	APILoadMessage       = "Error loading Google Calendar API. Please check your API key."
	TransportMessage     = "Error loading calendar events. Please check your API key and calendar IDs."
)

var (
	// ErrMissingAPIKey means no API key (or credentials) were configured.
	ErrMissingAPIKey = errors.New("google API key is not set")
	// ErrAPILoad means the Calendar API client could not be set up.
	ErrAPILoad = errors.New("failed to load calendar API")
	// ErrTransport means the batched list request failed as a whole.
	ErrTransport = errors.New("failed to fetch calendar events")
	// ErrNoContainer means the output element does not exist.
	ErrNoContainer = render.ErrNoContainer
)

// API hands out a Calendar API client for one load.
type API interface {
	Load(ctx context.Context, apiKey string) (calclient.Lister, error)
}

// GoogleAPI creates a fresh Calendar API client for every load, so loads
// with different keys never share client state.
type GoogleAPI struct {
	// Endpoint overrides the API base URL.
	Endpoint string
	// HTTPClient, when set, authenticates requests instead of the API key.
	HTTPClient *http.Client
}

// Load implements API.
func (g *GoogleAPI) Load(ctx context.Context, apiKey string) (calclient.Lister, error) {
	if apiKey == "" && g.HTTPClient == nil {
		return nil, ErrMissingAPIKey
	}
	return calclient.NewClient(ctx, calclient.Options{
		APIKey:     apiKey,
		HTTPClient: g.HTTPClient,
		Endpoint:   g.Endpoint,
	})
}

// Params are the per-widget settings of one load.
type Params struct {
	APIKey          string
	Title           string
	TitleElementID  string
	OutputElementID string
	MaxResults      int
	AutoExpand      bool
	// Calendars are the configured calendar fields; each may hold several
	// comma-separated IDs.
	Calendars   []string
	TitleFormat string
}

// Result is the outcome of a successful load.
type Result struct {
	View        *render.View
	Events      []*calendar.Event
	CalendarIDs []string
}

// Loader fetches, merges and renders the calendars of a widget.
type Loader struct {
	API      API
	Strings  format.Strings
	Markup   render.Converter
	Location *time.Location
	Logger   *slog.Logger
	// Now returns the lower bound for listed events; defaults to time.Now.
	Now func() time.Time
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Loader) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

func (l *Loader) location() *time.Location {
	if l.Location == nil {
		return time.Local
	}
	return l.Location
}

// Load renders the widget described by p into doc.
//
// Whatever happens, the output element ends up showing either the agenda or
// an error message; the returned error only reports what went wrong.
// Calendars that fail individually are logged and left out.
func (l *Loader) Load(ctx context.Context, doc *render.Document, p Params) (*Result, error) {
	logger := l.logger().With("output", p.OutputElementID)

	if p.Title != "" {
		if titleEl := doc.ElementByID(p.TitleElementID); titleEl != nil {
			render.SetText(titleEl, p.Title)
		}
	}

	calendarIDs := FlattenCalendarIDs(p.Calendars...)

	lister, err := l.API.Load(ctx, p.APIKey)
	if err != nil {
		if errors.Is(err, ErrMissingAPIKey) {
			logger.Error("google API key is not set")
			return nil, l.showError(doc, p.OutputElementID, MissingAPIKeyMessage, ErrMissingAPIKey)
		}
		logger.Error("Error loading Google Calendar API: "+err.Error(), logging.ErrAttr(err))
		return nil, l.showError(doc, p.OutputElementID, APILoadMessage, fmt.Errorf("%w: %w", ErrAPILoad, err))
	}

	now := l.now()
	batch := calclient.NewBatch(lister)
	for _, id := range calendarIDs {
		batch.Add(calclient.UpcomingRequest(id, p.MaxResults, now), id)
	}

	results, err := batch.Execute(ctx)
	if err != nil {
		logger.Error("Error fetching calendar events", logging.ErrAttr(err))
		return nil, l.showError(doc, p.OutputElementID, TransportMessage, fmt.Errorf("%w: %w", ErrTransport, err))
	}

	// The key is only checked by the API on first use, so a rejected key
	// surfaces here as a per-calendar error.
	for _, r := range results {
		if calclient.IsKeyRejection(r.Err) {
			logger.Error("Error loading Google Calendar API: "+r.Message(), "calendar", r.Key)
			return nil, l.showError(doc, p.OutputElementID, APILoadMessage, fmt.Errorf("%w: %w", ErrAPILoad, r.Err))
		}
	}

	events := feed.Merge(results, p.MaxResults, l.location(), logger)

	builder := &render.Builder{
		TitleFormat: p.TitleFormat,
		AutoExpand:  p.AutoExpand,
		Formatter:   format.New(l.Strings, l.location()),
		Markup:      l.Markup,
		Logger:      logger,
	}
	view, err := builder.Render(doc, p.OutputElementID, events)
	if err != nil {
		return nil, err
	}

	logger.Debug("calendar rendered", "calendars", len(calendarIDs), "events", len(events))
	return &Result{View: view, Events: events, CalendarIDs: calendarIDs}, nil
}

// showError replaces the content of the output element with msg and returns err.
func (l *Loader) showError(doc *render.Document, outputID, msg string, err error) error {
	out := doc.ElementByID(outputID)
	if out == nil {
		l.logger().Error("could not find output element", "id", outputID)
		return errors.Join(err, fmt.Errorf("%w: %s", ErrNoContainer, outputID))
	}
	render.ClearChildren(out)
	errDiv := render.Element(atom.Div, render.ClassError)
	render.SetText(errDiv, msg)
	out.AppendChild(errDiv)
	return err
}

// FlattenCalendarIDs expands the configured calendar fields into calendar
// IDs. Empty fields are skipped, each field is split on commas and every ID
// is trimmed; empty IDs are dropped.
func FlattenCalendarIDs(fields ...string) []string {
	var ids []string
	for _, field := range fields {
		if field == "" {
			continue
		}
		for _, id := range strings.Split(field, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
