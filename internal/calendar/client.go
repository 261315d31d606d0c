package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// ListRequest holds the parameters of one events.list call.
type ListRequest struct {
	CalendarID   string
	MaxResults   int
	SingleEvents bool
	OrderBy      string
	TimeMin      time.Time
}

// UpcomingRequest returns the request the widget issues for one calendar:
// expanded single events ordered by start time, starting at now.
func UpcomingRequest(calendarID string, maxResults int, now time.Time) ListRequest {
	return ListRequest{
		CalendarID:   calendarID,
		MaxResults:   maxResults,
		SingleEvents: true,
		OrderBy:      "startTime",
		TimeMin:      now,
	}
}

// Lister lists the events of a single calendar.
type Lister interface {
	ListEvents(ctx context.Context, req ListRequest) ([]*calendar.Event, error)
}

// Client is a wrapper around the Google Calendar API service.
type Client struct {
	service *calendar.Service
}

// Options configures how a Client reaches the Calendar API.
type Options struct {
	// APIKey authenticates requests for public calendars.
	APIKey string
	// HTTPClient, when set, is used instead of the API key (for example an
	// OAuth2 service-account client).
	HTTPClient *http.Client
	// Endpoint overrides the API base URL.
	Endpoint string
}

// NewClient creates a new Google Calendar API client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	var clientOpts []option.ClientOption
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	} else {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	service, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &Client{service: service}, nil
}

// ListEvents retrieves the events of one calendar.
// The error is returned unwrapped so callers can inspect *googleapi.Error.
func (c *Client) ListEvents(ctx context.Context, req ListRequest) ([]*calendar.Event, error) {
	call := c.service.Events.List(req.CalendarID).
		Context(ctx).
		SingleEvents(req.SingleEvents)
	if req.OrderBy != "" {
		call = call.OrderBy(req.OrderBy)
	}
	if req.MaxResults > 0 {
		call = call.MaxResults(int64(req.MaxResults))
	}
	if !req.TimeMin.IsZero() {
		call = call.TimeMin(req.TimeMin.Format(time.RFC3339))
	}

	events, err := call.Do()
	if err != nil {
		return nil, err
	}
	return events.Items, nil
}
