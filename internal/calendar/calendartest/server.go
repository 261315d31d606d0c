// Package calendartest provides a fake Google Calendar API v3 server for tests.
//
// Only the events.list endpoint is implemented. It honours the parameters the
// widget sends (timeMin, maxResults, singleEvents and orderBy=startTime) and
// can be told to fail individual calendars with an API error or to reject
// unknown API keys.
//
//	srv := calendartest.NewServer()
//	defer srv.Close()
//	srv.AddEvent("team@example.com", &calendar.Event{Id: "e1", ...})
//	client, _ := calclient.NewClient(ctx, calclient.Options{APIKey: "k", Endpoint: srv.Endpoint()})
package calendartest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/calendar/v3"
)

// Server is a fake Google Calendar API server.
type Server struct {
	*httptest.Server

	mu       sync.RWMutex
	events   map[string][]*calendar.Event // calendarID -> events
	failures map[string]failure
	requests []Request
	apiKey   string
}

type failure struct {
	code    int
	message string
}

// Request records the calendar and query of one list call.
type Request struct {
	CalendarID string
	Query      url.Values
}

// NewServer starts a fake Calendar API server.
func NewServer() *Server {
	s := &Server{
		events:   make(map[string][]*calendar.Event),
		failures: make(map[string]failure),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.Server = httptest.NewServer(mux)
	return s
}

// Endpoint returns the base URL to pass to option.WithEndpoint.
func (s *Server) Endpoint() string {
	return s.URL + "/"
}

// AddEvent stores ev in calendarID.
func (s *Server) AddEvent(calendarID string, ev *calendar.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[calendarID] = append(s.events[calendarID], ev)
}

// FailCalendar makes every list call for calendarID answer with an API error.
func (s *Server) FailCalendar(calendarID string, code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[calendarID] = failure{code: code, message: message}
}

// RequireAPIKey makes the server reject every list call whose key
// parameter is not key, the way the API answers an invalid key.
func (s *Server) RequireAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = key
}

// Requests returns the list calls received so far.
func (s *Server) Requests() []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Reset clears all events, failures and recorded requests.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]*calendar.Event)
	s.failures = make(map[string]failure)
	s.requests = nil
}

// handleRequest routes /calendars/{calendarId}/events.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	idx := strings.Index(path, "/calendars/")
	if idx == -1 {
		http.Error(w, "unsupported endpoint", http.StatusNotFound)
		return
	}

	parts := strings.Split(strings.Trim(path[idx+len("/calendars/"):], "/"), "/")
	if len(parts) != 2 || parts[1] != "events" {
		http.Error(w, fmt.Sprintf("invalid path: %v", parts), http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.listEvents(w, r, parts[0])
}

// listEvents handles GET /calendars/{calendarId}/events.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request, calendarID string) {
	query := r.URL.Query()

	s.mu.Lock()
	s.requests = append(s.requests, Request{CalendarID: calendarID, Query: query})
	fail, failed := s.failures[calendarID]
	stored := append([]*calendar.Event(nil), s.events[calendarID]...)
	wantKey := s.apiKey
	s.mu.Unlock()

	if wantKey != "" && query.Get("key") != wantKey {
		writeKeyRejection(w)
		return
	}
	if failed {
		writeAPIError(w, fail.code, fail.message)
		return
	}

	var timeMin time.Time
	if v := query.Get("timeMin"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "Bad Request")
			return
		}
		timeMin = t
	}

	var events []*calendar.Event
	for _, ev := range stored {
		if !timeMin.IsZero() && !endsAfter(ev, timeMin) {
			continue
		}
		events = append(events, ev)
	}

	if query.Get("orderBy") == "startTime" && query.Get("singleEvents") == "true" {
		sort.SliceStable(events, func(i, j int) bool {
			return startOf(events[i]).Before(startOf(events[j]))
		})
	}

	if v := query.Get("maxResults"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < len(events) {
			events = events[:n]
		}
	}

	resp := &calendar.Events{
		Kind:    "calendar#events",
		Summary: calendarID,
		Items:   events,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeAPIError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// writeKeyRejection answers like the API does for an unknown API key.
func writeKeyRejection(w http.ResponseWriter) {
	const message = "API key not valid. Please pass a valid API key."
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    http.StatusBadRequest,
			"message": message,
			"errors": []map[string]any{
				{"message": message, "domain": "global", "reason": "badRequest"},
			},
			"status": "INVALID_ARGUMENT",
			"details": []map[string]any{
				{
					"@type":  "type.googleapis.com/google.rpc.ErrorInfo",
					"reason": "API_KEY_INVALID",
					"domain": "googleapis.com",
				},
			},
		},
	})
}

// endsAfter reports whether ev is still running or upcoming at t.
func endsAfter(ev *calendar.Event, t time.Time) bool {
	end := parse(ev.End)
	if end.IsZero() {
		end = startOf(ev)
	}
	return end.After(t)
}

func startOf(ev *calendar.Event) time.Time {
	return parse(ev.Start)
}

func parse(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, dt.DateTime)
		return t
	}
	if dt.Date != "" {
		t, _ := time.Parse("2006-01-02", dt.Date)
		return t
	}
	return time.Time{}
}
