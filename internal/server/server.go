// Package server serves rendered calendar widgets over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/justinas/alice"
	"github.com/robfig/cron/v3"
	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"github.com/xdoubleu/essentia/v2/pkg/middleware"

	"github.com/beekhof/calendar-widget/internal/config"
	"github.com/beekhof/calendar-widget/internal/ical"
	"github.com/beekhof/calendar-widget/internal/render"
	"github.com/beekhof/calendar-widget/internal/widget"
)

// Server keeps the latest rendering of every configured widget in memory
// and exposes it over HTTP.
type Server struct {
	cfg     *config.Config
	loader  *widget.Loader
	logger  *slog.Logger
	now     func() time.Time
	mux     *http.ServeMux
	handler http.Handler
	gate    widget.Gate

	mu      sync.RWMutex
	widgets map[string]*entry
}

// entry is the current rendering of one widget. mu serializes reads of the
// document with item toggles.
type entry struct {
	mu       sync.Mutex
	doc      *render.Document
	result   *widget.Result
	err      error
	loadedAt time.Time
}

// NewServer constructs a new Server. Every widget starts out showing the
// loading placeholder until Start and Ready have run.
func NewServer(cfg *config.Config, loader *widget.Loader, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		loader:  loader,
		logger:  logger,
		now:     time.Now,
		mux:     http.NewServeMux(),
		widgets: make(map[string]*entry, len(cfg.Widgets)),
	}
	for _, w := range cfg.Widgets {
		s.widgets[w.Name] = &entry{doc: widget.NewPage(w.Name, w.Title)}
	}
	s.registerRoutes()

	var sentryClientOptions sentry.ClientOptions
	if cfg.SentryDSN != "" {
		sentryClientOptions = sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			EnableTracing:    true,
			TracesSampleRate: cfg.SampleRate,
			SampleRate:       cfg.SampleRate,
		}
	}

	handlers, err := middleware.DefaultWithSentry(
		logger,
		cfg.AllowedOrigins,
		cfg.Env,
		sentryClientOptions,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up middleware: %w", err)
	}
	s.handler = alice.New(handlers...).Then(s.mux)

	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start queues the initial load of every widget. The loads run once Ready
// is called.
func (s *Server) Start(ctx context.Context) {
	for _, w := range s.cfg.Widgets {
		name := w.Name
		doc := widget.NewPage(name, w.Title)
		s.loader.Defer(ctx, &s.gate, doc, WidgetParams(s.cfg, w), func(res *widget.Result, err error) {
			s.store(name, doc, res, err)
		})
	}
}

// Ready runs the queued initial loads. Loads requested afterwards run
// immediately.
func (s *Server) Ready() {
	s.gate.Ready()
}

// Refresh reloads the widget called name.
func (s *Server) Refresh(ctx context.Context, name string) error {
	w, ok := s.cfg.Widget(name)
	if !ok {
		return fmt.Errorf("unknown widget %q", name)
	}

	doc := widget.NewPage(w.Name, w.Title)
	res, err := s.loader.Load(ctx, doc, WidgetParams(s.cfg, w))
	s.store(name, doc, res, err)
	return err
}

// RefreshAll reloads every widget. Failures are logged; the widget then
// shows its error message until the next successful refresh.
func (s *Server) RefreshAll(ctx context.Context) {
	for _, w := range s.cfg.Widgets {
		if err := s.Refresh(ctx, w.Name); err != nil {
			s.logger.Warn("widget refresh failed", "widget", w.Name, logging.ErrAttr(err))
		}
	}
}

func (s *Server) store(name string, doc *render.Document, res *widget.Result, err error) {
	e := &entry{doc: doc, result: res, err: err, loadedAt: s.now()}

	s.mu.Lock()
	s.widgets[name] = e
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("widget load failed", "widget", name, logging.ErrAttr(err))
		return
	}
	s.logger.Debug("widget loaded", "widget", name, "events", len(res.Events))
}

func (s *Server) lookup(name string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.widgets[name]
}

// Run listens on the configured address, loads every widget and refreshes
// them on the configured schedule until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	s.Start(ctx)
	s.Ready()

	scheduler := cron.New(cron.WithLocation(s.cfg.Location()))
	if _, err := scheduler.AddFunc(s.cfg.Refresh, func() { s.RefreshAll(ctx) }); err != nil {
		_ = srv.Close()
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /widgets/{name}", s.handleWidget)
	s.mux.HandleFunc("GET /widgets/{name}/events.ics", s.handleICal)
	s.mux.HandleFunc("POST /widgets/{name}/items/{id}/toggle", s.handleToggle)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.gate.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("STARTING"))
		return
	}
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	e := s.lookup(r.PathValue("name"))
	if e == nil {
		http.NotFound(w, r)
		return
	}

	var buf bytes.Buffer
	e.mu.Lock()
	err := e.doc.Render(&buf)
	e.mu.Unlock()
	if err != nil {
		s.serverError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !e.loadedAt.IsZero() {
		w.Header().Set("Last-Modified", e.loadedAt.UTC().Format(http.TimeFormat))
	}
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	e := s.lookup(r.PathValue("name"))
	if e == nil {
		http.NotFound(w, r)
		return
	}
	if e.result == nil {
		http.Error(w, "widget has no loaded events", http.StatusConflict)
		return
	}

	id := r.PathValue("id")
	var buf bytes.Buffer
	e.mu.Lock()
	state, err := e.result.View.Toggle(id)
	if err == nil {
		err = e.result.View.RenderItem(&buf, id)
	}
	e.mu.Unlock()

	if errors.Is(err, render.ErrUnknownItem) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Item-State", state.String())
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleICal(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	e := s.lookup(name)
	if e == nil {
		http.NotFound(w, r)
		return
	}
	if e.result == nil {
		http.Error(w, "widget has no loaded events", http.StatusServiceUnavailable)
		return
	}

	var buf bytes.Buffer
	if err := ical.Encode(&buf, e.result.Events, s.now()); err != nil {
		s.serverError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".ics"))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", logging.ErrAttr(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
