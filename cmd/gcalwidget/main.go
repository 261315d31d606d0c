package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/xdoubleu/essentia/v2/pkg/sentrytools"

	"github.com/beekhof/calendar-widget/internal/auth"
	"github.com/beekhof/calendar-widget/internal/config"
	"github.com/beekhof/calendar-widget/internal/ical"
	"github.com/beekhof/calendar-widget/internal/server"
	"github.com/beekhof/calendar-widget/internal/widget"
)

const description = `Fetches upcoming events from one or more public Google Calendars, merges
them into a single chronological agenda and renders it as an expandable
HTML widget.

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (GCAL_WIDGET_API_KEY, GOOGLE_APPLICATION_CREDENTIALS,
       GCAL_WIDGET_LISTEN, GCAL_WIDGET_TIMEZONE, GCAL_WIDGET_REFRESH,
       GCAL_WIDGET_MAX_RESULTS, GCAL_WIDGET_ENV, GCAL_WIDGET_SAMPLE_RATE,
       SENTRY_DSN)
    3. Config file (--config)
    4. Defaults

Without --config a single widget named calendar-1 is served with default
settings.

CONFIG FILE (YAML or JSON):
    api_key: AIza...
    timezone: Europe/Berlin
    markup: markdown
    allowed_origins: [https://www.example.com]
    sentry_dsn: https://key@sentry.example.com/1
    widgets:
      - name: sidebar
        title: Upcoming
        calendars:
          - team@group.calendar.google.com, holidays@group.calendar.google.com
        max_results: 10
        auto_expand: false
        title_format: "[STARTTIME - ][TITLE]"

EXAMPLES:
    # Render the default widget with just an API key
    gcalwidget --api-key AIza... render

    # Serve every configured widget
    gcalwidget --config widgets.yaml serve

    # Print the HTML of one widget
    gcalwidget --config widgets.yaml render --widget sidebar

    # Export the merged agenda of one widget as iCalendar
    gcalwidget --config widgets.yaml export --widget sidebar > sidebar.ics`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand(stdout io.Writer) *cli.Command {
	widgetFlag := &cli.StringFlag{
		Name:  "widget",
		Usage: "name of the widget (defaults to the first configured widget)",
	}

	return &cli.Command{
		Name:        "gcalwidget",
		Usage:       "Render Google Calendar agenda widgets",
		Description: description,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to the YAML or JSON config file"},
			&cli.StringFlag{Name: "api-key", Usage: "Google API key (overrides config file and GCAL_WIDGET_API_KEY)"},
			&cli.StringFlag{Name: "credentials-file", Usage: "service account key file (overrides config file and GOOGLE_APPLICATION_CREDENTIALS)"},
			&cli.StringFlag{Name: "listen", Usage: "address to serve on (overrides config file and GCAL_WIDGET_LISTEN)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve all widgets over HTTP and refresh them on schedule",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					app, err := setup(ctx, cmd)
					if err != nil {
						return err
					}
					srv, err := server.NewServer(app.cfg, app.loader, app.logger)
					if err != nil {
						return err
					}
					return srv.Run(ctx)
				},
			},
			{
				Name:  "render",
				Usage: "load one widget and print its HTML",
				Flags: []cli.Flag{widgetFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					app, err := setup(ctx, cmd)
					if err != nil {
						return err
					}
					return app.render(ctx, stdout, cmd.String("widget"))
				},
			},
			{
				Name:  "export",
				Usage: "load one widget and print its agenda as iCalendar",
				Flags: []cli.Flag{widgetFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					app, err := setup(ctx, cmd)
					if err != nil {
						return err
					}
					return app.export(ctx, stdout, cmd.String("widget"))
				},
			},
		},
	}
}

type app struct {
	cfg    *config.Config
	loader *widget.Loader
	logger *slog.Logger
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func setup(ctx context.Context, cmd *cli.Command) (*app, error) {
	logger := newLogger(os.Stderr, cmd.Bool("verbose"))

	cfg, err := config.LoadConfig(cmd.String("config"), cmd.String("api-key"), cmd.String("credentials-file"), cmd.String("listen"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger = slog.New(sentrytools.NewLogHandler(cfg.Env, logger.Handler()))

	api := &widget.GoogleAPI{Endpoint: cfg.Endpoint}
	if cfg.CredentialsFile != "" {
		api.HTTPClient, err = auth.ServiceAccountClient(ctx, cfg.CredentialsFile, logger)
		if err != nil {
			return nil, err
		}
	} else if cfg.APIKey == "" {
		logger.Warn("no API key or credentials file configured; widgets will show an error")
	}

	loader, err := server.NewLoader(cfg, api, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, loader: loader, logger: logger}, nil
}

// selectWidget returns the widget called name, or the first widget when
// name is empty.
func selectWidget(cfg *config.Config, name string) (config.Widget, error) {
	if name == "" {
		return cfg.Widgets[0], nil
	}
	w, ok := cfg.Widget(name)
	if !ok {
		return config.Widget{}, fmt.Errorf("widget '%s' not found in config. Available widgets: %v", name, widgetNames(cfg.Widgets))
	}
	return w, nil
}

// widgetNames returns a slice of widget names from the widgets array.
func widgetNames(widgets []config.Widget) []string {
	names := make([]string, len(widgets))
	for i, w := range widgets {
		names[i] = w.Name
	}
	return names
}

// render writes the widget HTML even when the load failed, since the
// output element then carries the error message.
func (a *app) render(ctx context.Context, w io.Writer, name string) error {
	wd, err := selectWidget(a.cfg, name)
	if err != nil {
		return err
	}

	doc := widget.NewPage(wd.Name, wd.Title)
	_, loadErr := a.loader.Load(ctx, doc, server.WidgetParams(a.cfg, wd))
	if err := doc.Render(w); err != nil {
		return fmt.Errorf("failed to write widget: %w", err)
	}
	fmt.Fprintln(w)

	if loadErr != nil {
		return fmt.Errorf("widget %s: %w", wd.Name, loadErr)
	}
	return nil
}

func (a *app) export(ctx context.Context, w io.Writer, name string) error {
	wd, err := selectWidget(a.cfg, name)
	if err != nil {
		return err
	}

	res, err := a.loader.Load(ctx, widget.NewPage(wd.Name, wd.Title), server.WidgetParams(a.cfg, wd))
	if err != nil {
		return fmt.Errorf("widget %s: %w", wd.Name, err)
	}
	return ical.Encode(w, res.Events, time.Now())
}
