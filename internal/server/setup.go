package server

import (
	"fmt"
	"log/slog"

	"github.com/beekhof/calendar-widget/internal/config"
	"github.com/beekhof/calendar-widget/internal/markup"
	"github.com/beekhof/calendar-widget/internal/widget"
)

// NewLoader builds the loader shared by every widget of cfg.
func NewLoader(cfg *config.Config, api widget.API, logger *slog.Logger) (*widget.Loader, error) {
	converter, err := markup.New(cfg.Markup)
	if err != nil {
		return nil, fmt.Errorf("failed to create markup converter: %w", err)
	}

	loader := &widget.Loader{
		API:      api,
		Strings:  cfg.Strings,
		Location: cfg.Location(),
		Logger:   logger,
	}
	if converter != nil {
		loader.Markup = converter
	}
	return loader, nil
}

// WidgetParams returns the load parameters of w, rendering into the page
// built by widget.NewPage.
func WidgetParams(cfg *config.Config, w config.Widget) widget.Params {
	return widget.PageParams(w.Name, widget.Params{
		APIKey:      cfg.APIKey,
		Title:       w.Title,
		MaxResults:  w.MaxResults,
		AutoExpand:  w.AutoExpand,
		Calendars:   w.Calendars,
		TitleFormat: w.TitleFormat,
	})
}
