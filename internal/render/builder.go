package render

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/xdoubleu/essentia/v2/pkg/logging"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"google.golang.org/api/calendar/v3"

	calclient "github.com/beekhof/calendar-widget/internal/calendar"
	"github.com/beekhof/calendar-widget/internal/format"
)

// Class names of the generated markup.
const (
	ClassDate         = "google-calendar-widget-date"
	ClassEventList    = "google-calendar-widget-event-list"
	ClassEventItem    = "google-calendar-widget-event-item"
	ClassEntryTitle   = "google-calendar-widget-entry-title"
	ClassDateRow      = "google-calendar-widget-entry-date-row"
	ClassDateText     = "google-calendar-widget-entry-date-text"
	ClassLocationText = "google-calendar-widget-entry-location-text"
	ClassEntryBody    = "google-calendar-widget-entry-body"
	ClassNoEvents     = "google-calendar-widget-no-events"
	ClassError        = "google-calendar-widget-error"
	ClassLoading      = "google-calendar-widget-loading"
	ClassWidgetTitle  = "google-calendar-widget-title"
	ClassWidgetEvents = "google-calendar-widget-events"
)

const (
	// NoEventsMessage is shown when there is nothing to list.
	NoEventsMessage = "No upcoming events found."
	// DayLabelLayout formats the day headers, e.g. "Apr 15".
	DayLabelLayout = "Jan 02"

	attrAriaExpanded = "aria-expanded"
	itemIDSeparator  = "-item-"
)

var (
	// ErrNoContainer is returned when the output element cannot be found.
	ErrNoContainer = errors.New("output element not found")
	// ErrUnknownItem is returned when toggling an item that was not rendered.
	ErrUnknownItem = errors.New("unknown item")
)

// Converter turns event descriptions into HTML.
type Converter interface {
	ToHTML(text string) string
}

// Builder renders merged events as a day-grouped agenda.
type Builder struct {
	TitleFormat string
	AutoExpand  bool
	Formatter   *format.Formatter
	// Markup converts descriptions; when nil descriptions are inserted as HTML unchanged.
	Markup Converter
	Logger *slog.Logger
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

func (b *Builder) formatter() *format.Formatter {
	if b.Formatter == nil {
		return format.New(format.Strings{}, nil)
	}
	return b.Formatter
}

// Render replaces the children of the element containerID with the agenda
// for events.
//
// Events are grouped under a day label whenever the label changes from the
// previous event; the order of events is kept as given. Events without a
// start time are left out.
func (b *Builder) Render(doc *Document, containerID string, events []*calendar.Event) (*View, error) {
	container := doc.ElementByID(containerID)
	if container == nil {
		b.logger().Error("could not find output element", "id", containerID)
		return nil, fmt.Errorf("%w: %s", ErrNoContainer, containerID)
	}

	ClearChildren(container)

	view := &View{
		builder:   b,
		container: container,
		byID:      make(map[string]*Item),
	}

	if len(events) == 0 {
		noEvents := Element(atom.Div, ClassNoEvents)
		SetText(noEvents, NoEventsMessage)
		container.AppendChild(noEvents)
		return view, nil
	}

	f := b.formatter()
	template := b.TitleFormat
	if template == "" {
		template = format.DefaultTitleFormat
	}

	var (
		prevLabel string
		eventList *html.Node
	)
	for _, ev := range events {
		start, ok := calclient.StartTime(ev, f.Location).Instant()
		if !ok {
			continue
		}

		label := start.Format(DayLabelLayout)
		if eventList == nil || label != prevLabel {
			if eventList != nil {
				container.AppendChild(eventList)
			}

			dateDiv := Element(atom.Div, ClassDate)
			SetText(dateDiv, label)
			container.AppendChild(dateDiv)

			eventList = Element(atom.Div, ClassEventList)
			prevLabel = label
		}

		item, err := b.buildItem(view, containerID, ev, f.Title(template, ev))
		if err != nil {
			return nil, err
		}
		if b.AutoExpand {
			item.toggle()
		}
		eventList.AppendChild(item.node)
	}

	if eventList != nil {
		container.AppendChild(eventList)
	}

	return view, nil
}

func (b *Builder) buildItem(view *View, containerID string, ev *calendar.Event, title string) (*Item, error) {
	id := itemID(view, containerID, ev)

	li := Element(atom.Div, ClassEventItem)
	SetAttr(li, "id", id)

	entryTitle := Element(atom.A, ClassEntryTitle)
	SetAttr(entryTitle, "href", "#")
	SetAttr(entryTitle, "role", "button")
	SetAttr(entryTitle, attrAriaExpanded, "false")
	if err := SetInnerHTML(entryTitle, title); err != nil {
		return nil, fmt.Errorf("failed to render title of event %s: %w", ev.Id, err)
	}
	li.AppendChild(entryTitle)

	item := &Item{
		ID:      id,
		Event:   ev,
		view:    view,
		builder: b,
		node:    li,
	}
	view.items = append(view.items, item)
	view.byID[id] = item
	return item, nil
}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// itemID derives the element ID of ev from its event ID, so an ID stays
// bound to the same event across renders. Events without an ID fall back to
// their position; clashes get the position appended.
func itemID(view *View, containerID string, ev *calendar.Event) string {
	pos := strconv.Itoa(len(view.items))
	key := unsafeIDChars.ReplaceAllString(ev.Id, "_")
	if key == "" {
		key = pos
	}
	id := containerID + itemIDSeparator + key
	if _, taken := view.byID[id]; taken {
		id += "-" + pos
	}
	return id
}

// buildPanel creates the detail panel of ev: its date line, its location and
// its description.
func (b *Builder) buildPanel(ev *calendar.Event) *html.Node {
	f := b.formatter()
	panel := Element(atom.Div, "")

	dateRow := Element(atom.Div, ClassDateRow)
	dateText := Element(atom.Div, ClassDateText)
	if err := SetInnerHTML(dateText, f.DateRange(ev)); err != nil {
		b.logger().Error("failed to render event date", "id", ev.Id, logging.ErrAttr(err))
	}
	dateRow.AppendChild(dateText)
	panel.AppendChild(dateRow)

	location := Element(atom.Div, "")
	if ev.Location != "" {
		SetText(location, ev.Location)
		SetAttr(location, "class", ClassLocationText)
	}
	panel.AppendChild(location)

	body := Element(atom.Div, ClassEntryBody)
	description := ev.Description
	if b.Markup != nil {
		description = b.Markup.ToHTML(description)
	}
	if err := SetInnerHTML(body, description); err != nil {
		b.logger().Error("failed to render event description", "id", ev.Id, logging.ErrAttr(err))
	}
	panel.AppendChild(body)

	return panel
}
