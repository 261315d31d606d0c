// Package ical exports merged agenda events as an iCalendar feed.
package ical

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
)

// ProductID identifies the feeds produced by this package.
const ProductID = "-//Calendar Widget//EN"

const dateLayout = "2006-01-02"

// NewCalendar converts events into a single VCALENDAR. Events without a
// usable start are skipped. now is used for DTSTAMP.
func NewCalendar(events []*calendar.Event, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	for _, ev := range events {
		if vevent := eventToComponent(ev, now); vevent != nil {
			cal.Children = append(cal.Children, vevent)
		}
	}
	return cal
}

// Encode writes events to w in iCalendar format.
func Encode(w io.Writer, events []*calendar.Event, now time.Time) error {
	if err := ical.NewEncoder(w).Encode(NewCalendar(events, now)); err != nil {
		return fmt.Errorf("failed to encode iCalendar: %w", err)
	}
	return nil
}

func eventToComponent(event *calendar.Event, now time.Time) *ical.Component {
	if event == nil {
		return nil
	}
	dtstart := dateProp(ical.PropDateTimeStart, event.Start)
	if dtstart == nil {
		return nil
	}

	vevent := ical.NewComponent(ical.CompEvent)
	if event.Id != "" {
		vevent.Props.SetText(ical.PropUID, event.Id)
	} else {
		vevent.Props.SetText(ical.PropUID, uuid.NewString()+"@calendar-widget")
	}
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	vevent.Props.Set(dtstart)
	if dtend := dateProp(ical.PropDateTimeEnd, event.End); dtend != nil {
		vevent.Props.Set(dtend)
	}

	if event.Summary != "" {
		vevent.Props.SetText(ical.PropSummary, event.Summary)
	}
	if event.Description != "" {
		vevent.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		vevent.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.HtmlLink != "" {
		vevent.Props.SetText("URL", event.HtmlLink)
	}
	if event.Transparency == "transparent" {
		vevent.Props.SetText("TRANSP", "TRANSPARENT")
	}

	return vevent
}

// dateProp builds a DATE or UTC DATE-TIME property, or nil when dt holds
// nothing parseable.
func dateProp(name string, dt *calendar.EventDateTime) *ical.Prop {
	if dt == nil {
		return nil
	}
	prop := ical.NewProp(name)
	switch {
	case dt.Date != "":
		d, err := time.Parse(dateLayout, dt.Date)
		if err != nil {
			return nil
		}
		prop.SetDate(d)
	case dt.DateTime != "":
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return nil
		}
		prop.SetDateTime(t.UTC())
	default:
		return nil
	}
	return prop
}
