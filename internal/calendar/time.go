package calendar

import (
	"time"

	"google.golang.org/api/calendar/v3"
)

// dateLayout is the layout of the API's date-only "date" field.
const dateLayout = "2006-01-02"

// Time wraps one side (start or end) of an event's timing.
// It is either a date-only value or a precise date-time.
type Time struct {
	raw *calendar.EventDateTime
	loc *time.Location
}

// NewTime wraps dt. Date-only values are interpreted as midnight in loc.
// A nil loc means time.Local.
func NewTime(dt *calendar.EventDateTime, loc *time.Location) Time {
	if loc == nil {
		loc = time.Local
	}
	return Time{raw: dt, loc: loc}
}

// StartTime returns the start of ev. A nil event yields an absent Time.
func StartTime(ev *calendar.Event, loc *time.Location) Time {
	if ev == nil {
		return NewTime(nil, loc)
	}
	return NewTime(ev.Start, loc)
}

// EndTime returns the end of ev. A nil event yields an absent Time.
func EndTime(ev *calendar.Event, loc *time.Location) Time {
	if ev == nil {
		return NewTime(nil, loc)
	}
	return NewTime(ev.End, loc)
}

// Instant returns the point in time this value represents.
// The boolean is false when neither field is present or parseable.
//
// A date-only value becomes local midnight of that date rather than UTC
// midnight, otherwise zones west of UTC would show the previous day.
func (t Time) Instant() (time.Time, bool) {
	if t.raw == nil {
		return time.Time{}, false
	}
	if t.raw.DateTime != "" {
		instant, err := time.Parse(time.RFC3339, t.raw.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return instant.In(t.loc), true
	}
	if t.raw.Date != "" {
		instant, err := time.ParseInLocation(dateLayout, t.raw.Date, t.loc)
		if err != nil {
			return time.Time{}, false
		}
		return instant, true
	}
	return time.Time{}, false
}

// IsDateOnly reports whether the value carries a date without a time of day.
func (t Time) IsDateOnly() bool {
	return t.raw != nil && t.raw.Date != ""
}
