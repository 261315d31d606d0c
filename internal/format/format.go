package format

import (
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	calclient "github.com/beekhof/calendar-widget/internal/calendar"
)

const (
	// TimeLayout renders a time of day, e.g. "3:04 PM".
	TimeLayout = "3:04 PM"
	// DateLayout renders a full date, e.g. "Tue, Apr 15, 2025".
	DateLayout = "Mon, Jan 2, 2006"
	// DateTimeLayout renders a full date with time of day.
	DateTimeLayout = DateLayout + " " + TimeLayout

	// DefaultTitleFormat is used when a widget has no title format configured.
	DefaultTitleFormat = "[STARTTIME - ][TITLE]"
)

// Strings holds the localized display strings.
type Strings struct {
	AllDay      string `yaml:"all_day" json:"all_day"`
	AllDayEvent string `yaml:"all_day_event" json:"all_day_event"`
}

// DefaultStrings returns the English display strings.
func DefaultStrings() Strings {
	return Strings{AllDay: "All Day", AllDayEvent: "All Day Event"}
}

// WithDefaults fills unset strings from DefaultStrings.
func (s Strings) WithDefaults() Strings {
	def := DefaultStrings()
	if s.AllDay == "" {
		s.AllDay = def.AllDay
	}
	if s.AllDayEvent == "" {
		s.AllDayEvent = def.AllDayEvent
	}
	return s
}

var (
	titleGroup     = regexp.MustCompile(`\[([^\]]*)TITLE([^\]]*)\]`)
	startTimeGroup = regexp.MustCompile(`\[([^\]]*)STARTTIME([^\]]*)\]`)
	endTimeGroup   = regexp.MustCompile(`\[([^\]]*)ENDTIME([^\]]*)\]`)
)

// Formatter produces the display strings of an event.
type Formatter struct {
	Strings  Strings
	Location *time.Location
}

// New returns a Formatter using s (unset entries take defaults) and loc for
// all wall-clock output. A nil loc means time.Local.
func New(s Strings, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{Strings: s.WithDefaults(), Location: loc}
}

func (f *Formatter) location() *time.Location {
	if f.Location == nil {
		return time.Local
	}
	return f.Location
}

// Title expands the placeholder groups of template against ev.
//
// A group has the shape [<prefix>KEYWORD<suffix>] where KEYWORD is TITLE,
// STARTTIME or ENDTIME. It becomes prefix+value+suffix when the value is
// known and disappears otherwise. The keywords are substituted in that order,
// each pass working on the output of the previous one.
//
// STARTTIME is the all-day string for date-only starts. ENDTIME is only known
// for timed events.
func (f *Formatter) Title(template string, ev *calendar.Event) string {
	var title, startTime, endTime string

	title = ev.Summary

	loc := f.location()
	start := calclient.StartTime(ev, loc)
	if startInstant, ok := start.Instant(); ok {
		if start.IsDateOnly() {
			startTime = f.Strings.AllDay
		} else {
			startTime = startInstant.Format(TimeLayout)
			if endInstant, ok := calclient.EndTime(ev, loc).Instant(); ok {
				endTime = endInstant.Format(TimeLayout)
			}
		}
	}

	out := replaceGroups(titleGroup, template, title)
	out = replaceGroups(startTimeGroup, out, startTime)
	out = replaceGroups(endTimeGroup, out, endTime)
	return out
}

// replaceGroups substitutes every match of re in s. value is inserted
// literally between the captured prefix and suffix; an empty value removes
// the whole group.
func replaceGroups(re *regexp.Regexp, s, value string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		if value != "" {
			b.WriteString(s[m[2]:m[3]])
			b.WriteString(value)
			b.WriteString(s[m[4]:m[5]])
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// DateRange renders the date line of the detail panel.
//
// All-day events carry an exclusive end date, so when both sides are
// date-only the end is moved back one day before comparing. A single-day
// all-day event renders as the all-day string, a same-day event as
// "<date>, <start> - <end>", and anything longer as a full range.
func (f *Formatter) DateRange(ev *calendar.Event) string {
	out := f.Strings.AllDayEvent

	loc := f.location()
	start := calclient.StartTime(ev, loc)
	end := calclient.EndTime(ev, loc)
	startInstant, okStart := start.Instant()
	endInstant, okEnd := end.Instant()
	if !okStart || !okEnd {
		return out
	}

	allDay := false
	if start.IsDateOnly() && end.IsDateOnly() {
		endInstant = endInstant.AddDate(0, 0, -1)
		allDay = endInstant.Equal(startInstant)
	}
	oneDay := sameDay(startInstant, endInstant)

	switch {
	case allDay:
		return f.Strings.AllDayEvent
	case oneDay:
		return startInstant.Format(DateLayout) + ", " +
			startInstant.Format(TimeLayout) + " - " +
			endInstant.Format(TimeLayout)
	default:
		return formatSide(start, startInstant) + " - " + formatSide(end, endInstant)
	}
}

func formatSide(t calclient.Time, instant time.Time) string {
	if t.IsDateOnly() {
		return instant.Format(DateLayout)
	}
	return instant.Format(DateTimeLayout)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
