// Package feed merges per-calendar event lists into one agenda.
package feed

import (
	"log/slog"
	"time"

	"google.golang.org/api/calendar/v3"

	calclient "github.com/beekhof/calendar-widget/internal/calendar"
)

// Merge combines the feeds in results into a single list ordered by start
// time, holding at most maxResults events.
//
// Each feed must already be sorted by start time. Feeds that carry an error
// are logged and skipped. The earliest head wins on every step, with ties
// going to the feed that comes first in results. A candidate with the same
// start instant and id as the last merged event is dropped; duplicates that
// are not adjacent in the output are kept. A feed whose head has no start
// time is never picked again.
func Merge(results []calclient.FeedResult, maxResults int, loc *time.Location, logger *slog.Logger) []*calendar.Event {
	if logger == nil {
		logger = slog.Default()
	}

	var feeds [][]*calendar.Event
	for _, result := range results {
		if result.Err != nil {
			logger.Error("Error downloading Calendar "+result.Key+" : "+result.Message(),
				"calendar", result.Key)
			continue
		}
		logger.Debug("feed downloaded", "calendar", result.Key, "entries", len(result.Events))
		feeds = append(feeds, result.Events)
	}

	logger.Debug("merging feeds", "feeds", len(feeds), "max_results", maxResults)

	output := []*calendar.Event{}
	for len(output) < maxResults {
		first := -1
		var firstStart time.Time
		for i, f := range feeds {
			if len(f) == 0 {
				continue
			}
			start, ok := calclient.StartTime(f[0], loc).Instant()
			if !ok {
				continue
			}
			if first == -1 || start.Before(firstStart) {
				first = i
				firstStart = start
			}
		}
		if first == -1 {
			break
		}

		candidate := feeds[first][0]
		feeds[first] = feeds[first][1:]

		if isDuplicate(output, candidate, firstStart, loc) {
			logger.Debug("duplicate event", "id", candidate.Id, "start", firstStart)
			continue
		}
		logger.Debug("pushing event", "id", candidate.Id, "start", firstStart)
		output = append(output, candidate)
	}

	return output
}

// isDuplicate reports whether candidate repeats the last event in output.
func isDuplicate(output []*calendar.Event, candidate *calendar.Event, start time.Time, loc *time.Location) bool {
	if len(output) == 0 {
		return false
	}
	last := output[len(output)-1]
	lastStart, ok := calclient.StartTime(last, loc).Instant()
	return ok && lastStart.Equal(start) && last.Id == candidate.Id
}
