package calendar

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

// FeedResult is the outcome of one list request in a batch: either the
// calendar's events (sorted by start time) or the error the API returned
// for that calendar.
type FeedResult struct {
	Key    string
	Events []*calendar.Event
	Err    error
}

// Message returns the error description reported for the feed.
func (r FeedResult) Message() string {
	if r.Err == nil {
		return ""
	}
	var apiErr *googleapi.Error
	if errors.As(r.Err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return r.Err.Error()
}

type batchEntry struct {
	id  string
	req ListRequest
}

// Batch bundles list requests so they are issued and answered together.
// Results keep the order in which requests were added.
type Batch struct {
	lister  Lister
	entries []batchEntry
}

// NewBatch creates an empty batch that sends its requests through lister.
func NewBatch(lister Lister) *Batch {
	return &Batch{lister: lister}
}

// Add queues req tagged with id.
func (b *Batch) Add(req ListRequest, id string) {
	b.entries = append(b.entries, batchEntry{id: id, req: req})
}

// Len returns the number of queued requests.
func (b *Batch) Len() int {
	return len(b.entries)
}

// Execute issues all queued requests concurrently.
//
// An API error for one calendar (*googleapi.Error) is recorded in that
// calendar's FeedResult. Any other error means the batch itself failed to
// travel and is returned with no results.
func (b *Batch) Execute(ctx context.Context) ([]FeedResult, error) {
	results := make([]FeedResult, len(b.entries))

	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range b.entries {
		g.Go(func() error {
			events, err := b.lister.ListEvents(gctx, entry.req)
			if err != nil {
				var apiErr *googleapi.Error
				if !errors.As(err, &apiErr) {
					return fmt.Errorf("failed to list events for %s: %w", entry.id, err)
				}
				results[i] = FeedResult{Key: entry.id, Err: err}
				return nil
			}
			results[i] = FeedResult{Key: entry.id, Events: events}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
