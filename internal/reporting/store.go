package reporting

import (
	"context"

	"github.com/eventcanon-io/eventcanon/internal/processing"
)

// Store defines the read interface for reporting queries.
//
// This interface is intentionally separate from processing.Store so clients
// depend only on the methods they need:
//   - processing.Store: write-side pipeline persistence
//   - reporting.Store: read-only aggregation and listings
//   - storage.EventStore implements BOTH interfaces
//
// Implemented by: storage.EventStore, storage.MemoryEventStore.
type Store interface {
	// AggregateByClient returns count, amount total and derived average per
	// client, optionally filtered by client and canonical-timestamp range.
	// Rows are ordered by total descending.
	AggregateByClient(ctx context.Context, filter *Filter) ([]ClientAggregate, error)

	// RecentProcessedEvents returns the most recent canonical events, newest
	// first, with the same optional filters. At most MaxProcessedListing
	// rows are returned regardless of the filter.
	RecentProcessedEvents(ctx context.Context, filter *Filter) ([]processing.ProcessedEvent, error)

	// RecentFailedEvents returns the most recent validation failures, newest
	// first. At most MaxFailedListing rows are returned.
	RecentFailedEvents(ctx context.Context) ([]processing.FailedEvent, error)

	// Summarize returns the headline counters with the derived success rate.
	Summarize(ctx context.Context) (*Summary, error)
}
