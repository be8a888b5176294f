package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eventcanon-io/eventcanon/internal/idempotency"
	"github.com/eventcanon-io/eventcanon/internal/processing"
	"github.com/eventcanon-io/eventcanon/internal/reporting"
)

// MemoryEventStore provides thread-safe in-memory storage for the processing
// pipeline. It implements the same interfaces as EventStore, including the
// idempotency-key uniqueness backstop, and is used for local development and
// handler tests where PostgreSQL is unavailable.
type MemoryEventStore struct {
	// mutex protects all maps and slices below
	mutex sync.RWMutex
	// rawEvents maps raw event IDs to records
	rawEvents map[int64]*processing.RawEvent
	// processedEvents maps processed event IDs to records
	processedEvents map[int64]*processing.ProcessedEvent
	// processedByKey maps idempotency keys to processed event IDs (uniqueness backstop)
	processedByKey map[string]int64
	// registry maps idempotency keys to processed event IDs (the dedup registry)
	registry map[string]int64
	// failedEvents holds validation-failure records in insertion order
	failedEvents []*processing.FailedEvent
	// nextID is the last assigned identifier
	nextID int64
}

var (
	_ processing.Store     = (*MemoryEventStore)(nil)
	_ idempotency.Registry = (*MemoryEventStore)(nil)
	_ reporting.Store      = (*MemoryEventStore)(nil)
)

// NewMemoryEventStore creates a new thread-safe in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		rawEvents:       make(map[int64]*processing.RawEvent),
		processedEvents: make(map[int64]*processing.ProcessedEvent),
		processedByKey:  make(map[string]int64),
		registry:        make(map[string]int64),
	}
}

// HealthCheck implements processing.Store. Always healthy.
func (s *MemoryEventStore) HealthCheck(_ context.Context) error {
	return nil
}

// InsertRawEvent implements processing.Store.
func (s *MemoryEventStore) InsertRawEvent(_ context.Context, source string, rawPayload []byte, status processing.Status) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.nextID++
	s.rawEvents[s.nextID] = &processing.RawEvent{
		ID:         s.nextID,
		ReceivedAt: time.Now().UTC(),
		Source:     source,
		RawPayload: append([]byte(nil), rawPayload...),
		Status:     status,
	}

	return s.nextID, nil
}

// UpdateRawEventStatus implements processing.Store. Terminal statuses never
// regress; updates against them are silent no-ops.
func (s *MemoryEventStore) UpdateRawEventStatus(_ context.Context, rawEventID int64, status processing.Status) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	raw, ok := s.rawEvents[rawEventID]
	if !ok {
		return fmt.Errorf("%w: id %d", processing.ErrRawEventNotFound, rawEventID)
	}

	if raw.Status.IsTerminal() {
		return nil
	}

	raw.Status = status

	return nil
}

// InsertProcessedEvent implements processing.Store with the same uniqueness
// semantics as the PostgreSQL store.
func (s *MemoryEventStore) InsertProcessedEvent(_ context.Context, event *processing.ProcessedEvent) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.processedByKey[event.IdempotencyKey]; exists {
		return 0, fmt.Errorf("%w: %s", processing.ErrKeyConflict, event.IdempotencyKey)
	}

	s.nextID++

	stored := *event
	stored.ID = s.nextID
	stored.ProcessedAt = time.Now().UTC()
	s.processedEvents[s.nextID] = &stored
	s.processedByKey[event.IdempotencyKey] = s.nextID

	return s.nextID, nil
}

// InsertFailedEvent implements processing.Store.
func (s *MemoryEventStore) InsertFailedEvent(_ context.Context, failure *processing.FailedEvent) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.nextID++

	stored := *failure
	stored.ID = s.nextID
	stored.FailedAt = time.Now().UTC()
	stored.RawPayload = append([]byte(nil), failure.RawPayload...)
	s.failedEvents = append(s.failedEvents, &stored)

	return s.nextID, nil
}

// Exists implements idempotency.Registry.
func (s *MemoryEventStore) Exists(_ context.Context, key string) (bool, int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	id, ok := s.registry[key]

	return ok, id, nil
}

// Record implements idempotency.Registry.
func (s *MemoryEventStore) Record(_ context.Context, key string, processedEventID int64) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.registry[key]; exists {
		return false, nil
	}

	s.registry[key] = processedEventID

	return true, nil
}

// AggregateByClient implements reporting.Store.
func (s *MemoryEventStore) AggregateByClient(_ context.Context, filter *reporting.Filter) ([]reporting.ClientAggregate, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	byClient := make(map[string]*reporting.ClientAggregate)

	for _, event := range s.processedEvents {
		if !matchesFilter(event, filter) {
			continue
		}

		agg, ok := byClient[event.ClientID]
		if !ok {
			agg = &reporting.ClientAggregate{ClientID: event.ClientID}
			byClient[event.ClientID] = agg
		}

		agg.Count++
		agg.Total += event.Amount
	}

	aggregates := make([]reporting.ClientAggregate, 0, len(byClient))

	for _, agg := range byClient {
		agg.Average = agg.Total / float64(agg.Count)
		aggregates = append(aggregates, *agg)
	}

	sort.Slice(aggregates, func(i, j int) bool {
		return aggregates[i].Total > aggregates[j].Total
	})

	return aggregates, nil
}

// RecentProcessedEvents implements reporting.Store.
func (s *MemoryEventStore) RecentProcessedEvents(_ context.Context, filter *reporting.Filter) ([]processing.ProcessedEvent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	events := make([]processing.ProcessedEvent, 0, len(s.processedEvents))

	for _, event := range s.processedEvents {
		if matchesFilter(event, filter) {
			events = append(events, *event)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].ProcessedAt.After(events[j].ProcessedAt)
	})

	if len(events) > reporting.MaxProcessedListing {
		events = events[:reporting.MaxProcessedListing]
	}

	return events, nil
}

// RecentFailedEvents implements reporting.Store.
func (s *MemoryEventStore) RecentFailedEvents(_ context.Context) ([]processing.FailedEvent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	events := make([]processing.FailedEvent, 0, len(s.failedEvents))

	// failedEvents is append-only, so reverse order is newest first
	for i := len(s.failedEvents) - 1; i >= 0; i-- {
		events = append(events, *s.failedEvents[i])
		if len(events) == reporting.MaxFailedListing {
			break
		}
	}

	return events, nil
}

// Summarize implements reporting.Store.
func (s *MemoryEventStore) Summarize(_ context.Context) (*reporting.Summary, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	summary := &reporting.Summary{
		TotalProcessed: int64(len(s.processedEvents)),
		TotalFailed:    int64(len(s.failedEvents)),
	}

	for _, event := range s.processedEvents {
		summary.TotalAmount += event.Amount
	}

	summary.SuccessRate = reporting.ComputeSuccessRate(summary.TotalProcessed, summary.TotalFailed)

	return summary, nil
}

// RawEvent returns the raw event with the given ID, if present. Test helper.
func (s *MemoryEventStore) RawEvent(id int64) (*processing.RawEvent, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	raw, ok := s.rawEvents[id]
	if !ok {
		return nil, false
	}

	rawCopy := *raw

	return &rawCopy, true
}

// matchesFilter applies the optional reporting filter to a processed event.
func matchesFilter(event *processing.ProcessedEvent, filter *reporting.Filter) bool {
	if filter == nil {
		return true
	}

	if filter.ClientID != nil && event.ClientID != *filter.ClientID {
		return false
	}

	if filter.Since != nil && event.Timestamp.Before(*filter.Since) {
		return false
	}

	if filter.Until != nil && event.Timestamp.After(*filter.Until) {
		return false
	}

	return true
}
