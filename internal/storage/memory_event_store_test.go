package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/eventcanon-io/eventcanon/internal/processing"
	"github.com/eventcanon-io/eventcanon/internal/reporting"
)

func TestMemoryEventStore_KeyConflict(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewMemoryEventStore()

	rawID, err := store.InsertRawEvent(ctx, "client_A", []byte(`{}`), processing.StatusProcessing)
	if err != nil {
		t.Fatalf("InsertRawEvent() error = %v", err)
	}

	event := &processing.ProcessedEvent{
		ClientID:       "client_A",
		Metric:         "m",
		Amount:         1,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: "dup-key",
		RawEventID:     rawID,
	}

	if _, err := store.InsertProcessedEvent(ctx, event); err != nil {
		t.Fatalf("first InsertProcessedEvent() error = %v", err)
	}

	_, err = store.InsertProcessedEvent(ctx, event)
	if err == nil {
		t.Fatal("second InsertProcessedEvent() error = nil, want ErrKeyConflict")
	}
}

func TestMemoryEventStore_TerminalStatusDoesNotRegress(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewMemoryEventStore()

	rawID, _ := store.InsertRawEvent(ctx, "client_A", []byte(`{}`), processing.StatusProcessing)

	if err := store.UpdateRawEventStatus(ctx, rawID, processing.StatusSuccess); err != nil {
		t.Fatalf("UpdateRawEventStatus() error = %v", err)
	}

	if err := store.UpdateRawEventStatus(ctx, rawID, processing.StatusProcessing); err != nil {
		t.Fatalf("UpdateRawEventStatus() on terminal error = %v, want silent no-op", err)
	}

	raw, ok := store.RawEvent(rawID)
	if !ok {
		t.Fatal("raw event not found")
	}

	if raw.Status != processing.StatusSuccess {
		t.Errorf("status = %s, want %s", raw.Status, processing.StatusSuccess)
	}
}

func TestMemoryEventStore_Registry(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewMemoryEventStore()

	exists, _, err := store.Exists(ctx, "k")
	if err != nil || exists {
		t.Fatalf("Exists() = (%v, %v), want (false, nil)", exists, err)
	}

	recorded, err := store.Record(ctx, "k", 7)
	if err != nil || !recorded {
		t.Fatalf("Record() = (%v, %v), want (true, nil)", recorded, err)
	}

	exists, id, err := store.Exists(ctx, "k")
	if err != nil || !exists || id != 7 {
		t.Fatalf("Exists() = (%v, %d, %v), want (true, 7, nil)", exists, id, err)
	}

	recorded, err = store.Record(ctx, "k", 8)
	if err != nil || recorded {
		t.Fatalf("second Record() = (%v, %v), want (false, nil)", recorded, err)
	}
}

func TestMemoryEventStore_ListingLimits(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewMemoryEventStore()

	for i := 0; i < reporting.MaxProcessedListing+10; i++ {
		rawID, _ := store.InsertRawEvent(ctx, "client_A", []byte(`{}`), processing.StatusProcessing)

		_, err := store.InsertProcessedEvent(ctx, &processing.ProcessedEvent{
			ClientID:       "client_A",
			Metric:         "m",
			Amount:         1,
			Timestamp:      time.Now().UTC(),
			IdempotencyKey: fmt.Sprintf("key-%d", i),
			RawEventID:     rawID,
		})
		if err != nil {
			t.Fatalf("InsertProcessedEvent() error = %v", err)
		}
	}

	for i := 0; i < reporting.MaxFailedListing+10; i++ {
		rawID, _ := store.InsertRawEvent(ctx, "client_A", []byte(`{}`), processing.StatusProcessing)

		if _, err := store.InsertFailedEvent(ctx, &processing.FailedEvent{
			RawEventID:   rawID,
			ErrorMessage: "bad amount",
		}); err != nil {
			t.Fatalf("InsertFailedEvent() error = %v", err)
		}
	}

	events, err := store.RecentProcessedEvents(ctx, nil)
	if err != nil {
		t.Fatalf("RecentProcessedEvents() error = %v", err)
	}

	if len(events) != reporting.MaxProcessedListing {
		t.Errorf("processed listing length = %d, want %d", len(events), reporting.MaxProcessedListing)
	}

	failures, err := store.RecentFailedEvents(ctx)
	if err != nil {
		t.Fatalf("RecentFailedEvents() error = %v", err)
	}

	if len(failures) != reporting.MaxFailedListing {
		t.Errorf("failed listing length = %d, want %d", len(failures), reporting.MaxFailedListing)
	}
}

func TestMemoryEventStore_AggregateMatchesManualReduction(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := context.Background()
	store := NewMemoryEventStore()

	amounts := []float64{100, 200, 300}
	for i, amount := range amounts {
		rawID, _ := store.InsertRawEvent(ctx, "client_X", []byte(`{}`), processing.StatusProcessing)

		_, err := store.InsertProcessedEvent(ctx, &processing.ProcessedEvent{
			ClientID:       "client_X",
			Metric:         "m",
			Amount:         amount,
			Timestamp:      time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC),
			IdempotencyKey: fmt.Sprintf("x-%d", i),
			RawEventID:     rawID,
		})
		if err != nil {
			t.Fatalf("InsertProcessedEvent() error = %v", err)
		}
	}

	aggregates, err := store.AggregateByClient(ctx, nil)
	if err != nil {
		t.Fatalf("AggregateByClient() error = %v", err)
	}

	if len(aggregates) != 1 {
		t.Fatalf("aggregate count = %d, want 1", len(aggregates))
	}

	agg := aggregates[0]
	if agg.Count != 3 || agg.Total != 600 || agg.Average != 200 {
		t.Errorf("aggregate = %+v, want count 3 total 600 average 200", agg)
	}
}
