package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eventcanon-io/eventcanon/internal/idempotency"
	"github.com/eventcanon-io/eventcanon/internal/normalization"
)

// errInjectedFailure is the storage error forced by Submission.SimulateFailure.
var errInjectedFailure = errors.New("injected storage failure before canonical write")

type (
	// Submission is a single inbound raw document handed to the pipeline.
	Submission struct {
		// Document is the decoded raw payload.
		Document map[string]interface{}

		// RawPayload is the original serialized form, retained verbatim for
		// audit and failure records.
		RawPayload []byte

		// SimulateFailure forces a storage error after the duplicate check
		// and before the canonical write. Test hook for exercising the
		// retryable-error path end to end; never set by production callers.
		SimulateFailure bool
	}

	// Processor sequences the processing pipeline for one submission at a
	// time: raw capture, normalization, duplicate check, canonical write,
	// idempotency recording, status finalization.
	//
	// A Processor holds no mutable state and is safe for concurrent use;
	// correctness under concurrent duplicate submissions rests on the storage
	// layer's uniqueness constraints, not on locking here.
	Processor struct {
		store       Store
		registry    idempotency.Registry
		normalizer  *normalization.Normalizer
		bucketWidth time.Duration
		logger      *slog.Logger
	}

	// ProcessorOption configures optional Processor behavior.
	ProcessorOption func(*Processor)
)

// WithBucketWidth overrides the duplicate-detection time window.
func WithBucketWidth(width time.Duration) ProcessorOption {
	return func(p *Processor) {
		if width > 0 {
			p.bucketWidth = width
		}
	}
}

// WithLogger overrides the processor's logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor creates a Processor over the given store, idempotency registry
// and normalizer.
func NewProcessor(store Store, registry idempotency.Registry, normalizer *normalization.Normalizer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:       store,
		registry:    registry,
		normalizer:  normalizer,
		bucketWidth: idempotency.DefaultBucketWidth,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ProcessEvent runs one submission through the full pipeline.
//
// Sequence:
//  1. Capture the raw document with status "processing". Failure here aborts
//     immediately: without the audit row nothing else may proceed.
//  2. Normalize. On failure, persist a FailedEvent, mark the raw event
//     "failed" and return a Rejected outcome with a nil error.
//  3. Derive the idempotency key.
//  4. Check the idempotency registry. On a hit, mark the raw event
//     "duplicate" and return a Duplicate outcome carrying the prior
//     canonical event ID. No new canonical row is written.
//  5. Write the canonical event. ErrKeyConflict means a concurrent
//     submission won the race between steps 4 and 5: mapped to the same
//     Duplicate outcome. Any other failure is returned as an error and the
//     raw event stays at "processing" so the whole submission can be retried.
//  6. Record the idempotency key. Failure here is swallowed and logged: the
//     canonical row already exists and is the source of truth, and the
//     uniqueness constraint rejects any double-count on a later retry.
//  7. Mark the raw event "success".
//
// The returned error is non-nil only for system and storage failures, which
// are retryable. Validation failures and duplicates are Outcomes, not errors.
// Panics anywhere in the pipeline are caught and downgraded to a system error.
func (p *Processor) ProcessEvent(ctx context.Context, sub *Submission) (outcome *Outcome, err error) {
	var rawEventID int64

	// Installed before any pipeline step so the raw capture is covered too;
	// rawEventID is zero when the panic precedes the capture.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic during event processing",
				slog.Int64("raw_event_id", rawEventID),
				slog.Any("panic", r),
			)

			outcome, err = nil, fmt.Errorf("event processing panicked: %v", r)
		}
	}()

	source := normalization.ResolveClientID(sub.Document)

	rawEventID, err = p.store.InsertRawEvent(ctx, source, sub.RawPayload, StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("raw event capture failed: %w", err)
	}

	event, normErr := p.normalizer.Normalize(sub.Document, sub.RawPayload)
	if normErr != nil {
		return p.rejectSubmission(ctx, rawEventID, sub.RawPayload, normErr)
	}

	key := idempotency.DeriveKey(event.ClientID, event.Metric, event.Amount, event.Timestamp, p.bucketWidth)

	duplicate, priorID, err := p.registry.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed for key %s: %w", key, err)
	}

	if duplicate {
		return p.duplicateOutcome(ctx, rawEventID, key, priorID), nil
	}

	if sub.SimulateFailure {
		return nil, fmt.Errorf("canonical write failed: %w", errInjectedFailure)
	}

	processedEventID, err := p.store.InsertProcessedEvent(ctx, &ProcessedEvent{
		ClientID:       event.ClientID,
		Metric:         event.Metric,
		Amount:         event.Amount,
		Timestamp:      event.Timestamp,
		IdempotencyKey: key,
		RawEventID:     rawEventID,
	})
	if errors.Is(err, ErrKeyConflict) {
		// Lost the race between the existence check and the insert: another
		// submission committed this key first. Resolve the winner's ID from
		// the registry (best effort, it may lag the canonical table).
		_, priorID, lookupErr := p.registry.Exists(ctx, key)
		if lookupErr != nil {
			p.logger.Warn("failed to resolve prior canonical event after key conflict",
				slog.Int64("raw_event_id", rawEventID),
				slog.String("idempotency_key", key),
				slog.String("error", lookupErr.Error()),
			)
		}

		return p.duplicateOutcome(ctx, rawEventID, key, priorID), nil
	}

	if err != nil {
		return nil, fmt.Errorf("canonical write failed for key %s: %w", key, err)
	}

	if recorded, recordErr := p.registry.Record(ctx, key, processedEventID); recordErr != nil {
		// Swallowed: the canonical row is the source of truth and the
		// uniqueness constraint on the idempotency key protects retries.
		p.logger.Warn("idempotency record write failed, registry lags canonical store",
			slog.Int64("processed_event_id", processedEventID),
			slog.String("idempotency_key", key),
			slog.String("error", recordErr.Error()),
		)
	} else if !recorded {
		p.logger.Debug("idempotency key recorded concurrently",
			slog.String("idempotency_key", key),
		)
	}

	p.markStatus(ctx, rawEventID, StatusSuccess)

	return &Outcome{
		RawEventID:       rawEventID,
		IdempotencyKey:   key,
		ProcessedEventID: processedEventID,
	}, nil
}

// rejectSubmission persists the validation failure and classifies the outcome.
// The FailedEvent write must succeed (the failed terminal status promises an
// audit record exists); the status update itself is best effort.
func (p *Processor) rejectSubmission(ctx context.Context, rawEventID int64, rawPayload []byte, cause error) (*Outcome, error) {
	if _, err := p.store.InsertFailedEvent(ctx, &FailedEvent{
		RawEventID:   rawEventID,
		ErrorMessage: cause.Error(),
		RawPayload:   rawPayload,
	}); err != nil {
		return nil, fmt.Errorf("failed event capture failed: %w", err)
	}

	p.markStatus(ctx, rawEventID, StatusFailed)

	p.logger.Info("submission rejected by normalization",
		slog.Int64("raw_event_id", rawEventID),
		slog.String("reason", cause.Error()),
	)

	return &Outcome{
		RawEventID: rawEventID,
		Rejected:   true,
		Reason:     cause.Error(),
	}, nil
}

// duplicateOutcome finalizes the raw event as a duplicate of an earlier
// canonical event.
func (p *Processor) duplicateOutcome(ctx context.Context, rawEventID int64, key string, priorID int64) *Outcome {
	p.markStatus(ctx, rawEventID, StatusDuplicate)

	p.logger.Info("duplicate submission detected",
		slog.Int64("raw_event_id", rawEventID),
		slog.String("idempotency_key", key),
		slog.Int64("processed_event_id", priorID),
	)

	return &Outcome{
		RawEventID:       rawEventID,
		IdempotencyKey:   key,
		ProcessedEventID: priorID,
		Duplicate:        true,
	}
}

// markStatus advances the raw event status, logging rather than failing the
// submission when the update cannot be applied. The outcome classification is
// already decided at this point; the status is informational audit state.
func (p *Processor) markStatus(ctx context.Context, rawEventID int64, status Status) {
	if err := p.store.UpdateRawEventStatus(ctx, rawEventID, status); err != nil {
		p.logger.Warn("failed to update raw event status",
			slog.Int64("raw_event_id", rawEventID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}
