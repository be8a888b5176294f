package processing

import "context"

// Store defines the persistence operations the pipeline needs.
//
// The domain package defines this interface to specify what it needs for
// event storage, without depending on concrete implementations. Concrete
// implementations (PostgreSQL, in-memory) live in the internal/storage
// package.
//
// Implementations must support:
//   - Uniqueness backstop: InsertProcessedEvent maps a unique-constraint
//     violation on the idempotency key to ErrKeyConflict, so a race between
//     the duplicate check and the canonical write has exactly one winner
//   - Monotonic status: UpdateRawEventStatus never moves a raw event out of a
//     terminal status
//   - Append-only audit: raw, processed and failed events are never updated
//     in place (status aside) or deleted by the pipeline
type Store interface {
	// InsertRawEvent captures an inbound submission verbatim with the given
	// initial status and returns the new raw event ID.
	InsertRawEvent(ctx context.Context, source string, rawPayload []byte, status Status) (int64, error)

	// UpdateRawEventStatus advances a raw event to the given status.
	// Returns ErrRawEventNotFound for unknown IDs.
	UpdateRawEventStatus(ctx context.Context, rawEventID int64, status Status) error

	// InsertProcessedEvent writes the canonical event and returns its ID.
	// Returns ErrKeyConflict when the idempotency key is already committed.
	InsertProcessedEvent(ctx context.Context, event *ProcessedEvent) (int64, error)

	// InsertFailedEvent writes a validation-failure audit record.
	InsertFailedEvent(ctx context.Context, failure *FailedEvent) (int64, error)

	// HealthCheck verifies the storage backend is reachable and ready.
	HealthCheck(ctx context.Context) error
}
