// Package processing provides the event processing pipeline domain models and
// the Processor that orchestrates raw capture, normalization, duplicate
// detection, canonical storage and idempotency recording.
package processing

import (
	"errors"
	"time"
)

// Sentinel errors for pipeline storage operations.
var (
	// ErrKeyConflict is returned by Store.InsertProcessedEvent when another
	// writer already committed a canonical event under the same idempotency
	// key. The Processor maps it to a duplicate outcome, never to a failure.
	ErrKeyConflict = errors.New("idempotency key already exists")

	// ErrRawEventNotFound is returned by status updates against an unknown
	// raw event ID.
	ErrRawEventNotFound = errors.New("raw event not found")
)

type (
	// Status is the processing state of a raw submission.
	//
	// A raw event starts at StatusProcessing and is advanced monotonically to
	// exactly one terminal value. StatusPending exists for intake paths that
	// capture events ahead of processing (e.g., stream consumers).
	Status string

	// RawEvent is the verbatim audit record of an inbound submission.
	// Immutable after capture except for Status.
	RawEvent struct {
		// ID is the storage-assigned identifier.
		ID int64

		// ReceivedAt is the capture time in UTC.
		ReceivedAt time.Time

		// RawPayload is the opaque serialized document exactly as submitted.
		RawPayload []byte

		// Source is the producer label resolved from the document's identity
		// fields ("unknown" when none are present).
		Source string

		// Status is the current processing state.
		Status Status
	}

	// ProcessedEvent is the canonical, durable, append-only event record.
	// One row exists per unique idempotency key; the storage layer enforces
	// that with a uniqueness constraint as the ultimate correctness backstop.
	ProcessedEvent struct {
		ID             int64
		ClientID       string
		Metric         string
		Amount         float64
		Timestamp      time.Time
		IdempotencyKey string
		RawEventID     int64
		ProcessedAt    time.Time
	}

	// FailedEvent is the audit record written when normalization rejects a
	// submission. Append-only, for operator debugging.
	FailedEvent struct {
		ID           int64
		RawEventID   int64
		ErrorMessage string
		RawPayload   []byte
		FailedAt     time.Time
	}

	// Outcome classifies a completed submission.
	//
	// Exactly one of the three classifications holds:
	//   - Rejected=true: normalization refused the input (validation failure)
	//   - Duplicate=true: the event was already committed under its key
	//   - neither: a new canonical event was stored
	//
	// System and storage failures are not Outcomes: ProcessEvent returns them
	// as errors, and the caller is expected to retry the whole submission.
	Outcome struct {
		// RawEventID identifies the audit record for this submission.
		RawEventID int64

		// IdempotencyKey is the derived key (empty on validation failures,
		// which never reach key derivation).
		IdempotencyKey string

		// ProcessedEventID is the canonical event this submission maps to:
		// the new row on the stored path, the pre-existing row on the
		// duplicate path (zero if the registry lagged and the prior ID could
		// not be resolved).
		ProcessedEventID int64

		// Duplicate reports the already-committed classification.
		Duplicate bool

		// Rejected reports the validation-failure classification.
		Rejected bool

		// Reason is the validation error message when Rejected is true.
		Reason string
	}
)

// Processing statuses. StatusSuccess, StatusFailed and StatusDuplicate are
// terminal.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusDuplicate  Status = "duplicate"
)

// IsTerminal reports whether the status is final and must not advance further.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusDuplicate:
		return true
	case StatusPending, StatusProcessing:
		return false
	default:
		return false
	}
}

// Valid reports whether the status is one of the known processing states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed, StatusDuplicate:
		return true
	default:
		return false
	}
}
