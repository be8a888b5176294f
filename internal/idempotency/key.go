// Package idempotency provides deterministic idempotency-key derivation for
// duplicate event detection.
//
// An idempotency key identifies "the same business event submitted again":
// the same producer reporting the same metric and amount within the same time
// window. Keys are derived purely from canonical event fields, so retries and
// replays of one event always collide on the same key while distinct events
// never do.
//
// This package provides pure functions that operate on primitives (strings,
// float64, time.Time) rather than domain types, making it reusable across
// intake paths (HTTP, Kafka, backfill tooling).
//
// Key functions:
//   - DeriveKey: Full idempotency key (format: "clientID-bucket-fingerprint")
//   - Fingerprint: Content hash of the identity-bearing fields (SHA256 prefix)
//   - TimeBucket: Coarse time window index for near-in-time collision
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const (
	// FingerprintLength is the number of hex characters retained from the
	// SHA256 content hash. 16 hex characters (64 bits) keeps keys short and
	// human-scannable while making accidental fingerprint collisions
	// negligible at realistic event volumes.
	FingerprintLength = 16

	// DefaultBucketWidth is the time-bucket width used when no override is
	// configured. Submissions of the same event within one bucket width of
	// each other are treated as duplicates.
	DefaultBucketWidth = time.Minute
)

// Registry records which idempotency keys have already produced a canonical
// event. Implementations must be safe for concurrent use.
type Registry interface {
	// Exists reports whether key has already been recorded. When it has,
	// the second return value is the ID of the canonical event originally
	// stored under that key.
	Exists(ctx context.Context, key string) (bool, int64, error)

	// Record marks key as processed, pointing at the canonical event it
	// produced. Returns recorded=false without error when the key was
	// already present: losing that race is not a failure, it means another
	// submission of the same event won.
	Record(ctx context.Context, key string, processedEventID int64) (bool, error)
}

// DeriveKey derives the idempotency key for a canonical event.
//
// Formula: "{clientID}-{timeBucket}-{fingerprint}"
//
// Purpose: Two submissions of the same business event (same producer, metric,
// amount, within one bucket width) derive the same key and collapse to a
// single canonical event. The key embeds the producer identity, so identical
// payloads from different producers never collide.
//
// Parameters:
//   - clientID: Resolved producer identity (e.g., "client_A", "unknown")
//   - metric: Canonical metric name
//   - amount: Canonical numeric value
//   - timestamp: Canonical event time
//   - bucketWidth: Duration of one dedup window (DefaultBucketWidth when unset)
//
// Examples:
//   - Same event retried 5 seconds later → same bucket → same key
//   - Same event 90 seconds later → different bucket → different key
//   - Amount "1200" (string) and 1200 (number) normalize to the same float64
//     and therefore the same key
//
// Returns: Idempotency key string, e.g. "client_A-28401120-a1b2c3d4e5f60718".
func DeriveKey(clientID, metric string, amount float64, timestamp time.Time, bucketWidth time.Duration) string {
	return fmt.Sprintf("%s-%d-%s",
		clientID,
		TimeBucket(timestamp, bucketWidth),
		Fingerprint(clientID, metric, amount),
	)
}

// Fingerprint computes the content hash of an event's identity-bearing fields.
//
// Formula: first FingerprintLength hex characters of
// SHA256(`{"client_id":<clientID>,"metric":<metric>,"amount":<amount>}`)
//
// The hash input is built from a fixed field order with a canonical numeric
// rendering (shortest decimal form, no exponent), so the fingerprint is a
// deterministic function of the field VALUES and never depends on how the raw
// document happened to be serialized.
//
// Timestamp is deliberately excluded: time proximity is handled by TimeBucket,
// and hashing the timestamp would defeat dedup for retries with fresh clocks.
//
// Returns: FingerprintLength-character lowercase hex string.
func Fingerprint(clientID, metric string, amount float64) string {
	input := fmt.Sprintf("{\"client_id\":%q,\"metric\":%q,\"amount\":%s}",
		clientID, metric, strconv.FormatFloat(amount, 'f', -1, 64))

	hash := sha256.Sum256([]byte(input))

	return hex.EncodeToString(hash[:])[:FingerprintLength]
}

// TimeBucket computes the dedup window index for a timestamp.
//
// Formula: floor(epochMillis / bucketWidthMillis)
//
// All timestamps within the same bucketWidth-sized window share an index, so
// near-in-time resubmissions collide while genuinely later events do not.
// Bucketing is aligned to the epoch, not to the first submission: two
// submissions 2 seconds apart can straddle a bucket boundary and both be
// stored. That edge is accepted; the alternative (sliding windows) needs
// per-key state and cannot be derived from the event alone.
//
// A non-positive bucketWidth falls back to DefaultBucketWidth.
func TimeBucket(timestamp time.Time, bucketWidth time.Duration) int64 {
	if bucketWidth <= 0 {
		bucketWidth = DefaultBucketWidth
	}

	return timestamp.UnixMilli() / bucketWidth.Milliseconds()
}
