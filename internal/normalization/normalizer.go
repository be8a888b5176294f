// Package normalization converts raw producer events into the canonical event shape.
//
// Raw documents arrive with producer-specific field layouts, mixed value types
// (string amounts vs numeric amounts) and inconsistent date formats. The
// normalizer resolves the producer identity, applies that producer's field
// mapping, and coerces each value into the canonical representation. It
// performs no I/O and never panics on malformed input: failures are reported
// as errors for the processing layer to classify and persist.
package normalization

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eventcanon-io/eventcanon/internal/mapping"
)

// UnknownClientID is the sentinel producer identity assigned when a raw
// document carries neither of the canonical identity fields.
const UnknownClientID = "unknown"

// UnknownMetric is the fallback metric name for documents without a metric field.
const UnknownMetric = "unknown"

// Canonical producer-identity fields, tried in priority order.
const (
	clientIDPrimaryField   = "source"
	clientIDSecondaryField = "client"
)

// epochMillisThreshold separates epoch-second from epoch-millisecond numeric
// timestamps: values above 10 billion cannot be plausible second counts
// (year ~2286) and are interpreted as milliseconds.
const epochMillisThreshold = 1e10

// Sentinel errors for normalization failures.
var (
	// ErrMissingAmount is returned when the amount field is absent, non-numeric,
	// or fails to parse. Amount is the only field whose absence is fatal.
	ErrMissingAmount = errors.New("missing or invalid amount field")
)

// timestampLayouts are the calendar formats accepted for string timestamps,
// tried in order. Layouts without a zone are interpreted as UTC.
var timestampLayouts = []string{ //nolint:gochecknoglobals // read-only layout table
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

type (
	// Event is the canonical, normalized form of a raw producer event.
	//
	// Events are transient: they are produced by the Normalizer, consumed
	// immediately by key derivation and storage, and never mutated after
	// creation. The persisted representation is processing.ProcessedEvent.
	Event struct {
		// ClientID is the resolved producer identity.
		ClientID string

		// Metric is the canonical metric name ("unknown" when absent).
		Metric string

		// Amount is the canonical numeric value of the event.
		Amount float64

		// Timestamp is the canonical event time in UTC. When the raw document
		// carries no parsable timestamp this is the processing time, which is a
		// deliberate lossy default: the timestamp is advisory, and duplicate
		// detection tolerates skew through minute-granularity bucketing.
		Timestamp time.Time

		// RawPayload is the original serialized raw document, retained for
		// audit and failure records.
		RawPayload []byte
	}

	// Normalizer converts raw documents into canonical Events using a
	// producer field-mapping registry. A Normalizer is immutable after
	// construction and safe for concurrent use.
	Normalizer struct {
		registry *mapping.Registry
		now      func() time.Time
	}

	// Option configures optional Normalizer behavior.
	Option func(*Normalizer)
)

// WithClock overrides the clock used for the lossy timestamp fallback.
// Intended for tests that need deterministic output.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// NewNormalizer creates a Normalizer backed by the given mapping registry.
func NewNormalizer(registry *mapping.Registry, opts ...Option) *Normalizer {
	n := &Normalizer{
		registry: registry,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Normalize converts a decoded raw document into a canonical Event.
//
// Steps:
//  1. Resolve the producer identity from the canonical identity fields
//     ("source", then "client", then "unknown").
//  2. Look up that producer's field mapping and extract each canonical field
//     by walking the mapping's dot-delimited path. A missing intermediate
//     node yields an absent value, not an error.
//  3. Coerce values: amount must parse as a number (the only fatal field);
//     metric defaults to "unknown"; timestamp falls back to the current
//     processing time when absent or unparsable.
//
// rawPayload is the original serialized document and is carried through
// verbatim for audit use.
//
// Normalize is a pure function of (doc, rawPayload, clock): same input
// produces the same canonical output regardless of call order.
func (n *Normalizer) Normalize(doc map[string]interface{}, rawPayload []byte) (*Event, error) {
	clientID := ResolveClientID(doc)
	fieldMapping := n.registry.Lookup(clientID)

	amountValue, _ := extractPath(doc, fieldMapping.AmountField)

	amount, err := coerceAmount(amountValue)
	if err != nil {
		return nil, err
	}

	metricValue, _ := extractPath(doc, fieldMapping.MetricField)
	timestampValue, _ := extractPath(doc, fieldMapping.TimestampField)

	return &Event{
		ClientID:   clientID,
		Metric:     coerceMetric(metricValue),
		Amount:     amount,
		Timestamp:  n.coerceTimestamp(timestampValue),
		RawPayload: rawPayload,
	}, nil
}

// ISO8601 returns the canonical wire representation of the event timestamp:
// UTC with millisecond precision (e.g., "2024-01-01T00:00:00.000Z").
func (e *Event) ISO8601() string {
	return e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ResolveClientID resolves the producer identity from the canonical identity
// fields in fixed priority order: "source" first, then the "client" alias,
// falling back to "unknown". The resolved identity selects the field mapping.
//
// Exported separately from Normalize because raw-event capture needs a source
// label before normalization has run (and even when normalization will fail).
func ResolveClientID(doc map[string]interface{}) string {
	if source, ok := doc[clientIDPrimaryField].(string); ok && source != "" {
		return source
	}

	if client, ok := doc[clientIDSecondaryField].(string); ok && client != "" {
		return client
	}

	return UnknownClientID
}

// extractPath walks a dot-delimited path through nested map nodes.
// Returns (value, true) if every segment resolves, (nil, false) otherwise.
// A missing or non-map intermediate node yields an absent value, never an error.
func extractPath(doc map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	var current interface{} = doc

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// coerceAmount converts an extracted amount value to float64.
//
// Numeric values pass through; strings parse as decimal numbers. ParseFloat
// also accepts the non-finite spellings "NaN" and "Inf", which must not reach
// the fingerprint or the canonical store, so those are rejected too. Anything
// else (absent, non-numeric, unparsable) is a required-field error.
func coerceAmount(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		amount, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
			return 0, fmt.Errorf("%w: cannot parse %q as a number", ErrMissingAmount, v)
		}

		return amount, nil
	case nil:
		return 0, ErrMissingAmount
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrMissingAmount, value)
	}
}

// coerceMetric converts an extracted metric value to the canonical metric name.
// Absent or empty values default to "unknown"; metric never fails normalization.
func coerceMetric(value interface{}) string {
	if metric, ok := value.(string); ok && metric != "" {
		return metric
	}

	return UnknownMetric
}

// coerceTimestamp converts an extracted timestamp value to a canonical UTC time.
//
// Numeric values are interpreted as epoch milliseconds when the magnitude
// exceeds 10 billion, otherwise epoch seconds. String values are tried against
// the accepted calendar layouts. Any absent or unparsable value falls back to
// the current processing time: the timestamp is advisory, not load-bearing for
// correctness, so a lossy default is preferred over rejecting the event.
func (n *Normalizer) coerceTimestamp(value interface{}) time.Time {
	switch v := value.(type) {
	case float64:
		return epochToTime(v)
	case int:
		return epochToTime(float64(v))
	case int64:
		return epochToTime(float64(v))
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts.UTC()
			}
		}
	}

	return n.now().UTC()
}

// epochToTime converts a numeric epoch value (seconds or milliseconds) to UTC time.
func epochToTime(epoch float64) time.Time {
	millis := int64(epoch)
	if epoch <= epochMillisThreshold {
		millis = int64(epoch * 1000)
	}

	return time.UnixMilli(millis).UTC()
}
