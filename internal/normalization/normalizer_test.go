package normalization

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/eventcanon-io/eventcanon/internal/mapping"
)

// fixedClock returns a Normalizer clock pinned to a known instant.
func fixedClock(instant time.Time) func() time.Time {
	return func() time.Time { return instant }
}

func newTestNormalizer() *Normalizer {
	return NewNormalizer(
		mapping.NewRegistry(nil),
		WithClock(fixedClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))),
	)
}

// decodeDoc unmarshals a JSON document the way the API layer does, so value
// types (float64 for numbers) match production behavior.
func decodeDoc(t *testing.T, raw string) map[string]interface{} {
	t.Helper()

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("failed to decode test document: %v", err)
	}

	return doc
}

func TestNormalize_ClientANestedPayload(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	raw := `{"source":"client_A","payload":{"metric":"transaction","amount":"1200","timestamp":"2024/01/01"}}`
	doc := decodeDoc(t, raw)

	event, err := newTestNormalizer().Normalize(doc, []byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v, want nil", err)
	}

	if event.ClientID != "client_A" {
		t.Errorf("ClientID = %q, want %q", event.ClientID, "client_A")
	}

	if event.Metric != "transaction" {
		t.Errorf("Metric = %q, want %q", event.Metric, "transaction")
	}

	if event.Amount != 1200 {
		t.Errorf("Amount = %v, want 1200", event.Amount)
	}

	if got := event.ISO8601(); got != "2024-01-01T00:00:00.000Z" {
		t.Errorf("ISO8601() = %q, want %q", got, "2024-01-01T00:00:00.000Z")
	}

	if string(event.RawPayload) != raw {
		t.Errorf("RawPayload not retained verbatim: %s", event.RawPayload)
	}
}

func TestNormalize_ClientBFlatLayout(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	raw := `{"client":"client_B","event_type":"payment","value":1200,"event_time":"2024-01-01T00:00:00Z"}`
	doc := decodeDoc(t, raw)

	event, err := newTestNormalizer().Normalize(doc, []byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v, want nil", err)
	}

	if event.ClientID != "client_B" {
		t.Errorf("ClientID = %q, want %q", event.ClientID, "client_B")
	}

	if event.Metric != "payment" {
		t.Errorf("Metric = %q, want %q", event.Metric, "payment")
	}

	if event.Amount != 1200 {
		t.Errorf("Amount = %v, want 1200", event.Amount)
	}
}

func TestNormalize_StringAndNumericAmountsAreEquivalent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	stringDoc := decodeDoc(t, `{"source":"client_A","payload":{"metric":"m","amount":"1200","timestamp":"2024-01-01"}}`)
	numberDoc := decodeDoc(t, `{"source":"client_A","payload":{"metric":"m","amount":1200,"timestamp":"2024-01-01"}}`)

	normalizer := newTestNormalizer()

	fromString, err := normalizer.Normalize(stringDoc, nil)
	if err != nil {
		t.Fatalf("Normalize(string amount) error = %v", err)
	}

	fromNumber, err := normalizer.Normalize(numberDoc, nil)
	if err != nil {
		t.Fatalf("Normalize(numeric amount) error = %v", err)
	}

	if fromString.Amount != fromNumber.Amount {
		t.Errorf("amounts differ: string %v vs number %v", fromString.Amount, fromNumber.Amount)
	}
}

func TestNormalize_MissingAmountFails(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"amount absent", `{"source":"client_A","payload":{"metric":"m","timestamp":"2024-01-01"}}`},
		{"amount non-numeric string", `{"source":"client_A","payload":{"metric":"m","amount":"not-a-number"}}`},
		{"amount wrong type", `{"source":"client_A","payload":{"metric":"m","amount":{"nested":true}}}`},
		{"payload branch missing entirely", `{"source":"client_A"}`},
		{"amount NaN string", `{"source":"client_A","payload":{"metric":"m","amount":"NaN"}}`},
		{"amount Inf string", `{"source":"client_A","payload":{"metric":"m","amount":"Inf"}}`},
		{"amount negative Inf string", `{"source":"client_A","payload":{"metric":"m","amount":"-Inf"}}`},
	}

	normalizer := newTestNormalizer()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := normalizer.Normalize(decodeDoc(t, tt.raw), []byte(tt.raw))
			if !errors.Is(err, ErrMissingAmount) {
				t.Errorf("Normalize() error = %v, want ErrMissingAmount", err)
			}
		})
	}
}

func TestNormalize_MetricDefaultsToUnknown(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	doc := decodeDoc(t, `{"source":"client_A","payload":{"amount":5}}`)

	event, err := newTestNormalizer().Normalize(doc, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if event.Metric != UnknownMetric {
		t.Errorf("Metric = %q, want %q", event.Metric, UnknownMetric)
	}
}

func TestNormalize_UnknownProducerUsesDefaultMapping(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	doc := decodeDoc(t, `{"source":"client_Z","metric":"signup","amount":3,"timestamp":"2024-01-02"}`)

	event, err := newTestNormalizer().Normalize(doc, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if event.ClientID != "client_Z" {
		t.Errorf("ClientID = %q, want %q", event.ClientID, "client_Z")
	}

	if event.Metric != "signup" {
		t.Errorf("Metric = %q, want %q", event.Metric, "signup")
	}
}

func TestNormalize_MissingIdentityFallsBackToUnknown(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	doc := decodeDoc(t, `{"metric":"signup","amount":3}`)

	event, err := newTestNormalizer().Normalize(doc, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if event.ClientID != UnknownClientID {
		t.Errorf("ClientID = %q, want %q", event.ClientID, UnknownClientID)
	}
}

func TestNormalize_SecondaryIdentityField(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	doc := decodeDoc(t, `{"client":"client_B","event_type":"payment","value":10,"event_time":"2024-01-01T00:00:00Z"}`)

	event, err := newTestNormalizer().Normalize(doc, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if event.ClientID != "client_B" {
		t.Errorf("ClientID = %q, want %q", event.ClientID, "client_B")
	}
}

func TestCoerceTimestamp_NumericEpochs(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		// 1704067200 = 2024-01-01T00:00:00Z in epoch seconds
		{"epoch seconds", float64(1704067200), "2024-01-01T00:00:00.000Z"},
		// Same instant in epoch milliseconds (magnitude above the 1e10 threshold)
		{"epoch milliseconds", float64(1704067200000), "2024-01-01T00:00:00.000Z"},
	}

	normalizer := newTestNormalizer()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &Event{Timestamp: normalizer.coerceTimestamp(tt.value)}
			if got := event.ISO8601(); got != tt.want {
				t.Errorf("coerceTimestamp(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestCoerceTimestamp_UnparsableFallsBackToClock(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	processingTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	normalizer := NewNormalizer(mapping.NewRegistry(nil), WithClock(fixedClock(processingTime)))

	tests := []struct {
		name  string
		value interface{}
	}{
		{"garbage string", "not a date"},
		{"absent value", nil},
		{"wrong type", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizer.coerceTimestamp(tt.value)
			if !got.Equal(processingTime) {
				t.Errorf("coerceTimestamp(%v) = %v, want processing time %v", tt.value, got, processingTime)
			}
		})
	}
}

func TestNormalize_IsPure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	raw := `{"source":"client_A","payload":{"metric":"transaction","amount":"42.5","timestamp":"2024-03-04T05:06:07Z"}}`
	normalizer := newTestNormalizer()

	first, err := normalizer.Normalize(decodeDoc(t, raw), []byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	// Interleave an unrelated call to check order independence
	_, _ = normalizer.Normalize(decodeDoc(t, `{"client":"client_B","value":1}`), nil)

	second, err := normalizer.Normalize(decodeDoc(t, raw), []byte(raw))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if first.ClientID != second.ClientID || first.Metric != second.Metric ||
		first.Amount != second.Amount || !first.Timestamp.Equal(second.Timestamp) {
		t.Errorf("Normalize() is not pure: %+v vs %+v", first, second)
	}
}
