// Package api provides HTTP API server implementation for the eventcanon service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eventcanon-io/eventcanon/internal/mapping"
	"github.com/eventcanon-io/eventcanon/internal/normalization"
	"github.com/eventcanon-io/eventcanon/internal/processing"
	"github.com/eventcanon-io/eventcanon/internal/storage"
)

// newTestServer builds a server wired to an in-memory store with
// authentication and rate limiting disabled. The returned store can be
// inspected and seeded directly by tests.
func newTestServer(t *testing.T) (*Server, *storage.MemoryEventStore) {
	t.Helper()

	store := storage.NewMemoryEventStore()

	normalizer := normalization.NewNormalizer(mapping.NewRegistry(nil))
	processor := processing.NewProcessor(store, store, normalizer)

	cfg := &ServerConfig{
		Port:            8080,
		Host:            "127.0.0.1",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        slog.LevelError,
		MaxRequestSize:  defaultMaxRequestSize,
	}

	return NewServer(cfg, processor, store, store, nil, nil), store
}

// postEvent submits a JSON body to POST /api/v1/events through the full
// middleware chain and returns the recorded response.
func postEvent(server *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	return rec
}

func decodeIngestResponse(t *testing.T, rec *httptest.ResponseRecorder) *IngestResponse {
	t.Helper()

	var response IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode ingest response: %v", err)
	}

	return &response
}

// TestIngestEvent_Stored verifies the happy path: a nested client_A payload
// is normalized and stored.
func TestIngestEvent_Stored(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _ := newTestServer(t)

	body := `{"event": {"source": "client_A", "payload": {"metric": "transaction", "amount": "1200", "timestamp": "2024/01/01"}}}`

	rec := postEvent(server, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	response := decodeIngestResponse(t, rec)

	if response.Status != "stored" {
		t.Errorf("Expected status stored, got %q", response.Status)
	}

	if response.ProcessedEventID == 0 {
		t.Error("Expected a processed event ID on the stored path")
	}

	if response.IdempotencyKey == "" {
		t.Error("Expected an idempotency key on the stored path")
	}

	if response.CorrelationID == "" {
		t.Error("Expected a correlation ID in the response")
	}
}

// TestIngestEvent_MappingSelection verifies that the resolved identity picks
// the producer's own field layout: client_B's flat fields store, while the
// same logical event under client_B identity but default field names is
// rejected because that mapping reads value, not amount.
func TestIngestEvent_MappingSelection(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _ := newTestServer(t)

	flat := `{"event": {"client": "client_B", "event_type": "transaction", "value": 10, "event_time": "2024-01-01T10:00:00Z"}}`

	response := decodeIngestResponse(t, postEvent(server, flat))
	if response.Status != "stored" {
		t.Errorf("Expected client_B flat layout stored, got %q (%s)", response.Status, response.Reason)
	}

	mismatched := `{"event": {"source": "client_B", "metric": "transaction", "amount": 10, "timestamp": "2024-01-01T10:00:00Z"}}`

	rec := postEvent(server, mismatched)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400 for mismatched field layout, got %d", rec.Code)
	}

	response = decodeIngestResponse(t, rec)
	if response.Status != "rejected" {
		t.Errorf("Expected mismatched layout rejected, got %q", response.Status)
	}

	// An unregistered producer falls back to the default mapping, which does
	// read the canonical flat field names.
	unknown := `{"event": {"source": "client_C", "metric": "transaction", "amount": 10, "timestamp": "2024-01-01T10:00:00Z"}}`

	response = decodeIngestResponse(t, postEvent(server, unknown))
	if response.Status != "stored" {
		t.Errorf("Expected default-mapping layout stored, got %q (%s)", response.Status, response.Reason)
	}
}

// TestIngestEvent_Duplicate verifies that resubmitting the same event within
// the dedup window collapses onto the first canonical record.
func TestIngestEvent_Duplicate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _ := newTestServer(t)

	body := `{"event": {"client": "client_B", "event_type": "transaction", "value": 42.5, "event_time": "2024-01-01T10:00:00Z"}}`

	first := decodeIngestResponse(t, postEvent(server, body))
	if first.Status != "stored" {
		t.Fatalf("Expected first submission stored, got %q", first.Status)
	}

	rec := postEvent(server, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for duplicate, got %d", rec.Code)
	}

	second := decodeIngestResponse(t, rec)

	if second.Status != "duplicate" {
		t.Errorf("Expected status duplicate, got %q", second.Status)
	}

	if second.ProcessedEventID != first.ProcessedEventID {
		t.Errorf("Expected duplicate to reference processed event %d, got %d",
			first.ProcessedEventID, second.ProcessedEventID)
	}

	if second.IdempotencyKey != first.IdempotencyKey {
		t.Errorf("Expected matching idempotency keys, got %q and %q",
			first.IdempotencyKey, second.IdempotencyKey)
	}
}

// TestIngestEvent_Rejected verifies that an event without a usable amount is
// rejected with 400 and an audit trail.
func TestIngestEvent_Rejected(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store := newTestServer(t)

	body := `{"event": {"client": "client_B", "event_type": "transaction", "event_time": "2024-01-01T10:00:00Z"}}`

	rec := postEvent(server, body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}

	response := decodeIngestResponse(t, rec)

	if response.Status != "rejected" {
		t.Errorf("Expected status rejected, got %q", response.Status)
	}

	if response.Reason == "" {
		t.Error("Expected a rejection reason")
	}

	failures, err := store.RecentFailedEvents(context.Background())
	if err != nil {
		t.Fatalf("Failed to list failures: %v", err)
	}

	if len(failures) != 1 {
		t.Errorf("Expected 1 audited failure, got %d", len(failures))
	}
}

// TestIngestEvent_SimulatedFailure verifies the injected storage failure maps
// to a 500 problem response.
func TestIngestEvent_SimulatedFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _ := newTestServer(t)

	body := `{"event": {"client": "client_B", "event_type": "transaction", "value": 10, "event_time": "2024-01-01T10:00:00Z"}, "simulateFailure": true}`

	rec := postEvent(server, body)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Expected problem+json content type, got %q", ct)
	}
}

// TestIngestEvent_RequestValidation covers the 4xx request validation paths.
func TestIngestEvent_RequestValidation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _ := newTestServer(t)

	tests := []struct {
		name        string
		body        string
		contentType string
		want        int
	}{
		{"wrong content type", `{"event": {}}`, "text/plain", http.StatusUnsupportedMediaType},
		{"empty body", "", "application/json", http.StatusBadRequest},
		{"invalid json", `{"event": `, "application/json", http.StatusBadRequest},
		{"missing event", `{"simulateFailure": false}`, "application/json", http.StatusBadRequest},
		{"scalar event", `{"event": 42}`, "application/json", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)

			rec := httptest.NewRecorder()
			server.httpServer.Handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

// TestIngestEvent_PayloadTooLarge verifies oversized requests fail fast with 413.
func TestIngestEvent_PayloadTooLarge(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _ := newTestServer(t)
	server.config.MaxRequestSize = 64

	body := `{"event": {"source": "client_A", "payload": {"metric": "transaction", "amount": "1200"}}}`

	rec := postEvent(server, body)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected status 413, got %d", rec.Code)
	}
}

// TestHealthEndpoints verifies the public probe endpoints.
func TestHealthEndpoints(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _ := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{"/ping", http.StatusOK},
		{"/ready", http.StatusOK},
		{"/health", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		rec := httptest.NewRecorder()
		server.httpServer.Handler.ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Errorf("GET %s: expected status %d, got %d", tt.path, tt.want, rec.Code)
		}
	}
}

// TestIngestEvent_AuthRequired verifies the business endpoint rejects
// unauthenticated requests once a key store is configured, while the public
// probes stay open.
func TestIngestEvent_AuthRequired(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := storage.NewMemoryEventStore()
	normalizer := normalization.NewNormalizer(mapping.NewRegistry(nil))
	processor := processing.NewProcessor(store, store, normalizer)

	keyStore := storage.NewInMemoryKeyStore()
	key, err := storage.NewKey("client_A", "client A ingest key", []string{"events:write"})
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	if err := keyStore.Add(key); err != nil {
		t.Fatalf("Failed to add key: %v", err)
	}

	cfg := &ServerConfig{
		Port:            8080,
		Host:            "127.0.0.1",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        slog.LevelError,
		MaxRequestSize:  defaultMaxRequestSize,
	}

	server := NewServer(cfg, processor, store, store, keyStore, nil)

	body := `{"event": {"client": "client_B", "event_type": "transaction", "value": 10, "event_time": "2024-01-01T10:00:00Z"}}`

	// Without credentials the business endpoint is rejected.
	rec := postEvent(server, body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401 without credentials, got %d", rec.Code)
	}

	// The liveness probe stays open.
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec = httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected /ping to bypass auth, got %d", rec.Code)
	}

	// With the issued key the submission is accepted.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", key.Key)

	rec = httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 with valid key, got %d: %s", rec.Code, rec.Body.String())
	}
}
