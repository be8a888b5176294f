package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/eventcanon-io/eventcanon/internal/api/middleware"
	"github.com/eventcanon-io/eventcanon/internal/processing"
)

// isoTimestamp renders a time in the same millisecond-precision UTC form the
// canonical events carry on the wire.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// handleIngestEvent handles event submissions.
// POST /api/v1/events - run a single producer event through the pipeline.
//
// Request validation (returns 4xx):
//   - 405 Method Not Allowed: Only POST is allowed (handled by route pattern)
//   - 415 Unsupported Media Type: Content-Type must be application/json
//   - 413 Payload Too Large: Request body exceeds MaxRequestSize
//   - 400 Bad Request: Empty body, invalid JSON, or missing/non-object event
//
// Pipeline outcomes:
//   - 200 OK with status "stored": canonical event written
//   - 200 OK with status "duplicate": submission collapsed onto a prior event
//   - 400 Bad Request with status "rejected": normalization failure, audited
//   - 500 Internal Server Error: storage failure; the submission is retryable
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	correlationID := middleware.GetCorrelationID(r.Context())

	// Content-Type validation
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	sub, problem := s.parseIngestRequest(r)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	outcome, err := s.processor.ProcessEvent(r.Context(), sub)
	if err != nil {
		s.logger.Error("Event processing failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to process event"))

		return
	}

	response := buildIngestResponse(outcome, correlationID)

	statusCode := http.StatusOK
	if outcome.Rejected {
		statusCode = http.StatusBadRequest
	}

	s.writeJSONResponse(w, r, statusCode, response)

	duration := time.Since(startTime)
	s.logger.Info("Event submission processed",
		slog.String("correlation_id", correlationID),
		slog.String("status", response.Status),
		slog.Int64("raw_event_id", outcome.RawEventID),
		slog.String("idempotency_key", outcome.IdempotencyKey),
		slog.Int("status_code", statusCode),
		slog.Duration("duration", duration),
	)
}

// parseIngestRequest parses and validates the HTTP request body.
// Returns a pipeline submission or a ProblemDetail if parsing fails.
//
// Validates:
//   - Request size (optimization for known oversized requests)
//   - Empty body check (better UX than JSON decode error)
//   - JSON parsing
//   - Presence and object shape of the event field
func (s *Server) parseIngestRequest(r *http.Request) (*processing.Submission, *ProblemDetail) {
	// Request size check (optimization: fail fast for known oversized requests)
	// Allow unknown sizes (-1) or 0 (empty, caught later)
	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		return nil, PayloadTooLarge(
			fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize),
		)
	}

	// Empty body check (better UX: specific error message)
	if r.ContentLength == 0 {
		return nil, BadRequest("Request body cannot be empty")
	}

	var req IngestRequest

	decoder := json.NewDecoder(io.LimitReader(r.Body, s.config.MaxRequestSize))
	if err := decoder.Decode(&req); err != nil {
		return nil, BadRequest("Invalid JSON: " + err.Error())
	}

	if len(req.Event) == 0 {
		return nil, BadRequest("Request must contain an event field")
	}

	// The event must decode to a JSON object; scalars and arrays have no
	// fields to map.
	var doc map[string]interface{}
	if err := json.Unmarshal(req.Event, &doc); err != nil {
		return nil, BadRequest("Event must be a JSON object")
	}

	return &processing.Submission{
		Document:        doc,
		RawPayload:      []byte(req.Event),
		SimulateFailure: req.SimulateFailure,
	}, nil
}

// buildIngestResponse maps a pipeline outcome to the API response shape.
func buildIngestResponse(outcome *processing.Outcome, correlationID string) *IngestResponse {
	status := "stored"

	switch {
	case outcome.Rejected:
		status = "rejected"
	case outcome.Duplicate:
		status = "duplicate"
	}

	return &IngestResponse{
		Status:           status,
		RawEventID:       outcome.RawEventID,
		IdempotencyKey:   outcome.IdempotencyKey,
		ProcessedEventID: outcome.ProcessedEventID,
		Reason:           outcome.Reason,
		CorrelationID:    correlationID,
		Timestamp:        isoTimestamp(time.Now()),
	}
}

// writeJSONResponse marshals and writes a JSON response body.
// Marshal failures fall back to a 500 problem response; write failures after
// headers are sent can only be logged.
func (s *Server) writeJSONResponse(w http.ResponseWriter, r *http.Request, statusCode int, body interface{}) {
	correlationID := middleware.GetCorrelationID(r.Context())

	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("Failed to marshal response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}
