package api

import (
	"net/http"
	"time"

	"github.com/eventcanon-io/eventcanon/internal/api/middleware"
	"github.com/eventcanon-io/eventcanon/internal/reporting"
)

type (
	// paramError represents a query parameter validation error.
	paramError struct {
		param string
		msg   string
	}
)

func (e *paramError) Error() string {
	return "Invalid parameter '" + e.param + "': " + e.msg
}

// parseReportFilter parses the shared reporting query parameters.
//
// Query Parameters:
//   - client_id: exact producer match
//   - start_date: ISO8601 timestamp, inclusive lower bound on the canonical timestamp
//   - end_date: ISO8601 timestamp, inclusive upper bound on the canonical timestamp
func parseReportFilter(r *http.Request) (*reporting.Filter, error) {
	q := r.URL.Query()

	filter := &reporting.Filter{}

	if clientID := q.Get("client_id"); clientID != "" {
		filter.ClientID = &clientID
	}

	if start := q.Get("start_date"); start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, &paramError{param: "start_date", msg: "must be valid ISO8601 timestamp"}
		}

		filter.Since = &t
	}

	if end := q.Get("end_date"); end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return nil, &paramError{param: "end_date", msg: "must be valid ISO8601 timestamp"}
		}

		filter.Until = &t
	}

	return filter, nil
}

// handleAggregate handles GET /api/v1/stats/aggregate.
// Returns per-client count, total and average, ordered by total descending.
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	filter, err := parseReportFilter(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	aggregates, err := s.reports.AggregateByClient(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query client aggregates",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query aggregates"))

		return
	}

	items := make([]ClientAggregateItem, 0, len(aggregates))
	for _, agg := range aggregates {
		items = append(items, ClientAggregateItem{
			ClientID: agg.ClientID,
			Count:    agg.Count,
			Total:    agg.Total,
			Average:  agg.Average,
		})
	}

	s.writeJSONResponse(w, r, http.StatusOK, AggregateResponse{Aggregates: items})
}

// handleListEvents handles GET /api/v1/events.
// Returns the most recent canonical events, newest first, capped at
// reporting.MaxProcessedListing rows.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	filter, err := parseReportFilter(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	events, err := s.reports.RecentProcessedEvents(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query processed events",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query events"))

		return
	}

	items := make([]ProcessedEventItem, 0, len(events))
	for _, event := range events {
		items = append(items, ProcessedEventItem{
			ID:             event.ID,
			ClientID:       event.ClientID,
			Metric:         event.Metric,
			Amount:         event.Amount,
			Timestamp:      isoTimestamp(event.Timestamp),
			IdempotencyKey: event.IdempotencyKey,
			ProcessedAt:    isoTimestamp(event.ProcessedAt),
		})
	}

	s.writeJSONResponse(w, r, http.StatusOK, EventListResponse{Events: items, Count: len(items)})
}

// handleListFailedEvents handles GET /api/v1/events/failed.
// Returns the most recent validation failures, newest first, capped at
// reporting.MaxFailedListing rows.
func (s *Server) handleListFailedEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	failures, err := s.reports.RecentFailedEvents(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query failed events",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query failed events"))

		return
	}

	items := make([]FailedEventItem, 0, len(failures))
	for _, failure := range failures {
		items = append(items, FailedEventItem{
			ID:           failure.ID,
			RawEventID:   failure.RawEventID,
			ErrorMessage: failure.ErrorMessage,
			FailedAt:     isoTimestamp(failure.FailedAt),
		})
	}

	s.writeJSONResponse(w, r, http.StatusOK, FailedEventListResponse{Failures: items, Count: len(items)})
}

// handleSummary handles GET /api/v1/stats/summary.
// Returns headline counters with the derived success rate.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	summary, err := s.reports.Summarize(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query summary",
			"correlation_id", correlationID,
			"error", err.Error(),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to query summary"))

		return
	}

	response := SummaryResponse{
		TotalProcessed: summary.TotalProcessed,
		TotalFailed:    summary.TotalFailed,
		TotalAmount:    summary.TotalAmount,
		SuccessRate:    summary.SuccessRate,
	}

	s.writeJSONResponse(w, r, http.StatusOK, response)
}
