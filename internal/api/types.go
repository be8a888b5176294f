// Package api provides HTTP API server implementation for the eventcanon service.
package api

import (
	"encoding/json"
)

type (
	// IngestRequest represents the payload of POST /api/v1/events.
	//
	// Event is kept as raw JSON so the original serialized form can be
	// retained verbatim for the audit trail, independent of how the decoded
	// document is later mutated by normalization.
	IngestRequest struct {
		Event           json.RawMessage `json:"event"`
		SimulateFailure bool            `json:"simulateFailure,omitempty"`
	}

	// IngestResponse represents the outcome of a single event submission.
	//
	// Status is one of "stored", "duplicate" or "rejected". Rejected
	// submissions carry the validation reason and are returned with HTTP 400;
	// stored and duplicate submissions return HTTP 200.
	IngestResponse struct {
		Status           string `json:"status"`
		RawEventID       int64  `json:"rawEventId"`
		IdempotencyKey   string `json:"idempotencyKey,omitempty"`
		ProcessedEventID int64  `json:"processedEventId,omitempty"`
		Reason           string `json:"reason,omitempty"`
		CorrelationID    string `json:"correlationId"`
		Timestamp        string `json:"timestamp"`
	}

	// ClientAggregateItem is one row of GET /api/v1/stats/aggregate.
	ClientAggregateItem struct {
		ClientID string  `json:"clientId"`
		Count    int64   `json:"count"`
		Total    float64 `json:"total"`
		Average  float64 `json:"average"`
	}

	// AggregateResponse represents the response of GET /api/v1/stats/aggregate.
	AggregateResponse struct {
		Aggregates []ClientAggregateItem `json:"aggregates"`
	}

	// ProcessedEventItem is one row of GET /api/v1/events.
	ProcessedEventItem struct {
		ID             int64   `json:"id"`
		ClientID       string  `json:"clientId"`
		Metric         string  `json:"metric"`
		Amount         float64 `json:"amount"`
		Timestamp      string  `json:"timestamp"`
		IdempotencyKey string  `json:"idempotencyKey"`
		ProcessedAt    string  `json:"processedAt"`
	}

	// EventListResponse represents the response of GET /api/v1/events.
	EventListResponse struct {
		Events []ProcessedEventItem `json:"events"`
		Count  int                  `json:"count"`
	}

	// FailedEventItem is one row of GET /api/v1/events/failed.
	FailedEventItem struct {
		ID           int64  `json:"id"`
		RawEventID   int64  `json:"rawEventId"`
		ErrorMessage string `json:"errorMessage"`
		FailedAt     string `json:"failedAt"`
	}

	// FailedEventListResponse represents the response of GET /api/v1/events/failed.
	FailedEventListResponse struct {
		Failures []FailedEventItem `json:"failures"`
		Count    int               `json:"count"`
	}

	// SummaryResponse represents the response of GET /api/v1/stats/summary.
	SummaryResponse struct {
		TotalProcessed int64   `json:"totalProcessed"`
		TotalFailed    int64   `json:"totalFailed"`
		TotalAmount    float64 `json:"totalAmount"`
		SuccessRate    string  `json:"successRate"`
	}

	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}
)
