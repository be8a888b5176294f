package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lib/pq"

	"github.com/eventcanon-io/eventcanon/internal/config"
	"github.com/eventcanon-io/eventcanon/internal/idempotency"
	"github.com/eventcanon-io/eventcanon/internal/processing"
	"github.com/eventcanon-io/eventcanon/internal/reporting"
)

// uniqueViolation is the PostgreSQL error code for unique-constraint violations.
const uniqueViolation = "23505"

// EventStore implements processing.Store, idempotency.Registry and
// reporting.Store with a PostgreSQL backend.
//
// The uniqueness constraint on processed_events.idempotency_key is the
// correctness backstop for duplicate detection: races between the registry
// existence check and the canonical insert resolve to a single winner here,
// reported as processing.ErrKeyConflict.
type EventStore struct {
	conn   *Connection
	logger *slog.Logger
}

// Interface conformance checked at compile time.
var (
	_ processing.Store     = (*EventStore)(nil)
	_ idempotency.Registry = (*EventStore)(nil)
	_ reporting.Store      = (*EventStore)(nil)
)

// NewEventStore creates a PostgreSQL-backed event store.
func NewEventStore(conn *Connection) (*EventStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &EventStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// Close is a no-op: the connection is managed externally via dependency
// injection and closed by the caller during shutdown.
func (s *EventStore) Close() error {
	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *EventStore) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoDatabaseConnection
	}

	return s.conn.HealthCheck(ctx)
}

// InsertRawEvent implements processing.Store.
func (s *EventStore) InsertRawEvent(ctx context.Context, source string, rawPayload []byte, status processing.Status) (int64, error) {
	query := `
		INSERT INTO raw_events (source, raw_payload, status)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	var id int64
	if err := s.conn.QueryRowContext(ctx, query, source, rawPayload, string(status)).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert raw event: %w", err)
	}

	return id, nil
}

// UpdateRawEventStatus implements processing.Store.
//
// Terminal statuses never regress: an update against a raw event already at
// success, failed or duplicate is a silent no-op, not an error.
func (s *EventStore) UpdateRawEventStatus(ctx context.Context, rawEventID int64, status processing.Status) error {
	query := `
		UPDATE raw_events
		SET status = $2
		WHERE id = $1
		  AND status NOT IN ('success', 'failed', 'duplicate')
	`

	result, err := s.conn.ExecContext(ctx, query, rawEventID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update raw event %d status: %w", rawEventID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for raw event %d: %w", rawEventID, err)
	}

	if affected == 0 {
		var exists bool
		if err := s.conn.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM raw_events WHERE id = $1)`, rawEventID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check raw event %d: %w", rawEventID, err)
		}

		if !exists {
			return fmt.Errorf("%w: id %d", processing.ErrRawEventNotFound, rawEventID)
		}
	}

	return nil
}

// InsertProcessedEvent implements processing.Store.
// A unique violation on the idempotency key maps to processing.ErrKeyConflict.
func (s *EventStore) InsertProcessedEvent(ctx context.Context, event *processing.ProcessedEvent) (int64, error) {
	query := `
		INSERT INTO processed_events (client_id, metric, amount, timestamp, idempotency_key, raw_event_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64

	err := s.conn.QueryRowContext(ctx, query,
		event.ClientID,
		event.Metric,
		event.Amount,
		event.Timestamp,
		event.IdempotencyKey,
		event.RawEventID,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", processing.ErrKeyConflict, event.IdempotencyKey)
		}

		return 0, fmt.Errorf("failed to insert processed event: %w", err)
	}

	return id, nil
}

// InsertFailedEvent implements processing.Store.
func (s *EventStore) InsertFailedEvent(ctx context.Context, failure *processing.FailedEvent) (int64, error) {
	query := `
		INSERT INTO failed_events (raw_event_id, error_message, raw_payload)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	var id int64

	err := s.conn.QueryRowContext(ctx, query,
		failure.RawEventID,
		failure.ErrorMessage,
		failure.RawPayload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert failed event: %w", err)
	}

	return id, nil
}

// Exists implements idempotency.Registry with a point lookup against the
// idempotency_keys table.
func (s *EventStore) Exists(ctx context.Context, key string) (bool, int64, error) {
	query := `SELECT processed_event_id FROM idempotency_keys WHERE idempotency_key = $1`

	var processedEventID int64

	err := s.conn.QueryRowContext(ctx, query, key).Scan(&processedEventID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, nil
	}

	if err != nil {
		return false, 0, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	return true, processedEventID, nil
}

// Record implements idempotency.Registry. A unique violation means a
// concurrent writer already committed this key: reported as recorded=false,
// never as an error.
func (s *EventStore) Record(ctx context.Context, key string, processedEventID int64) (bool, error) {
	query := `INSERT INTO idempotency_keys (idempotency_key, processed_event_id) VALUES ($1, $2)`

	if _, err := s.conn.ExecContext(ctx, query, key, processedEventID); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to record idempotency key: %w", err)
	}

	return true, nil
}

// AggregateByClient implements reporting.Store.
func (s *EventStore) AggregateByClient(ctx context.Context, filter *reporting.Filter) ([]reporting.ClientAggregate, error) {
	query := `
		SELECT client_id, COUNT(*), SUM(amount), AVG(amount)
		FROM processed_events
	`

	where, args := buildFilter(filter)
	query += where + `
		GROUP BY client_id
		ORDER BY SUM(amount) DESC
	`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by client: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var aggregates []reporting.ClientAggregate

	for rows.Next() {
		var agg reporting.ClientAggregate
		if err := rows.Scan(&agg.ClientID, &agg.Count, &agg.Total, &agg.Average); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}

		aggregates = append(aggregates, agg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate query failed: %w", err)
	}

	return aggregates, nil
}

// RecentProcessedEvents implements reporting.Store.
func (s *EventStore) RecentProcessedEvents(ctx context.Context, filter *reporting.Filter) ([]processing.ProcessedEvent, error) {
	query := `
		SELECT id, client_id, metric, amount, timestamp, idempotency_key, raw_event_id, processed_at
		FROM processed_events
	`

	where, args := buildFilter(filter)
	args = append(args, reporting.MaxProcessedListing)
	query += where + fmt.Sprintf(`
		ORDER BY processed_at DESC
		LIMIT $%d
	`, len(args))

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed events: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var events []processing.ProcessedEvent

	for rows.Next() {
		var event processing.ProcessedEvent

		err := rows.Scan(
			&event.ID,
			&event.ClientID,
			&event.Metric,
			&event.Amount,
			&event.Timestamp,
			&event.IdempotencyKey,
			&event.RawEventID,
			&event.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processed event: %w", err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("processed events query failed: %w", err)
	}

	return events, nil
}

// RecentFailedEvents implements reporting.Store.
func (s *EventStore) RecentFailedEvents(ctx context.Context) ([]processing.FailedEvent, error) {
	query := `
		SELECT id, raw_event_id, error_message, raw_payload, failed_at
		FROM failed_events
		ORDER BY failed_at DESC
		LIMIT $1
	`

	rows, err := s.conn.QueryContext(ctx, query, reporting.MaxFailedListing)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed events: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var events []processing.FailedEvent

	for rows.Next() {
		var event processing.FailedEvent

		err := rows.Scan(&event.ID, &event.RawEventID, &event.ErrorMessage, &event.RawPayload, &event.FailedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failed event: %w", err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed events query failed: %w", err)
	}

	return events, nil
}

// Summarize implements reporting.Store.
func (s *EventStore) Summarize(ctx context.Context) (*reporting.Summary, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM processed_events),
			(SELECT COUNT(*) FROM failed_events),
			(SELECT COALESCE(SUM(amount), 0) FROM processed_events)
	`

	var summary reporting.Summary

	err := s.conn.QueryRowContext(ctx, query).Scan(
		&summary.TotalProcessed,
		&summary.TotalFailed,
		&summary.TotalAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize events: %w", err)
	}

	summary.SuccessRate = reporting.ComputeSuccessRate(summary.TotalProcessed, summary.TotalFailed)

	return &summary, nil
}

// buildFilter renders the optional reporting filter as a WHERE clause with
// positional arguments. Time bounds apply to the canonical event timestamp.
func buildFilter(filter *reporting.Filter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	var (
		clauses []string
		args    []interface{}
	)

	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		clauses = append(clauses, fmt.Sprintf("client_id = $%d", len(args)))
	}

	if filter.Since != nil {
		args = append(args, *filter.Since)
		clauses = append(clauses, fmt.Sprintf("timestamp >= $%d", len(args)))
	}

	if filter.Until != nil {
		args = append(args, *filter.Until)
		clauses = append(clauses, fmt.Sprintf("timestamp <= $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}

	where := " WHERE " + clauses[0]
	for _, clause := range clauses[1:] {
		where += " AND " + clause
	}

	return where, args
}

// isUniqueViolation checks for a PostgreSQL unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}

	return false
}
