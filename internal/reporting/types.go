// Package reporting provides read-only aggregation queries over processed and
// failed events.
package reporting

import (
	"fmt"
	"time"
)

// Listing bounds. Reporting queries are operator-facing and always bounded;
// unbounded listings are not offered.
const (
	// MaxProcessedListing caps the most-recent processed events listing.
	MaxProcessedListing = 100

	// MaxFailedListing caps the most-recent failed events listing.
	MaxFailedListing = 50
)

type (
	// ClientAggregate is one row of the per-client aggregation: event count,
	// amount total and derived average for a single producer.
	ClientAggregate struct {
		ClientID string
		Count    int64
		Total    float64
		Average  float64
	}

	// Filter provides optional filtering for aggregation and listing queries.
	//
	// All fields are optional (pointer types). Nil fields are not applied.
	// Multiple filters combine with AND logic. Time bounds apply to the
	// canonical event timestamp, not the processing time.
	Filter struct {
		ClientID *string
		Since    *time.Time
		Until    *time.Time
	}

	// Summary combines the headline pipeline counters.
	Summary struct {
		TotalProcessed int64
		TotalFailed    int64
		TotalAmount    float64

		// SuccessRate is processed / (processed + failed) rendered as a
		// percentage with two decimals, or "N/A" when nothing has been
		// submitted yet.
		SuccessRate string
	}
)

// ComputeSuccessRate renders the success rate for a Summary.
// Returns "N/A" when both counters are zero (no rate is derivable).
func ComputeSuccessRate(processed, failed int64) string {
	total := processed + failed
	if total == 0 {
		return "N/A"
	}

	return fmt.Sprintf("%.2f%%", float64(processed)/float64(total)*100)
}
