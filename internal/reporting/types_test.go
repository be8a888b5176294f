// Package reporting provides read-only aggregation queries.
package reporting

import "testing"

func TestComputeSuccessRate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name      string
		processed int64
		failed    int64
		want      string
	}{
		{"nothing submitted", 0, 0, "N/A"},
		{"all succeeded", 10, 0, "100.00%"},
		{"all failed", 0, 5, "0.00%"},
		{"mixed", 3, 1, "75.00%"},
		{"repeating fraction", 1, 2, "33.33%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeSuccessRate(tt.processed, tt.failed); got != tt.want {
				t.Errorf("ComputeSuccessRate(%d, %d) = %q, want %q", tt.processed, tt.failed, got, tt.want)
			}
		})
	}
}
