package profusion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestOptimalParameters verifies the bin/hash calculus against known
// optimal Bloom parameter points.
func TestOptimalParameters(t *testing.T) {
	tests := []struct {
		name       string
		capacity   int
		errorRatio float64
		bins       int
		hashes     int
	}{
		{"1000 at 1%", 1000, 0.01, 9586, 7},
		{"1000 at 0.1%", 1000, 0.001, 14378, 10},
		{"Single element", 1, 0.5, 2, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bins, hashes := optimalParameters(tc.capacity, tc.errorRatio)
			require.Equal(t, tc.bins, bins)
			require.Equal(t, tc.hashes, hashes)
		})
	}
}

// TestHashesForError verifies the error-only hash count used by
// scalable inner filters.
func TestHashesForError(t *testing.T) {
	tests := []struct {
		errorRatio float64
		hashes     int
	}{
		{0.5, 1},
		{0.6, 1},
		{0.01, 7},
		{0.005, 8},
		{0.0025, 9},
	}

	for _, tc := range tests {
		require.Equal(t, tc.hashes, hashesForError(tc.errorRatio), "error ratio %v", tc.errorRatio)
	}
}
