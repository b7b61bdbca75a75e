package profusion

import (
	"math"

	"github.com/pkg/errors"
)

// optimalParameters derives the bin count and hash count for a filter
// provisioned to hold capacity elements at the target false-positive
// ratio:
//
//	bins   = ceil(-capacity * ln(e) / (ln 2)^2)
//	hashes = round(bins/capacity * ln 2)
//
// both clamped to at least 1.
func optimalParameters(capacity int, errorRatio float64) (bins, hashes int) {
	bins = int(math.Ceil(-float64(capacity) * math.Log(errorRatio) / (math.Ln2 * math.Ln2)))
	if bins < 1 {
		bins = 1
	}
	hashes = int(math.Round(float64(bins) / float64(capacity) * math.Ln2))
	if hashes < 1 {
		hashes = 1
	}
	return bins, hashes
}

// hashesForError returns the hash count for a target error ratio alone,
// ceil(log2(1/e)) clamped to at least 1. Used to size the inner filters
// of a scalable bloom, whose bin counts follow the growth schedule
// rather than the optimal calculus.
func hashesForError(errorRatio float64) int {
	hashes := int(math.Ceil(math.Log2(1 / errorRatio)))
	if hashes < 1 {
		hashes = 1
	}
	return hashes
}

func validateCapacity(capacity int) error {
	if capacity <= 0 {
		return errors.Wrapf(ErrInvalidParameters, "capacity must be greater than 0, got %d", capacity)
	}
	return nil
}

func validateErrorRatio(errorRatio float64) error {
	// The negated form also rejects NaN.
	if !(errorRatio > 0 && errorRatio < 1) {
		return errors.Wrapf(ErrInvalidParameters, "error ratio must be in range (0, 1), got %v", errorRatio)
	}
	return nil
}

func validateBinSize(binSize int) error {
	if binSize < 1 || binSize > 255 {
		return errors.Wrapf(ErrInvalidParameters, "bin size must be in range [1, 255], got %d", binSize)
	}
	return nil
}
