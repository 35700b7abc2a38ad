package compute

// Ratio returns observed/expected clamped to [0, 1].
//
// expected is checked first, so 0/0 reports ErrInvalidExpectedCount.
// Ratios are not rounded.
func Ratio(observed, expected int) (float64, error) {
	if expected <= 0 {
		return 0, ErrInvalidExpectedCount
	}
	if observed < 0 {
		return 0, ErrInvalidObservedCount
	}
	return clamp01(float64(observed) / float64(expected)), nil
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
