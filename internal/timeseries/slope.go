package timeseries

import (
	"math"
	"time"
)

// Slope returns the central difference of values per minute. Endpoints are
// zero, or NaN when the endpoint value itself is not finite.
func Slope(values []float64, step time.Duration) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	minutes := 2 * step.Minutes()
	for i := range values {
		switch i {
		case 0, len(values) - 1:
			if isFinite(values[i]) {
				out[i] = 0
			} else {
				out[i] = math.NaN()
			}
		default:
			out[i] = (values[i+1] - values[i-1]) / minutes
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
