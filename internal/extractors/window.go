package extractors

import (
	"fmt"
	"math"
	"time"

	"github.com/buessow/glumagic/internal/models"
	"github.com/buessow/glumagic/internal/timeseries"
)

// Predicate selects the samples whose dwell time is counted.
type Predicate func(value float64) bool

// Above matches finite values strictly greater than threshold.
func Above(threshold float64) Predicate {
	return func(v float64) bool { return v > threshold }
}

// WindowExtractor counts, per grid instant, how long a predicate held
// within trailing windows.
type WindowExtractor struct {
	predicate Predicate
}

// NewWindowExtractor creates a window aggregator for the given predicate.
func NewWindowExtractor(predicate Predicate) *WindowExtractor {
	return &WindowExtractor{predicate: predicate}
}

// DwellCounts returns one series per lookback. Entry k of a series is the
// number of grid steps during which the predicate held in
// [grid.At(k)-lookback, grid.At(k)). Each sample holds until the next one,
// at most one grid step.
func (e *WindowExtractor) DwellCounts(samples []models.TimedValue, grid timeseries.Grid, lookbacks []time.Duration) ([][]float64, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if i := models.CheckOrdered(samples); i >= 0 {
		return nil, fmt.Errorf("%w: heart rate sample %d at %s", timeseries.ErrUnordered, i, samples[i].Timestamp)
	}

	// dwell[i] is the time sample i counts for when the predicate holds.
	dwell := make([]time.Duration, len(samples))
	for i, s := range samples {
		if !e.predicate(s.Value) {
			continue
		}
		next := grid.To
		if i+1 < len(samples) {
			next = samples[i+1].Timestamp
		}
		d := next.Sub(s.Timestamp)
		if d > grid.Step {
			d = grid.Step
		}
		if d > 0 {
			dwell[i] = d
		}
	}

	instants := grid.Instants()
	out := make([][]float64, len(lookbacks))
	for j, lookback := range lookbacks {
		counts := make([]float64, len(instants))
		var active time.Duration
		lo, hi := 0, 0
		for k, t := range instants {
			for hi < len(samples) && samples[hi].Timestamp.Before(t) {
				active += dwell[hi]
				hi++
			}
			start := t.Add(-lookback)
			for lo < hi && samples[lo].Timestamp.Before(start) {
				active -= dwell[lo]
				lo++
			}
			counts[k] = math.Round(float64(active) / float64(grid.Step))
		}
		out[j] = counts
	}
	return out, nil
}
