package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/buessow/glumagic/internal/extractors"
	"github.com/buessow/glumagic/internal/models"
	"github.com/buessow/glumagic/internal/timeseries"
)

// Provider supplies the raw event streams the pipeline reads. All ranges are
// half-open [from, to) and every returned stream is sorted by timestamp.
type Provider interface {
	GlucoseReadings(ctx context.Context, from, to time.Time) ([]models.TimedValue, error)
	HeartRates(ctx context.Context, from, to time.Time) ([]models.TimedValue, error)
	Carbs(ctx context.Context, from, to time.Time) ([]models.TimedValue, error)
	Boluses(ctx context.Context, from, to time.Time) ([]models.TimedValue, error)
	// ProfileHistory returns nil when no basal profile is known.
	ProfileHistory(ctx context.Context, from, to time.Time) (*models.ProfileHistory, error)
	TemporaryOverrides(ctx context.Context, from, to time.Time) ([]models.TemporaryOverride, error)
}

// DwellProvider is implemented by providers that can answer high heart rate
// counts directly, e.g. from a cache.
type DwellProvider interface {
	// HighHeartRateCounts returns, per lookback, the number of intervals in
	// [at-lookback, at) with a heart rate above threshold.
	HighHeartRateCounts(ctx context.Context, at time.Time, threshold float64, lookbacks []time.Duration) ([]float64, error)
}

// DeriveDwellCounts computes high heart rate counts from the raw heart rate
// stream of p, counting in intervals of step.
func DeriveDwellCounts(ctx context.Context, p Provider, at time.Time, threshold float64, lookbacks []time.Duration, step time.Duration) ([]float64, error) {
	if len(lookbacks) == 0 {
		return []float64{}, nil
	}
	longest := lookbacks[0]
	for _, l := range lookbacks[1:] {
		if l > longest {
			longest = l
		}
	}
	hrs, err := p.HeartRates(ctx, at.Add(-longest), at)
	if err != nil {
		return nil, fmt.Errorf("fetch heart rates: %w", err)
	}
	hrs = before(hrs, at)
	grid, err := timeseries.NewGrid(at, at.Add(step), step)
	if err != nil {
		return nil, err
	}
	series, err := extractors.NewWindowExtractor(extractors.Above(threshold)).DwellCounts(hrs, grid, lookbacks)
	if err != nil {
		return nil, err
	}
	counts := make([]float64, len(series))
	for i, s := range series {
		counts[i] = s[0]
	}
	return counts, nil
}
