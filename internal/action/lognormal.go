package action

import (
	"fmt"
	"math"
	"time"

	"github.com/buessow/glumagic/internal/models"
)

// DefaultLogNormalDuration bounds how long a log-normal event stays active.
const DefaultLogNormalDuration = 4 * time.Hour

// LogNormal weights each event by the log-normal density of the elapsed
// time in hours.
type LogNormal struct {
	Mu    float64
	Sigma float64
	total time.Duration
}

// NewLogNormal returns a model with the given density parameters.
func NewLogNormal(mu, sigma float64) *LogNormal {
	return &LogNormal{Mu: mu, Sigma: sigma, total: DefaultLogNormalDuration}
}

// NewLogNormalFromPeak derives mu so that the density peaks at timeToPeak.
func NewLogNormalFromPeak(timeToPeak time.Duration, sigma float64) *LogNormal {
	return NewLogNormal(math.Log(timeToPeak.Hours())+sigma*sigma, sigma)
}

// WithTotalDuration sets how long an event stays active. Zero keeps
// DefaultLogNormalDuration.
func (m *LogNormal) WithTotalDuration(total time.Duration) *LogNormal {
	if total > 0 {
		m.total = total
	}
	return m
}

// Name implements Model.
func (m *LogNormal) Name() string { return "LogNorm" }

// TotalDuration implements Model.
func (m *LogNormal) TotalDuration() time.Duration { return m.total }

// ValuesAt implements Model. queryStart is unused since the density is
// evaluated at each instant.
func (m *LogNormal) ValuesAt(events []models.TimedValue, _ time.Time, times []time.Time) ([]float64, error) {
	out := make([]float64, 0, len(times))
	norm := 1 / (m.Sigma * math.Sqrt(2*math.Pi))
	twoSigmaSq := 2 * m.Sigma * m.Sigma

	lo := 0
	for _, t := range times {
		horizon := t.Add(-m.total)
		for lo < len(events) && events[lo].Timestamp.Before(horizon) {
			lo++
		}

		total := 0.0
		for i := lo; i < len(events); i++ {
			elapsed := t.Sub(events[i].Timestamp)
			if elapsed <= 0 {
				break
			}
			x := elapsed.Hours()
			d := math.Log(x) - m.Mu
			y := norm / x * math.Exp(-d*d/twoSigmaSq)
			if math.IsNaN(y) || math.IsInf(y, 0) {
				return nil, fmt.Errorf("%w: lognorm(mu=%v, sigma=%v) at %vh", ErrNonFinite, m.Mu, m.Sigma, x)
			}
			total += events[i].Value * y
		}
		out = append(out, total)
	}
	return out, nil
}
