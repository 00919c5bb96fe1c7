package action

import (
	"fmt"
	"math"
	"time"

	"github.com/buessow/glumagic/internal/models"
)

// BiExponential is the exponential insulin curve used for rapid analogues.
// Action over a query step is the drop in insulin on board across it, so the
// total action of an event over its lifetime equals its dose.
type BiExponential struct {
	timeToPeak time.Duration
	total      time.Duration

	tp, td float64 // minutes
	tau    float64 // decay time constant
	a      float64 // rise time factor
	s      float64 // scale
}

// NewBiExponential derives the curve constants. timeToPeak must be below
// half of totalDuration.
func NewBiExponential(timeToPeak, totalDuration time.Duration) (*BiExponential, error) {
	tp, td := timeToPeak.Minutes(), totalDuration.Minutes()
	if tp <= 0 || td <= 0 || 2*tp >= td {
		return nil, fmt.Errorf("exponential model needs 0 < 2*peak < total, got peak=%s total=%s", timeToPeak, totalDuration)
	}
	tau := tp * (1 - tp/td) / (1 - 2*tp/td)
	a := 2 * tau / td
	return &BiExponential{
		timeToPeak: timeToPeak,
		total:      totalDuration,
		tp:         tp,
		td:         td,
		tau:        tau,
		a:          a,
		s:          1 / (1 - a + (1+a)*math.Exp(-td/tau)),
	}, nil
}

// Name implements Model.
func (m *BiExponential) Name() string { return "Exponential" }

// TotalDuration implements Model.
func (m *BiExponential) TotalDuration() time.Duration { return m.total }

// IOB returns the fraction of a dose still on board after elapsed.
func (m *BiExponential) IOB(elapsed time.Duration) float64 {
	return m.iob(elapsed.Minutes())
}

func (m *BiExponential) iob(t float64) float64 {
	switch {
	case t < 0:
		return 1
	case t > m.td:
		return 0
	}
	return 1 - m.s*(1-m.a)*((t*t/(m.tau*m.td*(1-m.a))-t/m.tau-1)*math.Exp(-t/m.tau)+1)
}

// ValuesAt implements Model. Each value is the action between the previous
// query instant, starting at queryStart, and the current one.
func (m *BiExponential) ValuesAt(events []models.TimedValue, queryStart time.Time, times []time.Time) ([]float64, error) {
	out := make([]float64, 0, len(times))
	prev := queryStart
	lo := 0
	for _, t := range times {
		horizon := prev.Add(-m.total)
		for lo < len(events) && events[lo].Timestamp.Before(horizon) {
			lo++
		}

		total := 0.0
		for i := lo; i < len(events); i++ {
			ti := events[i].Timestamp
			if ti.After(t) {
				break
			}
			used := m.iob(prev.Sub(ti).Minutes()) - m.iob(t.Sub(ti).Minutes())
			if math.IsNaN(used) || math.IsInf(used, 0) {
				return nil, fmt.Errorf("%w: exponential(tp=%v, td=%v) at %s", ErrNonFinite, m.tp, m.td, t.Sub(ti))
			}
			total += events[i].Value * used
		}
		out = append(out, total)
		prev = t
	}
	return out, nil
}
