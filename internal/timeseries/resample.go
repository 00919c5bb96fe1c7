package timeseries

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/buessow/glumagic/internal/models"
)

// ErrUnordered signals input samples that are not sorted by timestamp.
var ErrUnordered = errors.New("samples not ordered by timestamp")

// DefaultFillGap returns the widest gap, relative to step, that is still
// bridged by interpolation.
func DefaultFillGap(step time.Duration) time.Duration {
	return 4 * step
}

// Resample aligns values onto the grid [from, to) with the given step.
//
// Grid points between two samples get the time weighted average of both,
// unless one side is further away than fillGap, in which case the closer
// sample is repeated, or both are, in which case the point is NaN. Samples
// before from only seed the interpolation. After the last sample its value is
// held for up to 2*fillGap.
func Resample(from time.Time, values []models.TimedValue, to time.Time, step, fillGap time.Duration) ([]float64, error) {
	grid, err := NewGrid(from, to, step)
	if err != nil {
		return nil, err
	}
	if i := models.CheckOrdered(values); i >= 0 {
		return nil, fmt.Errorf("%w: sample %d at %s precedes %s", ErrUnordered, i,
			values[i].Timestamp.Format(time.RFC3339), values[i-1].Timestamp.Format(time.RFC3339))
	}
	if fillGap <= 0 {
		fillGap = DefaultFillGap(step)
	}

	out := make([]float64, 0, grid.Len())
	t := from
	var last *models.TimedValue
	for i := range values {
		curr := &values[i]
		if curr.Timestamp.Before(from) {
			last = curr
			continue
		}
		for t.Before(curr.Timestamp) && t.Before(to) {
			out = append(out, interpolate(last, curr, t, fillGap))
			t = t.Add(step)
		}
		last = curr
	}

	for t.Before(to) {
		if last == nil || t.Sub(last.Timestamp) > 2*fillGap {
			out = append(out, math.NaN())
		} else {
			out = append(out, last.Value)
		}
		t = t.Add(step)
	}
	return out, nil
}

func interpolate(last, curr *models.TimedValue, t time.Time, fillGap time.Duration) float64 {
	if last == nil {
		return math.NaN()
	}
	d1 := t.Sub(last.Timestamp)
	d2 := curr.Timestamp.Sub(t)
	switch {
	case d1 > fillGap && d2 > fillGap:
		return math.NaN()
	case d1 > fillGap:
		return curr.Value
	case d2 > fillGap:
		return last.Value
	case d1 == 0:
		return last.Value
	case d2 == 0:
		return curr.Value
	default:
		w1, w2 := d1.Seconds(), d2.Seconds()
		return (curr.Value*w1 + last.Value*w2) / (w1 + w2)
	}
}
