package timeseries

import (
	"fmt"
	"time"

	"github.com/buessow/glumagic/internal/models"
)

// SumPerInterval adds up event values falling into each grid interval
// [t, t+step). Events outside the grid are ignored.
func SumPerInterval(grid Grid, events []models.TimedValue) ([]float64, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if i := models.CheckOrdered(events); i >= 0 {
		return nil, fmt.Errorf("%w: event %d", ErrUnordered, i)
	}
	out := make([]float64, grid.Len())
	for _, e := range events {
		if e.Timestamp.Before(grid.From) || !e.Timestamp.Before(grid.To) {
			continue
		}
		out[int(e.Timestamp.Sub(grid.From)/grid.Step)] += e.Value
	}
	return out, nil
}

// HourOfDay returns the local wall-clock hour of every grid instant.
func HourOfDay(grid Grid, loc *time.Location) []float64 {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]float64, grid.Len())
	for i := range out {
		out[i] = float64(grid.At(i).In(loc).Hour())
	}
	return out
}
