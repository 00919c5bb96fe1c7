// Package timeseries aligns irregular samples onto evenly spaced grids.
package timeseries

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidGrid signals a grid with a non-positive step.
var ErrInvalidGrid = errors.New("invalid grid")

// Grid is the half-open range [From, To) stepped by Step.
type Grid struct {
	From time.Time
	To   time.Time
	Step time.Duration
}

// NewGrid validates and returns a grid.
func NewGrid(from, to time.Time, step time.Duration) (Grid, error) {
	g := Grid{From: from, To: to, Step: step}
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}
	return g, nil
}

// Validate checks the grid invariants.
func (g Grid) Validate() error {
	if g.Step <= 0 {
		return fmt.Errorf("%w: step %s", ErrInvalidGrid, g.Step)
	}
	return nil
}

// Len returns ceil((To-From)/Step), or zero for an empty range.
func (g Grid) Len() int {
	if g.Step <= 0 || !g.To.After(g.From) {
		return 0
	}
	span := g.To.Sub(g.From)
	n := span / g.Step
	if span%g.Step != 0 {
		n++
	}
	return int(n)
}

// At returns the i-th grid instant.
func (g Grid) At(i int) time.Time {
	return g.From.Add(time.Duration(i) * g.Step)
}

// Instants returns all grid instants in order.
func (g Grid) Instants() []time.Time {
	n := g.Len()
	out := make([]time.Time, n)
	for i := range out {
		out[i] = g.At(i)
	}
	return out
}

// Index returns the index of the grid instant equal to t and whether t lies
// exactly on the grid.
func (g Grid) Index(t time.Time) (int, bool) {
	if g.Step <= 0 || t.Before(g.From) || !t.Before(g.To) {
		return 0, false
	}
	d := t.Sub(g.From)
	if d%g.Step != 0 {
		return 0, false
	}
	return int(d / g.Step), true
}
