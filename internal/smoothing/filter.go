// Package smoothing provides noise filters for resampled sensor series.
package smoothing

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrUnknownFilter is returned by New for unsupported filter names.
var ErrUnknownFilter = errors.New("smoothing: unknown filter")

// Filter smooths a series. Non-finite values are left in place and split
// the series into runs that are filtered independently.
type Filter interface {
	Name() string
	Apply(values []float64) []float64
}

// New builds the filter named by name. Recognised parameters are windowSize
// (default 3) and, for savgol, polynomialOrder (default 2).
func New(name string, params map[string]int) (Filter, error) {
	window := param(params, "windowSize", 3)
	switch name {
	case "", "none":
		return None(), nil
	case "median":
		if err := checkWindow(window); err != nil {
			return nil, err
		}
		return runFilter{name: name, smooth: medianRun(window)}, nil
	case "wiener":
		if err := checkWindow(window); err != nil {
			return nil, err
		}
		return runFilter{name: name, smooth: wienerRun(window)}, nil
	case "savgol":
		sg, err := newSavgol(window, param(params, "polynomialOrder", 2))
		if err != nil {
			return nil, err
		}
		return runFilter{name: name, smooth: sg.run}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFilter, name)
	}
}

func param(params map[string]int, key string, def int) int {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func checkWindow(window int) error {
	if window < 1 || window%2 == 0 {
		return fmt.Errorf("smoothing window must be a positive odd number, got %d", window)
	}
	return nil
}

// None returns the pass-through filter.
func None() Filter { return none{} }

type none struct{}

func (none) Name() string { return "none" }

func (none) Apply(values []float64) []float64 {
	return append([]float64(nil), values...)
}

type runFilter struct {
	name   string
	smooth func(run []float64) []float64
}

func (f runFilter) Name() string { return f.name }

// Apply filters every maximal run of finite values.
func (f runFilter) Apply(values []float64) []float64 {
	out := append([]float64(nil), values...)
	for start := 0; start < len(values); {
		if !finite(values[start]) {
			start++
			continue
		}
		end := start
		for end < len(values) && finite(values[end]) {
			end++
		}
		copy(out[start:end], f.smooth(values[start:end]))
		start = end
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// bounds returns the window around i truncated to [0, n).
func bounds(i, half, n int) (int, int) {
	lo, hi := i-half, i+half+1
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}

func medianRun(window int) func([]float64) []float64 {
	half := window / 2
	return func(run []float64) []float64 {
		out := make([]float64, len(run))
		buf := make([]float64, 0, window)
		for i := range run {
			lo, hi := bounds(i, half, len(run))
			buf = append(buf[:0], run[lo:hi]...)
			sort.Float64s(buf)
			m := len(buf) / 2
			if len(buf)%2 == 1 {
				out[i] = buf[m]
			} else {
				out[i] = (buf[m-1] + buf[m]) / 2
			}
		}
		return out
	}
}

func wienerRun(window int) func([]float64) []float64 {
	half := window / 2
	return func(run []float64) []float64 {
		n := len(run)
		mean := make([]float64, n)
		variance := make([]float64, n)
		noise := 0.0
		for i := range run {
			lo, hi := bounds(i, half, n)
			s, sq := 0.0, 0.0
			for _, v := range run[lo:hi] {
				s += v
				sq += v * v
			}
			k := float64(hi - lo)
			mean[i] = s / k
			variance[i] = math.Max(sq/k-mean[i]*mean[i], 0)
			noise += variance[i]
		}
		noise /= float64(n)

		out := make([]float64, n)
		for i, v := range run {
			if variance[i] <= noise {
				out[i] = mean[i]
				continue
			}
			out[i] = mean[i] + (1-noise/variance[i])*(v-mean[i])
		}
		return out
	}
}
