package smoothing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// savgol is a Savitzky-Golay filter. Points closer than half a window to
// either end are taken from the polynomial fitted to the first or last
// full window.
type savgol struct {
	window int
	// hat projects a window of samples onto the fitted polynomial's values.
	hat *mat.Dense
}

func newSavgol(window, order int) (*savgol, error) {
	if err := checkWindow(window); err != nil {
		return nil, err
	}
	if order < 0 || order >= window {
		return nil, fmt.Errorf("savgol polynomial order must be in [0, %d), got %d", window, order)
	}

	half := window / 2
	vander := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		x, p := float64(i-half), 1.0
		for k := 0; k <= order; k++ {
			vander.Set(i, k, p)
			p *= x
		}
	}
	ones := make([]float64, window)
	for i := range ones {
		ones[i] = 1
	}
	var coef mat.Dense
	if err := coef.Solve(vander, mat.NewDiagDense(window, ones)); err != nil {
		return nil, fmt.Errorf("savgol fit: %w", err)
	}
	hat := mat.NewDense(window, window, nil)
	hat.Mul(vander, &coef)
	return &savgol{window: window, hat: hat}, nil
}

func (s *savgol) run(values []float64) []float64 {
	n := len(values)
	if n < s.window {
		return append([]float64(nil), values...)
	}
	half := s.window / 2
	out := make([]float64, n)
	for i := range values {
		start := i - half
		if start < 0 {
			start = 0
		}
		if start > n-s.window {
			start = n - s.window
		}
		out[i] = mat.Dot(s.hat.RowView(i-start), mat.NewVecDense(s.window, values[start:start+s.window]))
	}
	return out
}
