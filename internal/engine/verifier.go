package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/buessow/glumagic/internal/smoothing"
)

// DefaultVerifyEpsilon is the tolerance used when comparing vectors.
const DefaultVerifyEpsilon = 1e-4

// TestCase pairs a recorded provider with the vector expected at At.
type TestCase struct {
	Name     string
	At       time.Time
	Provider Provider
	Expected []float64
}

// CaseResult reports the outcome of one test case.
type CaseResult struct {
	Name     string
	Passed   bool
	Mismatch string
	Err      error
}

// Verifier replays test cases through the pipeline and compares the
// produced vectors with the expected ones.
type Verifier struct {
	logger   *slog.Logger
	settings *Settings
	eps      float64
}

// NewVerifier creates a verifier. Smoothing is disabled so that the
// comparison covers feature construction only.
func NewVerifier(logger *slog.Logger, settings *Settings, eps float64) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if eps <= 0 {
		eps = DefaultVerifyEpsilon
	}
	return &Verifier{logger: logger, settings: settings.WithFilter(smoothing.None()), eps: eps}
}

// Run verifies every case and reports whether all passed.
func (v *Verifier) Run(ctx context.Context, cases []TestCase) ([]CaseResult, bool) {
	results := make([]CaseResult, 0, len(cases))
	ok := true
	for _, tc := range cases {
		res := v.runCase(ctx, tc)
		if !res.Passed {
			ok = false
		}
		results = append(results, res)
	}
	return results, ok
}

func (v *Verifier) runCase(ctx context.Context, tc TestCase) CaseResult {
	logger := v.logger.With(slog.String("case", tc.Name))
	logger.Info("verifying feature vector", slog.Time("at", tc.At))

	_, actual, err := NewPipeline(logger, tc.Provider, v.settings).BuildFeatureVector(ctx, tc.At)
	if err != nil {
		logger.Error("feature vector failed", slog.Any("error", err))
		return CaseResult{Name: tc.Name, Err: err}
	}
	if mismatch := ApproxMismatch(actual, tc.Expected, v.eps); mismatch != "" {
		logger.Error("feature vector mismatch", slog.String("mismatch", mismatch))
		return CaseResult{Name: tc.Name, Mismatch: mismatch}
	}
	return CaseResult{Name: tc.Name, Passed: true}
}

// ApproxEqual reports whether a and b differ by less than eps. NaN only
// equals NaN.
func ApproxEqual(a, b, eps float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < eps
}

// FirstMismatch returns the first index at which actual and expected
// differ, or -1 when they match. A length difference mismatches at the end
// of the shorter slice.
func FirstMismatch(actual, expected []float64, eps float64) int {
	n := min(len(actual), len(expected))
	for i := 0; i < n; i++ {
		if !ApproxEqual(actual[i], expected[i], eps) {
			return i
		}
	}
	if len(actual) != len(expected) {
		return n
	}
	return -1
}

// ApproxMismatch describes the first mismatch between actual and expected
// with the offending entries marked, or returns "" when they match.
func ApproxMismatch(actual, expected []float64, eps float64) string {
	i := FirstMismatch(actual, expected, eps)
	if i < 0 {
		return ""
	}
	return fmt.Sprintf("exp:%3d [%s]\nbut was [%s]", i, markAt(expected, i), markAt(actual, i))
}

func markAt(values []float64, mark int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.3f", v)
		if i == mark {
			parts[i] = "**" + parts[i]
		}
	}
	return strings.Join(parts, ", ")
}
