// Package action turns discrete dose and intake events into a continuous
// action curve sampled at arbitrary instants.
package action

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/buessow/glumagic/internal/config"
	"github.com/buessow/glumagic/internal/models"
)

var (
	// ErrNonFinite signals a parameter or numeric edge bug inside a model.
	ErrNonFinite = errors.New("action: non-finite model value")
	// ErrUnknownModel is returned by New for unsupported model names.
	ErrUnknownModel = errors.New("action: unknown model")
)

// Model computes the accumulated action of past events at each query instant.
// Events and times must be ordered by time. queryStart is the instant
// preceding times[0]; models that report action per query step measure the
// first step from there.
type Model interface {
	ValuesAt(events []models.TimedValue, queryStart time.Time, times []time.Time) ([]float64, error)
	// TotalDuration is the horizon past which an event has no effect.
	TotalDuration() time.Duration
	Name() string
}

// New builds the model described by cfg.
func New(cfg config.ActionModelConfig) (Model, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "lognorm", "lognormal":
		sigma := cfg.Sigma
		if sigma == 0 {
			sigma = 1
		}
		if sigma < 0 {
			return nil, fmt.Errorf("lognorm sigma must be positive, got %v", cfg.Sigma)
		}
		if cfg.TotalMinutes < 0 {
			return nil, fmt.Errorf("lognorm totalMinutes must not be negative, got %v", cfg.TotalMinutes)
		}
		m := NewLogNormal(cfg.Mu, sigma)
		if cfg.PeakMinutes > 0 {
			m = NewLogNormalFromPeak(minutes(cfg.PeakMinutes), sigma)
		}
		return m.WithTotalDuration(minutes(cfg.TotalMinutes)), nil
	case "exponential", "biexponential":
		return NewBiExponential(minutes(cfg.PeakMinutes), minutes(cfg.TotalMinutes))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Name)
	}
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
