package basal

import (
	"time"

	"github.com/buessow/glumagic/internal/models"
)

// Rates reconstructs the effective basal rate changes within [from, to).
// Without a profile history the rate is zero throughout.
func Rates(h *models.ProfileHistory, overrides []models.TemporaryOverride, from, to time.Time, loc *time.Location) ([]models.TimedValue, error) {
	if !to.After(from) {
		return nil, nil
	}
	if h == nil {
		return []models.TimedValue{{Timestamp: from, Value: 0}}, nil
	}
	rates, err := FromHistory(*h, from, to, loc)
	if err != nil {
		return nil, err
	}
	return ApplyOverrides(rates, overrides, to), nil
}

// Deliveries returns the insulin delivered per step interval in [from, to).
func Deliveries(h *models.ProfileHistory, overrides []models.TemporaryOverride, from, to time.Time, step time.Duration, loc *time.Location) ([]models.TimedValue, error) {
	rates, err := Rates(h, overrides, from, to, loc)
	if err != nil {
		return nil, err
	}
	return Quantize(rates, to, step), nil
}
