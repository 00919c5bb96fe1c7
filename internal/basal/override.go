package basal

import (
	"time"

	"github.com/buessow/glumagic/internal/models"
)

// AdjustOverrides truncates each override to end no later than the next one
// starts. Overrides left without duration are dropped; the last one is
// always kept. Input must be ordered by start.
func AdjustOverrides(overrides []models.TemporaryOverride) []models.TemporaryOverride {
	if len(overrides) == 0 {
		return nil
	}
	out := make([]models.TemporaryOverride, 0, len(overrides))
	for i := 0; i+1 < len(overrides); i++ {
		o, next := overrides[i], overrides[i+1]
		if !o.End().After(next.Start) {
			out = append(out, o)
			continue
		}
		if remaining := next.Start.Sub(o.Start); remaining > 0 {
			o.Duration = remaining
			out = append(out, o)
		}
	}
	return append(out, overrides[len(overrides)-1])
}

// ApplyOverrides overlays temporary overrides on a list of basal rate
// changes ending at to. An override replaces the rate while it runs, and the
// scheduled rate resumes when it ends unless the next override starts at
// that instant.
func ApplyOverrides(rates []models.TimedValue, overrides []models.TemporaryOverride, to time.Time) []models.TimedValue {
	adjusted := AdjustOverrides(overrides)
	out := make([]models.TimedValue, 0, len(rates)+2*len(adjusted))

	k := 0
	for i, r := range rates {
		nextStart := to
		if i+1 < len(rates) {
			nextStart = rates[i+1].Timestamp
		}
		for k < len(adjusted) && !adjusted[k].End().After(r.Timestamp) {
			k++
		}
		if k == len(adjusted) || adjusted[k].Start.After(r.Timestamp) {
			out = append(out, r)
		}
		for k < len(adjusted) && adjusted[k].Start.Before(nextStart) {
			o := adjusted[k]
			out = append(out, models.TimedValue{
				Timestamp: latest(o.Start, r.Timestamp),
				Value:     o.Apply(r.Value),
			})
			if !o.End().Before(nextStart) {
				break
			}
			k++
			if k == len(adjusted) || o.End().Before(adjusted[k].Start) {
				out = append(out, models.TimedValue{Timestamp: o.End(), Value: r.Value})
			}
		}
	}
	return out
}
