package basal

import (
	"time"

	"github.com/buessow/glumagic/internal/models"
)

// Quantize converts rate changes (units per hour) into the amount delivered
// in each step-long interval, starting at the first rate change and ending
// at to. Rate changes inside an interval are integrated exactly. A trailing
// partial interval is reported with what it delivered up to to.
func Quantize(rates []models.TimedValue, to time.Time, step time.Duration) []models.TimedValue {
	if len(rates) == 0 || step <= 0 {
		return nil
	}
	var out []models.TimedValue
	ts := rates[0].Timestamp
	pos := ts
	carry := 0.0
	for i, r := range rates {
		next := to
		if i+1 < len(rates) {
			next = earliest(rates[i+1].Timestamp, to)
		}
		for end := ts.Add(step); !end.After(next); end = ts.Add(step) {
			out = append(out, models.TimedValue{Timestamp: ts, Value: carry + end.Sub(pos).Hours()*r.Value})
			ts, pos, carry = end, end, 0
		}
		if next.After(pos) {
			carry += next.Sub(pos).Hours() * r.Value
			pos = next
		}
	}
	if pos.After(ts) {
		out = append(out, models.TimedValue{Timestamp: ts, Value: carry})
	}
	return out
}
