// Package basal reconstructs the basal insulin delivered over a window from
// daily profiles, profile switches and temporary overrides.
package basal

import (
	"time"

	"github.com/buessow/glumagic/internal/models"
)

// Expand lists the rate changes of a daily profile within [from, to). The
// first entry is at from when a segment is active there. Segments are
// laid out from local midnight in loc. When the UTC offset changes, the
// segment that the new wall clock falls into starts at the transition and
// runs for its full duration.
func Expand(p models.DailyProfile, from, to time.Time, loc *time.Location) ([]models.TimedValue, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	mult := p.Multiplier()
	segs := p.Segments
	var out []models.TimedValue
	emit := func(at, end time.Time, rate float64) {
		switch {
		case at.After(from):
			out = append(out, models.TimedValue{Timestamp: at, Value: rate * mult})
		case end.After(from):
			out = append(out, models.TimedValue{Timestamp: from, Value: rate * mult})
		}
	}

	lf := from.In(loc)
	t := from.Add(-sinceMidnight(lf))
	i := 0
	var handled time.Time
	for t.Before(to) {
		seg := segs[i]
		end := t.Add(seg.Duration)
		tr, ok := nextTransition(t, earliest(end, to), handled, loc)
		if !ok {
			emit(t, end, seg.Rate)
			t = end
			i = (i + 1) % len(segs)
			continue
		}

		if t.Before(tr) {
			emit(t, tr, seg.Rate)
		}
		handled = tr

		// Re-anchor at local midnight as seen with the new offset.
		cum := tr.Add(-sinceMidnight(tr.In(loc)))
		j := 0
		for j < len(segs)-1 && !cum.Add(segs[j].Duration).After(tr) {
			cum = cum.Add(segs[j].Duration)
			j++
		}
		end = tr.Add(segs[j].Duration)
		emit(tr, end, segs[j].Rate)
		t = end
		i = (j + 1) % len(segs)
	}
	return out, nil
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// nextTransition finds the first UTC offset change in [from, limit) other
// than skip.
func nextTransition(from, limit, skip time.Time, loc *time.Location) (time.Time, bool) {
	t := from.In(loc)
	for t.Before(limit) {
		start, end := t.ZoneBounds()
		var tr time.Time
		switch {
		case start.Equal(t):
			tr = t
		case end.IsZero():
			return time.Time{}, false
		default:
			tr = end.In(loc)
		}
		if !tr.Before(limit) {
			return time.Time{}, false
		}
		if !tr.Equal(skip) && offsetChanges(tr) {
			return tr, true
		}
		t = tr.Add(time.Nanosecond)
	}
	return time.Time{}, false
}

func offsetChanges(t time.Time) bool {
	_, before := t.Add(-time.Nanosecond).Zone()
	_, after := t.Zone()
	return before != after
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
