package basal

import (
	"sort"
	"time"

	"github.com/buessow/glumagic/internal/models"
)

// FromHistory lists the basal rate changes within [from, to) given the
// active profile and the switches that follow it. A temporary profile runs
// until its permanence ends or the next switch starts, whichever is first,
// after which the last permanent profile resumes. Time before the first
// known profile has a zero rate.
func FromHistory(h models.ProfileHistory, from, to time.Time, loc *time.Location) ([]models.TimedValue, error) {
	if !to.After(from) {
		return nil, nil
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	var out []models.TimedValue
	current := h.CurrentlyActive
	permanent := h.LastPermanent
	if from.Before(current.Start) {
		out = append(out, models.TimedValue{Timestamp: from, Value: 0})
	}

	switches := append([]models.DailyProfile(nil), h.UpcomingSwitches...)
	sort.SliceStable(switches, func(i, j int) bool {
		return switches[i].Start.Before(switches[j].Start)
	})

	expand := func(p models.DailyProfile, a, b time.Time) error {
		rates, err := Expand(p, a, b, loc)
		if err != nil {
			return err
		}
		out = append(out, rates...)
		return nil
	}

	t := latest(from, current.Start)
	for next := 0; t.Before(to); next++ {
		nextStart := to
		if next < len(switches) {
			nextStart = earliest(latest(switches[next].Start, t), to)
		}
		if current.IsPermanent() {
			permanent = current
		} else {
			end := earliest(latest(current.End(), t), nextStart)
			if err := expand(current, t, end); err != nil {
				return nil, err
			}
			t = end
		}
		if err := expand(permanent, t, nextStart); err != nil {
			return nil, err
		}
		t = nextStart
		if next >= len(switches) {
			break
		}
		current = switches[next]
	}
	return out, nil
}
