package repo

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/buessow/glumagic/internal/models"
)

// basalEntry is one rate of a stored basal profile, starting TimeAsSeconds
// after midnight.
type basalEntry struct {
	TimeAsSeconds int     `json:"timeAsSeconds" yaml:"timeAsSeconds"`
	Value         float64 `json:"value" yaml:"value"`
}

// segmentsFromEntries turns start-time entries into segments that run until
// the next entry, the last one until midnight.
func segmentsFromEntries(entries []basalEntry) ([]models.Segment, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no basal entries", models.ErrInvalidProfile)
	}
	sorted := append([]basalEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimeAsSeconds < sorted[j].TimeAsSeconds })
	if sorted[0].TimeAsSeconds != 0 {
		return nil, fmt.Errorf("%w: first basal entry starts at %ds", models.ErrInvalidProfile, sorted[0].TimeAsSeconds)
	}
	segments := make([]models.Segment, 0, len(sorted))
	for i, e := range sorted {
		end := models.Day
		if i+1 < len(sorted) {
			end = time.Duration(sorted[i+1].TimeAsSeconds) * time.Second
		}
		d := end - time.Duration(e.TimeAsSeconds)*time.Second
		if d <= 0 {
			return nil, fmt.Errorf("%w: basal entry %d has no duration", models.ErrInvalidProfile, i)
		}
		segments = append(segments, models.Segment{Duration: d, Rate: e.Value})
	}
	return segments, nil
}

// resolveHistory picks the profile active at from, the permanent profile it
// falls back to and the switches inside (from, to). When no permanent profile
// started by from, the first one starting inside the window is used and the
// rate before it is zero. It returns nil when the window has no permanent
// profile at all.
func resolveHistory(switches []models.DailyProfile, from, to time.Time) *models.ProfileHistory {
	sorted := append([]models.DailyProfile(nil), switches...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var active, permanent *models.DailyProfile
	var upcoming []models.DailyProfile
	for i := range sorted {
		p := &sorted[i]
		switch {
		case !p.Start.After(from):
			active = p
			if p.IsPermanent() {
				permanent = p
			}
		case p.Start.Before(to):
			upcoming = append(upcoming, *p)
		}
	}
	if permanent == nil {
		first := slices.IndexFunc(upcoming, models.DailyProfile.IsPermanent)
		if first < 0 {
			return nil
		}
		permanent = &upcoming[first]
		active = permanent
		upcoming = upcoming[first+1:]
	}
	if !active.IsPermanent() && !active.End().After(from) {
		active = permanent
	}
	return &models.ProfileHistory{
		LastPermanent:    *permanent,
		CurrentlyActive:  *active,
		UpcomingSwitches: upcoming,
	}
}

// tempBasalOverride maps a temp basal to an override. A percentage p scales
// the scheduled rate by 1+p/100; otherwise an absolute rate replaces it.
func tempBasalOverride(start time.Time, d time.Duration, percent, absolute *float64) models.TemporaryOverride {
	o := models.TemporaryOverride{Start: start, Duration: d, RateMultiplier: 1}
	switch {
	case percent != nil:
		o.RateMultiplier = 1 + *percent/100
	case absolute != nil:
		rate := *absolute
		o.AbsoluteRate = &rate
	}
	return o
}

func sortTimed(values []models.TimedValue) {
	sort.SliceStable(values, func(i, j int) bool { return values[i].Timestamp.Before(values[j].Timestamp) })
}
