package models

import (
	"errors"
	"fmt"
	"time"
)

// Day is the length every daily profile has to cover.
const Day = 24 * time.Hour

// ErrInvalidProfile signals a daily profile whose segments do not cover one day.
var ErrInvalidProfile = errors.New("invalid basal profile")

// Segment is one step of a daily basal profile, in units per hour.
type Segment struct {
	Duration time.Duration `json:"duration" yaml:"duration"`
	Rate     float64       `json:"rate" yaml:"rate"`
}

// DailyProfile is a cyclical basal schedule starting at local midnight.
// A zero PermanenceDuration marks a permanent profile.
type DailyProfile struct {
	Name               string        `json:"name" yaml:"name"`
	Start              time.Time     `json:"start" yaml:"start"`
	Segments           []Segment     `json:"segments" yaml:"segments"`
	PermanenceDuration time.Duration `json:"permanenceDuration" yaml:"permanenceDuration"`
	RateMultiplier     float64       `json:"rateMultiplier" yaml:"rateMultiplier"`
}

// IsPermanent reports whether the profile stays active until superseded.
func (p DailyProfile) IsPermanent() bool {
	return p.PermanenceDuration <= 0
}

// End returns when a temporary profile expires; zero for permanent ones.
func (p DailyProfile) End() time.Time {
	if p.IsPermanent() {
		return time.Time{}
	}
	return p.Start.Add(p.PermanenceDuration)
}

// Multiplier returns the rate multiplier, treating an unset value as 1.
func (p DailyProfile) Multiplier() float64 {
	if p.RateMultiplier == 0 {
		return 1
	}
	return p.RateMultiplier
}

// Validate checks that segment durations are positive and add up to one day.
func (p DailyProfile) Validate() error {
	if len(p.Segments) == 0 {
		return fmt.Errorf("%w %q: no segments", ErrInvalidProfile, p.Name)
	}
	var total time.Duration
	for i, s := range p.Segments {
		if s.Duration <= 0 {
			return fmt.Errorf("%w %q: segment %d has duration %s", ErrInvalidProfile, p.Name, i, s.Duration)
		}
		total += s.Duration
	}
	if total != Day {
		return fmt.Errorf("%w %q: segments cover %s instead of %s", ErrInvalidProfile, p.Name, total, Day)
	}
	return nil
}

// ProfileHistory is the basal profile state relevant to a query window.
type ProfileHistory struct {
	LastPermanent    DailyProfile   `json:"lastPermanent" yaml:"lastPermanent"`
	CurrentlyActive  DailyProfile   `json:"currentlyActive" yaml:"currentlyActive"`
	UpcomingSwitches []DailyProfile `json:"upcomingSwitches" yaml:"upcomingSwitches"`
}

// Validate checks every profile in the history.
func (h ProfileHistory) Validate() error {
	if err := h.LastPermanent.Validate(); err != nil {
		return err
	}
	if err := h.CurrentlyActive.Validate(); err != nil {
		return err
	}
	for _, p := range h.UpcomingSwitches {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TemporaryOverride adjusts the permanent basal rate for a limited time.
// AbsoluteRate, when set, replaces the permanent rate before RateMultiplier
// is applied.
type TemporaryOverride struct {
	Start          time.Time     `json:"start" yaml:"start"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
	RateMultiplier float64       `json:"rateMultiplier" yaml:"rateMultiplier"`
	AbsoluteRate   *float64      `json:"absoluteRate,omitempty" yaml:"absoluteRate,omitempty"`
}

// End returns the instant the override stops applying.
func (o TemporaryOverride) End() time.Time {
	return o.Start.Add(o.Duration)
}

// Apply returns the adjusted rate for the given permanent rate.
func (o TemporaryOverride) Apply(rate float64) float64 {
	if o.AbsoluteRate != nil {
		rate = *o.AbsoluteRate
	}
	return rate * o.RateMultiplier
}
