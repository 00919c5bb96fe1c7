package basal

import (
	"testing"
	"time"

	"github.com/buessow/glumagic/internal/models"
)

func TestFromHistorySingle(t *testing.T) {
	start := mustTime(t, "2013-12-13T10:00:00Z")
	p := profile(24*60, 1.1)
	p.Start = start
	h := models.ProfileHistory{LastPermanent: p, CurrentlyActive: p}

	got, err := FromHistory(h, start, start, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rates for empty window, got %v", got)
	}

	got, err = FromHistory(h, start, mustTime(t, "2013-12-13T22:00:00Z"), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRates(t, got, point{"2013-12-13T10:00:00Z", 1.1})
}

func TestFromHistoryBeforeFirstProfile(t *testing.T) {
	p := profile(24*60, 1.1)
	p.Start = mustTime(t, "2013-12-13T12:00:00Z")
	h := models.ProfileHistory{LastPermanent: p, CurrentlyActive: p}

	got, err := FromHistory(h, mustTime(t, "2013-12-13T11:00:00Z"), mustTime(t, "2013-12-13T13:00:00Z"), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRates(t, got, point{"2013-12-13T11:00:00Z", 0}, point{"2013-12-13T12:00:00Z", 1.1})
}

func TestFromHistoryTemporaryExpiresAtStartPlusDuration(t *testing.T) {
	permanent := profile(24*60, 1.1)
	permanent.Start = mustTime(t, "2013-12-13T10:00:00Z")
	temp := profile(24*60, 2.1)
	temp.Start = mustTime(t, "2013-12-13T11:00:00Z")
	temp.PermanenceDuration = 2 * time.Hour
	h := models.ProfileHistory{LastPermanent: permanent, CurrentlyActive: temp}

	got, err := FromHistory(h, mustTime(t, "2013-12-13T12:00:00Z"), mustTime(t, "2013-12-13T22:00:00Z"), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRates(t, got,
		point{"2013-12-13T12:00:00Z", 2.1},
		point{"2013-12-13T13:00:00Z", 1.1})
}

func TestFromHistoryTemporaryAlreadyExpired(t *testing.T) {
	permanent := hourly(mustTime(t, "2013-12-13T08:00:00Z"), 1, 0)
	temp := hourly(mustTime(t, "2013-12-13T09:00:00Z"), 2, time.Hour)
	h := models.ProfileHistory{LastPermanent: permanent, CurrentlyActive: temp}

	got, err := FromHistory(h, mustTime(t, "2013-12-13T12:00:00Z"), mustTime(t, "2013-12-13T14:00:00Z"), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRates(t, got,
		point{"2013-12-13T12:00:00Z", 1.12},
		point{"2013-12-13T13:00:00Z", 1.13})
}

func TestFromHistorySwitches(t *testing.T) {
	from := mustTime(t, "2013-12-13T12:00:00Z")
	permanent := hourly(mustTime(t, "2013-12-13T10:00:00Z"), 1, 0)

	cases := []struct {
		name     string
		switches []models.DailyProfile
		to       string
		want     []point
	}{
		{
			name:     "temporary",
			switches: []models.DailyProfile{hourly(mustTime(t, "2013-12-13T13:00:00Z"), 2, 2*time.Hour)},
			to:       "2013-12-13T17:30:00Z",
			want: []point{
				{"2013-12-13T12:00:00Z", 1.12},
				{"2013-12-13T13:00:00Z", 2.13},
				{"2013-12-13T14:00:00Z", 2.14},
				{"2013-12-13T15:00:00Z", 1.15},
				{"2013-12-13T16:00:00Z", 1.16},
				{"2013-12-13T17:00:00Z", 1.17},
			},
		},
		{
			name: "temporary interrupted by temporary",
			switches: []models.DailyProfile{
				hourly(mustTime(t, "2013-12-13T13:00:00Z"), 2, 2*time.Hour),
				hourly(mustTime(t, "2013-12-13T14:00:00Z"), 3, 2*time.Hour),
			},
			to: "2013-12-13T17:30:00Z",
			want: []point{
				{"2013-12-13T12:00:00Z", 1.12},
				{"2013-12-13T13:00:00Z", 2.13},
				{"2013-12-13T14:00:00Z", 3.14},
				{"2013-12-13T15:00:00Z", 3.15},
				{"2013-12-13T16:00:00Z", 1.16},
				{"2013-12-13T17:00:00Z", 1.17},
			},
		},
		{
			name: "temporary interrupted by permanent",
			switches: []models.DailyProfile{
				hourly(mustTime(t, "2013-12-13T13:00:00Z"), 2, 2*time.Hour),
				hourly(mustTime(t, "2013-12-13T14:00:00Z"), 3, 0),
				hourly(mustTime(t, "2013-12-13T16:00:00Z"), 4, time.Hour),
				hourly(mustTime(t, "2013-12-13T16:30:00Z"), 5, time.Hour),
				hourly(mustTime(t, "2013-12-13T18:00:00Z"), 6, 0),
			},
			to: "2013-12-13T20:00:00Z",
			want: []point{
				{"2013-12-13T12:00:00Z", 1.12},
				{"2013-12-13T13:00:00Z", 2.13},
				{"2013-12-13T14:00:00Z", 3.14},
				{"2013-12-13T15:00:00Z", 3.15},
				{"2013-12-13T16:00:00Z", 4.16},
				{"2013-12-13T16:30:00Z", 5.16},
				{"2013-12-13T17:00:00Z", 5.17},
				{"2013-12-13T17:30:00Z", 3.17},
				{"2013-12-13T18:00:00Z", 6.18},
				{"2013-12-13T19:00:00Z", 6.19},
			},
		},
		{
			name: "permanent followed by permanent",
			switches: []models.DailyProfile{
				hourly(mustTime(t, "2013-12-13T13:00:00Z"), 2, 2*time.Hour),
				hourly(mustTime(t, "2013-12-13T14:00:00Z"), 3, 0),
				hourly(mustTime(t, "2013-12-13T15:30:00Z"), 6, 0),
			},
			to: "2013-12-13T18:00:00Z",
			want: []point{
				{"2013-12-13T12:00:00Z", 1.12},
				{"2013-12-13T13:00:00Z", 2.13},
				{"2013-12-13T14:00:00Z", 3.14},
				{"2013-12-13T15:00:00Z", 3.15},
				{"2013-12-13T15:30:00Z", 6.15},
				{"2013-12-13T16:00:00Z", 6.16},
				{"2013-12-13T17:00:00Z", 6.17},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := models.ProfileHistory{LastPermanent: permanent, CurrentlyActive: permanent, UpcomingSwitches: tc.switches}
			got, err := FromHistory(h, from, mustTime(t, tc.to), time.UTC)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertRates(t, got, tc.want...)
		})
	}
}

func TestRatesWithoutHistory(t *testing.T) {
	from := mustTime(t, "2013-12-13T12:00:00Z")
	got, err := Rates(nil, nil, from, from.Add(time.Hour), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertRates(t, got, point{"2013-12-13T12:00:00Z", 0})
}
