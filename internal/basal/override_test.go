package basal

import (
	"math"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/buessow/glumagic/internal/models"
)

func rates(t *testing.T, pts ...point) []models.TimedValue {
	t.Helper()
	out := make([]models.TimedValue, len(pts))
	for i, p := range pts {
		out[i] = models.TimedValue{Timestamp: mustTime(t, p.at), Value: p.rate}
	}
	return out
}

func override(t *testing.T, start string, minutes int, mult float64) models.TemporaryOverride {
	t.Helper()
	return models.TemporaryOverride{Start: mustTime(t, start), Duration: time.Duration(minutes) * time.Minute, RateMultiplier: mult}
}

func TestApplyOverridesNone(t *testing.T) {
	basals := rates(t,
		point{"2013-12-13T00:00:00Z", 1},
		point{"2013-12-13T01:00:00Z", 2},
		point{"2013-12-13T02:00:00Z", 3})
	to := mustTime(t, "2013-12-13T03:00:00Z")

	assertRates(t, ApplyOverrides(basals, nil, to),
		point{"2013-12-13T00:00:00Z", 1},
		point{"2013-12-13T01:00:00Z", 2},
		point{"2013-12-13T02:00:00Z", 3})

	outside := []models.TemporaryOverride{
		override(t, "2013-12-12T22:00:00Z", 40, 1.1),
		override(t, "2013-12-13T05:00:00Z", 60, 1.2),
	}
	assertRates(t, ApplyOverrides(basals, outside, to),
		point{"2013-12-13T00:00:00Z", 1},
		point{"2013-12-13T01:00:00Z", 2},
		point{"2013-12-13T02:00:00Z", 3})
}

func TestApplyOverrides(t *testing.T) {
	basals := rates(t,
		point{"2013-12-13T00:00:00Z", 0.5},
		point{"2013-12-13T00:05:00Z", 1},
		point{"2013-12-13T01:00:00Z", 2},
		point{"2013-12-13T02:00:00Z", 3})
	overrides := []models.TemporaryOverride{
		override(t, "2013-12-13T00:30:00Z", 40, 1.1),
		override(t, "2013-12-13T02:10:00Z", 60, 1.2),
	}
	assertRates(t, ApplyOverrides(basals, overrides, mustTime(t, "2013-12-13T03:00:00Z")),
		point{"2013-12-13T00:00:00Z", 0.5},
		point{"2013-12-13T00:05:00Z", 1},
		point{"2013-12-13T00:30:00Z", 1.1},
		point{"2013-12-13T01:00:00Z", 2.2},
		point{"2013-12-13T01:10:00Z", 2},
		point{"2013-12-13T02:00:00Z", 3},
		point{"2013-12-13T02:10:00Z", 3.6})
}

func TestApplyOverridesSeveralPerRate(t *testing.T) {
	basals := rates(t,
		point{"2013-12-13T00:00:00Z", 1},
		point{"2013-12-13T01:00:00Z", 2},
		point{"2013-12-13T02:00:00Z", 3})
	absolute := 0.1
	last := override(t, "2013-12-13T02:20:00Z", 60, 1)
	last.AbsoluteRate = &absolute
	overrides := []models.TemporaryOverride{
		override(t, "2013-12-13T00:10:00Z", 10, 1.1),
		override(t, "2013-12-13T00:30:00Z", 60, 1.2),
		override(t, "2013-12-13T02:10:00Z", 60, 1.3),
		last,
	}
	assertRates(t, ApplyOverrides(basals, overrides, mustTime(t, "2013-12-13T03:00:00Z")),
		point{"2013-12-13T00:00:00Z", 1},
		point{"2013-12-13T00:10:00Z", 1.1},
		point{"2013-12-13T00:20:00Z", 1},
		point{"2013-12-13T00:30:00Z", 1.2},
		point{"2013-12-13T01:00:00Z", 2.4},
		point{"2013-12-13T01:30:00Z", 2},
		point{"2013-12-13T02:00:00Z", 3},
		point{"2013-12-13T02:10:00Z", 3.9},
		point{"2013-12-13T02:20:00Z", 0.1})
}

func TestApplyOverrideEndingAtRateChange(t *testing.T) {
	basals := rates(t,
		point{"2013-12-13T00:00:00Z", 1},
		point{"2013-12-13T01:00:00Z", 2})
	overrides := []models.TemporaryOverride{override(t, "2013-12-13T00:30:00Z", 30, 0)}
	assertRates(t, ApplyOverrides(basals, overrides, mustTime(t, "2013-12-13T02:00:00Z")),
		point{"2013-12-13T00:00:00Z", 1},
		point{"2013-12-13T00:30:00Z", 0},
		point{"2013-12-13T01:00:00Z", 2})
}

func TestAdjustOverrides(t *testing.T) {
	got := AdjustOverrides([]models.TemporaryOverride{
		override(t, "2013-12-13T00:00:00Z", 60, 1.1),
		override(t, "2013-12-13T00:20:00Z", 30, 1.2),
		override(t, "2013-12-13T00:20:00Z", 30, 1.3),
		override(t, "2013-12-13T02:00:00Z", 30, 1.4),
	})
	if len(got) != 3 {
		t.Fatalf("expected 3 overrides, got %d: %v", len(got), got)
	}
	if got[0].Duration != 20*time.Minute {
		t.Fatalf("expected first override truncated to 20m, got %s", got[0].Duration)
	}
	if got[1].RateMultiplier != 1.3 || got[1].Duration != 30*time.Minute {
		t.Fatalf("expected zero-length override dropped, got %+v", got[1])
	}
	if got[2].RateMultiplier != 1.4 {
		t.Fatalf("expected last override kept, got %+v", got[2])
	}
	if AdjustOverrides(nil) != nil {
		t.Fatalf("expected nil for no overrides")
	}
}

func TestQuantize(t *testing.T) {
	from := mustTime(t, "2013-12-13T00:00:00Z")
	to := from.Add(45 * time.Minute)
	step := 5 * time.Minute

	cases := []struct {
		name string
		p    models.DailyProfile
		want []float64
	}{
		{"aligned", profile(5, 12, 25, 24, 23*60+30, 36), []float64{1, 2, 2, 2, 2, 2, 3, 3, 3}},
		{"several per interval", profile(1, 60, 6, 120, 23*60+53, 180), []float64{9, 13, 15, 15, 15, 15, 15, 15, 15}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Expand(tc.p, from, to, time.UTC)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := Quantize(r, to, step)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d intervals, got %d: %v", len(tc.want), len(got), got)
			}
			for i, w := range tc.want {
				if want := from.Add(time.Duration(i) * step); !got[i].Timestamp.Equal(want) {
					t.Fatalf("interval %d: expected start %s, got %s", i, want, got[i].Timestamp)
				}
				if math.Abs(got[i].Value-w) > 1e-9 {
					t.Fatalf("interval %d: expected %v, got %v", i, w, got[i].Value)
				}
			}
		})
	}
}

func TestQuantizeWithOverride(t *testing.T) {
	from := mustTime(t, "2013-12-13T00:00:00Z")
	to := from.Add(45 * time.Minute)
	p := profile(5, 12, 25, 24, 23*60+30, 36)
	p.Start = from
	h := &models.ProfileHistory{LastPermanent: p, CurrentlyActive: p}
	overrides := []models.TemporaryOverride{override(t, "2013-12-13T00:10:00Z", 10, 1.1)}

	got, err := Deliveries(h, overrides, from, to, 5*time.Minute, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{1, 2, 2.2, 2.2, 2, 2, 3, 3, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d intervals, got %d", len(want), len(got))
	}
	for i, w := range want {
		if math.Abs(got[i].Value-w) > 1e-9 {
			t.Fatalf("interval %d: expected %v, got %v", i, w, got[i].Value)
		}
	}
}

func TestQuantizeTrailingPartial(t *testing.T) {
	from := mustTime(t, "2013-12-13T00:00:00Z")
	got := Quantize([]models.TimedValue{{Timestamp: from, Value: 6}}, from.Add(12*time.Minute), 5*time.Minute)
	if len(got) != 3 {
		t.Fatalf("expected 3 intervals, got %d", len(got))
	}
	if math.Abs(got[2].Value-0.2) > 1e-9 {
		t.Fatalf("expected trailing 0.2, got %v", got[2].Value)
	}
}

func TestQuantizeConservesInsulin(t *testing.T) {
	from := time.Date(2013, 12, 13, 0, 0, 0, 0, time.UTC)
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "changes")
		step := time.Duration(rapid.IntRange(1, 15).Draw(rt, "step")) * time.Minute
		ts := from
		var in []models.TimedValue
		want := 0.0
		for i := 0; i < n; i++ {
			rate := rapid.Float64Range(0, 5).Draw(rt, "rate")
			d := time.Duration(rapid.IntRange(1, 90).Draw(rt, "minutes")) * time.Minute
			in = append(in, models.TimedValue{Timestamp: ts, Value: rate})
			want += d.Hours() * rate
			ts = ts.Add(d)
		}
		got := Quantize(in, ts, step)
		sum := 0.0
		for _, v := range got {
			sum += v.Value
		}
		if math.Abs(sum-want) > 1e-9*math.Max(1, want) {
			rt.Fatalf("expected total %v, got %v", want, sum)
		}
	})
}

func TestApplyNoOverridesIsIdentity(t *testing.T) {
	from := time.Date(2013, 12, 13, 0, 0, 0, 0, time.UTC)
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(rt, "changes")
		ts := from
		var in []models.TimedValue
		for i := 0; i < n; i++ {
			in = append(in, models.TimedValue{Timestamp: ts, Value: rapid.Float64Range(0, 5).Draw(rt, "rate")})
			ts = ts.Add(time.Duration(rapid.IntRange(1, 90).Draw(rt, "minutes")) * time.Minute)
		}
		got := ApplyOverrides(in, nil, ts)
		if len(got) != len(in) {
			rt.Fatalf("expected %d rates, got %d", len(in), len(got))
		}
		for i := range in {
			if !got[i].Equal(in[i]) {
				rt.Fatalf("entry %d: expected %v, got %v", i, in[i], got[i])
			}
		}
	})
}
