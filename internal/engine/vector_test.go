package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/buessow/glumagic/internal/models"
)

// unboundedProvider ignores the end of the requested range for glucose and
// heart rate, like a source that returns whatever it has.
type unboundedProvider struct {
	*fakeProvider
}

func (u unboundedProvider) GlucoseReadings(ctx context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return within(u.glucose, from, to.Add(24*time.Hour)), nil
}

func (u unboundedProvider) HeartRates(ctx context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return within(u.heartRates, from, to.Add(24*time.Hour)), nil
}

func defaultVectorSettings(t *testing.T) *Settings {
	t.Helper()
	cfg := testPipelineConfig()
	cfg.TrainingPeriodMinutes = 60
	cfg.PredictionPeriodMinutes = 30
	cfg.HRLongDurationMinutes = []int{15}
	s, err := NewSettings(cfg)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	return s
}

// rising returns one reading every 5 minutes from start, increasing by one
// per minute from base.
func rising(t *testing.T, start string, n int, base float64) []models.TimedValue {
	t.Helper()
	values := make([]float64, n)
	for i := range values {
		values[i] = base + float64(5*i)
	}
	return series(t, start, 5*time.Minute, values...)
}

func defaultVectorProvider(t *testing.T) *fakeProvider {
	return &fakeProvider{
		glucose:    rising(t, "2024-01-01T11:03:00Z", 14, 100),
		heartRates: series(t, "2024-01-01T11:03:00Z", 5*time.Minute, 70, 70, 70, 70, 70, 70, 70, 70, 70, 70, 70, 70, 70, 70),
		history:    flatHistory(t, "2024-01-01T00:00:00Z", 1.2),
	}
}

func TestVectorDefaultLayout(t *testing.T) {
	settings := defaultVectorSettings(t)
	at := mustTime(t, "2024-01-01T12:10:00Z")

	v, err := NewPipeline(nil, defaultVectorProvider(t), settings).Vector(context.Background(), at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 1 + 1 + 12 + 12 + 18 + 18 + 12; len(v.Values) != want {
		t.Fatalf("expected %d values, got %d", want, len(v.Values))
	}
	// Glucose rises by one per minute: 107 at 11:10 up to 162 at 12:05.
	if !approx(v.LastGlucose, 162) {
		t.Fatalf("expected last glucose 162 from 12:05, got %v", v.LastGlucose)
	}

	byName := make(map[string]float64, len(v.Columns))
	for i, name := range v.Columns {
		byName[name] = v.Values[i]
	}
	cases := []struct {
		column string
		want   float64
	}{
		{"hour_60", 11},
		{"hr_long_15", 0},
		{"gl_slope_60", 0},
		{"gl_slope_30", 1},
		{"gl_slope_10", 1},
		{"gl_slope_05", 0.5},
		{"gl_slope2_60", 0},
		{"gl_slope2_15", 0},
		{"gl_slope2_10", -0.05},
		{"gl_slope2_05", -0.1},
		{"hr_60", 70},
		{"hr_05", 70},
		{"ca_60", 0},
		{"ca_+25", 0},
	}
	for _, tc := range cases {
		got, ok := byName[tc.column]
		if !ok {
			t.Fatalf("expected column %s in %v", tc.column, v.Columns)
		}
		if !approx(got, tc.want) {
			t.Fatalf("expected %s = %v, got %v", tc.column, tc.want, got)
		}
	}
	if v.Columns[0] != "hour_60" {
		t.Fatalf("expected the training start hour first, got %s", v.Columns[0])
	}
}

func TestVectorHourIsTrainingStart(t *testing.T) {
	cases := []struct {
		at   string
		want float64
	}{
		{"2024-01-01T12:10:00Z", 11},
		{"2024-01-01T12:00:00Z", 11},
		{"2024-01-01T12:59:00Z", 11},
		{"2024-01-02T00:30:00Z", 23},
	}
	settings := defaultVectorSettings(t)
	for _, tc := range cases {
		v, err := NewPipeline(nil, &fakeProvider{}, settings).Vector(context.Background(), mustTime(t, tc.at))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.at, err)
		}
		if v.Values[0] != tc.want {
			t.Fatalf("%s: expected hour %v, got %v", tc.at, tc.want, v.Values[0])
		}
	}
}

func TestVectorIgnoresReadingsAfterQueryInstant(t *testing.T) {
	settings := defaultVectorSettings(t)
	at := mustTime(t, "2024-01-01T12:10:00Z")
	base := defaultVectorProvider(t)
	want, err := NewPipeline(nil, unboundedProvider{base}, settings).Vector(context.Background(), at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rapid.Check(t, func(rt *rapid.T) {
		p := *base
		p.glucose = append([]models.TimedValue(nil), base.glucose...)
		p.heartRates = append([]models.TimedValue(nil), base.heartRates...)
		n := rapid.IntRange(1, 12).Draw(rt, "n")
		ts := at
		for i := 0; i < n; i++ {
			ts = ts.Add(time.Duration(rapid.IntRange(0, 10).Draw(rt, "gap")) * time.Minute)
			p.glucose = append(p.glucose, models.TimedValue{Timestamp: ts, Value: rapid.Float64Range(40, 400).Draw(rt, "glucose")})
			p.heartRates = append(p.heartRates, models.TimedValue{Timestamp: ts, Value: rapid.Float64Range(40, 200).Draw(rt, "heartRate")})
			ts = ts.Add(time.Minute)
		}

		got, err := NewPipeline(nil, unboundedProvider{&p}, settings).Vector(context.Background(), at)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if got.LastGlucose != want.LastGlucose {
			rt.Fatalf("expected last glucose %v, got %v", want.LastGlucose, got.LastGlucose)
		}
		for i := range want.Values {
			same := got.Values[i] == want.Values[i] || (math.IsNaN(got.Values[i]) && math.IsNaN(want.Values[i]))
			if !same {
				rt.Fatalf("expected %s = %v, got %v", want.Columns[i], want.Values[i], got.Values[i])
			}
		}
	})
}
