package engine

import (
	"errors"
	"testing"
	"time"
)

func TestParseColumn(t *testing.T) {
	cases := []struct {
		spec   string
		kind   ColumnKind
		offset int
	}{
		{"hour", KindHour, 0},
		{"hour_+30", KindHour, 30},
		{"gl_05", KindGlucose, -5},
		{"gl_slope_10", KindGlucoseSlope, -10},
		{"gl_slope2_00", KindGlucoseSlope2, 0},
		{"ia_+25", KindInsulinAction, 25},
		{"hr_long_60", KindHeartRateLong, 60},
		{"carbs", KindCarbs, 0},
	}
	for _, tc := range cases {
		col, err := ParseColumn(tc.spec)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.spec, err)
		}
		if col.Kind != tc.kind || col.OffsetMinutes != tc.offset || col.Name != tc.spec {
			t.Fatalf("expected %s/%d for %q, got %+v", tc.kind, tc.offset, tc.spec, col)
		}
	}
}

func TestParseColumnRejectsUnknown(t *testing.T) {
	for _, spec := range []string{"glucose_05", "gl_x5", "hr_long", "hr_long_+5", "hr_long_0", ""} {
		if _, err := ParseColumn(spec); !errors.Is(err, ErrUnknownColumn) {
			t.Fatalf("expected ErrUnknownColumn for %q, got %v", spec, err)
		}
	}
}

func TestDefaultColumns(t *testing.T) {
	cols := DefaultColumns(15*time.Minute, 10*time.Minute, 5*time.Minute, []time.Duration{5 * time.Minute, 15 * time.Minute})
	if len(cols) != 22 {
		t.Fatalf("expected 22 default columns, got %d: %v", len(cols), cols)
	}
	want := map[int]string{0: "hour_15", 1: "hr_long_5", 3: "gl_slope_15", 5: "gl_slope_05", 9: "ia_15", 13: "ia_+05", 21: "hr_05"}
	for i, name := range want {
		if cols[i] != name {
			t.Fatalf("expected column %d to be %s, got %s", i, name, cols[i])
		}
	}
	if _, err := ParseColumns(cols); err != nil {
		t.Fatalf("default columns must parse: %v", err)
	}
}

func TestNewSettingsRejectsColumns(t *testing.T) {
	for _, spec := range []string{"gl_+05", "hr_+05", "gl_00", "gl_slope2_00", "hr", "ia_20", "ia_+15", "gl_03", "hr_long_30", "bogus"} {
		if _, err := NewSettings(testPipelineConfig(spec)); !errors.Is(err, ErrUnknownColumn) {
			t.Fatalf("expected ErrUnknownColumn for %q, got %v", spec, err)
		}
	}
}

func TestNewSettingsDefaults(t *testing.T) {
	s, err := NewSettings(testPipelineConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Columns) != 22 {
		t.Fatalf("expected default layout, got %d columns", len(s.Columns))
	}
	if s.trainingSteps() != 3 || s.predictionSteps() != 2 {
		t.Fatalf("expected 3 training and 2 prediction steps, got %d/%d", s.trainingSteps(), s.predictionSteps())
	}
}

func TestNewSettingsRejectsUnknownModelAndFilter(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.CarbAction.Name = "linear"
	if _, err := NewSettings(cfg); err == nil {
		t.Fatalf("expected unknown action model to fail")
	}
	cfg = testPipelineConfig()
	cfg.SmoothingFilter = "kalman"
	if _, err := NewSettings(cfg); err == nil {
		t.Fatalf("expected unknown smoothing filter to fail")
	}
}
