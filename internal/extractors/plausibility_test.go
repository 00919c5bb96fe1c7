package extractors

import (
	"math"
	"testing"
	"time"

	"github.com/buessow/glumagic/internal/models"
)

func TestPlausibilityExtractorDetect(t *testing.T) {
	extractor := NewPlausibilityExtractor()

	series := []models.TimedValue{
		sample(0, 110),
		sample(5*time.Minute, 12),
		sample(10*time.Minute, math.NaN()),
		sample(15*time.Minute, 640),
		sample(20*time.Minute, 500),
	}
	anomalies := extractor.Detect("glucose", series, GlucoseRange)
	if len(anomalies) != 2 {
		t.Fatalf("expected 2 anomalies, got %d: %v", len(anomalies), anomalies)
	}
	if anomalies[0].Value != 12 || anomalies[1].Value != 640 {
		t.Fatalf("unexpected anomalies %v", anomalies)
	}
	if anomalies[0].Signal != "glucose" || anomalies[0].Max != 500 {
		t.Fatalf("expected anomaly to carry signal and bounds, got %+v", anomalies[0])
	}
}

func TestPlausibilityExtractorClean(t *testing.T) {
	series := []models.TimedValue{sample(0, 60), sample(time.Minute, 180)}
	if got := NewPlausibilityExtractor().Detect("heartRate", series, HeartRateRange); len(got) != 0 {
		t.Fatalf("expected no anomalies, got %v", got)
	}
}
