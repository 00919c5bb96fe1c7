package extractors

import (
	"math"
	"time"

	"github.com/buessow/glumagic/internal/models"
)

// Range bounds physiologically plausible values.
type Range struct {
	Min float64
	Max float64
}

// Plausible ranges for the sensor signals.
var (
	GlucoseRange   = Range{Min: 20, Max: 500}
	HeartRateRange = Range{Min: 20, Max: 300}
)

// Contains reports whether v lies within the range. NaN is treated as
// missing and passes.
func (r Range) Contains(v float64) bool {
	return math.IsNaN(v) || (v >= r.Min && v <= r.Max)
}

// Anomaly captures an implausible sample.
type Anomaly struct {
	Signal    string    `json:"signal"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
}

// PlausibilityExtractor flags sensor samples outside a plausible range.
type PlausibilityExtractor struct{}

// NewPlausibilityExtractor creates a plausibility checker.
func NewPlausibilityExtractor() *PlausibilityExtractor {
	return &PlausibilityExtractor{}
}

// Detect returns the samples of series outside r.
func (e *PlausibilityExtractor) Detect(signal string, series []models.TimedValue, r Range) []Anomaly {
	var anomalies []Anomaly
	for _, s := range series {
		if r.Contains(s.Value) {
			continue
		}
		anomalies = append(anomalies, Anomaly{
			Signal:    signal,
			Timestamp: s.Timestamp,
			Value:     s.Value,
			Min:       r.Min,
			Max:       r.Max,
		})
	}
	return anomalies
}
