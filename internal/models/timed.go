package models

import (
	"fmt"
	"time"
)

// TimedValue is a single timestamped scalar sample or event.
type TimedValue struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Value     float64   `json:"value" yaml:"value"`
}

// Equal reports whether both timestamp and value match exactly.
func (v TimedValue) Equal(o TimedValue) bool {
	return v.Timestamp.Equal(o.Timestamp) && v.Value == o.Value
}

func (v TimedValue) String() string {
	return fmt.Sprintf("%s=%g", v.Timestamp.UTC().Format(time.RFC3339), v.Value)
}

// CheckOrdered returns the index of the first sample that is earlier than its
// predecessor, or -1 when values are sorted ascending.
func CheckOrdered(values []TimedValue) int {
	for i := 1; i < len(values); i++ {
		if values[i].Timestamp.Before(values[i-1].Timestamp) {
			return i
		}
	}
	return -1
}
