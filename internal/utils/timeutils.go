package utils

import (
	"fmt"
	"strconv"
	"time"
)

// ParseInstant accepts RFC3339 timestamps or Unix epoch milliseconds.
func ParseInstant(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// TruncateToStep rounds t down to a multiple of step since the Unix epoch.
func TruncateToStep(t time.Time, step time.Duration) time.Time {
	if step <= 0 {
		return t
	}
	return t.Truncate(step)
}

// Minutes expresses d as a whole number of minutes.
func Minutes(d time.Duration) int {
	return int(d / time.Minute)
}
