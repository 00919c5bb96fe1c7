package engine

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"
)

// ErrLengthMismatch signals a feature series whose length differs from the
// date series.
var ErrLengthMismatch = errors.New("feature series length mismatch")

// FeatureMatrix holds equally long named series indexed by date.
type FeatureMatrix struct {
	dates   []time.Time
	names   []string
	columns map[string][]float64
}

// NewFeatureMatrix creates an empty matrix over dates.
func NewFeatureMatrix(dates []time.Time) *FeatureMatrix {
	return &FeatureMatrix{
		dates:   append([]time.Time(nil), dates...),
		columns: make(map[string][]float64),
	}
}

// AddColumn appends a named series. It fails when the series is not as long
// as the date series or the name is taken.
func (m *FeatureMatrix) AddColumn(name string, values []float64) error {
	if len(values) != len(m.dates) {
		return fmt.Errorf("%w: %s has %d values, date has %d", ErrLengthMismatch, name, len(values), len(m.dates))
	}
	if name == "date" {
		return fmt.Errorf("column name %q is reserved", name)
	}
	if _, ok := m.columns[name]; ok {
		return fmt.Errorf("duplicate column %q", name)
	}
	m.names = append(m.names, name)
	m.columns[name] = values
	return nil
}

// Column returns the series called name.
func (m *FeatureMatrix) Column(name string) ([]float64, bool) {
	v, ok := m.columns[name]
	return v, ok
}

// Names returns the column names in insertion order.
func (m *FeatureMatrix) Names() []string {
	return append([]string(nil), m.names...)
}

// Dates returns the row timestamps.
func (m *FeatureMatrix) Dates() []time.Time {
	return append([]time.Time(nil), m.dates...)
}

// Len returns the number of rows.
func (m *FeatureMatrix) Len() int {
	return len(m.dates)
}

// RemovePeriod drops all rows with a date in [from, from+d) from every
// series and returns the number of rows removed.
func (m *FeatureMatrix) RemovePeriod(from time.Time, d time.Duration) int {
	end := from.Add(d)
	keep := make([]bool, len(m.dates))
	removed := 0
	for i, t := range m.dates {
		keep[i] = t.Before(from) || !t.Before(end)
		if !keep[i] {
			removed++
		}
	}
	if removed > 0 {
		m.retain(keep)
	}
	return removed
}

// TrimIdle drops rows that are more than threshold after the most recent
// therapy event, including rows before the first event. It returns the
// number of rows removed.
func (m *FeatureMatrix) TrimIdle(events []time.Time, threshold time.Duration) int {
	if threshold <= 0 || len(m.dates) == 0 {
		return 0
	}
	sorted := append([]time.Time(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	removed := 0
	var runStart time.Time
	inRun := false
	closeRun := func(end time.Time) {
		if inRun {
			removed += m.RemovePeriod(runStart, end.Sub(runStart))
			inRun = false
		}
	}

	dates := m.Dates()
	next := 0
	var last *time.Time
	for _, t := range dates {
		for next < len(sorted) && !sorted[next].After(t) {
			last = &sorted[next]
			next++
		}
		idle := last == nil || t.Sub(*last) > threshold
		switch {
		case idle && !inRun:
			runStart, inRun = t, true
		case !idle:
			closeRun(t)
		}
	}
	if inRun {
		closeRun(dates[len(dates)-1].Add(time.Nanosecond))
	}
	return removed
}

func (m *FeatureMatrix) retain(keep []bool) {
	dates := m.dates[:0:0]
	for i, t := range m.dates {
		if keep[i] {
			dates = append(dates, t)
		}
	}
	for name, values := range m.columns {
		kept := make([]float64, 0, len(dates))
		for i, v := range values {
			if keep[i] {
				kept = append(kept, v)
			}
		}
		m.columns[name] = kept
	}
	m.dates = dates
}

// WriteCSV writes a header row followed by one row per date. Dates are
// RFC3339, NaN is written as "NaN".
func (m *FeatureMatrix) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"date"}, m.names...)); err != nil {
		return err
	}
	row := make([]string, len(m.names)+1)
	for i, t := range m.dates {
		row[0] = t.Format(time.RFC3339)
		for j, name := range m.names {
			row[j+1] = strconv.FormatFloat(m.columns[name][i], 'f', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the matrix as one JSON object of arrays. Non-finite
// values become null.
func (m *FeatureMatrix) WriteJSON(w io.Writer) error {
	doc := make(map[string]any, len(m.names)+1)
	dates := make([]string, len(m.dates))
	for i, t := range m.dates {
		dates[i] = t.Format(time.RFC3339)
	}
	doc["date"] = dates
	for _, name := range m.names {
		doc[name] = nullable(m.columns[name])
	}
	return json.NewEncoder(w).Encode(doc)
}

func nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			continue
		}
		out[i] = &values[i]
	}
	return out
}
