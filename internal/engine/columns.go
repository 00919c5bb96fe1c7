package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownColumn signals a column specifier that cannot be parsed or that
// the configured windows cannot serve.
var ErrUnknownColumn = errors.New("unknown feature column")

// ColumnKind enumerates the feature series a vector column reads from.
type ColumnKind string

// Column kinds.
const (
	KindHour          ColumnKind = "hour"
	KindGlucose       ColumnKind = "gl"
	KindGlucoseSlope  ColumnKind = "gl_slope"
	KindGlucoseSlope2 ColumnKind = "gl_slope2"
	KindHeartRate     ColumnKind = "hr"
	KindHeartRateLong ColumnKind = "hr_long"
	KindCarbAction    ColumnKind = "ca"
	KindInsulinAction ColumnKind = "ia"
	KindBasal         ColumnKind = "basal"
	KindBolus         ColumnKind = "bolus"
	KindCarbs         ColumnKind = "carbs"
)

var knownKinds = map[ColumnKind]bool{
	KindHour: true, KindGlucose: true, KindGlucoseSlope: true, KindGlucoseSlope2: true,
	KindHeartRate: true, KindHeartRateLong: true, KindCarbAction: true,
	KindInsulinAction: true, KindBasal: true, KindBolus: true, KindCarbs: true,
}

// pastOnly kinds are derived from measurements taken before the query
// instant. Their latest column is the one freq minutes back.
var pastOnly = map[ColumnKind]bool{
	KindGlucose: true, KindGlucoseSlope: true, KindGlucoseSlope2: true, KindHeartRate: true,
}

// Column is a parsed column specifier. OffsetMinutes is relative to the
// query instant, negative in the past. For KindHeartRateLong it holds the
// lookback in minutes instead.
type Column struct {
	Name          string
	Kind          ColumnKind
	OffsetMinutes int
}

// ParseColumn converts a specifier such as "gl_05", "ia_+30" or
// "hr_long_60" into a Column. A bare kind means offset zero.
func ParseColumn(spec string) (Column, error) {
	name := strings.TrimSpace(spec)
	kind, offset := name, ""
	if i := strings.LastIndex(name, "_"); i > 0 {
		if suffix := name[i+1:]; isOffset(suffix) {
			kind, offset = name[:i], suffix
		}
	}
	col := Column{Name: name, Kind: ColumnKind(kind)}
	if !knownKinds[col.Kind] {
		return Column{}, fmt.Errorf("%w: %q", ErrUnknownColumn, spec)
	}

	if offset == "" {
		if col.Kind == KindHeartRateLong {
			return Column{}, fmt.Errorf("%w: %q needs a lookback", ErrUnknownColumn, spec)
		}
		return col, nil
	}
	future := strings.HasPrefix(offset, "+")
	minutes, err := strconv.Atoi(strings.TrimPrefix(offset, "+"))
	if err != nil {
		return Column{}, fmt.Errorf("%w: %q: %v", ErrUnknownColumn, spec, err)
	}
	switch {
	case col.Kind == KindHeartRateLong:
		if future || minutes <= 0 {
			return Column{}, fmt.Errorf("%w: %q needs a positive lookback", ErrUnknownColumn, spec)
		}
		col.OffsetMinutes = minutes
	case future:
		col.OffsetMinutes = minutes
	default:
		col.OffsetMinutes = -minutes
	}
	return col, nil
}

func isOffset(s string) bool {
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseColumns parses every specifier, failing on the first bad one.
func ParseColumns(specs []string) ([]Column, error) {
	cols := make([]Column, 0, len(specs))
	for _, spec := range specs {
		col, err := ParseColumn(spec)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// ColumnNames returns the specifiers of cols in order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// DefaultColumns lays out the classic input vector: the hour at the start of
// the training window, the high heart rate counts, glucose slopes and heart
// rate over the training window, and insulin and carb action over training
// and prediction windows.
func DefaultColumns(training, prediction, freq time.Duration, lookbacks []time.Duration) []string {
	var out []string
	out = append(out, columnName(KindHour, -training))
	for _, l := range lookbacks {
		out = append(out, fmt.Sprintf("%s_%d", KindHeartRateLong, int(l/time.Minute)))
	}
	past := func(kind ColumnKind) {
		for d := training; d >= freq; d -= freq {
			out = append(out, columnName(kind, -d))
		}
	}
	pastAndFuture := func(kind ColumnKind) {
		for d := -training; d < prediction; d += freq {
			out = append(out, columnName(kind, d))
		}
	}
	past(KindGlucoseSlope)
	past(KindGlucoseSlope2)
	pastAndFuture(KindInsulinAction)
	pastAndFuture(KindCarbAction)
	past(KindHeartRate)
	return out
}

func columnName(kind ColumnKind, offset time.Duration) string {
	m := int(offset / time.Minute)
	if m > 0 {
		return fmt.Sprintf("%s_+%02d", kind, m)
	}
	return fmt.Sprintf("%s_%02d", kind, -m)
}
