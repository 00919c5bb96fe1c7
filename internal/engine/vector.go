package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/buessow/glumagic/internal/extractors"
	"github.com/buessow/glumagic/internal/metrics"
	"github.com/buessow/glumagic/internal/models"
	"github.com/buessow/glumagic/internal/timeseries"
	"github.com/buessow/glumagic/internal/tracing"
	"github.com/buessow/glumagic/internal/utils"
)

// Vector is a feature vector built for one query instant.
type Vector struct {
	At          time.Time
	LastGlucose float64
	Columns     []string
	Values      []float64
	Anomalies   []extractors.Anomaly
}

// BuildFeatureVector returns the last glucose sample before the query
// instant and the feature vector in configured column order.
func (p *Pipeline) BuildFeatureVector(ctx context.Context, at time.Time) (float64, []float64, error) {
	v, err := p.Vector(ctx, at)
	if err != nil {
		return math.NaN(), nil, err
	}
	return v.LastGlucose, v.Values, nil
}

// Vector builds the feature vector for at. Glucose and heart rate are only
// read before at, so readings at or after the query instant never change the
// result. Implausible sensor values are counted and logged; they fail the run
// only with strict checks on.
func (p *Pipeline) Vector(ctx context.Context, at time.Time) (*Vector, error) {
	s := p.settings
	at = utils.TruncateToStep(at, time.Minute)
	ctx, span := tracing.StartSpan(ctx, "pipeline.vector",
		tracing.AttrKind.String(metrics.KindVector),
		tracing.AttrAt.String(at.Format(time.RFC3339)))
	defer span.End()

	// The grid runs from the start of the training window up to and
	// including the end of the prediction window.
	from := at.Add(-s.Training)
	grid, err := timeseries.NewGrid(from, at.Add(s.Prediction+s.Freq), s.Freq)
	if err != nil {
		return nil, err
	}
	plan := fetchPlan{
		grid:         grid,
		glucoseFrom:  from.Add(-s.PreFetch),
		glucoseTo:    at,
		heartFrom:    from.Add(-s.PreFetch),
		heartTo:      at,
		carbsFrom:    from.Add(-s.CarbAction.TotalDuration()),
		bolusFrom:    from.Add(-s.InsulinAction.TotalDuration()),
		dwellCountAt: &at,
	}
	data, err := p.fetch(ctx, plan)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	data.glucose = before(data.glucose, at)
	data.heartRates = before(data.heartRates, at)

	anomalies := p.implausible(data)
	if len(anomalies) > 0 {
		for signal, n := range countBySignal(anomalies) {
			metrics.AddImplausible(signal, n)
			p.logger.Warn("implausible sensor values", slog.String("signal", signal), slog.Int("count", n), slog.Time("at", at))
		}
		if s.StrictChecks {
			err := implausibleError(anomalies)
			tracing.RecordError(span, err)
			return nil, err
		}
	}

	features, err := p.vectorFeatures(grid, at, data)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	atIdx := s.trainingSteps()
	values := make([]float64, len(s.Columns))
	for i, c := range s.Columns {
		if c.Kind == KindHeartRateLong {
			values[i] = data.dwell[s.lookbackIndex(c.OffsetMinutes)]
			continue
		}
		series, ok := features[c.Kind]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, c.Name)
		}
		values[i] = series[atIdx+int(time.Duration(c.OffsetMinutes)*time.Minute/s.Freq)]
	}
	span.SetAttributes(tracing.AttrColumns.Int(len(values)))

	return &Vector{
		At:          at,
		LastGlucose: features[lastGlucoseKey][atIdx-1],
		Columns:     ColumnNames(s.Columns),
		Values:      values,
		Anomalies:   anomalies,
	}, nil
}

// lastGlucoseKey holds the resampled glucose before smoothing.
const lastGlucoseKey ColumnKind = "gl_raw"

// vectorFeatures computes every series over grid. Measured series cover
// [grid.From, observedTo) and are NaN afterwards.
func (p *Pipeline) vectorFeatures(grid timeseries.Grid, observedTo time.Time, data *streams) (map[ColumnKind][]float64, error) {
	s := p.settings
	n := grid.Len()

	raw, err := timeseries.Resample(grid.From, data.glucose, observedTo, s.Freq, 0)
	if err != nil {
		return nil, fmt.Errorf("resample glucose: %w", err)
	}
	gl := s.Filter.Apply(raw)
	slope1, slope2 := glucoseSlopes(gl, s.Freq)
	hr, err := timeseries.Resample(grid.From, data.heartRates, observedTo, s.Freq, 0)
	if err != nil {
		return nil, fmt.Errorf("resample heart rate: %w", err)
	}

	ca, err := p.carbAction(grid, data.carbs)
	if err != nil {
		return nil, err
	}
	ia, err := p.insulinAction(grid, data.boluses, data.deliveries)
	if err != nil {
		return nil, err
	}
	carbs, err := timeseries.SumPerInterval(grid, data.carbs)
	if err != nil {
		return nil, err
	}
	boluses, err := timeseries.SumPerInterval(grid, data.boluses)
	if err != nil {
		return nil, err
	}

	return map[ColumnKind][]float64{
		lastGlucoseKey:    padNaN(raw, n),
		KindHour:          timeseries.HourOfDay(grid, s.Location),
		KindGlucose:       padNaN(gl, n),
		KindGlucoseSlope:  padNaN(slope1, n),
		KindGlucoseSlope2: padNaN(slope2, n),
		KindHeartRate:     padNaN(hr, n),
		KindCarbAction:    ca,
		KindInsulinAction: ia,
		KindBasal:         deliverySeries(grid, data.deliveries),
		KindBolus:         boluses,
		KindCarbs:         carbs,
	}, nil
}

func padNaN(values []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, values)
	for i := len(values); i < n; i++ {
		out[i] = math.NaN()
	}
	return out
}

// before drops the samples at or after t. Providers may return readings past
// the requested range.
func before(values []models.TimedValue, t time.Time) []models.TimedValue {
	n := sort.Search(len(values), func(i int) bool {
		return !values[i].Timestamp.Before(t)
	})
	return values[:n]
}
