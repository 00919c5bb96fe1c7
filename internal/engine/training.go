package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/buessow/glumagic/internal/extractors"
	"github.com/buessow/glumagic/internal/metrics"
	"github.com/buessow/glumagic/internal/timeseries"
	"github.com/buessow/glumagic/internal/tracing"
	"github.com/buessow/glumagic/internal/utils"
)

// Training matrix column names.
const (
	ColHour          = "hour"
	ColGlucose       = "glucose"
	ColGlucoseSlope1 = "glucoseSlope1"
	ColGlucoseSlope2 = "glucoseSlope2"
	ColHeartRate     = "heartRate"
	ColCarbs         = "carbs"
	ColCarbAction    = "carbAction"
	ColBolus         = "bolus"
	ColBasal         = "basal"
	ColInsulinAction = "insulinAction"
)

// HRLongColumn names the high heart rate count column of the i-th lookback,
// counting from one.
func HRLongColumn(i int) string {
	return fmt.Sprintf("hrLong%d", i)
}

// BuildTrainingMatrix builds the training matrix for the training and
// prediction windows starting at start. Any implausible sensor value fails
// the run.
func (p *Pipeline) BuildTrainingMatrix(ctx context.Context, start time.Time) (*FeatureMatrix, error) {
	s := p.settings
	start = utils.TruncateToStep(start, time.Minute)
	ctx, span := tracing.StartSpan(ctx, "pipeline.matrix",
		tracing.AttrKind.String(metrics.KindMatrix),
		tracing.AttrAt.String(start.Format(time.RFC3339)))
	defer span.End()

	grid, err := timeseries.NewGrid(start, start.Add(s.Training+s.Prediction), s.Freq)
	if err != nil {
		return nil, err
	}
	plan := fetchPlan{
		grid:        grid,
		glucoseFrom: start.Add(-s.PreFetch),
		glucoseTo:   grid.To,
		heartFrom:   earlier(start.Add(-s.PreFetch), start.Add(-maxDuration(s.HRLookbacks))),
		heartTo:     grid.To,
		carbsFrom:   start.Add(-s.CarbAction.TotalDuration()),
		bolusFrom:   start.Add(-s.InsulinAction.TotalDuration()),
	}
	data, err := p.fetch(ctx, plan)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if anomalies := p.implausible(data); len(anomalies) > 0 {
		for signal, n := range countBySignal(anomalies) {
			metrics.AddImplausible(signal, n)
		}
		err := implausibleError(anomalies)
		tracing.RecordError(span, err)
		return nil, err
	}

	m, err := p.trainingMatrix(grid, data)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	if s.IdleTrim > 0 {
		events := make([]time.Time, 0, len(data.carbs)+len(data.boluses)+len(data.overrides))
		for _, c := range data.carbs {
			events = append(events, c.Timestamp)
		}
		for _, b := range data.boluses {
			events = append(events, b.Timestamp)
		}
		for _, o := range data.overrides {
			events = append(events, o.Start)
		}
		if removed := m.TrimIdle(events, s.IdleTrim); removed > 0 {
			p.logger.Info("trimmed idle rows", slog.Int("rows", removed), slog.Duration("threshold", s.IdleTrim))
		}
	}
	span.SetAttributes(tracing.AttrRows.Int(m.Len()), tracing.AttrColumns.Int(len(m.Names())))
	return m, nil
}

func (p *Pipeline) trainingMatrix(grid timeseries.Grid, data *streams) (*FeatureMatrix, error) {
	s := p.settings

	raw, err := timeseries.Resample(grid.From, data.glucose, grid.To, s.Freq, 0)
	if err != nil {
		return nil, fmt.Errorf("resample glucose: %w", err)
	}
	gl := s.Filter.Apply(raw)
	hr, err := timeseries.Resample(grid.From, data.heartRates, grid.To, s.Freq, 0)
	if err != nil {
		return nil, fmt.Errorf("resample heart rate: %w", err)
	}
	hrLong, err := extractors.NewWindowExtractor(extractors.Above(s.HRThreshold)).DwellCounts(data.heartRates, grid, s.HRLookbacks)
	if err != nil {
		return nil, fmt.Errorf("high heart rate counts: %w", err)
	}
	carbs, err := timeseries.SumPerInterval(grid, data.carbs)
	if err != nil {
		return nil, err
	}
	ca, err := p.carbAction(grid, data.carbs)
	if err != nil {
		return nil, err
	}
	boluses, err := timeseries.SumPerInterval(grid, data.boluses)
	if err != nil {
		return nil, err
	}
	ia, err := p.insulinAction(grid, data.boluses, data.deliveries)
	if err != nil {
		return nil, err
	}

	slope1 := timeseries.Slope(gl, s.Freq)
	slope2 := timeseries.Slope(slope1, s.Freq)

	m := NewFeatureMatrix(grid.Instants())
	columns := []namedSeries{
		{ColHour, timeseries.HourOfDay(grid, s.Location)},
		{ColGlucose, gl},
		{ColGlucoseSlope1, slope1},
		{ColGlucoseSlope2, slope2},
		{ColHeartRate, hr},
	}
	for i, series := range hrLong {
		columns = append(columns, namedSeries{HRLongColumn(i + 1), series})
	}
	columns = append(columns, []namedSeries{
		{ColCarbs, carbs},
		{ColCarbAction, ca},
		{ColBolus, boluses},
		{ColBasal, deliverySeries(grid, data.deliveries)},
		{ColInsulinAction, ia},
	}...)

	for _, c := range columns {
		if err := m.AddColumn(c.name, c.values); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type namedSeries struct {
	name   string
	values []float64
}
