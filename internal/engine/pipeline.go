package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/buessow/glumagic/internal/basal"
	"github.com/buessow/glumagic/internal/extractors"
	"github.com/buessow/glumagic/internal/metrics"
	"github.com/buessow/glumagic/internal/models"
	"github.com/buessow/glumagic/internal/timeseries"
	"github.com/buessow/glumagic/internal/tracing"
)

var (
	// ErrImplausible signals physiologically implausible sensor values.
	ErrImplausible = errors.New("implausible sensor values")
	// ErrFetch wraps failures of the data provider.
	ErrFetch = errors.New("provider fetch failed")
)

// Pipeline turns provider streams into feature vectors and training
// matrices.
type Pipeline struct {
	logger       *slog.Logger
	provider     Provider
	settings     *Settings
	plausibility *extractors.PlausibilityExtractor
}

// NewPipeline constructs a pipeline reading from provider.
func NewPipeline(logger *slog.Logger, provider Provider, settings *Settings) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:       logger,
		provider:     provider,
		settings:     settings,
		plausibility: extractors.NewPlausibilityExtractor(),
	}
}

// Settings returns the settings the pipeline was built with.
func (p *Pipeline) Settings() *Settings {
	return p.settings
}

// fetchPlan lists the ranges read for one run. The grid is the range the
// features cover.
type fetchPlan struct {
	grid         timeseries.Grid
	glucoseFrom  time.Time
	glucoseTo    time.Time
	heartFrom    time.Time
	heartTo      time.Time
	carbsFrom    time.Time
	bolusFrom    time.Time
	dwellCountAt *time.Time
}

// streams holds everything fetched for one run.
type streams struct {
	glucose    []models.TimedValue
	heartRates []models.TimedValue
	carbs      []models.TimedValue
	boluses    []models.TimedValue
	overrides  []models.TemporaryOverride
	deliveries []models.TimedValue
	dwell      []float64
}

func (p *Pipeline) fetch(ctx context.Context, plan fetchPlan) (*streams, error) {
	if p.provider == nil {
		return nil, fmt.Errorf("%w: provider not configured", ErrFetch)
	}
	var s streams
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.glucose, err = p.load(gctx, "glucose", plan.glucoseFrom, plan.glucoseTo, p.provider.GlucoseReadings)
		return err
	})
	g.Go(func() (err error) {
		s.heartRates, err = p.load(gctx, "heart_rate", plan.heartFrom, plan.heartTo, p.provider.HeartRates)
		return err
	})
	g.Go(func() (err error) {
		s.carbs, err = p.load(gctx, "carbs", plan.carbsFrom, plan.grid.To, p.provider.Carbs)
		return err
	})
	g.Go(func() (err error) {
		s.boluses, err = p.load(gctx, "bolus", plan.bolusFrom, plan.grid.To, p.provider.Boluses)
		return err
	})
	g.Go(func() (err error) {
		s.overrides, s.deliveries, err = p.loadBasal(gctx, plan.grid)
		return err
	})
	if plan.dwellCountAt != nil {
		at := *plan.dwellCountAt
		g.Go(func() (err error) {
			s.dwell, err = p.loadDwellCounts(gctx, at)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Pipeline) load(
	ctx context.Context,
	stream string,
	from, to time.Time,
	fn func(context.Context, time.Time, time.Time) ([]models.TimedValue, error),
) ([]models.TimedValue, error) {
	ctx, span := tracing.StartSpan(ctx, "fetch."+stream, tracing.AttrStream.String(stream))
	defer span.End()

	start := time.Now()
	values, err := fn(ctx, from, to)
	metrics.ObserveFetch(stream, time.Since(start))
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, stream, err)
	}
	if i := models.CheckOrdered(values); i >= 0 {
		err := fmt.Errorf("%s: %w: sample %d at %s", stream, timeseries.ErrUnordered, i, values[i].Timestamp.Format(time.RFC3339))
		tracing.RecordError(span, err)
		return nil, err
	}
	return values, nil
}

// loadBasal joins profile history and overrides, then reconstructs the
// delivered basal insulin per grid interval.
func (p *Pipeline) loadBasal(ctx context.Context, grid timeseries.Grid) ([]models.TemporaryOverride, []models.TimedValue, error) {
	ctx, span := tracing.StartSpan(ctx, "fetch.basal", tracing.AttrStream.String("basal"))
	defer span.End()

	var (
		history   *models.ProfileHistory
		overrides []models.TemporaryOverride
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		h, err := p.provider.ProfileHistory(gctx, grid.From, grid.To)
		metrics.ObserveFetch("profile", time.Since(start))
		if err != nil {
			return fmt.Errorf("%w: profile history: %w", ErrFetch, err)
		}
		history = h
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		o, err := p.provider.TemporaryOverrides(gctx, grid.From, grid.To)
		metrics.ObserveFetch("override", time.Since(start))
		if err != nil {
			return fmt.Errorf("%w: temporary overrides: %w", ErrFetch, err)
		}
		overrides = o
		return nil
	})
	if err := g.Wait(); err != nil {
		tracing.RecordError(span, err)
		return nil, nil, err
	}

	deliveries, err := basal.Deliveries(history, overrides, grid.From, grid.To, grid.Step, p.settings.Location)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, nil, fmt.Errorf("reconstruct basal: %w", err)
	}
	return overrides, deliveries, nil
}

func (p *Pipeline) loadDwellCounts(ctx context.Context, at time.Time) ([]float64, error) {
	ctx, span := tracing.StartSpan(ctx, "fetch.hr_long", tracing.AttrStream.String("hr_long"))
	defer span.End()

	start := time.Now()
	var (
		counts []float64
		err    error
	)
	if dp, ok := p.provider.(DwellProvider); ok {
		counts, err = dp.HighHeartRateCounts(ctx, at, p.settings.HRThreshold, p.settings.HRLookbacks)
	} else {
		counts, err = DeriveDwellCounts(ctx, p.provider, at, p.settings.HRThreshold, p.settings.HRLookbacks, p.settings.Freq)
	}
	metrics.ObserveFetch("hr_long", time.Since(start))
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("%w: high heart rate counts: %w", ErrFetch, err)
	}
	if len(counts) != len(p.settings.HRLookbacks) {
		return nil, fmt.Errorf("%w: %d high heart rate counts for %d lookbacks", ErrLengthMismatch, len(counts), len(p.settings.HRLookbacks))
	}
	return counts, nil
}

// deliverySeries places quantized basal deliveries onto the grid.
func deliverySeries(grid timeseries.Grid, deliveries []models.TimedValue) []float64 {
	out := make([]float64, grid.Len())
	for _, d := range deliveries {
		if i, ok := grid.Index(d.Timestamp); ok {
			out[i] += d.Value
		}
	}
	return out
}

// insulinAction adds bolus and basal action on the grid instants.
func (p *Pipeline) insulinAction(grid timeseries.Grid, boluses, deliveries []models.TimedValue) ([]float64, error) {
	queryStart := grid.From.Add(-grid.Step)
	instants := grid.Instants()
	bolus, err := p.settings.InsulinAction.ValuesAt(boluses, queryStart, instants)
	if err != nil {
		return nil, fmt.Errorf("bolus action: %w", err)
	}
	basalAction, err := p.settings.InsulinAction.ValuesAt(deliveries, queryStart, instants)
	if err != nil {
		return nil, fmt.Errorf("basal action: %w", err)
	}
	for i := range bolus {
		bolus[i] += basalAction[i]
	}
	return bolus, nil
}

func (p *Pipeline) carbAction(grid timeseries.Grid, carbs []models.TimedValue) ([]float64, error) {
	values, err := p.settings.CarbAction.ValuesAt(carbs, grid.From.Add(-grid.Step), grid.Instants())
	if err != nil {
		return nil, fmt.Errorf("carb action: %w", err)
	}
	return values, nil
}

// implausible returns glucose and heart rate samples outside their ranges.
func (p *Pipeline) implausible(s *streams) []extractors.Anomaly {
	anomalies := p.plausibility.Detect("glucose", s.glucose, extractors.GlucoseRange)
	return append(anomalies, p.plausibility.Detect("heart_rate", s.heartRates, extractors.HeartRateRange)...)
}

func countBySignal(anomalies []extractors.Anomaly) map[string]int {
	counts := make(map[string]int)
	for _, a := range anomalies {
		counts[a.Signal]++
	}
	return counts
}

func implausibleError(anomalies []extractors.Anomaly) error {
	first := anomalies[0]
	return fmt.Errorf("%w: %d samples, first %s %.1f at %s outside [%.0f, %.0f]",
		ErrImplausible, len(anomalies), first.Signal, first.Value,
		first.Timestamp.Format(time.RFC3339), first.Min, first.Max)
}

// glucoseSlopes returns the first and second slope of gl, treating the last
// value as repeated once more so the final slope looks backwards only.
func glucoseSlopes(gl []float64, step time.Duration) ([]float64, []float64) {
	if len(gl) == 0 {
		return nil, nil
	}
	ext := append(append([]float64(nil), gl...), gl[len(gl)-1])
	s1 := timeseries.Slope(ext, step)
	s2 := timeseries.Slope(s1, step)
	return s1[:len(gl)], s2[:len(gl)]
}

func maxDuration(values []time.Duration) time.Duration {
	var m time.Duration
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
