package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/buessow/glumagic/internal/engine"
	"github.com/buessow/glumagic/internal/metrics"
	"github.com/buessow/glumagic/internal/models"
	"github.com/buessow/glumagic/internal/publish"
	"github.com/buessow/glumagic/internal/timeseries"
	"github.com/buessow/glumagic/internal/utils"
)

// FeatureBuilder is the pipeline surface the service drives.
type FeatureBuilder interface {
	Vector(ctx context.Context, at time.Time) (*engine.Vector, error)
	BuildTrainingMatrix(ctx context.Context, start time.Time) (*engine.FeatureMatrix, error)
}

// FeatureService runs pipeline requests, records run metrics and publishes
// built vectors.
type FeatureService struct {
	logger    *slog.Logger
	builder   FeatureBuilder
	publisher publish.Publisher
	latencies *utils.LatencyTracker
}

// NewFeatureService constructs the service facade. A nil publisher disables
// publication.
func NewFeatureService(logger *slog.Logger, builder FeatureBuilder, publisher publish.Publisher) *FeatureService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = publish.NoopPublisher{}
	}
	return &FeatureService{
		logger:    logger,
		builder:   builder,
		publisher: publisher,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// BuildVector builds and publishes the feature vector at req.At. Publication
// failures are logged and do not fail the request.
func (s *FeatureService) BuildVector(ctx context.Context, req models.VectorRequest) (models.VectorResult, error) {
	const op = "BuildVector"
	if req.At.IsZero() {
		return models.VectorResult{}, utils.NewAppError(op, "query instant is required", utils.KindInvalid, nil)
	}
	if s.builder == nil {
		return models.VectorResult{}, utils.NewAppError(op, "pipeline not configured", utils.KindInternal, nil)
	}

	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))
	logger.Debug("building feature vector", slog.Time("at", req.At))

	start := time.Now()
	v, err := s.builder.Vector(ctx, req.At)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveRun(metrics.KindVector, duration, metrics.OutcomeError)
		logger.Error("feature vector failed", slog.Any("error", err))
		return models.VectorResult{}, classify(op, err)
	}
	metrics.ObserveRun(metrics.KindVector, duration, metrics.OutcomeSuccess)
	s.observeLatency(logger, metrics.KindVector, duration)

	result := models.VectorResult{
		RunID:       runID,
		At:          v.At,
		LastGlucose: v.LastGlucose,
		Columns:     v.Columns,
		Values:      v.Values,
		Anomalies:   len(v.Anomalies),
	}
	if err := s.publisher.Publish(ctx, result); err != nil {
		logger.Warn("publishing feature vector failed", slog.Any("error", err))
	}
	return result, nil
}

// BuildMatrix builds the training matrix starting at req.Start.
func (s *FeatureService) BuildMatrix(ctx context.Context, req models.MatrixRequest) (*engine.FeatureMatrix, error) {
	const op = "BuildMatrix"
	if req.Start.IsZero() {
		return nil, utils.NewAppError(op, "start is required", utils.KindInvalid, nil)
	}
	if s.builder == nil {
		return nil, utils.NewAppError(op, "pipeline not configured", utils.KindInternal, nil)
	}

	logger := s.logger.With(slog.String("run_id", uuid.NewString()))
	start := time.Now()
	m, err := s.builder.BuildTrainingMatrix(ctx, req.Start)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveRun(metrics.KindMatrix, duration, metrics.OutcomeError)
		logger.Error("training matrix failed", slog.Any("error", err))
		return nil, classify(op, err)
	}
	metrics.ObserveRun(metrics.KindMatrix, duration, metrics.OutcomeSuccess)
	s.observeLatency(logger, metrics.KindMatrix, duration)
	logger.Info("training matrix built", slog.Int("rows", m.Len()), slog.Int("columns", len(m.Names())))
	return m, nil
}

func (s *FeatureService) observeLatency(logger *slog.Logger, kind string, d time.Duration) {
	s.latencies.Observe(kind, d)
	if count := s.latencies.Count(kind); count >= 20 && count%20 == 0 {
		logger.Info("pipeline latency", slog.String("kind", kind),
			slog.Duration("p95", s.latencies.Percentile(kind, 95)), slog.Int("samples", count))
	}
}

// classify maps pipeline errors to service error kinds.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, engine.ErrImplausible), errors.Is(err, timeseries.ErrUnordered):
		return utils.NewAppError(op, "input data rejected", utils.KindDataQuality, err)
	case errors.Is(err, engine.ErrFetch), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return utils.NewAppError(op, "data source unavailable", utils.KindUnavailable, err)
	case errors.Is(err, engine.ErrUnknownColumn), errors.Is(err, timeseries.ErrInvalidGrid):
		return utils.NewAppError(op, "invalid request", utils.KindInvalid, err)
	default:
		return utils.NewAppError(op, fmt.Sprintf("%s failed", op), utils.KindInternal, err)
	}
}
