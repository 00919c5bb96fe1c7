package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/buessow/glumagic/internal/cache"
	"github.com/buessow/glumagic/internal/config"
	"github.com/buessow/glumagic/internal/engine"
	"github.com/buessow/glumagic/internal/metrics"
	"github.com/buessow/glumagic/internal/publish"
	"github.com/buessow/glumagic/internal/repo"
	"github.com/buessow/glumagic/internal/tracing"
	"github.com/buessow/glumagic/internal/utils"
)

// app holds the wiring shared by all commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracer  *sdktrace.TracerProvider
	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, os.Stderr)
	slog.SetDefault(logger)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn("tracing disabled", slog.Any("error", err))
	}
	return &app{cfg: cfg, logger: logger, tracer: tp}, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx, a.tracer); err != nil {
			a.logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}
}

// provider builds the configured data source, optionally reading heart rates
// from a whisper archive and caching heart rate counts.
func (a *app) provider(ctx context.Context) (engine.Provider, error) {
	step := a.cfg.Pipeline.Freq()
	var p engine.Provider
	switch a.cfg.Provider {
	case config.ProviderNightscout:
		if a.cfg.Nightscout.BaseURL == "" {
			return nil, fmt.Errorf("nightscout.baseURL not configured")
		}
		p = repo.NewNightscoutClient(a.cfg.Nightscout, a.logger)
	case config.ProviderPostgres:
		pg, err := repo.NewPostgresProvider(ctx, a.cfg.Postgres, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		p = pg
	case config.ProviderFixture:
		fx, err := repo.LoadFixtureProvider(a.cfg.Pipeline.TestDataPath, step)
		if err != nil {
			return nil, err
		}
		p = fx
	default:
		return nil, fmt.Errorf("unknown provider %q", a.cfg.Provider)
	}

	if a.cfg.Whisper.HeartRatePath != "" {
		p = repo.NewWhisperSource(p, a.cfg.Whisper)
	}
	if a.cfg.Cache.Enabled {
		c, err := cache.New(a.cfg.Cache)
		if err != nil {
			a.logger.Warn("cache unavailable", slog.Any("error", err))
			return p, nil
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		p = repo.NewCachedProvider(p, c, a.cfg.Cache.TTL, step, a.logger)
	}
	return p, nil
}

func (a *app) pipeline(ctx context.Context, pc config.PipelineConfig) (*engine.Pipeline, error) {
	settings, err := engine.NewSettings(pc)
	if err != nil {
		return nil, fmt.Errorf("pipeline settings: %w", err)
	}
	p, err := a.provider(ctx)
	if err != nil {
		return nil, err
	}
	return engine.NewPipeline(a.logger, p, settings), nil
}

func (a *app) publisher() (publish.Publisher, error) {
	pub, err := publish.New(a.cfg.Kafka, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := pub.Close(); err != nil {
			a.logger.Warn("publisher close", slog.Any("error", err))
		}
	})
	return pub, nil
}
