package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buessow/glumagic/internal/config"
	"github.com/buessow/glumagic/internal/models"
)

const (
	glucoseQuery   = `SELECT ts, value FROM glucose WHERE ts >= $1 AND ts < $2 ORDER BY ts`
	heartRateQuery = `SELECT ts, value FROM heart_rate WHERE ts >= $1 AND ts < $2 ORDER BY ts`
	carbsQuery     = `SELECT ts, grams FROM carbs WHERE ts >= $1 AND ts < $2 AND grams > 0 ORDER BY ts`
	bolusQuery     = `SELECT ts, units FROM boluses WHERE ts >= $1 AND ts < $2 AND units > 0 ORDER BY ts`
	tempBasalQuery = `SELECT ts, duration_ms, percent, absolute FROM temp_basals WHERE ts >= $1 AND ts < $2 ORDER BY ts`
	switchQuery    = `SELECT ts, name, duration_ms, percentage, segments FROM profile_switches WHERE ts < $1 ORDER BY ts`
)

// querier is the subset of pgxpool.Pool the provider uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresProvider reads event streams from a PostgreSQL schema with one table
// per stream.
type PostgresProvider struct {
	pool    *pgxpool.Pool
	db      querier
	timeout time.Duration
	logger  *slog.Logger
}

// NewPostgresProvider connects to the configured database and verifies the
// connection.
func NewPostgresProvider(ctx context.Context, cfg config.PostgresConfig, logger *slog.Logger) (*PostgresProvider, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn not configured")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := newPostgresProvider(pool, cfg.Timeout, logger)
	p.pool = pool
	return p, nil
}

func newPostgresProvider(db querier, timeout time.Duration, logger *slog.Logger) *PostgresProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProvider{db: db, timeout: timeout, logger: logger}
}

// Close releases the connection pool.
func (p *PostgresProvider) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresProvider) GlucoseReadings(ctx context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return p.timedValues(ctx, "glucose", glucoseQuery, from, to)
}

func (p *PostgresProvider) HeartRates(ctx context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return p.timedValues(ctx, "heart_rate", heartRateQuery, from, to)
}

func (p *PostgresProvider) Carbs(ctx context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return p.timedValues(ctx, "carbs", carbsQuery, from, to)
}

func (p *PostgresProvider) Boluses(ctx context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return p.timedValues(ctx, "boluses", bolusQuery, from, to)
}

// TemporaryOverrides reads temp basals starting up to overrideLookback before
// from.
func (p *PostgresProvider) TemporaryOverrides(ctx context.Context, from, to time.Time) ([]models.TemporaryOverride, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.db.Query(ctx, tempBasalQuery, from.Add(-overrideLookback), to)
	if err != nil {
		return nil, fmt.Errorf("query temp_basals: %w", err)
	}
	defer rows.Close()

	var out []models.TemporaryOverride
	for rows.Next() {
		var (
			ts         time.Time
			durationMs int64
			percent    *float64
			absolute   *float64
		)
		if err := rows.Scan(&ts, &durationMs, &percent, &absolute); err != nil {
			return nil, fmt.Errorf("scan temp_basals: %w", err)
		}
		out = append(out, tempBasalOverride(ts.UTC(), time.Duration(durationMs)*time.Millisecond, percent, absolute))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read temp_basals: %w", err)
	}
	return out, nil
}

// ProfileHistory resolves profile switches stored with their basal entries as
// JSON.
func (p *PostgresProvider) ProfileHistory(ctx context.Context, from, to time.Time) (*models.ProfileHistory, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.db.Query(ctx, switchQuery, to)
	if err != nil {
		return nil, fmt.Errorf("query profile_switches: %w", err)
	}
	defer rows.Close()

	var switches []models.DailyProfile
	for rows.Next() {
		var (
			ts         time.Time
			name       string
			durationMs int64
			percentage float64
			raw        []byte
		)
		if err := rows.Scan(&ts, &name, &durationMs, &percentage, &raw); err != nil {
			return nil, fmt.Errorf("scan profile_switches: %w", err)
		}
		var entries []basalEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			p.logger.Warn("skipping profile switch", slog.String("name", name), slog.Any("error", err))
			continue
		}
		segments, err := segmentsFromEntries(entries)
		if err != nil {
			p.logger.Warn("skipping profile switch", slog.String("name", name), slog.Any("error", err))
			continue
		}
		multiplier := 1.0
		if percentage > 0 {
			multiplier = percentage / 100
		}
		switches = append(switches, models.DailyProfile{
			Name:               name,
			Start:              ts.UTC(),
			Segments:           segments,
			PermanenceDuration: time.Duration(durationMs) * time.Millisecond,
			RateMultiplier:     multiplier,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read profile_switches: %w", err)
	}
	return resolveHistory(switches, from, to), nil
}

func (p *PostgresProvider) timedValues(ctx context.Context, table, query string, from, to time.Time) ([]models.TimedValue, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []models.TimedValue
	for rows.Next() {
		var v models.TimedValue
		if err := rows.Scan(&v.Timestamp, &v.Value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		v.Timestamp = v.Timestamp.UTC()
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return out, nil
}

func (p *PostgresProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}
