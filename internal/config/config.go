package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to build features and serve them.
type Config struct {
	Provider   string           `yaml:"provider"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Nightscout NightscoutConfig `yaml:"nightscout"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Whisper    WhisperConfig    `yaml:"whisper"`
	Cache      CacheConfig      `yaml:"cache"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// Provider names accepted in Config.Provider.
const (
	ProviderNightscout = "nightscout"
	ProviderPostgres   = "postgres"
	ProviderFixture    = "fixture"
)

// ServerConfig controls the gRPC, HTTP and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ActionModelConfig selects an action model by name and carries its
// parameters. LogNorm takes mu and sigma, or peakMinutes and sigma, plus an
// optional totalMinutes that defaults to four hours. Exponential takes
// peakMinutes and totalMinutes.
type ActionModelConfig struct {
	Name         string  `yaml:"name"`
	Mu           float64 `yaml:"mu"`
	Sigma        float64 `yaml:"sigma"`
	PeakMinutes  float64 `yaml:"peakMinutes"`
	TotalMinutes float64 `yaml:"totalMinutes"`
}

// PipelineConfig shapes the feature matrix.
type PipelineConfig struct {
	TrainingPeriodMinutes   int               `yaml:"trainingPeriodMinutes"`
	PredictionPeriodMinutes int               `yaml:"predictionPeriodMinutes"`
	FreqMinutes             int               `yaml:"freqMinutes"`
	PreFetchMinutes         int               `yaml:"preFetchMinutes"`
	Zone                    string            `yaml:"zoneId"`
	CarbAction              ActionModelConfig `yaml:"carbAction"`
	InsulinAction           ActionModelConfig `yaml:"insulinAction"`
	HRLongDurationMinutes   []int             `yaml:"hrLongDurationMinutes"`
	HRHighThreshold         float64           `yaml:"hrHighThreshold"`
	Columns                 []string          `yaml:"xValues"`
	SmoothingFilter         string            `yaml:"smoothingFilter"`
	SmoothingParams         map[string]int    `yaml:"smoothingParams"`
	StrictChecks            bool              `yaml:"strictChecks"`
	IdleTrimMinutes         int               `yaml:"idleTrimMinutes"`
	TestDataPath            string            `yaml:"testDataPath"`
}

// TrainingPeriod returns the history window preceding the query instant.
func (p PipelineConfig) TrainingPeriod() time.Duration {
	return time.Duration(p.TrainingPeriodMinutes) * time.Minute
}

// PredictionPeriod returns the window following the query instant.
func (p PipelineConfig) PredictionPeriod() time.Duration {
	return time.Duration(p.PredictionPeriodMinutes) * time.Minute
}

// Freq returns the grid step.
func (p PipelineConfig) Freq() time.Duration {
	return time.Duration(p.FreqMinutes) * time.Minute
}

// PreFetch returns how far before the window glucose and heart rate are read.
func (p PipelineConfig) PreFetch() time.Duration {
	return time.Duration(p.PreFetchMinutes) * time.Minute
}

// IdleTrim returns the longest gap between therapy events kept in training data.
func (p PipelineConfig) IdleTrim() time.Duration {
	return time.Duration(p.IdleTrimMinutes) * time.Minute
}

// HRLookbacks returns the heart-rate window lengths.
func (p PipelineConfig) HRLookbacks() []time.Duration {
	out := make([]time.Duration, len(p.HRLongDurationMinutes))
	for i, m := range p.HRLongDurationMinutes {
		out[i] = time.Duration(m) * time.Minute
	}
	return out
}

// Location loads the configured time zone.
func (p PipelineConfig) Location() (*time.Location, error) {
	if p.Zone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Zone)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", p.Zone, err)
	}
	return loc, nil
}

// Validate checks the settings that do not depend on other packages.
func (p PipelineConfig) Validate() error {
	if p.FreqMinutes <= 0 {
		return fmt.Errorf("freqMinutes must be positive, got %d", p.FreqMinutes)
	}
	if p.TrainingPeriodMinutes <= 0 {
		return fmt.Errorf("trainingPeriodMinutes must be positive, got %d", p.TrainingPeriodMinutes)
	}
	if p.PredictionPeriodMinutes < 0 {
		return fmt.Errorf("predictionPeriodMinutes must not be negative, got %d", p.PredictionPeriodMinutes)
	}
	if p.TrainingPeriodMinutes%p.FreqMinutes != 0 || p.PredictionPeriodMinutes%p.FreqMinutes != 0 {
		return fmt.Errorf("periods must be multiples of freqMinutes %d", p.FreqMinutes)
	}
	for _, m := range p.HRLongDurationMinutes {
		if m <= 0 {
			return fmt.Errorf("hrLongDurationMinutes must be positive, got %d", m)
		}
	}
	if _, err := p.Location(); err != nil {
		return err
	}
	return nil
}

// NightscoutConfig configures the Nightscout REST provider.
type NightscoutConfig struct {
	BaseURL           string        `yaml:"baseURL"`
	APISecret         string        `yaml:"apiSecret"`
	APIToken          string        `yaml:"apiToken"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	PageSize          int           `yaml:"pageSize"`
}

// PostgresConfig configures the SQL provider.
type PostgresConfig struct {
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// WhisperConfig points at Graphite whisper archives holding wearable data.
type WhisperConfig struct {
	HeartRatePath string `yaml:"heartRatePath"`
}

// CacheConfig controls caching of heart-rate window queries.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Backend  string        `yaml:"backend"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Size     int           `yaml:"size"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig controls publication of built feature vectors.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"serviceName"`
	SampleRate  float64 `yaml:"sampleRate"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("GLUMAGIC_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Provider: ProviderNightscout,
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Pipeline: PipelineConfig{
			TrainingPeriodMinutes:   60,
			PredictionPeriodMinutes: 60,
			FreqMinutes:             5,
			PreFetchMinutes:         6,
			Zone:                    "UTC",
			CarbAction:              ActionModelConfig{Name: "LogNorm", PeakMinutes: 45, Sigma: 0.5},
			InsulinAction:           ActionModelConfig{Name: "LogNorm", PeakMinutes: 60, Sigma: 0.5},
			HRLongDurationMinutes:   []int{60, 120},
			HRHighThreshold:         120,
			SmoothingFilter:         "none",
			IdleTrimMinutes:         0,
		},
		Nightscout: NightscoutConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			PageSize:          10000,
		},
		Postgres: PostgresConfig{Timeout: 5 * time.Second},
		Cache: CacheConfig{
			Backend: "memory",
			Size:    4096,
			TTL:     time.Hour,
		},
		Kafka:   KafkaConfig{Topic: "glumagic.vectors"},
		Tracing: TracingConfig{Endpoint: "localhost:4317", ServiceName: "glumagic", SampleRate: 1.0},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GLUMAGIC_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("GLUMAGIC_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("GLUMAGIC_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("GLUMAGIC_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("GLUMAGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GLUMAGIC_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("GLUMAGIC_ZONE"); v != "" {
		cfg.Pipeline.Zone = v
	}
	if v := os.Getenv("GLUMAGIC_STRICT_CHECKS"); v != "" {
		cfg.Pipeline.StrictChecks = parseBool(v)
	}
	if v := os.Getenv("GLUMAGIC_TEST_DATA"); v != "" {
		cfg.Pipeline.TestDataPath = v
	}
	if v := os.Getenv("NIGHTSCOUT_URL"); v != "" {
		cfg.Nightscout.BaseURL = v
	}
	if v := os.Getenv("NIGHTSCOUT_API_SECRET"); v != "" {
		cfg.Nightscout.APISecret = v
	}
	if v := os.Getenv("NIGHTSCOUT_API_TOKEN"); v != "" {
		cfg.Nightscout.APIToken = v
	}
	if v := os.Getenv("GLUMAGIC_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("GLUMAGIC_WHISPER_HEART_RATE"); v != "" {
		cfg.Whisper.HeartRatePath = v
	}
	if v := os.Getenv("GLUMAGIC_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("GLUMAGIC_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("GLUMAGIC_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("GLUMAGIC_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("GLUMAGIC_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("GLUMAGIC_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("GLUMAGIC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("GLUMAGIC_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("GLUMAGIC_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
		cfg.Tracing.Enabled = true
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
