package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/buessow/glumagic/internal/engine"
	"github.com/buessow/glumagic/internal/models"
)

// FixtureData holds recorded event streams.
type FixtureData struct {
	Glucose        []models.TimedValue        `yaml:"glucose"`
	HeartRates     []models.TimedValue        `yaml:"heartRates"`
	Carbs          []models.TimedValue        `yaml:"carbs"`
	Boluses        []models.TimedValue        `yaml:"boluses"`
	ProfileHistory *models.ProfileHistory     `yaml:"profileHistory"`
	Overrides      []models.TemporaryOverride `yaml:"overrides"`
	// HRLongCounts, when set, answers high heart rate counts directly.
	HRLongCounts []float64 `yaml:"hrLongCounts"`
}

// FixtureCase is recorded data together with the vector expected at At.
type FixtureCase struct {
	Name        string    `yaml:"name"`
	At          time.Time `yaml:"at"`
	Expected    []float64 `yaml:"expected"`
	FixtureData `yaml:",inline"`
}

// Fixture is the YAML document layout. Data backs the fixture provider, Cases
// drive verification.
type Fixture struct {
	Data  *FixtureData  `yaml:"data"`
	Cases []FixtureCase `yaml:"cases"`
}

// LoadFixtures reads a fixture file, or every *.yaml and *.yml file of a
// directory in name order.
func LoadFixtures(path string) ([]Fixture, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat fixtures: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		yamlFiles, err := filepath.Glob(filepath.Join(path, "*.yaml"))
		if err != nil {
			return nil, err
		}
		ymlFiles, err := filepath.Glob(filepath.Join(path, "*.yml"))
		if err != nil {
			return nil, err
		}
		files = append(yamlFiles, ymlFiles...)
		sort.Strings(files)
	}

	fixtures := make([]Fixture, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", f, err)
		}
		var fx Fixture
		if err := yaml.Unmarshal(data, &fx); err != nil {
			return nil, fmt.Errorf("parse fixture %s: %w", f, err)
		}
		fixtures = append(fixtures, fx)
	}
	return fixtures, nil
}

// LoadTestCases turns every case found under path into a verifier test case.
// step is used when a case has to derive heart rate counts itself.
func LoadTestCases(path string, step time.Duration) ([]engine.TestCase, error) {
	fixtures, err := LoadFixtures(path)
	if err != nil {
		return nil, err
	}
	var cases []engine.TestCase
	for _, fx := range fixtures {
		for _, c := range fx.Cases {
			provider, err := NewFixtureProvider(c.FixtureData, step)
			if err != nil {
				return nil, fmt.Errorf("case %q: %w", c.Name, err)
			}
			cases = append(cases, engine.TestCase{
				Name:     c.Name,
				At:       c.At,
				Provider: provider,
				Expected: c.Expected,
			})
		}
	}
	return cases, nil
}

// LoadFixtureProvider serves the data section of the first fixture under path
// that has one.
func LoadFixtureProvider(path string, step time.Duration) (*FixtureProvider, error) {
	fixtures, err := LoadFixtures(path)
	if err != nil {
		return nil, err
	}
	for _, fx := range fixtures {
		if fx.Data != nil {
			return NewFixtureProvider(*fx.Data, step)
		}
	}
	return nil, fmt.Errorf("no fixture data found in %s", path)
}

// FixtureProvider serves recorded streams from memory.
type FixtureProvider struct {
	data FixtureData
	step time.Duration
}

// NewFixtureProvider validates that every stream is sorted.
func NewFixtureProvider(data FixtureData, step time.Duration) (*FixtureProvider, error) {
	for name, values := range map[string][]models.TimedValue{
		"glucose":    data.Glucose,
		"heartRates": data.HeartRates,
		"carbs":      data.Carbs,
		"boluses":    data.Boluses,
	} {
		if i := models.CheckOrdered(values); i >= 0 {
			return nil, fmt.Errorf("fixture %s not sorted at index %d", name, i)
		}
	}
	if step <= 0 {
		step = 5 * time.Minute
	}
	return &FixtureProvider{data: data, step: step}, nil
}

func (f *FixtureProvider) GlucoseReadings(_ context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return between(f.data.Glucose, from, to), nil
}

func (f *FixtureProvider) HeartRates(_ context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return between(f.data.HeartRates, from, to), nil
}

func (f *FixtureProvider) Carbs(_ context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return between(f.data.Carbs, from, to), nil
}

func (f *FixtureProvider) Boluses(_ context.Context, from, to time.Time) ([]models.TimedValue, error) {
	return between(f.data.Boluses, from, to), nil
}

func (f *FixtureProvider) ProfileHistory(_ context.Context, _, _ time.Time) (*models.ProfileHistory, error) {
	if f.data.ProfileHistory == nil {
		return nil, nil
	}
	h := *f.data.ProfileHistory
	return &h, nil
}

func (f *FixtureProvider) TemporaryOverrides(_ context.Context, _, to time.Time) ([]models.TemporaryOverride, error) {
	out := make([]models.TemporaryOverride, 0, len(f.data.Overrides))
	for _, o := range f.data.Overrides {
		if o.Start.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

// HighHeartRateCounts returns the recorded counts, or derives them from the
// recorded heart rates when none were stored.
func (f *FixtureProvider) HighHeartRateCounts(ctx context.Context, at time.Time, threshold float64, lookbacks []time.Duration) ([]float64, error) {
	if f.data.HRLongCounts == nil {
		return engine.DeriveDwellCounts(ctx, f, at, threshold, lookbacks, f.step)
	}
	if len(f.data.HRLongCounts) != len(lookbacks) {
		return nil, fmt.Errorf("fixture has %d heart rate counts for %d lookbacks", len(f.data.HRLongCounts), len(lookbacks))
	}
	return append([]float64(nil), f.data.HRLongCounts...), nil
}

func between(values []models.TimedValue, from, to time.Time) []models.TimedValue {
	lo := sort.Search(len(values), func(i int) bool { return !values[i].Timestamp.Before(from) })
	hi := sort.Search(len(values), func(i int) bool { return !values[i].Timestamp.Before(to) })
	if hi < lo {
		hi = lo
	}
	return append([]models.TimedValue{}, values[lo:hi]...)
}
