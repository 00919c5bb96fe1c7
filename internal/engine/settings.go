package engine

import (
	"fmt"
	"time"

	"github.com/buessow/glumagic/internal/action"
	"github.com/buessow/glumagic/internal/config"
	"github.com/buessow/glumagic/internal/smoothing"
)

// Settings is the validated, parsed form of config.PipelineConfig shared by
// all pipeline runs.
type Settings struct {
	Training      time.Duration
	Prediction    time.Duration
	Freq          time.Duration
	PreFetch      time.Duration
	Location      *time.Location
	CarbAction    action.Model
	InsulinAction action.Model
	HRLookbacks   []time.Duration
	HRThreshold   float64
	Columns       []Column
	Filter        smoothing.Filter
	StrictChecks  bool
	IdleTrim      time.Duration
}

// NewSettings builds action models, the smoothing filter and the column
// layout from cfg. Every configuration error surfaces here.
func NewSettings(cfg config.PipelineConfig) (*Settings, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	carb, err := action.New(cfg.CarbAction)
	if err != nil {
		return nil, fmt.Errorf("carb action: %w", err)
	}
	insulin, err := action.New(cfg.InsulinAction)
	if err != nil {
		return nil, fmt.Errorf("insulin action: %w", err)
	}
	filter, err := smoothing.New(cfg.SmoothingFilter, cfg.SmoothingParams)
	if err != nil {
		return nil, err
	}

	s := &Settings{
		Training:      cfg.TrainingPeriod(),
		Prediction:    cfg.PredictionPeriod(),
		Freq:          cfg.Freq(),
		PreFetch:      cfg.PreFetch(),
		Location:      loc,
		CarbAction:    carb,
		InsulinAction: insulin,
		HRLookbacks:   cfg.HRLookbacks(),
		HRThreshold:   cfg.HRHighThreshold,
		Filter:        filter,
		StrictChecks:  cfg.StrictChecks,
		IdleTrim:      cfg.IdleTrim(),
	}

	specs := cfg.Columns
	if len(specs) == 0 {
		specs = DefaultColumns(s.Training, s.Prediction, s.Freq, s.HRLookbacks)
	}
	cols, err := ParseColumns(specs)
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		if err := s.checkColumn(c); err != nil {
			return nil, err
		}
	}
	s.Columns = cols
	return s, nil
}

// WithFilter returns a copy of s using filter for glucose smoothing.
func (s *Settings) WithFilter(filter smoothing.Filter) *Settings {
	c := *s
	c.Filter = filter
	return &c
}

// trainingSteps is the number of grid intervals before the query instant.
func (s *Settings) trainingSteps() int {
	return int(s.Training / s.Freq)
}

func (s *Settings) predictionSteps() int {
	return int(s.Prediction / s.Freq)
}

func (s *Settings) checkColumn(c Column) error {
	if c.Kind == KindHeartRateLong {
		lookback := time.Duration(c.OffsetMinutes) * time.Minute
		for _, l := range s.HRLookbacks {
			if l == lookback {
				return nil
			}
		}
		return fmt.Errorf("%w: %q is not a configured heart rate lookback", ErrUnknownColumn, c.Name)
	}

	offset := time.Duration(c.OffsetMinutes) * time.Minute
	switch {
	case offset%s.Freq != 0:
		return fmt.Errorf("%w: %q is not a multiple of %s", ErrUnknownColumn, c.Name, s.Freq)
	case offset < -s.Training:
		return fmt.Errorf("%w: %q reaches before the training window", ErrUnknownColumn, c.Name)
	case offset > s.Prediction:
		return fmt.Errorf("%w: %q reaches past the prediction window", ErrUnknownColumn, c.Name)
	case offset >= 0 && pastOnly[c.Kind]:
		return fmt.Errorf("%w: %q has no values at or after the query instant", ErrUnknownColumn, c.Name)
	}
	return nil
}

func (s *Settings) lookbackIndex(minutes int) int {
	d := time.Duration(minutes) * time.Minute
	for i, l := range s.HRLookbacks {
		if l == d {
			return i
		}
	}
	return -1
}
