package repo

import (
	"context"
	"fmt"
	"math"
	"time"

	whisper "github.com/go-graphite/go-whisper"

	"github.com/buessow/glumagic/internal/config"
	"github.com/buessow/glumagic/internal/engine"
	"github.com/buessow/glumagic/internal/models"
)

// WhisperSource serves heart rates from a Graphite whisper archive written by
// a wearable collector and delegates every other stream to the wrapped
// provider.
type WhisperSource struct {
	engine.Provider
	heartRatePath string
}

// NewWhisperSource wraps inner. With an empty heart rate path it behaves like
// inner.
func NewWhisperSource(inner engine.Provider, cfg config.WhisperConfig) *WhisperSource {
	return &WhisperSource{Provider: inner, heartRatePath: cfg.HeartRatePath}
}

// HeartRates reads the archive slots in [from, to) that hold a value.
func (w *WhisperSource) HeartRates(ctx context.Context, from, to time.Time) ([]models.TimedValue, error) {
	if w.heartRatePath == "" {
		return w.Provider.HeartRates(ctx, from, to)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadWhisper(w.heartRatePath, from, to)
}

// ReadWhisper returns the non-empty points of the archive at path with a slot
// time in [from, to).
func ReadWhisper(path string, from, to time.Time) ([]models.TimedValue, error) {
	if !from.Before(to) {
		return []models.TimedValue{}, nil
	}
	db, err := whisper.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open whisper archive %s: %w", path, err)
	}
	defer db.Close()

	// whisper starts at the slot after the one containing its from argument.
	ts, err := db.Fetch(int(from.Unix())-1, int(to.Unix()))
	if err != nil {
		return nil, fmt.Errorf("fetch whisper archive %s: %w", path, err)
	}
	out := []models.TimedValue{}
	if ts == nil {
		return out, nil
	}
	for i, v := range ts.Values() {
		if math.IsNaN(v) {
			continue
		}
		at := time.Unix(int64(ts.FromTime()+i*ts.Step()), 0).UTC()
		if at.Before(from) || !at.Before(to) {
			continue
		}
		out = append(out, models.TimedValue{Timestamp: at, Value: v})
	}
	return out, nil
}
