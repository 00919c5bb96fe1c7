package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/buessow/glumagic/internal/cache"
	"github.com/buessow/glumagic/internal/engine"
	"github.com/buessow/glumagic/internal/models"
)

type stubCache struct {
	mu     sync.Mutex
	store  map[string][]byte
	getErr error
}

func newStubCache() *stubCache {
	return &stubCache{store: make(map[string][]byte)}
}

func (s *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	value, ok := s.store[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	copyValue := append([]byte(nil), value...)
	return copyValue, nil
}

func (s *stubCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = append([]byte(nil), value...)
	return nil
}

func (s *stubCache) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, key)
	return nil
}

func (s *stubCache) Close() error { return nil }

type countingDwellProvider struct {
	engine.Provider
	calls  int
	counts []float64
}

func (p *countingDwellProvider) HighHeartRateCounts(context.Context, time.Time, float64, []time.Duration) ([]float64, error) {
	p.calls++
	return p.counts, nil
}

func TestCachedProviderServesRepeatedQueriesFromCache(t *testing.T) {
	inner := &countingDwellProvider{counts: []float64{3, 7}}
	stub := newStubCache()
	provider := NewCachedProvider(inner, stub, time.Hour, 5*time.Minute, nil)

	ctx := context.Background()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	lookbacks := []time.Duration{time.Hour, 2 * time.Hour}

	first, err := provider.HighHeartRateCounts(ctx, at, 120, lookbacks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := provider.HighHeartRateCounts(ctx, at, 120, lookbacks)
	if err != nil {
		t.Fatalf("unexpected cached error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", inner.calls)
	}
	if len(second) != 2 || second[0] != first[0] || second[1] != 7 {
		t.Fatalf("unexpected cached counts: %v", second)
	}
	if _, ok := stub.store[dwellCacheKey(at, 120, lookbacks)]; !ok {
		t.Fatalf("expected counts to be stored under %s", dwellCacheKey(at, 120, lookbacks))
	}

	if _, err := provider.HighHeartRateCounts(ctx, at, 100, lookbacks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected a different threshold to miss the cache, got %d calls", inner.calls)
	}
}

func TestCachedProviderDerivesCountsAndSurvivesCacheFailure(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	fixture, err := NewFixtureProvider(FixtureData{
		HeartRates: []models.TimedValue{
			{Timestamp: at.Add(-10 * time.Minute), Value: 150},
			{Timestamp: at.Add(-5 * time.Minute), Value: 150},
		},
	}, 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stub := newStubCache()
	stub.getErr = errors.New("connection refused")
	// Hide the fixture's own dwell counts so the raw heart rates are used.
	inner := struct{ engine.Provider }{fixture}
	provider := NewCachedProvider(inner, stub, time.Hour, 5*time.Minute, nil)

	counts, err := provider.HighHeartRateCounts(context.Background(), at, 100, []time.Duration{10 * time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(counts) != 1 || counts[0] != 2 {
		t.Fatalf("expected [2], got %v", counts)
	}
}

func TestDwellCacheKeyIsStable(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	key := dwellCacheKey(at, 120.5, []time.Duration{time.Hour, 90 * time.Minute})
	if key != "glumagic:hrlong:1700000000000:120.5:3600,5400" {
		t.Fatalf("unexpected key %s", key)
	}
}
