// Package cache stores serialized provider answers between pipeline runs.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buessow/glumagic/internal/config"
)

// Provider defines the cache operations used by the caching provider.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// New builds the provider selected by cfg. A disabled cache yields
// NoopProvider.
func New(cfg config.CacheConfig) (Provider, error) {
	if !cfg.Enabled {
		return NoopProvider{}, nil
	}
	switch cfg.Backend {
	case "", BackendMemory:
		return NewLRUProvider(cfg.Size)
	case BackendRedis:
		return NewRedisProvider(RedisConfig{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// Del is a no-op.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
