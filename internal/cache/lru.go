package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLRUSize bounds the in-memory cache when no size is configured.
const DefaultLRUSize = 4096

type lruEntry struct {
	value     []byte
	expiresAt time.Time
}

// LRUProvider is a size-bounded in-process Provider with per-entry TTL.
type LRUProvider struct {
	mu    sync.Mutex
	cache *lru.Cache[string, lruEntry]
	now   func() time.Time
}

// NewLRUProvider creates an in-memory cache holding at most size entries.
func NewLRUProvider(size int) (*LRUProvider, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	c, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUProvider{cache: c, now: time.Now}, nil
}

// Get returns the stored bytes unless absent or expired.
func (p *LRUProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.cache.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && !p.now().Before(entry.expiresAt) {
		p.cache.Remove(key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), entry.value...), nil
}

// Set stores a copy of value. A zero TTL never expires.
func (p *LRUProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := lruEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = p.now().Add(ttl)
	}
	p.cache.Add(key, entry)
	return nil
}

// Del removes key.
func (p *LRUProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Remove(key)
	return nil
}

// Close purges the cache.
func (p *LRUProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (p *LRUProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Len()
}
