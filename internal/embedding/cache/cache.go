// Package cache memoizes embeddings of identical text.
package cache

import (
	"context"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"semrag/internal/domain"
)

const (
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute
)

// Embedder wraps another embedder and caches successful results by text.
// Failures are not cached, so a transient error is retried on the next call.
type Embedder struct {
	next  domain.Embedder
	store *gocache.Cache
}

// NewEmbedder wraps next with a TTL cache.
func NewEmbedder(next domain.Embedder, ttl, cleanup time.Duration) *Embedder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanup <= 0 {
		cleanup = DefaultCleanupInterval
	}
	return &Embedder{next: next, store: gocache.New(ttl, cleanup)}
}

func (e *Embedder) Name() string   { return e.next.Name() }
func (e *Embedder) Dimension() int { return e.next.Dimension() }

// Embed returns a private copy of the cached vector, computing it on a miss.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := e.store.Get(text); ok {
		return slices.Clone(v.([]float64)), nil
	}
	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store.SetDefault(text, slices.Clone(vec))
	return vec, nil
}

// Len reports the number of cached entries.
func (e *Embedder) Len() int { return e.store.ItemCount() }
