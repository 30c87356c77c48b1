package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openfga/datagate/pkg/telemetry"
)

var cacheLookupCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: telemetry.Namespace,
	Name:      "remote_cache_lookup_count",
	Help:      "The number of single item lookups served by a remote cache, by outcome.",
}, []string{"service", "outcome"})

// ByIDFetcher fetches a single item; found is false when it does not exist.
type ByIDFetcher[R any] interface {
	ByID(ctx context.Context, id string) (R, bool, error)
}

// CachedByID keeps recently fetched items for a fixed TTL. Absent items and errors
// are not cached.
type CachedByID[R any] struct {
	service string
	fetcher ByIDFetcher[R]
	cache   *theine.Cache[string, R]
	ttl     time.Duration
}

func NewCachedByID[R any](service string, fetcher ByIDFetcher[R], maxSize int64, ttl time.Duration) (*CachedByID[R], error) {
	cache, err := theine.NewBuilder[string, R](maxSize).Build()
	if err != nil {
		return nil, fmt.Errorf("initialize %s cache: %w", service, err)
	}
	return &CachedByID[R]{service: service, fetcher: fetcher, cache: cache, ttl: ttl}, nil
}

func (c *CachedByID[R]) ByID(ctx context.Context, id string) (R, bool, error) {
	if record, ok := c.cache.Get(id); ok {
		cacheLookupCounter.WithLabelValues(c.service, "hit").Inc()
		return record, true, nil
	}
	cacheLookupCounter.WithLabelValues(c.service, "miss").Inc()

	record, found, err := c.fetcher.ByID(ctx, id)
	if err != nil || !found {
		return record, found, err
	}
	c.cache.SetWithTTL(id, record, 1, c.ttl)
	return record, true, nil
}

// Invalidate drops id from the cache.
func (c *CachedByID[R]) Invalidate(id string) {
	c.cache.Delete(id)
}

func (c *CachedByID[R]) Close() {
	c.cache.Close()
}
