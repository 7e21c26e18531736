package metrics

import (
	"context"
	"log"

	"github.com/reillywatson/doratracker/internal/cache"
)

// CachedDispatcher wraps Dispatcher with a per-metric result cache keyed by
// project, window, window length, pipeline configuration and the executions
// themselves.
type CachedDispatcher struct {
	dispatcher *Dispatcher
	cache      cache.Cache
	kb         *cache.CacheKeyBuilder
}

// NewCachedDispatcher creates a dispatcher that memoizes results in cacheImpl.
func NewCachedDispatcher(dispatcher *Dispatcher, cacheImpl cache.Cache) *CachedDispatcher {
	return &CachedDispatcher{
		dispatcher: dispatcher,
		cache:      cacheImpl,
		kb:         cache.NewCacheKeyBuilder("metrics"),
	}
}

// Calculate returns cached results where available and computes the rest.
// Cache errors are logged and never fail the calculation.
func (c *CachedDispatcher) Calculate(ctx context.Context, projectID string, req Request, kinds ...Kind) (Response, error) {
	if len(kinds) == 0 {
		kinds = c.dispatcher.Kinds()
	}

	inputs, err := cache.FingerprintJSON(req.Executions)
	if err != nil {
		log.Printf("Not caching metrics: %v", err)
		return c.dispatcher.Calculate(ctx, req, kinds...)
	}

	resp := make(Response, len(kinds))
	var missing []Kind
	for _, kind := range kinds {
		key := c.key(projectID, kind, req, inputs)
		var cached Result
		if err := c.cache.Get(key, &cached); err == nil {
			resp[kind] = cached
			continue
		} else if err != cache.ErrCacheMiss {
			log.Printf("Cache error for %s: %v", kind, err)
		}
		missing = append(missing, kind)
	}

	if len(missing) == 0 {
		return resp, nil
	}

	computed, err := c.dispatcher.Calculate(ctx, req, missing...)
	if err != nil {
		return nil, err
	}

	ttl := cache.RecencyTTL(req.Window.EndTime())
	for kind, result := range computed {
		resp[kind] = result
		if err := c.cache.Set(c.key(projectID, kind, req, inputs), result, ttl); err != nil {
			log.Printf("Failed to cache %s: %v", kind, err)
		}
	}

	return resp, nil
}

func (c *CachedDispatcher) key(projectID string, kind Kind, req Request, inputs string) string {
	return c.kb.MetricKey(projectID, string(kind), req.Window.Start, req.Window.End, req.Days, req.Roles, inputs)
}

// Close releases the underlying cache.
func (c *CachedDispatcher) Close() error {
	return c.cache.Close()
}
