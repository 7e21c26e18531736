package cache

import "time"

// NopCache is a Cache that stores nothing, used when caching is disabled
type NopCache struct{}

// Get always misses
func (NopCache) Get(key string, value interface{}) error {
	return ErrCacheMiss
}

// Set discards the value
func (NopCache) Set(key string, value interface{}, ttl time.Duration) error {
	return nil
}

// Delete is a no-op
func (NopCache) Delete(key string) error {
	return nil
}

// Close is a no-op
func (NopCache) Close() error {
	return nil
}
