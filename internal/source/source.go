package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/reillywatson/doratracker/internal/cache"
	"github.com/reillywatson/doratracker/internal/pipeline"
)

// Source fetches pipeline executions from a CI/CD system.
type Source interface {
	// FetchExecutions returns executions started between since and until.
	FetchExecutions(ctx context.Context, since, until time.Time) ([]pipeline.Execution, error)

	// Close cleans up the client connections
	Close() error
}

// FileSource reads executions from a JSON snapshot, either a bare array or an
// object with an "executions" field.
type FileSource struct {
	path string
}

// NewFileSource creates a source backed by the JSON file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type snapshot struct {
	Executions []pipeline.Execution `json:"executions"`
}

// FetchExecutions returns every execution in the file. The date range is not
// applied since snapshots carry no run start time; the calculators filter by
// stage completion anyway.
func (s *FileSource) FetchExecutions(ctx context.Context, since, until time.Time) ([]pipeline.Execution, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read executions file: %w", err)
	}

	var executions []pipeline.Execution
	if err := json.Unmarshal(data, &executions); err == nil {
		return executions, nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode executions file %s: %w", s.path, err)
	}
	return snap.Executions, nil
}

// Close is a no-op for file sources
func (s *FileSource) Close() error {
	return nil
}

// CachedSource wraps a Source with caching capabilities
type CachedSource struct {
	source Source
	name   string
	cache  cache.Cache
	kb     *cache.CacheKeyBuilder
}

// NewCachedSource caches the executions fetched from src under name.
func NewCachedSource(name string, src Source, cacheImpl cache.Cache) *CachedSource {
	return &CachedSource{
		source: src,
		name:   name,
		cache:  cacheImpl,
		kb:     cache.NewCacheKeyBuilder("source"),
	}
}

// FetchExecutions fetches executions with caching
func (c *CachedSource) FetchExecutions(ctx context.Context, since, until time.Time) ([]pipeline.Execution, error) {
	key := c.kb.ExecutionsKey(c.name, since, until)

	var cached []pipeline.Execution
	if err := c.cache.Get(key, &cached); err == nil {
		return cached, nil
	} else if err != cache.ErrCacheMiss {
		log.Printf("Cache error for %s executions: %v", c.name, err)
	}

	executions, err := c.source.FetchExecutions(ctx, since, until)
	if err != nil {
		return nil, err
	}

	// Recent ranges still have running pipelines, so they expire sooner
	if err := c.cache.Set(key, executions, cache.RecencyTTL(until)); err != nil {
		log.Printf("Failed to cache %s executions: %v", c.name, err)
	}

	return executions, nil
}

// Close cleans up the wrapped source. The cache belongs to the caller.
func (c *CachedSource) Close() error {
	return c.source.Close()
}

// DefaultLookbehind covers runs created the day before a window that finish
// inside it.
const DefaultLookbehind = 24 * time.Hour

// LookbehindSource moves the lower fetch bound back by a fixed slack. CI APIs
// select runs by creation time while the metrics window deployments by stage
// completion, so a run started before since can still count.
type LookbehindSource struct {
	source Source
	slack  time.Duration
}

// NewLookbehindSource fetches from src starting slack before each since.
func NewLookbehindSource(src Source, slack time.Duration) *LookbehindSource {
	return &LookbehindSource{source: src, slack: slack}
}

// FetchExecutions fetches executions created in [since-slack, until]
func (l *LookbehindSource) FetchExecutions(ctx context.Context, since, until time.Time) ([]pipeline.Execution, error) {
	return l.source.FetchExecutions(ctx, since.Add(-l.slack), until)
}

// Close closes the wrapped source
func (l *LookbehindSource) Close() error {
	return l.source.Close()
}
