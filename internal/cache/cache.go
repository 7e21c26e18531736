package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Common cache errors
var (
	ErrCacheMiss = errors.New("cache miss")
)

// Cache defines the interface for all cache implementations
type Cache interface {
	// Get retrieves a value from the cache
	Get(key string, value interface{}) error

	// Set stores a value in the cache with an optional TTL
	Set(key string, value interface{}, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error

	// Close cleans up the cache resources
	Close() error
}

// entryVersion changes whenever the on-disk entry layout does; entries
// written by another version are treated as misses.
const entryVersion = 2

// Entry is one stored value. Key is kept so a read can tell its own entry
// from a hash collision or a foreign file.
type Entry struct {
	Version   int             `json:"version"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsExpired reports whether the entry's TTL has passed at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// usable reports whether the entry can answer a read of key at now.
func (e *Entry) usable(key string, now time.Time) bool {
	return e.Version == entryVersion && e.Key == key && !e.IsExpired(now)
}

// RecencyTTL picks how long data ending at end may be cached: a day for
// windows that closed over a week ago, an hour for recent ones that can still
// change as pipelines finish.
func RecencyTTL(end time.Time) time.Duration {
	if time.Since(end) > 7*24*time.Hour {
		return 24 * time.Hour
	}
	return 1 * time.Hour
}

// CacheKeyBuilder helps build consistent cache keys
type CacheKeyBuilder struct {
	prefix string
}

func NewCacheKeyBuilder(prefix string) *CacheKeyBuilder {
	return &CacheKeyBuilder{prefix: prefix}
}

// MetricKey identifies one metric result for a project, window, pipeline
// configuration and input data. inputs is a fingerprint of the executions the
// result was computed from.
func (b *CacheKeyBuilder) MetricKey(projectID, kind string, start, end int64, days int, roles map[string]string, inputs string) string {
	return b.buildKey("metric", projectID, kind, start, end, days, Fingerprint(roles), inputs)
}

// ExecutionsKey identifies the executions fetched from a source for a date range.
func (b *CacheKeyBuilder) ExecutionsKey(source string, since, until time.Time) string {
	return b.buildKey("executions", source, since.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339))
}

// CommitKey identifies a single commit in a repository.
func (b *CacheKeyBuilder) CommitKey(owner, repo, sha string) string {
	return b.buildKey("commit", owner, repo, sha)
}

// WorkflowJobsKey identifies the jobs of one GitHub Actions workflow run.
func (b *CacheKeyBuilder) WorkflowJobsKey(owner, repo string, runID int64) string {
	return b.buildKey("workflow_jobs", owner, repo, runID)
}

// CircleJobsKey identifies the jobs of one CircleCI workflow.
func (b *CacheKeyBuilder) CircleJobsKey(workflowID string) string {
	return b.buildKey("circle_jobs", workflowID)
}

// RolloutsKey identifies the rollouts of a Cloud Deploy release.
func (b *CacheKeyBuilder) RolloutsKey(projectID, region, releaseName string) string {
	return b.buildKey("rollouts", projectID, region, releaseName)
}

func (b *CacheKeyBuilder) buildKey(parts ...interface{}) string {
	key := b.prefix
	for _, part := range parts {
		key += ":" + toString(part)
	}
	return key
}

// Fingerprint hashes a string map independently of its iteration order.
func Fingerprint(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%q=%q;", k, m[k])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// FingerprintJSON hashes the JSON encoding of v.
func FingerprintJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// NewDefaultCache opens the file cache in the user cache directory
func NewDefaultCache() (*FileCache, error) {
	return NewFileCache("doratracker")
}
