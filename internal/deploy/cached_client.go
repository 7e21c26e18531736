package deploy

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/deploy/apiv1/deploypb"
	"github.com/reillywatson/doratracker/internal/cache"
)

// CachedDeployClient wraps a DeployClientInterface with caching capabilities
type CachedDeployClient struct {
	client    DeployClientInterface
	cache     cache.Cache
	kb        *cache.CacheKeyBuilder
	projectID string
	region    string
}

// NewCachedDeployClient wraps client with a cache
func NewCachedDeployClient(client DeployClientInterface, projectID, region string, cacheImpl cache.Cache) *CachedDeployClient {
	return &CachedDeployClient{
		client:    client,
		cache:     cacheImpl,
		kb:        cache.NewCacheKeyBuilder("deploy"),
		projectID: projectID,
		region:    region,
	}
}

// ListReleases is not cached; new releases are cut all the time
func (c *CachedDeployClient) ListReleases(ctx context.Context, pipeline string, since, until time.Time) ([]*deploypb.Release, error) {
	return c.client.ListReleases(ctx, pipeline, since, until)
}

// ListRollouts gets the rollouts of a release with caching
func (c *CachedDeployClient) ListRollouts(ctx context.Context, releaseName string) ([]Rollout, error) {
	key := c.kb.RolloutsKey(c.projectID, c.region, releaseName)

	var cachedRollouts []Rollout
	if err := c.cache.Get(key, &cachedRollouts); err == nil {
		return cachedRollouts, nil
	} else if err != cache.ErrCacheMiss {
		log.Printf("Cache error for rollouts: %v", err)
	}

	rollouts, err := c.client.ListRollouts(ctx, releaseName)
	if err != nil {
		return nil, err
	}

	ttl := 1 * time.Hour
	if rolloutsSettled(rollouts) {
		ttl = 24 * time.Hour
	}
	if err := c.cache.Set(key, rollouts, ttl); err != nil {
		log.Printf("Failed to cache rollouts for release %s: %v", releaseName, err)
	}

	return rollouts, nil
}

// rolloutsSettled reports whether no rollout can still change state
func rolloutsSettled(rollouts []Rollout) bool {
	for _, rollout := range rollouts {
		if !rolloutStatus(rollout.State).Terminal() {
			return false
		}
	}
	return true
}

// Close cleans up the client
func (c *CachedDeployClient) Close() error {
	return c.cache.Close()
}
