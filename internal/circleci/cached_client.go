package circleci

import (
	"context"
	"log"
	"time"

	"github.com/reillywatson/doratracker/internal/cache"
)

// CachedCircleCIClient wraps CircleCIClient with caching capabilities
type CachedCircleCIClient struct {
	client CircleCIClientInterface
	cache  cache.Cache
	kb     *cache.CacheKeyBuilder
}

// NewCachedCircleCIClient wraps client with a cache
func NewCachedCircleCIClient(client CircleCIClientInterface, cacheImpl cache.Cache) *CachedCircleCIClient {
	return &CachedCircleCIClient{
		client: client,
		cache:  cacheImpl,
		kb:     cache.NewCacheKeyBuilder("circleci"),
	}
}

// FetchPipelines is not cached; new pipelines show up all the time
func (c *CachedCircleCIClient) FetchPipelines(ctx context.Context, projectSlug string, since time.Time) ([]Pipeline, error) {
	return c.client.FetchPipelines(ctx, projectSlug, since)
}

// FetchWorkflows is not cached; workflow status moves while the pipeline runs
func (c *CachedCircleCIClient) FetchWorkflows(ctx context.Context, pipelineID string) ([]Workflow, error) {
	return c.client.FetchWorkflows(ctx, pipelineID)
}

// FetchJobs fetches the jobs of a workflow with caching
func (c *CachedCircleCIClient) FetchJobs(ctx context.Context, workflowID string) ([]Job, error) {
	key := c.kb.CircleJobsKey(workflowID)

	var cachedJobs []Job
	if err := c.cache.Get(key, &cachedJobs); err == nil {
		return cachedJobs, nil
	} else if err != cache.ErrCacheMiss {
		log.Printf("Cache error for workflow %s jobs: %v", workflowID, err)
	}

	jobs, err := c.client.FetchJobs(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	ttl := 1 * time.Hour
	if jobsStopped(jobs) {
		ttl = 24 * time.Hour
	}
	if err := c.cache.Set(key, jobs, ttl); err != nil {
		log.Printf("Failed to cache workflow %s jobs: %v", workflowID, err)
	}

	return jobs, nil
}

func jobsStopped(jobs []Job) bool {
	for _, job := range jobs {
		if !jobStatus(job.Status).Terminal() {
			return false
		}
	}
	return true
}

// Close cleans up the client connections
func (c *CachedCircleCIClient) Close() error {
	return c.cache.Close()
}
