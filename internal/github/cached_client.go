package github

import (
	"context"
	"log"
	"time"

	"github.com/google/go-github/v39/github"
	"github.com/reillywatson/doratracker/internal/cache"
)

// CachedGitHubClient wraps GitHubClient with caching capabilities
type CachedGitHubClient struct {
	client GitHubClientInterface
	cache  cache.Cache
	kb     *cache.CacheKeyBuilder
}

// NewCachedGitHubClient wraps client with a cache
func NewCachedGitHubClient(client GitHubClientInterface, cacheImpl cache.Cache) *CachedGitHubClient {
	return &CachedGitHubClient{
		client: client,
		cache:  cacheImpl,
		kb:     cache.NewCacheKeyBuilder("github"),
	}
}

// FetchWorkflowRuns always goes to the API since run lists change constantly;
// the per-run jobs are what's worth caching
func (c *CachedGitHubClient) FetchWorkflowRuns(ctx context.Context, owner, repo string, since, until time.Time) ([]*github.WorkflowRun, error) {
	return c.client.FetchWorkflowRuns(ctx, owner, repo, since, until)
}

// FetchWorkflowJobs fetches the jobs of a run with caching
func (c *CachedGitHubClient) FetchWorkflowJobs(ctx context.Context, owner, repo string, runID int64) ([]*github.WorkflowJob, error) {
	cacheKey := c.kb.WorkflowJobsKey(owner, repo, runID)
	var cachedJobs []*github.WorkflowJob
	if err := c.cache.Get(cacheKey, &cachedJobs); err == nil {
		return cachedJobs, nil
	} else if err != cache.ErrCacheMiss {
		log.Printf("Cache error for run %d jobs: %v", runID, err)
	}

	jobs, err := c.client.FetchWorkflowJobs(ctx, owner, repo, runID)
	if err != nil {
		return nil, err
	}

	// Jobs of a finished run never change; running ones get a short TTL
	ttl := 1 * time.Hour
	if jobsCompleted(jobs) {
		ttl = 24 * time.Hour
	}
	if err := c.cache.Set(cacheKey, jobs, ttl); err != nil {
		log.Printf("Failed to cache run %d jobs: %v", runID, err)
	}

	return jobs, nil
}

// FetchCommit fetches a commit with caching. Commits are immutable.
func (c *CachedGitHubClient) FetchCommit(ctx context.Context, owner, repo, sha string) (*github.RepositoryCommit, error) {
	cacheKey := c.kb.CommitKey(owner, repo, sha)
	var cachedCommit *github.RepositoryCommit
	if err := c.cache.Get(cacheKey, &cachedCommit); err == nil && cachedCommit != nil {
		return cachedCommit, nil
	} else if err != nil && err != cache.ErrCacheMiss {
		log.Printf("Cache error for commit %s: %v", sha, err)
	}

	commit, err := c.client.FetchCommit(ctx, owner, repo, sha)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(cacheKey, commit, 7*24*time.Hour); err != nil {
		log.Printf("Failed to cache commit %s: %v", sha, err)
	}

	return commit, nil
}

func jobsCompleted(jobs []*github.WorkflowJob) bool {
	for _, job := range jobs {
		if job.GetStatus() != "completed" {
			return false
		}
	}
	return true
}

// Close cleans up the client
func (c *CachedGitHubClient) Close() error {
	return c.cache.Close()
}
