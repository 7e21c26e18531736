package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v39/github"
	"golang.org/x/oauth2"
)

// GitHubClientInterface defines the interface for GitHub operations
type GitHubClientInterface interface {
	FetchWorkflowRuns(ctx context.Context, owner, repo string, since, until time.Time) ([]*github.WorkflowRun, error)
	FetchWorkflowJobs(ctx context.Context, owner, repo string, runID int64) ([]*github.WorkflowJob, error)
	FetchCommit(ctx context.Context, owner, repo, sha string) (*github.RepositoryCommit, error)
}

type GitHubClient struct {
	client *github.Client
}

func NewGitHubClient(token string) *GitHubClient {
	return &GitHubClient{
		client: github.NewClient(oauthClient(token)),
	}
}

// NewEnterpriseGitHubClient creates a client for a GitHub Enterprise server
func NewEnterpriseGitHubClient(baseURL, token string) (*GitHubClient, error) {
	client, err := github.NewEnterpriseClient(baseURL, baseURL, oauthClient(token))
	if err != nil {
		return nil, fmt.Errorf("failed to create enterprise client for %s: %w", baseURL, err)
	}
	return &GitHubClient{client: client}, nil
}

func oauthClient(token string) *http.Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return oauth2.NewClient(context.Background(), ts)
}

// FetchWorkflowRuns lists the workflow runs created between since and until.
// Runs come back newest first, so paging stops at the first page that reaches
// past since.
func (c *GitHubClient) FetchWorkflowRuns(ctx context.Context, owner, repo string, since, until time.Time) ([]*github.WorkflowRun, error) {
	var allRuns []*github.WorkflowRun
	opts := &github.ListWorkflowRunsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		runs, resp, err := c.client.Actions.ListRepositoryWorkflowRuns(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch workflow runs: %w", err)
		}

		for _, run := range runs.WorkflowRuns {
			createdAt := run.GetCreatedAt().Time
			if !createdAt.Before(since) && !createdAt.After(until) {
				allRuns = append(allRuns, run)
			}
		}

		if resp.NextPage == 0 || len(runs.WorkflowRuns) == 0 {
			break
		}

		lastRun := runs.WorkflowRuns[len(runs.WorkflowRuns)-1]
		if lastRun.GetCreatedAt().Before(since) {
			break
		}
		opts.Page = resp.NextPage
	}

	return allRuns, nil
}

// FetchWorkflowJobs lists every job of a workflow run, including jobs from
// earlier attempts of a re-run
func (c *GitHubClient) FetchWorkflowJobs(ctx context.Context, owner, repo string, runID int64) ([]*github.WorkflowJob, error) {
	var allJobs []*github.WorkflowJob
	opts := &github.ListWorkflowJobsOptions{
		Filter:      "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		jobs, resp, err := c.client.Actions.ListWorkflowJobs(ctx, owner, repo, runID, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch jobs for run %d: %w", runID, err)
		}

		allJobs = append(allJobs, jobs.Jobs...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allJobs, nil
}

// FetchCommit fetches a single commit
func (c *GitHubClient) FetchCommit(ctx context.Context, owner, repo, sha string) (*github.RepositoryCommit, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	commit, _, err := c.client.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch commit %s: %w", sha, err)
	}

	return commit, nil
}
