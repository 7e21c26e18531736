package circleci

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	circleAPIBaseURL = "https://circleci.com/api/v2"
	defaultTimeout   = 30 * time.Second
)

// CircleCIClientInterface defines the interface for CircleCI operations
type CircleCIClientInterface interface {
	FetchPipelines(ctx context.Context, projectSlug string, since time.Time) ([]Pipeline, error)
	FetchWorkflows(ctx context.Context, pipelineID string) ([]Workflow, error)
	FetchJobs(ctx context.Context, workflowID string) ([]Job, error)
}

// CircleCIClient handles CircleCI API operations
type CircleCIClient struct {
	httpClient *http.Client
	token      string
	baseURL    string
}

// NewCircleCIClient creates a new CircleCI client
func NewCircleCIClient(token string) *CircleCIClient {
	return &CircleCIClient{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		token:   token,
		baseURL: circleAPIBaseURL,
	}
}

// ProjectSlug builds the v2 project slug, e.g. gh/org/repo
func ProjectSlug(vcs, org, repo string) string {
	if vcs == "" {
		vcs = "gh"
	}
	return fmt.Sprintf("%s/%s/%s", vcs, org, repo)
}

// VerifyProjectAccess checks that the token can read the project
func (c *CircleCIClient) VerifyProjectAccess(ctx context.Context, projectSlug string) error {
	endpoint := fmt.Sprintf("%s/project/%s", c.baseURL, projectSlug)
	var project struct {
		Slug string `json:"slug"`
	}
	if err := c.get(ctx, endpoint, "", &project); err != nil {
		return fmt.Errorf("project %s: %w", projectSlug, err)
	}
	return nil
}

// FetchPipelines fetches the pipelines of a project created at or after since.
// Pipelines are returned newest first, so paging stops once a page reaches
// past since.
func (c *CircleCIClient) FetchPipelines(ctx context.Context, projectSlug string, since time.Time) ([]Pipeline, error) {
	endpoint := fmt.Sprintf("%s/project/%s/pipeline", c.baseURL, projectSlug)

	var allPipelines []Pipeline
	nextPageToken := ""

	for {
		var resp page[Pipeline]
		if err := c.get(ctx, endpoint, nextPageToken, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch pipelines for project %s: %w", projectSlug, err)
		}

		reachedSince := false
		for _, p := range resp.Items {
			if p.CreatedAt.Before(since) {
				reachedSince = true
				continue
			}
			allPipelines = append(allPipelines, p)
		}

		if resp.NextPageToken == "" || reachedSince {
			break
		}
		nextPageToken = resp.NextPageToken
	}

	return allPipelines, nil
}

// FetchWorkflows fetches every workflow of a pipeline
func (c *CircleCIClient) FetchWorkflows(ctx context.Context, pipelineID string) ([]Workflow, error) {
	endpoint := fmt.Sprintf("%s/pipeline/%s/workflow", c.baseURL, pipelineID)
	workflows, err := fetchAll[Workflow](ctx, c, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflows for pipeline %s: %w", pipelineID, err)
	}
	return workflows, nil
}

// FetchJobs fetches every job of a workflow
func (c *CircleCIClient) FetchJobs(ctx context.Context, workflowID string) ([]Job, error) {
	endpoint := fmt.Sprintf("%s/workflow/%s/job", c.baseURL, workflowID)
	jobs, err := fetchAll[Job](ctx, c, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jobs for workflow %s: %w", workflowID, err)
	}
	return jobs, nil
}

func fetchAll[T any](ctx context.Context, c *CircleCIClient, endpoint string) ([]T, error) {
	var all []T
	nextPageToken := ""

	for {
		var resp page[T]
		if err := c.get(ctx, endpoint, nextPageToken, &resp); err != nil {
			return nil, err
		}

		all = append(all, resp.Items...)

		if resp.NextPageToken == "" {
			break
		}
		nextPageToken = resp.NextPageToken
	}

	return all, nil
}

// get fetches a single page of a list endpoint into out
func (c *CircleCIClient) get(ctx context.Context, endpoint, pageToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Add authorization header
	req.Header.Set("Circle-Token", c.token)
	req.Header.Set("Accept", "application/json")

	// Add pagination if provided
	if pageToken != "" {
		q := url.Values{}
		q.Add("page-token", pageToken)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("API returned status 404 for URL %s: not found or token doesn't have access", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d for URL %s: %s", resp.StatusCode, endpoint, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Close cleans up the client (no-op for HTTP client)
func (c *CircleCIClient) Close() error {
	return nil
}
