package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v39/github"
)

func newTestClient(t *testing.T, handler http.Handler) *GitHubClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	baseURL, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatalf("Failed to parse server URL: %v", err)
	}
	client.BaseURL = baseURL
	return &GitHubClient{client: client}
}

func TestGitHubClient_FetchWorkflowRuns_FiltersAndStopsPaging(t *testing.T) {
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

	pages := map[string][]*github.WorkflowRun{
		"": {
			{ID: github.Int64(3), CreatedAt: ts(until.Add(time.Hour))},
			{ID: github.Int64(2), CreatedAt: ts(until.Add(-time.Hour))},
		},
		"2": {
			{ID: github.Int64(1), CreatedAt: ts(since.Add(time.Hour))},
			{ID: github.Int64(0), CreatedAt: ts(since.Add(-time.Hour))},
		},
	}
	requests := 0

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/repos/acme/api/actions/runs" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		page := r.URL.Query().Get("page")
		if page == "" {
			// Advertise more pages than we expect to read
			w.Header().Set("Link", `<`+"http://"+r.Host+r.URL.Path+`?page=2>; rel="next"`)
		} else {
			w.Header().Set("Link", `<`+"http://"+r.Host+r.URL.Path+`?page=3>; rel="next"`)
		}
		runs := pages[page]
		json.NewEncoder(w).Encode(github.WorkflowRuns{TotalCount: github.Int(len(runs)), WorkflowRuns: runs})
	}))

	runs, err := client.FetchWorkflowRuns(context.Background(), "acme", "api", since, until)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs inside the range, got %d", len(runs))
	}
	if runs[0].GetID() != 2 || runs[1].GetID() != 1 {
		t.Errorf("Unexpected runs %d, %d", runs[0].GetID(), runs[1].GetID())
	}
	if requests != 2 {
		t.Errorf("Expected paging to stop after the page reaching past since, got %d requests", requests)
	}
}

func TestGitHubClient_FetchWorkflowJobs(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/api/actions/runs/42/jobs" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if filter := r.URL.Query().Get("filter"); filter != "all" {
			t.Errorf("Expected filter=all to include earlier attempts, got %q", filter)
		}
		json.NewEncoder(w).Encode(github.Jobs{
			TotalCount: github.Int(1),
			Jobs:       []*github.WorkflowJob{{Name: github.String("deploy"), Status: github.String("completed")}},
		})
	}))

	jobs, err := client.FetchWorkflowJobs(context.Background(), "acme", "api", 42)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(jobs) != 1 || jobs[0].GetName() != "deploy" {
		t.Errorf("Unexpected jobs %v", jobs)
	}
}

func TestGitHubClient_FetchCommit_Error(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Not Found"}`))
	}))

	if _, err := client.FetchCommit(context.Background(), "acme", "api", "deadbeef"); err == nil {
		t.Errorf("Expected error for missing commit")
	}
}
