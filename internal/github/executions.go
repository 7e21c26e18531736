package github

import (
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/google/go-github/v39/github"
	"github.com/reillywatson/doratracker/internal/pipeline"
	"github.com/reillywatson/doratracker/internal/source"
)

var _ source.Source = (*ActionsSource)(nil)

// ActionsSource turns GitHub Actions workflow runs into pipeline executions.
// Each workflow is a pipeline and each job is a stage.
type ActionsSource struct {
	client    GitHubClientInterface
	owner     string
	repo      string
	workflows []string
}

// NewActionsSource reads runs of owner/repo. If workflows is non-empty, only
// runs of those workflows are converted.
func NewActionsSource(client GitHubClientInterface, owner, repo string, workflows []string) *ActionsSource {
	return &ActionsSource{
		client:    client,
		owner:     owner,
		repo:      repo,
		workflows: workflows,
	}
}

// FetchExecutions fetches the runs created in the range and their jobs
func (s *ActionsSource) FetchExecutions(ctx context.Context, since, until time.Time) ([]pipeline.Execution, error) {
	runs, err := s.client.FetchWorkflowRuns(ctx, s.owner, s.repo, since, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for %s/%s: %w", s.owner, s.repo, err)
	}

	var executions []pipeline.Execution
	for _, run := range runs {
		if len(s.workflows) > 0 && !slices.Contains(s.workflows, run.GetName()) {
			continue
		}

		jobs, err := s.client.FetchWorkflowJobs(ctx, s.owner, s.repo, run.GetID())
		if err != nil {
			// One broken run shouldn't hide the rest of the history
			log.Printf("Error fetching jobs for run %d: %v", run.GetID(), err)
			continue
		}

		executions = append(executions, ExecutionFromRun(run, jobs))
	}

	return executions, nil
}

// Close is a no-op; the GitHub client holds no connections of its own
func (s *ActionsSource) Close() error {
	return nil
}

// ExecutionFromRun converts a workflow run and its jobs into an execution.
// The run's head commit becomes the execution's only change.
func ExecutionFromRun(run *github.WorkflowRun, jobs []*github.WorkflowJob) pipeline.Execution {
	execution := pipeline.Execution{
		PipelineID: run.GetName(),
		Number:     int64(run.GetRunNumber()),
		URL:        run.GetHTMLURL(),
	}

	for _, job := range jobs {
		execution.Stages = append(execution.Stages, stageFromJob(job))
	}

	if sha := run.GetHeadSHA(); sha != "" {
		if committedAt := run.GetHeadCommit().GetTimestamp(); !committedAt.IsZero() {
			execution.Changes = append(execution.Changes, pipeline.Change{
				CommitID:  sha,
				Timestamp: pipeline.Millis(committedAt.Time),
			})
		}
	}

	return execution
}

func stageFromJob(job *github.WorkflowJob) pipeline.Stage {
	stage := pipeline.Stage{
		Name:   job.GetName(),
		Status: jobStatus(job),
	}
	if startedAt := job.GetStartedAt(); !startedAt.IsZero() {
		stage.StartedAt = pipeline.Millis(startedAt.Time)
	}
	if job.GetStatus() == "completed" {
		if completedAt := job.GetCompletedAt(); !completedAt.IsZero() {
			stage.CompletedAt = pipeline.Ptr(pipeline.Millis(completedAt.Time))
		}
	}
	return stage
}

func jobStatus(job *github.WorkflowJob) pipeline.Status {
	if job.GetStatus() != "completed" {
		return pipeline.StatusInProgress
	}
	switch job.GetConclusion() {
	case "success":
		return pipeline.StatusSuccess
	case "failure", "timed_out", "startup_failure":
		return pipeline.StatusFailed
	default:
		return pipeline.StatusOther
	}
}
