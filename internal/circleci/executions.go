package circleci

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/reillywatson/doratracker/internal/pipeline"
	"github.com/reillywatson/doratracker/internal/source"
)

var _ source.Source = (*WorkflowSource)(nil)

// WorkflowSource turns CircleCI workflows into pipeline executions. A workflow
// name is a pipeline and each job is a stage.
type WorkflowSource struct {
	client      CircleCIClientInterface
	projectSlug string
}

// NewWorkflowSource reads the workflows of projectSlug
func NewWorkflowSource(client CircleCIClientInterface, projectSlug string) *WorkflowSource {
	return &WorkflowSource{client: client, projectSlug: projectSlug}
}

// FetchExecutions walks pipelines, then workflows, then jobs
func (s *WorkflowSource) FetchExecutions(ctx context.Context, since, until time.Time) ([]pipeline.Execution, error) {
	pipelines, err := s.client.FetchPipelines(ctx, s.projectSlug, since)
	if err != nil {
		return nil, err
	}

	var executions []pipeline.Execution
	for _, p := range pipelines {
		if p.CreatedAt.After(until) {
			continue
		}

		workflows, err := s.client.FetchWorkflows(ctx, p.ID)
		if err != nil {
			log.Printf("Error fetching workflows for pipeline %d: %v", p.Number, err)
			continue
		}

		for _, workflow := range workflows {
			jobs, err := s.client.FetchJobs(ctx, workflow.ID)
			if err != nil {
				log.Printf("Error fetching jobs for workflow %s: %v", workflow.ID, err)
				continue
			}
			executions = append(executions, ExecutionFromWorkflow(p, workflow, jobs))
		}
	}

	return executions, nil
}

// Close is a no-op for the HTTP client
func (s *WorkflowSource) Close() error {
	return nil
}

// ExecutionFromWorkflow converts a workflow and its jobs to an execution.
// CircleCI does not report commit times, so no changes are attached.
func ExecutionFromWorkflow(p Pipeline, workflow Workflow, jobs []Job) pipeline.Execution {
	execution := pipeline.Execution{
		PipelineID: workflow.Name,
		Number:     p.Number,
		URL:        fmt.Sprintf("https://app.circleci.com/pipelines/workflows/%s", workflow.ID),
	}

	for _, job := range jobs {
		stage := pipeline.Stage{
			Name:   job.Name,
			Status: jobStatus(job.Status),
		}
		if job.StartedAt != nil {
			stage.StartedAt = pipeline.Millis(*job.StartedAt)
		}
		if stage.Status.Terminal() && job.StoppedAt != nil {
			stage.CompletedAt = pipeline.Ptr(pipeline.Millis(*job.StoppedAt))
		}
		execution.Stages = append(execution.Stages, stage)
	}

	return execution
}

func jobStatus(status string) pipeline.Status {
	switch status {
	case "success":
		return pipeline.StatusSuccess
	case "failed", "infrastructure_fail", "timedout":
		return pipeline.StatusFailed
	case "running", "queued", "not_running", "blocked", "on_hold":
		return pipeline.StatusInProgress
	default:
		return pipeline.StatusOther
	}
}
