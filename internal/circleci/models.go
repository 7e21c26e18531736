package circleci

import "time"

// Pipeline is a CircleCI pipeline (one trigger, e.g. a push)
type Pipeline struct {
	ID        string    `json:"id"`
	Number    int64     `json:"number"`
	CreatedAt time.Time `json:"created_at"`
	VCS       *VCS      `json:"vcs,omitempty"`
}

// VCS describes the commit a pipeline was triggered for
type VCS struct {
	Revision string  `json:"revision"`
	Branch   string  `json:"branch,omitempty"`
	Commit   *Commit `json:"commit,omitempty"`
}

// Commit is the commit metadata CircleCI attaches to some pipelines
type Commit struct {
	Subject string `json:"subject"`
}

// Workflow is one workflow inside a pipeline
type Workflow struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	PipelineNumber int64      `json:"pipeline_number"`
	CreatedAt      time.Time  `json:"created_at"`
	StoppedAt      *time.Time `json:"stopped_at,omitempty"`
}

// Job is one job inside a workflow
type Job struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	JobNumber int64      `json:"job_number,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

// page is the envelope of every paginated CircleCI v2 list response
type page[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"next_page_token,omitempty"`
}
