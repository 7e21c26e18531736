package pipeline

import "time"

// Status is the terminal (or current) state of a stage.
type Status string

const (
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusOther      Status = "OTHER"
)

// Terminal reports whether the stage has finished running.
func (s Status) Terminal() bool {
	return s != StatusInProgress
}

// Stage is one named step inside an execution.
type Stage struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	StartedAt int64  `json:"started_at,omitempty"`
	// CompletedAt is nil while the stage is still running
	CompletedAt *int64 `json:"completed_at,omitempty"`
}

// Change is a commit shipped by an execution.
type Change struct {
	CommitID  string `json:"commit_id"`
	Timestamp int64  `json:"timestamp"`
}

// Execution is one recorded run of a pipeline. Stages are kept in the order
// the CI system reported them.
type Execution struct {
	PipelineID string   `json:"pipeline_id"`
	Number     int64    `json:"number,omitempty"`
	URL        string   `json:"url,omitempty"`
	Stages     []Stage  `json:"stages"`
	Changes    []Change `json:"changes,omitempty"`
}

// RoleStages maps a pipeline ID to the stage name that marks the metric event
// (usually the deployment stage) for that pipeline.
type RoleStages map[string]string

// FirstStage returns the first stage with exactly the given name.
func (e Execution) FirstStage(name string) (Stage, bool) {
	for _, stage := range e.Stages {
		if stage.Name == name {
			return stage, true
		}
	}
	return Stage{}, false
}

// StageDoneAt returns the completion time of the first stage with the given
// name. It returns false when no such stage exists or it hasn't finished.
func (e Execution) StageDoneAt(name string) (int64, bool) {
	stage, ok := e.FirstStage(name)
	if !ok || stage.CompletedAt == nil {
		return 0, false
	}
	return *stage.CompletedAt, true
}

// StageSucceeded reports whether any stage with the given name succeeded.
// This is deliberately not tied to the stage instance StageDoneAt reads, so a
// re-run stage can pair one instance's time with another's status.
func (e Execution) StageSucceeded(name string) bool {
	return e.stageHasStatus(name, StatusSuccess)
}

// StageFailed reports whether any stage with the given name failed.
func (e Execution) StageFailed(name string) bool {
	return e.stageHasStatus(name, StatusFailed)
}

func (e Execution) stageHasStatus(name string, status Status) bool {
	for _, stage := range e.Stages {
		if stage.Name == name && stage.Status == status {
			return true
		}
	}
	return false
}

// Millis converts t to epoch milliseconds, the unit used by all timestamps in
// this package.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Ptr returns a pointer to ts, for building stages with a completion time.
func Ptr(ts int64) *int64 {
	return &ts
}
