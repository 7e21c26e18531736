package metrics

import "github.com/reillywatson/doratracker/internal/pipeline"

const (
	oneWeek  = 7
	oneMonth = 30
)

var deploymentFrequencyLevels = mustClassifier([]Band{
	{UpTo: 1.0 / oneMonth, Level: LevelLow},
	{UpTo: 1.0 / oneWeek, Level: LevelMedium},
	{UpTo: 1.0, Level: LevelHigh},
}, LevelElite)

// DeploymentFrequency counts successful deployments in a window.
type DeploymentFrequency struct{}

// ComputeValue sums, over every configured pipeline, the executions whose
// deployment stage finished inside the window and succeeded.
func (DeploymentFrequency) ComputeValue(executions []pipeline.Execution, window pipeline.Window, roles pipeline.RoleStages) float64 {
	total := 0
	for pipelineID, stage := range roles {
		for _, execution := range executions {
			if execution.PipelineID != pipelineID {
				continue
			}
			if isValidDeployment(execution, stage, window) {
				total++
			}
		}
	}
	return float64(total)
}

// ComputeLevel classifies deployments per day.
func (DeploymentFrequency) ComputeLevel(value float64, windowDays int) (Level, error) {
	if err := checkWindowDays(windowDays); err != nil {
		return LevelInvalid, err
	}
	return deploymentFrequencyLevels.Classify(value / float64(windowDays)), nil
}

// isValidDeployment checks the in-range timestamp and the success status
// independently: a re-run stage may contribute the time from one instance and
// the success from another.
func isValidDeployment(execution pipeline.Execution, stage string, window pipeline.Window) bool {
	doneAt, ok := execution.StageDoneAt(stage)
	if !ok || !window.Contains(doneAt) {
		return false
	}
	return execution.StageSucceeded(stage)
}
