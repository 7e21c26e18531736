package metrics

import (
	"math"

	"github.com/reillywatson/doratracker/internal/pipeline"
)

var changeFailureRateLevels = mustClassifier([]Band{
	{UpTo: 15, Level: LevelElite},
	{UpTo: 30, Level: LevelHigh},
	{UpTo: 45, Level: LevelMedium},
}, LevelLow)

// ChangeFailureRate is the percentage of deployments that failed.
type ChangeFailureRate struct{}

// ComputeValue returns failed deployments as a percentage of all finished
// deployments in the window, or NaN when there were none.
func (ChangeFailureRate) ComputeValue(executions []pipeline.Execution, window pipeline.Window, roles pipeline.RoleStages) float64 {
	var attempts, failures int
	for pipelineID, stage := range roles {
		for _, d := range deploymentsFor(executions, pipelineID, stage, window) {
			attempts++
			if !d.succeeded {
				failures++
			}
		}
	}

	if attempts == 0 {
		return math.NaN()
	}
	return float64(failures) / float64(attempts) * 100
}

// ComputeLevel classifies the failure percentage; lower is better.
func (ChangeFailureRate) ComputeLevel(value float64, windowDays int) (Level, error) {
	if err := checkWindowDays(windowDays); err != nil {
		return LevelInvalid, err
	}
	return changeFailureRateLevels.Classify(value), nil
}
