package metrics

import (
	"math"
	"time"

	"github.com/reillywatson/doratracker/internal/pipeline"
)

var timeToRestoreLevels = mustClassifier([]Band{
	{UpTo: 1, Level: LevelElite},
	{UpTo: hoursPerDay, Level: LevelHigh},
	{UpTo: hoursPerWeek, Level: LevelMedium},
}, LevelLow)

// TimeToRestore is the mean time, in hours, from a failed deployment to the
// next successful deployment of the same pipeline.
type TimeToRestore struct{}

// ComputeValue walks each pipeline's deployments in completion order. An
// outage opens at the first failure and closes at the next success; outages
// still open at the end of the window are ignored. Returns NaN when nothing
// was restored.
func (TimeToRestore) ComputeValue(executions []pipeline.Execution, window pipeline.Window, roles pipeline.RoleStages) float64 {
	var total time.Duration
	var restores int

	for _, pipelineID := range pipelineIDs(roles) {
		deployments := deploymentsFor(executions, pipelineID, roles[pipelineID], window)
		sortByCompletion(deployments)

		var failedSince *int64
		for _, d := range deployments {
			switch {
			case !d.succeeded && failedSince == nil:
				failedSince = pipeline.Ptr(d.doneAt)
			case d.succeeded && failedSince != nil:
				total += time.Duration(d.doneAt-*failedSince) * time.Millisecond
				restores++
				failedSince = nil
			}
		}
	}

	if restores == 0 {
		return math.NaN()
	}
	return total.Hours() / float64(restores)
}

// ComputeLevel classifies the mean restore time; shorter is better.
func (TimeToRestore) ComputeLevel(value float64, windowDays int) (Level, error) {
	if err := checkWindowDays(windowDays); err != nil {
		return LevelInvalid, err
	}
	return timeToRestoreLevels.Classify(value), nil
}
