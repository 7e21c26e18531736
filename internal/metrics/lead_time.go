package metrics

import (
	"math"
	"time"

	"github.com/reillywatson/doratracker/internal/pipeline"
)

const (
	hoursPerDay   = 24
	hoursPerWeek  = 7 * hoursPerDay
	hoursPerMonth = 30 * hoursPerDay
)

var leadTimeLevels = mustClassifier([]Band{
	{UpTo: hoursPerDay, Level: LevelElite},
	{UpTo: hoursPerWeek, Level: LevelHigh},
	{UpTo: hoursPerMonth, Level: LevelMedium},
}, LevelLow)

// LeadTime measures how long commits wait before reaching a successful
// deployment, in hours.
type LeadTime struct{}

// ComputeValue averages lead time per deployment, then across deployments.
// Each commit is attributed to the first successful deployment that carries
// it. The result is NaN when no deployment shipped a commit.
func (LeadTime) ComputeValue(executions []pipeline.Execution, window pipeline.Window, roles pipeline.RoleStages) float64 {
	var sum float64
	var count int

	for _, pipelineID := range pipelineIDs(roles) {
		deployments := deploymentsFor(executions, pipelineID, roles[pipelineID], window)
		sortByCompletion(deployments)

		shipped := make(map[string]bool)
		for _, d := range deployments {
			if !d.succeeded {
				continue
			}
			var total time.Duration
			var commits int
			for _, change := range d.execution.Changes {
				if shipped[change.CommitID] || change.Timestamp > d.doneAt {
					continue
				}
				shipped[change.CommitID] = true
				total += time.Duration(d.doneAt-change.Timestamp) * time.Millisecond
				commits++
			}
			if commits == 0 {
				continue
			}
			sum += total.Hours() / float64(commits)
			count++
		}
	}

	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

// ComputeLevel classifies the mean lead time; shorter is better.
func (LeadTime) ComputeLevel(value float64, windowDays int) (Level, error) {
	if err := checkWindowDays(windowDays); err != nil {
		return LevelInvalid, err
	}
	return leadTimeLevels.Classify(value), nil
}
