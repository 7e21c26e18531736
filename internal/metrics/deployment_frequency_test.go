package metrics

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/reillywatson/doratracker/internal/pipeline"
)

func deployExecution(pipelineID string, number int64, stages ...pipeline.Stage) pipeline.Execution {
	return pipeline.Execution{PipelineID: pipelineID, Number: number, Stages: stages}
}

func stage(name string, status pipeline.Status, completedAt int64) pipeline.Stage {
	return pipeline.Stage{Name: name, Status: status, CompletedAt: pipeline.Ptr(completedAt)}
}

func TestDeploymentFrequency_ComputeValue_Scenario(t *testing.T) {
	executions := []pipeline.Execution{
		deployExecution("p1", 1, stage("deploy", pipeline.StatusSuccess, 50)),
		deployExecution("p1", 2, stage("deploy", pipeline.StatusSuccess, 150)),
		deployExecution("p1", 3, stage("deploy", pipeline.StatusSuccess, 300)),
	}
	roles := pipeline.RoleStages{"p1": "deploy"}

	got := DeploymentFrequency{}.ComputeValue(executions, pipeline.Window{Start: 100, End: 200}, roles)
	if got != 1 {
		t.Errorf("Expected 1 deployment, got %v", got)
	}
}

func TestDeploymentFrequency_ComputeValue_EmptyExecutions(t *testing.T) {
	roleMaps := []pipeline.RoleStages{
		nil,
		{},
		{"p1": "deploy", "p2": "release"},
	}
	for _, roles := range roleMaps {
		got := DeploymentFrequency{}.ComputeValue(nil, pipeline.Window{Start: 0, End: 1000}, roles)
		if got != 0 {
			t.Errorf("Expected 0 for empty executions with roles %v, got %v", roles, got)
		}
	}
}

func TestDeploymentFrequency_ComputeValue_InclusiveBoundaries(t *testing.T) {
	executions := []pipeline.Execution{
		deployExecution("p1", 1, stage("deploy", pipeline.StatusSuccess, 100)),
		deployExecution("p1", 2, stage("deploy", pipeline.StatusSuccess, 200)),
		deployExecution("p1", 3, stage("deploy", pipeline.StatusSuccess, 99)),
		deployExecution("p1", 4, stage("deploy", pipeline.StatusSuccess, 201)),
	}

	got := DeploymentFrequency{}.ComputeValue(executions, pipeline.Window{Start: 100, End: 200}, pipeline.RoleStages{"p1": "deploy"})
	if got != 2 {
		t.Errorf("Expected both boundary deployments to count, got %v", got)
	}
}

func TestDeploymentFrequency_ComputeValue_Filtering(t *testing.T) {
	window := pipeline.Window{Start: 100, End: 200}

	tests := []struct {
		name      string
		execution pipeline.Execution
		want      float64
	}{
		{
			name:      "failed deploy in range",
			execution: deployExecution("p1", 1, stage("deploy", pipeline.StatusFailed, 150)),
			want:      0,
		},
		{
			name:      "unfinished deploy",
			execution: deployExecution("p1", 1, pipeline.Stage{Name: "deploy", Status: pipeline.StatusSuccess}),
			want:      0,
		},
		{
			name:      "stage name is case sensitive",
			execution: deployExecution("p1", 1, stage("Deploy", pipeline.StatusSuccess, 150)),
			want:      0,
		},
		{
			name:      "pipeline missing from role map",
			execution: deployExecution("p9", 1, stage("deploy", pipeline.StatusSuccess, 150)),
			want:      0,
		},
		{
			name: "other stages don't matter",
			execution: deployExecution("p1", 1,
				stage("build", pipeline.StatusFailed, 120),
				stage("deploy", pipeline.StatusSuccess, 150)),
			want: 1,
		},
		{
			// The in-range time comes from the first (failed) instance and the
			// success from the re-run.
			name: "re-run pairs first timestamp with any success",
			execution: deployExecution("p1", 1,
				stage("deploy", pipeline.StatusFailed, 150),
				stage("deploy", pipeline.StatusSuccess, 500)),
			want: 1,
		},
		{
			name: "re-run only the later instance in range",
			execution: deployExecution("p1", 1,
				stage("deploy", pipeline.StatusSuccess, 50),
				stage("deploy", pipeline.StatusSuccess, 150)),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeploymentFrequency{}.ComputeValue([]pipeline.Execution{tt.execution}, window, pipeline.RoleStages{"p1": "deploy"})
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDeploymentFrequency_ComputeValue_SumsAcrossPipelines(t *testing.T) {
	executions := []pipeline.Execution{
		deployExecution("api", 1, stage("deploy-prod", pipeline.StatusSuccess, 110)),
		deployExecution("api", 2, stage("deploy-prod", pipeline.StatusSuccess, 120)),
		deployExecution("web", 1, stage("release", pipeline.StatusSuccess, 130)),
		// web uses "release", so its deploy-prod stage is ignored
		deployExecution("web", 2, stage("deploy-prod", pipeline.StatusSuccess, 140)),
		deployExecution("worker", 1, stage("deploy-prod", pipeline.StatusSuccess, 150)),
	}
	roles := pipeline.RoleStages{"api": "deploy-prod", "web": "release"}

	got := DeploymentFrequency{}.ComputeValue(executions, pipeline.Window{Start: 100, End: 200}, roles)
	if got != 3 {
		t.Errorf("Expected 3 deployments, got %v", got)
	}
}

func TestDeploymentFrequency_ComputeValue_OrderIndependent(t *testing.T) {
	var executions []pipeline.Execution
	for i := int64(0); i < 40; i++ {
		status := pipeline.StatusSuccess
		if i%3 == 0 {
			status = pipeline.StatusFailed
		}
		pipelineID := "p1"
		if i%2 == 0 {
			pipelineID = "p2"
		}
		executions = append(executions, deployExecution(pipelineID, i, stage("deploy", status, i*10)))
	}
	roles := pipeline.RoleStages{"p1": "deploy", "p2": "deploy"}
	window := pipeline.Window{Start: 50, End: 300}

	want := DeploymentFrequency{}.ComputeValue(executions, window, roles)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]pipeline.Execution(nil), executions...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		if got := (DeploymentFrequency{}).ComputeValue(shuffled, window, roles); got != want {
			t.Fatalf("Expected %v for shuffled input, got %v", want, got)
		}
	}
}

func TestDeploymentFrequency_ComputeLevel(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		days  int
		want  Level
	}{
		{"no deployments", 0, 30, LevelLow},
		{"monthly is low", 1, 30, LevelLow},
		{"just above monthly", 2, 30, LevelMedium},
		{"weekly is medium", 1, 7, LevelMedium},
		{"just above weekly", 5, 30, LevelHigh},
		{"daily is high", 30, 30, LevelHigh},
		{"more than daily", 31, 30, LevelElite},
		{"twice a day", 10, 5, LevelElite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeploymentFrequency{}.ComputeLevel(tt.value, tt.days)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ComputeLevel(%v, %d) = %v, want %v", tt.value, tt.days, got, tt.want)
			}
		})
	}
}

func TestDeploymentFrequency_ComputeLevel_InvalidDays(t *testing.T) {
	for _, days := range []int{0, -1} {
		_, err := DeploymentFrequency{}.ComputeLevel(5, days)
		if !errors.Is(err, ErrInvalidWindowDays) {
			t.Errorf("Expected ErrInvalidWindowDays for %d days, got %v", days, err)
		}
	}
}

func TestDeploymentFrequency_ComputeLevel_Monotonic(t *testing.T) {
	for _, days := range []int{1, 7, 14, 30, 90, 365} {
		previous := LevelInvalid
		for value := 0; value <= 3*days; value++ {
			level, err := DeploymentFrequency{}.ComputeLevel(float64(value), days)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if level < previous {
				t.Fatalf("Level decreased from %v to %v at value %d over %d days", previous, level, value, days)
			}
			previous = level
		}
	}
}
