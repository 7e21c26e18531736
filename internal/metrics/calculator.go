package metrics

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/reillywatson/doratracker/internal/pipeline"
)

// ErrUnknownKind is returned when no calculator is registered for a kind.
var ErrUnknownKind = errors.New("unknown metric kind")

// Kind identifies a metric. It is stable and used as a registry and cache key.
type Kind string

const (
	KindDeploymentFrequency Kind = "deployment_frequency"
	KindLeadTime            Kind = "lead_time_for_changes"
	KindChangeFailureRate   Kind = "change_failure_rate"
	KindTimeToRestore       Kind = "mean_time_to_restore"
)

// ParseKind accepts a kind identifier, ignoring case and surrounding space.
func ParseKind(s string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case KindDeploymentFrequency, KindLeadTime, KindChangeFailureRate, KindTimeToRestore:
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Calculator computes one metric from a snapshot of executions. Implementations
// must be pure: no I/O, no shared mutable state, safe for concurrent use.
type Calculator interface {
	// ComputeValue aggregates the executions in the window. Pipelines without
	// an entry in roles contribute nothing.
	ComputeValue(executions []pipeline.Execution, window pipeline.Window, roles pipeline.RoleStages) float64

	// ComputeLevel classifies a value computed over a window of windowDays.
	ComputeLevel(value float64, windowDays int) (Level, error)
}

// Registry maps metric kinds to calculators.
type Registry struct {
	mu          sync.RWMutex
	calculators map[Kind]Calculator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{calculators: make(map[Kind]Calculator)}
}

// DefaultRegistry returns a registry holding the four DORA metrics.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindDeploymentFrequency, DeploymentFrequency{})
	r.Register(KindLeadTime, LeadTime{})
	r.Register(KindChangeFailureRate, ChangeFailureRate{})
	r.Register(KindTimeToRestore, TimeToRestore{})
	return r
}

// Register adds or replaces the calculator for kind.
func (r *Registry) Register(kind Kind, c Calculator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculators[kind] = c
}

// Lookup returns the calculator for kind.
func (r *Registry) Lookup(kind Kind) (Calculator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calculators[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return c, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.calculators))
	for kind := range r.calculators {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

// pipelineIDs returns the configured pipelines in a fixed order so float
// accumulation doesn't depend on map iteration.
func pipelineIDs(roles pipeline.RoleStages) []string {
	ids := make([]string, 0, len(roles))
	for id := range roles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// deployment is a qualifying role-stage completion of one execution.
type deployment struct {
	execution *pipeline.Execution
	doneAt    int64
	succeeded bool
}

// deploymentsFor collects the executions of pipelineID whose role stage
// finished inside the window, in input order. Only executions whose role stage
// reached SUCCESS or FAILED are returned.
func deploymentsFor(executions []pipeline.Execution, pipelineID, stage string, window pipeline.Window) []deployment {
	var result []deployment
	for i := range executions {
		execution := &executions[i]
		if execution.PipelineID != pipelineID {
			continue
		}
		doneAt, ok := execution.StageDoneAt(stage)
		if !ok || !window.Contains(doneAt) {
			continue
		}
		succeeded := execution.StageSucceeded(stage)
		if !succeeded && !execution.StageFailed(stage) {
			continue
		}
		result = append(result, deployment{execution: execution, doneAt: doneAt, succeeded: succeeded})
	}
	return result
}

// sortByCompletion orders deployments by completion time, breaking ties by
// execution number so the order doesn't depend on the input order.
func sortByCompletion(deployments []deployment) {
	slices.SortStableFunc(deployments, func(a, b deployment) int {
		if a.doneAt != b.doneAt {
			if a.doneAt < b.doneAt {
				return -1
			}
			return 1
		}
		switch {
		case a.execution.Number < b.execution.Number:
			return -1
		case a.execution.Number > b.execution.Number:
			return 1
		}
		return 0
	})
}
