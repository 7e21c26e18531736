package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reillywatson/doratracker/internal/pipeline"
)

// Request is the input shared by every calculator in one calculation.
type Request struct {
	Executions []pipeline.Execution
	Window     pipeline.Window
	// Days is the window length used for classification. It is supplied by the
	// caller rather than derived from Window.
	Days  int
	Roles pipeline.RoleStages
}

// Result is one computed metric.
type Result struct {
	Value float64
	Level Level
}

// HasValue reports whether there was data to compute the metric from.
func (r Result) HasValue() bool {
	return !math.IsNaN(r.Value)
}

type resultJSON struct {
	Value *float64 `json:"value"`
	Level Level    `json:"level"`
}

// MarshalJSON encodes a missing (NaN) value as null.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Level: r.Level}
	if r.HasValue() {
		v := r.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a null value back to NaN.
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Level = in.Level
	r.Value = math.NaN()
	if in.Value != nil {
		r.Value = *in.Value
	}
	return nil
}

// Response holds the results of one calculation keyed by metric kind.
type Response map[Kind]Result

// Dispatcher routes a request to the calculators of the requested kinds.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Kinds returns every kind the dispatcher can compute.
func (d *Dispatcher) Kinds() []Kind {
	return d.registry.Kinds()
}

// Calculate computes each requested kind concurrently. If no kinds are given,
// every registered kind is computed. The first calculator error is returned.
func (d *Dispatcher) Calculate(ctx context.Context, req Request, kinds ...Kind) (Response, error) {
	if len(kinds) == 0 {
		kinds = d.registry.Kinds()
	}

	calculators := make(map[Kind]Calculator, len(kinds))
	for _, kind := range kinds {
		c, err := d.registry.Lookup(kind)
		if err != nil {
			return nil, err
		}
		calculators[kind] = c
	}

	var mu sync.Mutex
	resp := make(Response, len(calculators))

	g, ctx := errgroup.WithContext(ctx)
	for kind, c := range calculators {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			value := c.ComputeValue(req.Executions, req.Window, req.Roles)
			level, err := c.ComputeLevel(value, req.Days)
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			mu.Lock()
			resp[kind] = Result{Value: value, Level: level}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return resp, nil
}

// Period is the result of one sampling interval of a breakdown.
type Period struct {
	Window  pipeline.Window `json:"window"`
	Days    int             `json:"days"`
	Results Response        `json:"results"`
}

// Breakdown splits the request window by unit and calculates every period
// separately, each classified against its own length in days.
func (d *Dispatcher) Breakdown(ctx context.Context, req Request, unit Unit, loc *time.Location, kinds ...Kind) ([]Period, error) {
	windows, err := SplitWindow(req.Window, unit, loc)
	if err != nil {
		return nil, err
	}

	periods := make([]Period, 0, len(windows))
	for _, w := range windows {
		periodReq := req
		periodReq.Window = w
		periodReq.Days = w.Days(loc)

		resp, err := d.Calculate(ctx, periodReq, kinds...)
		if err != nil {
			return nil, fmt.Errorf("period %s: %w", w, err)
		}
		periods = append(periods, Period{Window: w, Days: periodReq.Days, Results: resp})
	}
	return periods, nil
}
