package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/reillywatson/doratracker/internal/metrics"
	"github.com/reillywatson/doratracker/internal/pipeline"
)

// Output formats
const (
	FormatText       = "text"
	FormatJSON       = "json"
	FormatPrometheus = "prometheus"
)

// Report is everything one run of the tracker produced.
type Report struct {
	RunID   string           `json:"run_id,omitempty"`
	Project string           `json:"project"`
	Window  pipeline.Window  `json:"window"`
	Days    int              `json:"days"`
	Results metrics.Response `json:"results"`
	Periods []metrics.Period `json:"periods,omitempty"`

	// Location is the timezone dates are printed in. Nil means UTC.
	Location *time.Location `json:"-"`
}

// Write renders r in the given format.
func Write(w io.Writer, format string, r Report) error {
	switch format {
	case FormatText, "":
		return WriteText(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatPrometheus:
		return WritePrometheus(w, r)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a human readable summary of r.
func WriteText(w io.Writer, r Report) error {
	p := &printer{w: w}

	p.printf("DORA metrics for %s\n", r.Project)
	p.printf("Window: %s to %s (%d days)\n", r.day(r.Window.StartTime()), r.day(r.Window.EndTime()), r.Days)
	if r.RunID != "" {
		p.printf("Run: %s\n", r.RunID)
	}

	p.println("\nSummary:")
	p.println("--------")
	p.results(r.Results)

	if len(r.Periods) > 0 {
		p.println("\nBreakdown:")
		p.println("----------")
		for _, period := range r.Periods {
			p.printf("%s to %s (%d days):\n", r.day(period.Window.StartTime()), r.day(period.Window.EndTime()), period.Days)
			p.results(period.Results)
			p.println()
		}
	}

	return p.err
}

// printer remembers the first write error so the report body reads like a
// sequence of prints.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) println(args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintln(p.w, args...)
}

func (p *printer) results(resp metrics.Response) {
	for _, kind := range sortedKinds(resp) {
		result := resp[kind]
		if !result.HasValue() {
			p.printf("  %s: No data\n", Title(kind))
			continue
		}
		p.printf("  %s: %s [%s]\n", Title(kind), FormatValue(kind, result.Value), result.Level)
	}
}

// Title is the display name of a metric kind.
func Title(kind metrics.Kind) string {
	switch kind {
	case metrics.KindDeploymentFrequency:
		return "Deployment Frequency"
	case metrics.KindLeadTime:
		return "Lead Time for Changes"
	case metrics.KindChangeFailureRate:
		return "Change Failure Rate"
	case metrics.KindTimeToRestore:
		return "Mean Time to Restore"
	}
	return string(kind)
}

// FormatValue renders a metric value in its natural unit.
func FormatValue(kind metrics.Kind, value float64) string {
	switch kind {
	case metrics.KindDeploymentFrequency:
		return fmt.Sprintf("%.0f deployments", value)
	case metrics.KindLeadTime, metrics.KindTimeToRestore:
		d := time.Duration(value * float64(time.Hour))
		return d.Truncate(time.Second).String()
	case metrics.KindChangeFailureRate:
		return fmt.Sprintf("%.1f%%", value)
	}
	return fmt.Sprintf("%g", value)
}

func sortedKinds(resp metrics.Response) []metrics.Kind {
	kinds := make([]metrics.Kind, 0, len(resp))
	for kind := range resp {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (r Report) day(t time.Time) string {
	if r.Location != nil {
		t = t.In(r.Location)
	}
	return t.Format("2006-01-02")
}
