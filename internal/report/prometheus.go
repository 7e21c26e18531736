package report

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/reillywatson/doratracker/internal/metrics"
)

var allLevels = []metrics.Level{
	metrics.LevelInvalid,
	metrics.LevelLow,
	metrics.LevelMedium,
	metrics.LevelHigh,
	metrics.LevelElite,
}

// WritePrometheus writes the summary results in the Prometheus text exposition
// format, ready for a textfile collector. Levels are one-hot: the current level
// of each metric is 1, the others 0. Metrics without data get no value sample.
func WritePrometheus(w io.Writer, r Report) error {
	registry := prometheus.NewRegistry()

	value := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dora_metric_value",
		Help: "Value of a DORA metric over the reporting window.",
	}, []string{"project", "metric"})
	level := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dora_metric_level",
		Help: "Performance level of a DORA metric; 1 for the current level.",
	}, []string{"project", "metric", "level"})
	windowDays := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dora_window_days",
		Help: "Length in days of the reporting window.",
	}, []string{"project"})
	windowEnd := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dora_window_end_timestamp_seconds",
		Help: "End of the reporting window.",
	}, []string{"project"})

	registry.MustRegister(value, level, windowDays, windowEnd)

	windowDays.WithLabelValues(r.Project).Set(float64(r.Days))
	windowEnd.WithLabelValues(r.Project).Set(float64(r.Window.End) / 1000)

	for kind, result := range r.Results {
		if result.HasValue() {
			value.WithLabelValues(r.Project, string(kind)).Set(result.Value)
		}
		for _, l := range allLevels {
			v := 0.0
			if l == result.Level {
				v = 1
			}
			level.WithLabelValues(r.Project, string(kind), l.String()).Set(v)
		}
	}

	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return fmt.Errorf("failed to encode %s: %w", family.GetName(), err)
		}
	}
	return nil
}
