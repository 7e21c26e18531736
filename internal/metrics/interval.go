package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/reillywatson/doratracker/internal/pipeline"
)

// Unit is the sampling interval of a breakdown.
type Unit string

const (
	UnitFortnightly Unit = "fortnightly"
	UnitMonthly     Unit = "monthly"
)

// ParseUnit accepts "fortnightly" or "monthly" in any case.
func ParseUnit(s string) (Unit, error) {
	switch unit := Unit(strings.ToLower(strings.TrimSpace(s))); unit {
	case UnitFortnightly, UnitMonthly:
		return unit, nil
	}
	return "", fmt.Errorf("unknown sampling interval %q", s)
}

// SplitWindow cuts w into consecutive inclusive periods. Fortnightly periods
// are 14-day runs from the window start; monthly periods follow calendar
// months in loc. The last period is clipped to the window end.
func SplitWindow(w pipeline.Window, unit Unit, loc *time.Location) ([]pipeline.Window, error) {
	if w.End < w.Start {
		return nil, fmt.Errorf("window %s ends before it starts", w)
	}
	if loc == nil {
		loc = time.UTC
	}

	var next func(time.Time) time.Time
	switch unit {
	case UnitFortnightly:
		next = func(t time.Time) time.Time { return t.AddDate(0, 0, 14) }
	case UnitMonthly:
		next = func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
		}
	default:
		return nil, fmt.Errorf("unknown sampling interval %q", unit)
	}

	var windows []pipeline.Window
	start := time.UnixMilli(w.Start).In(loc)
	for {
		end := pipeline.Millis(next(start)) - 1
		if end >= w.End {
			windows = append(windows, pipeline.Window{Start: pipeline.Millis(start), End: w.End})
			return windows, nil
		}
		windows = append(windows, pipeline.Window{Start: pipeline.Millis(start), End: end})
		start = time.UnixMilli(end + 1).In(loc)
	}
}
