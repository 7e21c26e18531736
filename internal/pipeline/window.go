package pipeline

import (
	"fmt"
	"time"
)

const secondsPerDay = int64(24 * time.Hour / time.Second)

// Window is a time range in epoch milliseconds, inclusive on both ends.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// NewWindow builds a window from two instants.
func NewWindow(from, to time.Time) Window {
	return Window{Start: Millis(from), End: Millis(to)}
}

// DayWindow returns the window covering the calendar days from startDay to
// endDay in loc, from the first millisecond of startDay to the last
// millisecond of endDay.
func DayWindow(startDay, endDay time.Time, loc *time.Location) Window {
	start := time.Date(startDay.Year(), startDay.Month(), startDay.Day(), 0, 0, 0, 0, loc)
	end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return Window{Start: Millis(start), End: Millis(end) - 1}
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts int64) bool {
	return ts >= w.Start && ts <= w.End
}

// Days returns the number of calendar days in loc the window touches, so a
// day stays one day across DST changes. A nil loc means UTC. An inverted
// window spans zero days.
func (w Window) Days(loc *time.Location) int {
	if w.End < w.Start {
		return 0
	}
	if loc == nil {
		loc = time.UTC
	}
	return int(civilDay(w.EndTime().In(loc))-civilDay(w.StartTime().In(loc))) + 1
}

// civilDay numbers the calendar date of t, ignoring its zone offset.
func civilDay(t time.Time) int64 {
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return date.Unix() / secondsPerDay
}

// StartTime returns the window start as a UTC time.
func (w Window) StartTime() time.Time {
	return time.UnixMilli(w.Start).UTC()
}

// EndTime returns the window end as a UTC time.
func (w Window) EndTime() time.Time {
	return time.UnixMilli(w.End).UTC()
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.StartTime().Format(time.RFC3339), w.EndTime().Format(time.RFC3339))
}
