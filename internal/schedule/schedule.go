package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule is a cron expression evaluated in a fixed timezone.
type Schedule struct {
	expr  string
	sched cron.Schedule
	loc   *time.Location
}

// Parse accepts a five-field cron expression or a descriptor such as
// "@daily" or "@every 6h".
func Parse(expression string, loc *time.Location) (*Schedule, error) {
	sched, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Schedule{expr: expression, sched: sched, loc: loc}, nil
}

// Next returns the first scheduled time after after.
func (s *Schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}

func (s *Schedule) String() string {
	return s.expr
}

// Run calls fn at every scheduled time until ctx is cancelled. Runs never
// overlap: a run that overshoots the next slot skips it.
func Run(ctx context.Context, s *Schedule, fn func(ctx context.Context, at time.Time)) error {
	log.Printf("Recalculating on schedule %q", s)

	for {
		next := s.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			fn(ctx, next)
		}
	}
}
