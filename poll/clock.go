package poll

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Clock abstracts time so the loop can be driven by tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time                         { return time.Now() }
func (wallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewSchedule returns the cron schedule for expr, or a constant delay of
// interval when expr is empty. A constant delay is measured from the end of
// the previous cycle.
func NewSchedule(expr string, interval time.Duration) (cron.Schedule, error) {
	if expr == "" {
		if interval <= 0 {
			interval = DefaultInterval
		}
		return cron.Every(interval), nil
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse poll schedule %q: %w", expr, err)
	}
	return sched, nil
}
