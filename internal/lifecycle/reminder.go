package lifecycle

import (
	"context"
	"time"
)

// ReminderJob adapts RemindExpiring to the scheduler's job shape.
type ReminderJob struct {
	lifecycle *Lifecycle
	window    time.Duration
}

func NewReminderJob(lc *Lifecycle, window time.Duration) *ReminderJob {
	if window <= 0 {
		window = 3 * 24 * time.Hour
	}
	return &ReminderJob{lifecycle: lc, window: window}
}

func (j *ReminderJob) Name() string { return "expiry-reminder" }

func (j *ReminderJob) Run(ctx context.Context) error {
	return j.lifecycle.RemindExpiring(ctx, j.window)
}
