package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/GamerGuyD3/WOM-Role-Sync-Bot/internal/metrics"
)

// Task is one iteration of a loop
type Task func(ctx context.Context) error

// Loop runs a task on a schedule as a supervised service
type Loop struct {
	name     string
	schedule Schedule
	task     Task
	ready    <-chan struct{}
	now      func() time.Time
}

// NewLoop creates a loop that starts scheduling once ready is closed
func NewLoop(name string, schedule Schedule, task Task, ready <-chan struct{}) *Loop {
	return &Loop{
		name:     name,
		schedule: schedule,
		task:     task,
		ready:    ready,
		now:      time.Now,
	}
}

// Serve implements suture.Service. It only returns when ctx is done; a
// failing iteration is logged and the loop carries on.
func (l *Loop) Serve(ctx context.Context) error {
	select {
	case <-l.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	next := l.schedule.First(l.now())
	slog.Info("Loop scheduled", "loop", l.name, "next", next)

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Loop stopped", "loop", l.name)
			return ctx.Err()
		case <-timer.C:
		}

		l.run(ctx)

		next = l.schedule.Next(l.now())
		timer.Reset(time.Until(next))
		slog.Debug("Loop rescheduled", "loop", l.name, "next", next)
	}
}

func (l *Loop) run(ctx context.Context) {
	start := time.Now()
	if err := l.task(ctx); err != nil {
		metrics.LoopRuns.WithLabelValues(l.name, "error").Inc()
		slog.Error("Loop iteration failed", "loop", l.name, "error", err, "duration", time.Since(start))
		return
	}
	metrics.LoopRuns.WithLabelValues(l.name, "ok").Inc()
	slog.Debug("Loop iteration complete", "loop", l.name, "duration", time.Since(start))
}

// String implements fmt.Stringer; suture uses it to name the service.
func (l *Loop) String() string {
	return l.name
}
