package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHourly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "mid hour",
			now:  time.Date(2024, 6, 1, 10, 25, 0, 0, time.UTC),
			want: time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly on the hour",
			now:  time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
			want: time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC),
		},
		{
			name: "run overran past the next slot",
			now:  time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC),
			want: time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "end of day",
			now:  time.Date(2024, 6, 1, 23, 59, 59, 0, time.UTC),
			want: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "non UTC clock",
			now:  time.Date(2024, 6, 1, 10, 25, 0, 0, time.FixedZone("IST", 5*3600+1800)),
			want: time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, tt.want.Equal(Hourly{}.Next(tt.now)), "got %s", Hourly{}.Next(tt.now))
			assert.True(t, tt.want.Equal(Hourly{}.First(tt.now)))
		})
	}
}

func TestInterval(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	s := Interval{Every: 24 * time.Hour, Offset: 10 * time.Minute}
	assert.Equal(t, now.Add(10*time.Minute), s.First(now))
	assert.Equal(t, now.Add(24*time.Hour), s.Next(now))

	assert.Equal(t, now, Interval{Every: time.Minute}.First(now))
}

func TestLoop_WaitsForReady(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	ready := make(chan struct{})
	l := NewLoop("test", Interval{Every: 5 * time.Millisecond}, func(context.Context) error {
		runs.Add(1)
		return nil
	}, ready)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, runs.Load())

	close(ready)
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoop_SurvivesFailingIterations(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	ready := make(chan struct{})
	close(ready)
	l := NewLoop("flaky", Interval{Every: time.Millisecond}, func(context.Context) error {
		runs.Add(1)
		return errors.New("database is locked")
	}, ready)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Serve(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
}

func TestLoop_CancelledBeforeReady(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoop("never", Hourly{}, func(context.Context) error {
		t.Error("task must not run")
		return nil
	}, make(chan struct{}))

	assert.ErrorIs(t, l.Serve(ctx), context.Canceled)
	assert.Equal(t, "never", l.String())
}
