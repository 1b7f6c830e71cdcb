package scheduler

import "time"

// Schedule decides when a loop runs. Next is always computed from the clock
// after a run finishes, so slots missed while a run overran are skipped.
type Schedule interface {
	// First returns the first run time for a loop started at now
	First(now time.Time) time.Time

	// Next returns the next run time after a run that finished at now
	Next(now time.Time) time.Time
}

// Hourly runs at the top of every UTC hour
type Hourly struct{}

func (Hourly) First(now time.Time) time.Time {
	return Hourly{}.Next(now)
}

// Next returns the first hour boundary strictly after now
func (Hourly) Next(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour).Add(time.Hour)
}

// Interval runs every Every, with the first run delayed by Offset
type Interval struct {
	Every  time.Duration
	Offset time.Duration
}

func (i Interval) First(now time.Time) time.Time {
	return now.Add(i.Offset)
}

func (i Interval) Next(now time.Time) time.Time {
	return now.Add(i.Every)
}
