package stats

import (
	"time"
)

// StatsTime is the clock Latency instruments read.
type StatsTime interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type defaultStatsTime struct{}

func (defaultStatsTime) Now() time.Time                  { return time.Now() }
func (defaultStatsTime) Since(t time.Time) time.Duration { return time.Since(t) }

// DefaultStatsTime is backed by the time package.
func DefaultStatsTime() StatsTime { return defaultStatsTime{} }

type fixedStatsTime struct {
	now   time.Time
	since time.Duration
}

func (t fixedStatsTime) Now() time.Time                { return t.now }
func (t fixedStatsTime) Since(time.Time) time.Duration { return t.since }

// NewTestTime returns a clock that always reports now, and since as every elapsed duration.
func NewTestTime(now time.Time, since time.Duration) StatsTime {
	return fixedStatsTime{now, since}
}
