package stats

import (
	"time"
)

// Defines the calls we make to the stdlib time package. Allows for overriding in tests.
type StatsTime interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type defaultStatsTime struct{}

func (defaultStatsTime) Now() time.Time                  { return time.Now() }
func (defaultStatsTime) Since(t time.Time) time.Duration { return time.Since(t) }

// Returns a StatsTime instance backed by the stdlib 'time' package
func DefaultStatsTime() StatsTime { return defaultStatsTime{} }

// Testing
type testStatsTime struct {
	now   time.Time
	since time.Duration
}

func (t testStatsTime) Now() time.Time                { return t.now }
func (t testStatsTime) Since(time.Time) time.Duration { return t.since }

// NewTestTime returns a StatsTime frozen at now, for which every Since() call reports since.
func NewTestTime(now time.Time, since time.Duration) StatsTime {
	return testStatsTime{now, since}
}
