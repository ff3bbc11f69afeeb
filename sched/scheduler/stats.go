package scheduler

import (
	"sort"

	"github.com/twitter/depsched/common/stats"
)

// ClassStats counts the jobs of one class.
type ClassStats struct {
	Waiting  int
	Running  int
	Finished int
	Failed   int
}

// Stats is a point-in-time copy of the scheduler's statistics.
// Waiting counts submitted jobs that are neither running nor terminal: blocked on a
// prerequisite, queued for a slot, or yielded. Total counts every accepted submission.
type Stats struct {
	Total    int
	Waiting  int
	Running  int
	Finished int
	Failed   int
	Classes  map[string]ClassStats
}

// ClassNames returns the classes present in the snapshot, sorted.
func (s Stats) ClassNames() []string {
	names := make([]string, 0, len(s.Classes))
	for name := range s.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// statistics is the mutable ledger behind Stats, mirrored into a StatsReceiver.
// Not thread-safe; owned by Scheduler.
type statistics struct {
	total   int
	classes map[string]*ClassStats
	stat    stats.StatsReceiver
}

func newStatistics(stat stats.StatsReceiver) *statistics {
	return &statistics{classes: make(map[string]*ClassStats), stat: stat}
}

func (s *statistics) class(name string) *ClassStats {
	c, ok := s.classes[name]
	if !ok {
		c = &ClassStats{}
		s.classes[name] = c
	}
	return c
}

func (s *statistics) submitted(class string) {
	s.total++
	s.class(class).Waiting++
	s.stat.Counter(stats.SchedJobsSubmittedCounter).Inc(1)
	s.publish()
}

func (s *statistics) started(class string) {
	c := s.class(class)
	c.Waiting--
	c.Running++
	s.stat.Scope(class).Counter(stats.SchedClassStartedCounter).Inc(1)
	s.publish()
}

// A running job went back to waiting: it yielded or was interrupted.
func (s *statistics) suspended(class string) {
	c := s.class(class)
	c.Running--
	c.Waiting++
	s.stat.Counter(stats.SchedJobsYieldedCounter).Inc(1)
	s.publish()
}

func (s *statistics) finished(class string, wasRunning bool) {
	c := s.leave(class, wasRunning)
	c.Finished++
	s.stat.Counter(stats.SchedJobsFinishedCounter).Inc(1)
	s.publish()
}

func (s *statistics) failed(class string, wasRunning bool) {
	c := s.leave(class, wasRunning)
	c.Failed++
	s.stat.Counter(stats.SchedJobsFailedCounter).Inc(1)
	s.stat.Scope(class).Counter(stats.SchedClassFailedCounter).Inc(1)
	s.publish()
}

// A cancelled job no longer counts towards the total; resubmitting it counts again.
func (s *statistics) cancelled(class string, wasRunning bool) {
	s.total--
	s.leave(class, wasRunning)
	s.stat.Counter(stats.SchedJobsCancelledCounter).Inc(1)
	s.publish()
}

func (s *statistics) leave(class string, wasRunning bool) *ClassStats {
	c := s.class(class)
	if wasRunning {
		c.Running--
	} else {
		c.Waiting--
	}
	return c
}

func (s *statistics) publish() {
	var waiting, running int
	for _, c := range s.classes {
		waiting += c.Waiting
		running += c.Running
	}
	s.stat.Gauge(stats.SchedJobsWaitingGauge).Update(int64(waiting))
	s.stat.Gauge(stats.SchedJobsRunningGauge).Update(int64(running))
}

func (s *statistics) snapshot() Stats {
	out := Stats{Total: s.total, Classes: make(map[string]ClassStats, len(s.classes))}
	for name, c := range s.classes {
		out.Classes[name] = *c
		out.Waiting += c.Waiting
		out.Running += c.Running
		out.Finished += c.Finished
		out.Failed += c.Failed
	}
	return out
}
