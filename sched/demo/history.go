// Package demo is a synthetic producer for the scheduler: a source history updater
// that replays commits, fans out one metric job per commit and summarizes them.
package demo

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/depsched/sched/scheduler"
)

// Job priorities; lower runs first.
const (
	UpdaterPriority = 0
	MetricPriority  = 1
	SummaryPriority = 2
)

type Commit struct {
	ID           string
	Author       string
	LinesAdded   int
	LinesRemoved int
}

// Options controls the synthetic history.
//
// Commits - number of commits replayed by the updater.
// Seed - seeds the commit generator; the same seed replays the same history.
// MetricDelay - time each metric job spends "computing".
// FailEvery - if > 0, every FailEvery-th commit's metric job fails.
type Options struct {
	Commits     int
	Seed        int64
	MetricDelay time.Duration
	FailEvery   int
}

type Summary struct {
	Commits   int
	NetLines  int
	TopAuthor string
}

// Results collects what the demo jobs compute. Safe for concurrent use.
type Results struct {
	mu      sync.Mutex
	metrics map[string]int
	summary *Summary
	runs    int
}

func (r *Results) setMetric(commit string, net int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[commit] = net
}

// Metric returns the net line count computed for commit.
func (r *Results) Metric(commit string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	net, ok := r.metrics[commit]
	return net, ok
}

// Summary returns the summary, or nil if the summary job has not finished.
func (r *Results) Summary() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// UpdaterRuns returns how many times the updater was dispatched.
func (r *Results) UpdaterRuns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// NewHistoryUpdater returns the root job of the demo and the results its
// sub-jobs fill in. Submit the job to a scheduler to run it.
func NewHistoryUpdater(opts Options) (*scheduler.Job, *Results) {
	results := &Results{metrics: make(map[string]int)}
	return scheduler.NewJob(&historyUpdater{opts: opts, results: results}), results
}

// GenerateHistory returns the commits replayed for opts.
func GenerateHistory(opts Options) []Commit {
	authors := []string{"alice", "bob", "carol", "dave"}
	rng := rand.New(rand.NewSource(opts.Seed))
	commits := make([]Commit, opts.Commits)
	for i := range commits {
		commits[i] = Commit{
			ID:           fmt.Sprintf("%016x", rng.Int63()),
			Author:       authors[rng.Intn(len(authors))],
			LinesAdded:   rng.Intn(200),
			LinesRemoved: rng.Intn(100),
		}
	}
	return commits
}

type historyUpdater struct {
	opts    Options
	results *Results
}

func (h *historyUpdater) Priority() int { return UpdaterPriority }
func (h *historyUpdater) Class() string { return "history-updater" }

func (h *historyUpdater) Run(ctx context.Context, exec *scheduler.Execution) error {
	h.results.mu.Lock()
	h.results.runs++
	h.results.mu.Unlock()

	if exec.Resumed() {
		commits := exec.Checkpoint().([]Commit)
		summary := h.results.Summary()
		if summary == nil {
			return errors.Errorf("history of %d commits resumed without a summary", len(commits))
		}
		log.WithFields(log.Fields{
			"commits":   summary.Commits,
			"netLines":  summary.NetLines,
			"topAuthor": summary.TopAuthor,
		}).Info("History updated")
		return nil
	}

	commits := GenerateHistory(h.opts)
	if len(commits) == 0 {
		log.Info("No commits to replay")
		return nil
	}
	metrics := make([]*scheduler.Job, 0, len(commits))
	for i, c := range commits {
		fail := h.opts.FailEvery > 0 && (i+1)%h.opts.FailEvery == 0
		metrics = append(metrics, scheduler.NewJob(&metricWork{
			commit:  c,
			delay:   h.opts.MetricDelay,
			fail:    fail,
			results: h.results,
		}))
	}
	summary := scheduler.NewJob(&summaryWork{commits: commits, results: h.results})
	if err := summary.DependOn(metrics...); err != nil {
		return err
	}
	log.WithFields(log.Fields{"commits": len(commits)}).Info("Replaying history")
	return exec.SpawnAuxiliary(commits, append(metrics, summary)...)
}

type metricWork struct {
	commit  Commit
	delay   time.Duration
	fail    bool
	results *Results
}

func (m *metricWork) Priority() int { return MetricPriority }
func (m *metricWork) Class() string { return "metric" }

func (m *metricWork) Run(ctx context.Context, exec *scheduler.Execution) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.fail {
		return errors.Errorf("metric for commit %s unavailable", m.commit.ID)
	}
	m.results.setMetric(m.commit.ID, m.commit.LinesAdded-m.commit.LinesRemoved)
	return nil
}

type summaryWork struct {
	commits []Commit
	results *Results
}

func (s *summaryWork) Priority() int { return SummaryPriority }
func (s *summaryWork) Class() string { return "summary" }

func (s *summaryWork) Run(ctx context.Context, exec *scheduler.Execution) error {
	byAuthor := make(map[string]int)
	summary := &Summary{Commits: len(s.commits)}
	for _, c := range s.commits {
		net, ok := s.results.Metric(c.ID)
		if !ok {
			return errors.Errorf("no metric for commit %s", c.ID)
		}
		summary.NetLines += net
		byAuthor[c.Author]++
	}
	authors := make([]string, 0, len(byAuthor))
	for a := range byAuthor {
		authors = append(authors, a)
	}
	sort.Strings(authors)
	for _, a := range authors {
		if summary.TopAuthor == "" || byAuthor[a] > byAuthor[summary.TopAuthor] {
			summary.TopAuthor = a
		}
	}

	s.results.mu.Lock()
	defer s.results.mu.Unlock()
	s.results.summary = summary
	return nil
}
