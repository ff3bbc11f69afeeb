// Package scheduler implements a dependency-aware job scheduler.
//
// Jobs are submitted to a Scheduler, wait in the dependency ledger until every
// prerequisite has Finished, then enter a priority-ordered ready queue and are
// dispatched onto a bounded worker pool. A running job may yield: it records an
// opaque checkpoint plus new prerequisites, gives up its slot, and is redispatched
// with that checkpoint once the prerequisites finish.
//
// All bookkeeping is serialized by one lock per Scheduler. Job work always runs
// outside that lock, on the worker pool's goroutines.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/depsched/common/stats"
	"github.com/twitter/depsched/sched"
	"github.com/twitter/depsched/sched/queue"
	"github.com/twitter/depsched/sched/workers"
)

// SchedulerConfig holds the scheduler's startup settings. Zero values select defaults.
//
// NumWorkers - slots used by Start(n) when n <= 0. If NumWorkers is also <= 0 the
//              pool uses 2 x runtime.NumCPU().
// PerfLog - if true, logs each job's queue wait and run time and keeps a running
//           average run time per job class.
// MaxPerfClasses - number of job classes whose averages are kept.
// FailedQueueCapacity - size of the failed job ring buffer, 1000 if unset.
// JobTimeout - if non-zero, each dispatch's context expires after this long.
// DispatchRate, DispatchBurst - if DispatchRate is non-zero, at most DispatchRate
//                               dispatches start per second.
type SchedulerConfig struct {
	NumWorkers          int
	PerfLog             bool
	MaxPerfClasses      int
	FailedQueueCapacity int
	JobTimeout          time.Duration
	DispatchRate        float64
	DispatchBurst       int
}

type Scheduler struct {
	mu       sync.Mutex
	config   SchedulerConfig
	pool     *workers.Pool
	ready    *queue.ReadyQueue
	ledger   *ledger
	jobs     map[*Job]struct{}
	stats    *statistics
	failures *failureRing
	perf     *perfLog

	nextSeq   uint64
	executing bool
	inflight  int

	stat            stats.StatsReceiver
	queueLatency    stats.Latency
	runLatency      stats.Latency
	lifetimeLatency stats.Latency
}

// NewScheduler returns a stopped scheduler. Jobs may be submitted right away; none is
// dispatched before Start.
func NewScheduler(config SchedulerConfig, stat stats.StatsReceiver) *Scheduler {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	s := &Scheduler{
		config:   config,
		ready:    queue.NewReadyQueue(),
		ledger:   newLedger(),
		jobs:     make(map[*Job]struct{}),
		stats:    newStatistics(stat),
		failures: newFailureRing(config.FailedQueueCapacity),
		perf:     newPerfLog(config.PerfLog, config.MaxPerfClasses),
		stat:     stat,
	}
	ms := stat.Precision(time.Millisecond)
	s.queueLatency = ms.Latency(stats.SchedJobQueueLatency_ms)
	s.runLatency = ms.Latency(stats.SchedJobRunLatency_ms)
	s.lifetimeLatency = ms.Latency(stats.SchedJobLifetimeLatency_ms)
	s.pool = workers.New(
		poolListener{s},
		workers.WithStats(stat.Scope("pool")),
		workers.WithTaskTimeout(config.JobTimeout),
		workers.WithDispatchRate(config.DispatchRate, config.DispatchBurst),
	)
	return s
}

// Submit registers job and dispatches it as soon as its prerequisites have finished
// and the scheduler is started. Fails with InvalidStateError unless job is Created
// and untracked.
func (s *Scheduler) Submit(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSubmittable(job, "submit"); err != nil {
		return err
	}
	s.submit(job, false)
	return nil
}

// SubmitIndependent hands jobs straight to the worker pool without consulting the
// dependency ledger. The caller guarantees that no job needs another to run first;
// jobs that declared prerequisites are refused.
func (s *Scheduler) SubmitIndependent(jobs ...*Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkBatch(jobs, "submit independent jobs"); err != nil {
		return err
	}
	for _, job := range jobs {
		if len(job.Dependencies()) > 0 {
			return &sched.InvalidStateError{JobID: job.ID(), State: job.State(), Op: "submit independently, with declared dependencies,"}
		}
	}
	for _, job := range jobs {
		s.submit(job, true)
	}
	return nil
}

// SubmitBatch submits jobs as one block: either every job is registered or, if any
// job is not submittable, none is.
func (s *Scheduler) SubmitBatch(jobs ...*Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkBatch(jobs, "submit batch"); err != nil {
		return err
	}
	for _, job := range jobs {
		s.submit(job, false)
	}
	log.WithFields(log.Fields{"jobs": len(jobs)}).Debug("Submitted batch")
	return nil
}

// Cancel removes job from the scheduler, returning it to Created so that it may be
// submitted again. A job that is already executing has its run's context cancelled
// and is removed when the run returns. Cancelling an untracked or terminal job is a no-op.
func (s *Scheduler) Cancel(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !job.isOwnedBy(s) {
		log.WithFields(log.Fields{
			"jobID": job.ID(),
			"class": job.Class(),
			"state": job.State(),
		}).Warn("Ignoring cancel of job not tracked by this scheduler")
		return
	}
	if job.cancelRequested {
		return
	}

	if job.handle != nil {
		if s.pool.Cancel(job.handle) {
			s.releaseHandle(job)
			s.detach(job, false)
			return
		}
		job.cancelRequested = true
		log.WithFields(log.Fields{
			"jobID": job.ID(),
			"class": job.Class(),
		}).Debug("Cancellation requested for executing job")
		return
	}
	s.detach(job, false)
}

// Yield suspends the job executing exec. See Execution.Yield.
// Fails with InvalidStateError if exec is not the job's current, Running execution.
func (s *Scheduler) Yield(exec *Execution, checkpoint sched.Checkpoint, deps ...*Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkYieldable(exec, "yield"); err != nil {
		return err
	}
	for _, d := range deps {
		if d == exec.job {
			return &sched.InvalidStateError{JobID: d.ID(), State: d.State(), Op: "yield on itself"}
		}
	}
	s.yield(exec.job, checkpoint, deps)
	return nil
}

// CreateAuxiliaryChain submits subJobs and yields the job executing exec until all
// of them have finished. An empty subJobs is reported with EmptyBatchError and
// otherwise ignored.
func (s *Scheduler) CreateAuxiliaryChain(exec *Execution, subJobs []*Job, checkpoint sched.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(subJobs) == 0 {
		log.WithFields(log.Fields{
			"jobID": exec.job.ID(),
			"class": exec.job.Class(),
		}).Warn("Ignoring auxiliary chain without jobs")
		return &sched.EmptyBatchError{Op: "create auxiliary chain"}
	}
	if err := s.checkYieldable(exec, "create auxiliary chain for"); err != nil {
		return err
	}
	if err := s.checkBatch(subJobs, "create auxiliary chain"); err != nil {
		return err
	}
	for _, sub := range subJobs {
		s.submit(sub, false)
	}
	s.yield(exec.job, checkpoint, subJobs)
	return nil
}

// AddDependency makes dep a prerequisite of job. A tracked job that is queued for
// dispatch or executing loses its slot and waits for dep like a yielded job.
// For an untracked Created job this is the same as job.DependOn(dep).
func (s *Scheduler) AddDependency(job, dep *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job == dep {
		return &sched.InvalidStateError{JobID: job.ID(), State: job.State(), Op: "depend on itself"}
	}
	if !job.isOwnedBy(s) {
		return job.DependOn(dep)
	}
	if dep.State() == sched.Finished {
		return nil
	}

	switch state := job.State(); state {
	case sched.Queued:
		s.ledger.add(job, dep)
		switch {
		case job.handle == nil:
			s.ready.Remove(job)
			s.updateReadyGauge()
		case s.pool.Cancel(job.handle):
			s.releaseHandle(job)
		default:
			// Started on a slot but not yet reported Running.
			job.reblocked = true
		}
	case sched.Running:
		s.ledger.add(job, dep)
		s.pool.Cancel(job.handle)
		job.setState(sched.Yielded)
		s.stats.suspended(job.class)
	case sched.Yielded:
		s.ledger.add(job, dep)
	default:
		return &sched.InvalidStateError{JobID: job.ID(), State: state, Op: "add dependency to"}
	}
	log.WithFields(log.Fields{
		"jobID": job.ID(),
		"depID": dep.ID(),
		"state": job.State(),
	}).Debug("Added dependency")
	return nil
}

// Start opens n worker slots (the configured NumWorkers if n <= 0), redispatches
// the work frozen by the last Stop and dispatches every ready job.
func (s *Scheduler) Start(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		n = s.config.NumWorkers
	}
	s.pool.Resume(n)
	s.executing = true
	log.WithFields(log.Fields{
		"slots": s.pool.Slots(),
		"ready": s.ready.Len(),
	}).Info("Started scheduler")
	s.dispatch()
}

// Stop pauses the worker pool. Jobs dispatched but not yet started are frozen and
// returned; they run first on the next Start. Executing jobs have their context
// cancelled; a run that returns context.Canceled is treated as a yield and the job
// is redispatched on the next Start with its checkpoint intact.
func (s *Scheduler) Stop() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.executing {
		return nil
	}
	s.executing = false
	tasks := s.pool.Pause()
	frozen := make([]*Job, 0, len(tasks))
	for _, t := range tasks {
		frozen = append(frozen, t.(*dispatch).job)
	}
	log.WithFields(log.Fields{
		"frozen":    len(frozen),
		"executing": s.inflight - len(frozen),
	}).Info("Stopped scheduler")
	return frozen
}

// Wait blocks until no job occupies a worker slot. After Stop it returns once every
// interrupted run has reported back. Must not be called from a job's work.
func (s *Scheduler) Wait() {
	s.pool.Wait()
}

// IsExecuting reports whether the scheduler has been started and not stopped since.
func (s *Scheduler) IsExecuting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executing
}

// WorkerCount returns the number of worker slots, 0 while stopped.
func (s *Scheduler) WorkerCount() int {
	return s.pool.Slots()
}

// Stats returns a snapshot of the job statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.snapshot()
}

// FailedJobs returns the most recently failed jobs, oldest first.
func (s *Scheduler) FailedJobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures.list()
}

// Idle reports whether nothing is executing or able to execute. While started that
// means no job is dispatched or ready; while stopped, no job occupies a worker slot.
// Jobs blocked forever on a failed prerequisite do not prevent idleness.
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.executing {
		return s.pool.Running() == 0
	}
	return s.inflight == 0 && s.ready.Len() == 0
}

// Blocked returns the tracked jobs waiting on a prerequisite, in dispatch order.
func (s *Scheduler) Blocked() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for job := range s.jobs {
		if s.ledger.registered(job) && !s.ledger.ready(job) {
			out = append(out, job)
		}
	}
	return sortJobs(out)
}

// AverageRunTime returns the running average run time of class, if perf logging is on
// and the class has completed a run.
func (s *Scheduler) AverageRunTime(class string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perf.average(class)
}

//
// Internals. Everything below requires s.mu.
//

func (s *Scheduler) checkSubmittable(job *Job, op string) error {
	if job.isOwnedBy(s) || job.State() != sched.Created {
		return &sched.InvalidStateError{JobID: job.ID(), State: job.State(), Op: op}
	}
	return nil
}

func (s *Scheduler) checkBatch(jobs []*Job, op string) error {
	if len(jobs) == 0 {
		return &sched.EmptyBatchError{Op: op}
	}
	seen := make(map[*Job]bool, len(jobs))
	for _, job := range jobs {
		if seen[job] {
			return &sched.InvalidStateError{JobID: job.ID(), State: job.State(), Op: op + " twice"}
		}
		seen[job] = true
		if err := s.checkSubmittable(job, op); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) checkYieldable(exec *Execution, op string) error {
	job := exec.job
	if !exec.live || job.exec != exec || job.State() != sched.Running {
		return &sched.InvalidStateError{JobID: job.ID(), State: job.State(), Op: op}
	}
	return nil
}

func (s *Scheduler) submit(job *Job, independent bool) {
	if hook, ok := job.work.(EnqueueHook); ok {
		hook.AboutToBeEnqueued(job)
	}
	s.nextSeq++
	job.attach(s, s.nextSeq)
	job.setState(sched.Queued)
	job.submitted = time.Now()
	s.jobs[job] = struct{}{}
	s.stats.submitted(job.class)

	var unmet []*Job
	if !independent {
		for _, d := range job.takeDeps() {
			if d.State() != sched.Finished {
				unmet = append(unmet, d)
			}
		}
	}
	log.WithFields(log.Fields{
		"jobID":    job.ID(),
		"class":    job.Class(),
		"priority": job.Priority(),
		"unmet":    len(unmet),
	}).Debug("Submitted job")

	if s.ledger.register(job, unmet) {
		if independent && s.executing {
			s.launch(job)
			return
		}
		s.makeReady(job)
	}
}

func (s *Scheduler) yield(job *Job, checkpoint sched.Checkpoint, deps []*Job) {
	job.exec.yielded = true
	job.setCheckpoint(checkpoint)
	for _, d := range deps {
		if d.State() != sched.Finished {
			s.ledger.add(job, d)
		}
	}
	s.pool.Cancel(job.handle)
	job.setState(sched.Yielded)
	s.stats.suspended(job.class)
	log.WithFields(log.Fields{
		"jobID": job.ID(),
		"class": job.Class(),
		"deps":  len(deps),
	}).Debug("Job yielded")
}

// Moves a ready job into the ready queue and dispatches whatever the pool can take.
func (s *Scheduler) makeReady(job *Job) {
	if job.handle != nil {
		panic(fmt.Sprintf("job %s made ready while holding an execution handle", job))
	}
	if job.State() == sched.Yielded {
		job.setState(sched.Queued)
	}
	job.readySince = time.Now()
	if !s.ready.Push(job) {
		panic(fmt.Sprintf("job %s pushed to the ready queue twice", job))
	}
	s.dispatch()
}

func (s *Scheduler) dispatch() {
	for s.executing {
		item := s.ready.Pop()
		if item == nil {
			break
		}
		if !s.launch(item.(*Job)) {
			break
		}
	}
	s.updateReadyGauge()
}

// Hands job to the pool. The job must not be in the ready queue.
func (s *Scheduler) launch(job *Job) bool {
	if job.handle != nil || s.ready.Contains(job) {
		panic(fmt.Sprintf("double dispatch of job %s", job))
	}
	exec := &Execution{job: job, owner: s, live: true}
	h, err := s.pool.Submit(&dispatch{job: job, exec: exec})
	if err != nil {
		// Only possible if the pool was paused behind our back.
		log.WithFields(log.Fields{"jobID": job.ID(), "err": err}).Error("Worker pool refused job")
		s.ready.Push(job)
		return false
	}
	if job.readySince.IsZero() {
		job.readySince = time.Now()
	}
	job.handle = h
	job.exec = exec
	s.inflight++
	return true
}

func (s *Scheduler) releaseHandle(job *Job) {
	job.exec.live = false
	job.exec = nil
	job.handle = nil
	s.inflight--
}

// Returns a job to Created and forgets it. Unmet prerequisites are handed back to the job.
func (s *Scheduler) detach(job *Job, wasRunning bool) {
	if hook, ok := job.work.(DequeueHook); ok {
		hook.AboutToBeDequeued(job)
	}
	if s.ledger.registered(job) {
		remaining := s.ledger.unmetDeps(job)
		s.ledger.remove(job)
		job.restoreDeps(remaining)
	}
	if s.ready.Remove(job) {
		s.updateReadyGauge()
	}
	job.setState(sched.Created)
	job.cancelRequested = false
	job.reblocked = false
	job.readySince = time.Time{}
	job.detach()
	delete(s.jobs, job)
	s.stats.cancelled(job.class, wasRunning)
	log.WithFields(log.Fields{
		"jobID": job.ID(),
		"class": job.Class(),
	}).Debug("Cancelled job")
}

func (s *Scheduler) finish(job *Job) {
	job.setState(sched.Finished)
	s.stats.finished(job.class, true)
	s.retire(job)
	log.WithFields(log.Fields{
		"jobID": job.ID(),
		"class": job.Class(),
	}).Debug("Job finished")

	for _, dependent := range s.ledger.finished(job) {
		// Dependents still holding a handle are re-evaluated when their run returns.
		if dependent.handle == nil && dependent.isOwnedBy(s) {
			s.makeReady(dependent)
		}
	}
	s.notify(job, sched.Finished)
}

func (s *Scheduler) fail(job *Job, err error, wasRunning bool) {
	execErr := &sched.JobExecutionError{JobID: job.ID(), Class: job.Class(), Err: err}
	job.setErr(execErr)
	job.setState(sched.Error)
	s.stats.failed(job.class, wasRunning)
	s.failures.add(job)
	s.stat.Gauge(stats.SchedFailedQueueLenGauge).Update(int64(s.failures.len()))
	// Dependents stay blocked: the ledger keeps their edge to this job.
	s.ledger.remove(job)
	s.retire(job)
	log.WithFields(log.Fields{
		"jobID":   job.ID(),
		"class":   job.Class(),
		"err":     err,
		"blocked": len(s.ledger.blockedOn(job)),
	}).Error("Job failed")
	s.notify(job, sched.Error)
}

func (s *Scheduler) retire(job *Job) {
	job.detach()
	delete(s.jobs, job)
	s.lifetimeLatency.Record(time.Since(job.submitted))
}

func (s *Scheduler) notify(job *Job, state sched.State) {
	if l, ok := job.work.(StateListener); ok {
		l.JobStateChanged(job, state)
	}
}

func (s *Scheduler) requeueIfReady(job *Job) {
	if s.ledger.ready(job) {
		s.makeReady(job)
	}
}

func (s *Scheduler) updateReadyGauge() {
	s.stat.Gauge(stats.SchedReadyQueueLenGauge).Update(int64(s.ready.Len()))
}

// A run that was suspended without yielding resumes from the checkpoint it was
// dispatched with.
func keepCheckpoint(job *Job, exec *Execution) {
	if !exec.yielded {
		job.setCheckpoint(exec.checkpoint)
	}
}

func isCancellation(err error) bool {
	return errors.Cause(err) == context.Canceled
}

// poolListener receives the worker pool's callbacks for a Scheduler.
type poolListener struct {
	s *Scheduler
}

func (l poolListener) Started(h *workers.Handle) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d := h.Task().(*dispatch)
	job := d.job
	if job.handle != h {
		panic(fmt.Sprintf("job %s started on a handle it does not own", job))
	}
	job.setState(sched.Running)
	job.dispatched = time.Now()
	d.exec.checkpoint = job.takeCheckpoint()
	s.stats.started(job.class)
	s.queueLatency.Record(job.dispatched.Sub(job.readySince))
	log.WithFields(log.Fields{
		"jobID":   job.ID(),
		"class":   job.Class(),
		"resumed": d.exec.Resumed(),
	}).Debug("Job running")
}

func (l poolListener) Done(h *workers.Handle, err error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d := h.Task().(*dispatch)
	job := d.job
	if job.handle != h {
		panic(fmt.Sprintf("job %s reported done on a handle it does not own", job))
	}
	s.releaseHandle(job)
	ran := time.Since(job.dispatched)
	queued := job.dispatched.Sub(job.readySince)
	s.runLatency.Record(ran)
	reblocked := job.reblocked
	job.reblocked = false

	outcome := ""
	switch state := job.State(); state {
	case sched.Running:
		suspend := !s.ledger.ready(job) ||
			(isCancellation(err) && (h.Interrupted() || reblocked))
		switch {
		case job.cancelRequested && err != nil:
			outcome = "cancelled"
			s.detach(job, true)
		case suspend && (err == nil || isCancellation(err)):
			outcome = "suspended"
			job.setState(sched.Yielded)
			s.stats.suspended(job.class)
			keepCheckpoint(job, d.exec)
			s.requeueIfReady(job)
		case err == nil:
			outcome = "finished"
			job.cancelRequested = false
			s.finish(job)
		default:
			outcome = "failed"
			s.fail(job, err, true)
		}
	case sched.Yielded:
		switch {
		case job.cancelRequested:
			outcome = "cancelled"
			s.detach(job, false)
		case err != nil && !isCancellation(err):
			outcome = "failed"
			s.fail(job, err, false)
		default:
			outcome = "yielded"
			keepCheckpoint(job, d.exec)
			s.requeueIfReady(job)
		}
	default:
		panic(fmt.Sprintf("job %s reported done in state %s", job, state))
	}
	s.perf.record(job, queued, ran, outcome)
}
