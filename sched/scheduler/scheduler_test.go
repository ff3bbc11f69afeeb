package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twitter/depsched/common/stats"
	"github.com/twitter/depsched/sched"
)

type testWork struct {
	prio  int
	class string
	run   func(ctx context.Context, exec *Execution) error
}

func (w *testWork) Priority() int { return w.prio }
func (w *testWork) Class() string {
	if w.class == "" {
		return "test"
	}
	return w.class
}
func (w *testWork) Run(ctx context.Context, exec *Execution) error {
	if w.run == nil {
		return nil
	}
	return w.run(ctx, exec)
}

func newTestJob(prio int, run func(ctx context.Context, exec *Execution) error) *Job {
	return NewJob(&testWork{prio: prio, run: run})
}

func blockUntil(ch chan struct{}) func(ctx context.Context, exec *Execution) error {
	return func(ctx context.Context, exec *Execution) error {
		<-ch
		return nil
	}
}

func waitFor(t *testing.T, job *Job) sched.State {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, _ := job.Wait(ctx)
	if !state.IsTerminal() {
		t.Fatalf("Timed out waiting for job %s, state %s", job, state)
	}
	return state
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting until %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestReadyJobRunsWithoutWaiting(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	s.Start(2)
	job := newTestJob(0, nil)
	require.NoError(t, s.Submit(job))
	assert.Equal(t, sched.Finished, waitFor(t, job))
	assert.Nil(t, job.Err())
}

func TestSubmitTwiceFails(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	job := newTestJob(0, nil)
	require.NoError(t, s.Submit(job))
	err := s.Submit(job)
	assert.True(t, sched.IsInvalidState(err), "got %v", err)

	other := NewScheduler(SchedulerConfig{}, nil)
	assert.True(t, sched.IsInvalidState(other.Submit(job)))
}

func TestDependentWaitsForPrerequisite(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	release := make(chan struct{})
	j1 := newTestJob(1, blockUntil(release))
	j2 := newTestJob(2, nil)
	require.NoError(t, j2.DependOn(j1))
	require.NoError(t, s.Submit(j1))
	require.NoError(t, s.Submit(j2))
	s.Start(2)

	waitUntil(t, "j1 is running", func() bool { return j1.State() == sched.Running })
	st := s.Stats()
	assert.Equal(t, 1, st.Waiting)
	assert.Equal(t, 1, st.Running)
	assert.Equal(t, sched.Queued, j2.State())
	assert.Equal(t, []*Job{j2}, s.Blocked())

	close(release)
	assert.Equal(t, sched.Finished, waitFor(t, j2))
	assert.Equal(t, sched.Finished, j1.State())

	waitUntil(t, "scheduler is idle", s.Idle)
	st = s.Stats()
	assert.Equal(t, 0, st.Waiting)
	assert.Equal(t, 0, st.Running)
	assert.Equal(t, 2, st.Finished)
	assert.Equal(t, 2, st.Total)
}

func TestFinishedPrerequisiteIsAlreadySatisfied(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	s.Start(1)
	dep := newTestJob(0, nil)
	require.NoError(t, s.Submit(dep))
	require.Equal(t, sched.Finished, waitFor(t, dep))

	job := newTestJob(0, nil)
	require.NoError(t, job.DependOn(dep))
	require.NoError(t, s.Submit(job))
	assert.Equal(t, sched.Finished, waitFor(t, job))
}

func TestFailedPrerequisiteBlocksDependentsForever(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	cause := errors.New("metric computation failed")
	failing := newTestJob(0, func(ctx context.Context, exec *Execution) error { return cause })
	var ran int32
	dependent := newTestJob(0, func(ctx context.Context, exec *Execution) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	require.NoError(t, dependent.DependOn(failing))
	require.NoError(t, s.SubmitBatch(failing, dependent))
	s.Start(2)

	assert.Equal(t, sched.Error, waitFor(t, failing))
	waitUntil(t, "scheduler is idle", s.Idle)

	assert.Equal(t, sched.Queued, dependent.State())
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
	assert.Equal(t, []*Job{dependent}, s.Blocked())
	assert.Equal(t, []*Job{failing}, s.FailedJobs())

	execErr, ok := failing.Err().(*sched.JobExecutionError)
	require.True(t, ok, "got %v", failing.Err())
	assert.Equal(t, failing.ID(), execErr.JobID)
	assert.Equal(t, cause, errors.Cause(execErr))

	st := s.Stats()
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.Waiting)
}

func TestPanickingJobFails(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	s.Start(1)
	job := newTestJob(0, func(ctx context.Context, exec *Execution) error { panic("corrupt checkout") })
	require.NoError(t, s.Submit(job))
	assert.Equal(t, sched.Error, waitFor(t, job))
	assert.Contains(t, job.Err().Error(), "corrupt checkout")

	// The scheduler keeps working after a job panics.
	next := newTestJob(0, nil)
	require.NoError(t, s.Submit(next))
	assert.Equal(t, sched.Finished, waitFor(t, next))
}

func TestSubmitBatchCountsImmediately(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	assert.Equal(t, 0, s.Stats().Total)

	jobs := []*Job{newTestJob(0, nil), newTestJob(0, nil), newTestJob(0, nil), newTestJob(0, nil)}
	require.NoError(t, s.SubmitBatch(jobs...))
	st := s.Stats()
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 4, st.Waiting)

	// All or nothing: a batch containing a tracked job registers nothing.
	fresh := newTestJob(0, nil)
	err := s.SubmitBatch(fresh, jobs[0])
	assert.True(t, sched.IsInvalidState(err), "got %v", err)
	assert.Equal(t, sched.Created, fresh.State())
	assert.Equal(t, 4, s.Stats().Total)

	assert.True(t, sched.IsEmptyBatch(s.SubmitBatch()))

	s.Start(2)
	for _, j := range jobs {
		assert.Equal(t, sched.Finished, waitFor(t, j))
	}
}

func TestSubmitIndependent(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	s.Start(2)
	a, b := newTestJob(0, nil), newTestJob(0, nil)
	require.NoError(t, s.SubmitIndependent(a, b))
	assert.Equal(t, sched.Finished, waitFor(t, a))
	assert.Equal(t, sched.Finished, waitFor(t, b))

	withDeps := newTestJob(0, nil)
	require.NoError(t, withDeps.DependOn(newTestJob(0, nil)))
	assert.True(t, sched.IsInvalidState(s.SubmitIndependent(withDeps)))
	assert.Equal(t, sched.Created, withDeps.State())
}

func TestCancelIsIdempotent(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	job := newTestJob(0, nil)
	require.NoError(t, s.Submit(job))

	s.Cancel(job)
	s.Cancel(job)
	assert.Equal(t, sched.Created, job.State())
	assert.Equal(t, 0, s.Stats().Waiting)

	// A cancelled job can be submitted again and is counted once.
	require.NoError(t, s.Submit(job))
	assert.Equal(t, 1, s.Stats().Total)
	s.Start(1)
	assert.Equal(t, sched.Finished, waitFor(t, job))

	// Cancelling a terminal job is a no-op too.
	s.Cancel(job)
	s.Cancel(job)
	assert.Equal(t, sched.Finished, job.State())

	// As is cancelling a job this scheduler never saw.
	s.Cancel(newTestJob(0, nil))
}

func TestCancelBlockedJobRestoresDependencies(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	dep := newTestJob(0, nil)
	job := newTestJob(0, nil)
	require.NoError(t, job.DependOn(dep))
	require.NoError(t, s.Submit(job))

	s.Cancel(job)
	assert.Equal(t, sched.Created, job.State())
	assert.Equal(t, []*Job{dep}, job.Dependencies())
	assert.Empty(t, s.Blocked())
}

func TestCancelExecutingJob(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	s.Start(1)
	started := make(chan struct{})
	job := newTestJob(0, func(ctx context.Context, exec *Execution) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, s.Submit(job))
	<-started

	s.Cancel(job)
	s.Cancel(job)
	waitUntil(t, "cancelled job is detached", func() bool { return job.State() == sched.Created })
	waitUntil(t, "scheduler is idle", s.Idle)
	st := s.Stats()
	assert.Equal(t, 0, st.Running)
	assert.Equal(t, 0, st.Waiting)
	assert.Equal(t, 0, st.Failed)
	assert.Equal(t, 0, st.Total)
}

func TestCancelQueuedJobBeforeDispatch(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	s.Start(1)
	release := make(chan struct{})
	busy := newTestJob(0, blockUntil(release))
	var ran int32
	waiting := newTestJob(1, func(ctx context.Context, exec *Execution) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	require.NoError(t, s.Submit(busy))
	waitUntil(t, "busy job is running", func() bool { return busy.State() == sched.Running })
	require.NoError(t, s.Submit(waiting))

	s.Cancel(waiting)
	assert.Equal(t, sched.Created, waiting.State())
	close(release)
	waitFor(t, busy)
	waitUntil(t, "scheduler is idle", s.Idle)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestYieldResumesFromCheckpoint(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	release := make(chan struct{})
	dep := newTestJob(0, blockUntil(release))
	stateAfterYield := make(chan sched.State, 1)
	resumedWith := make(chan sched.Checkpoint, 1)
	var runs int32

	parent := newTestJob(0, func(ctx context.Context, exec *Execution) error {
		atomic.AddInt32(&runs, 1)
		if !exec.Resumed() {
			if err := s.Submit(dep); err != nil {
				return err
			}
			if err := exec.Yield("C", dep); err != nil {
				return err
			}
			stateAfterYield <- exec.Job().State()
			<-ctx.Done()
			return ctx.Err()
		}
		resumedWith <- exec.Checkpoint()
		return nil
	})
	s.Start(2)
	require.NoError(t, s.Submit(parent))

	assert.Equal(t, sched.Yielded, <-stateAfterYield)
	waitUntil(t, "dep is running", func() bool { return dep.State() == sched.Running })
	waitUntil(t, "parent released its slot", func() bool { return s.Stats().Running == 1 })
	assert.Equal(t, sched.Yielded, parent.State())
	assert.Equal(t, "C", parent.Checkpoint())

	close(release)
	assert.Equal(t, sched.Finished, waitFor(t, parent))
	assert.Equal(t, "C", <-resumedWith)
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
	assert.Nil(t, parent.Checkpoint())
}

func TestInterruptedRunKeepsYieldedCheckpoint(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	interrupted := make(chan struct{})
	resumedWith := make(chan sched.Checkpoint, 1)
	var runs int32
	job := newTestJob(0, func(ctx context.Context, exec *Execution) error {
		switch atomic.AddInt32(&runs, 1) {
		case 1:
			return exec.Yield("C")
		case 2:
			close(interrupted)
			<-ctx.Done()
			return ctx.Err()
		}
		resumedWith <- exec.Checkpoint()
		return nil
	})
	s.Start(1)
	require.NoError(t, s.Submit(job))
	<-interrupted

	s.Stop()
	s.Wait()
	assert.Equal(t, sched.Queued, job.State())
	assert.Equal(t, "C", job.Checkpoint())

	s.Start(1)
	assert.Equal(t, sched.Finished, waitFor(t, job))
	assert.Equal(t, "C", <-resumedWith)
	assert.Equal(t, int32(3), atomic.LoadInt32(&runs))
}

func TestYieldWithoutDependenciesRedispatches(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	var runs int32
	job := newTestJob(0, func(ctx context.Context, exec *Execution) error {
		n := atomic.AddInt32(&runs, 1)
		if n < 3 {
			return exec.Yield(int(n))
		}
		if exec.Checkpoint() != 2 {
			return errors.Errorf("unexpected checkpoint %v", exec.Checkpoint())
		}
		return nil
	})
	s.Start(1)
	require.NoError(t, s.Submit(job))
	assert.Equal(t, sched.Finished, waitFor(t, job))
	assert.Equal(t, int32(3), atomic.LoadInt32(&runs))
}

func TestAuxiliaryChainResumesAfterBothSubJobs(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	rel1, rel2 := make(chan struct{}), make(chan struct{})
	sub1 := newTestJob(0, blockUntil(rel1))
	sub2 := newTestJob(0, blockUntil(rel2))
	var runs int32
	resumedWith := make(chan sched.Checkpoint, 1)

	parent := newTestJob(0, func(ctx context.Context, exec *Execution) error {
		atomic.AddInt32(&runs, 1)
		if !exec.Resumed() {
			return exec.SpawnAuxiliary("replayed", sub1, sub2)
		}
		resumedWith <- exec.Checkpoint()
		return nil
	})
	s.Start(4)
	require.NoError(t, s.Submit(parent))

	waitUntil(t, "both sub-jobs are running", func() bool {
		return sub1.State() == sched.Running && sub2.State() == sched.Running
	})
	assert.NotEqual(t, sched.Running, parent.State())

	close(rel1)
	assert.Equal(t, sched.Finished, waitFor(t, sub1))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, sched.Yielded, parent.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	close(rel2)
	assert.Equal(t, sched.Finished, waitFor(t, parent))
	assert.Equal(t, "replayed", <-resumedWith)
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
}

func TestEmptyAuxiliaryChainIsIgnored(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	chainErr := make(chan error, 1)
	job := newTestJob(0, func(ctx context.Context, exec *Execution) error {
		chainErr <- exec.SpawnAuxiliary("unused")
		return nil
	})
	s.Start(1)
	require.NoError(t, s.Submit(job))
	assert.Equal(t, sched.Finished, waitFor(t, job))
	assert.True(t, sched.IsEmptyBatch(<-chainErr))
}

func TestYieldOutsideExecutionFails(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	var kept *Execution
	job := newTestJob(0, func(ctx context.Context, exec *Execution) error {
		kept = exec
		return nil
	})
	s.Start(1)
	require.NoError(t, s.Submit(job))
	require.Equal(t, sched.Finished, waitFor(t, job))
	waitUntil(t, "scheduler is idle", s.Idle)

	err := kept.Yield("late")
	assert.True(t, sched.IsInvalidState(err), "got %v", err)
}

func TestAddDependencyReblocksRunningJob(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	release := make(chan struct{})
	dep := newTestJob(0, blockUntil(release))
	started := make(chan struct{}, 2)
	var runs int32
	job := newTestJob(0, func(ctx context.Context, exec *Execution) error {
		if atomic.AddInt32(&runs, 1) == 1 {
			started <- struct{}{}
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	s.Start(2)
	require.NoError(t, s.Submit(job))
	<-started

	require.NoError(t, s.Submit(dep))
	require.NoError(t, s.AddDependency(job, dep))
	assert.Equal(t, sched.Yielded, job.State())
	waitUntil(t, "job released its slot", func() bool { return s.Stats().Running == 1 })
	assert.Equal(t, sched.Yielded, job.State())

	close(release)
	assert.Equal(t, sched.Finished, waitFor(t, job))
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))

	assert.True(t, sched.IsInvalidState(s.AddDependency(job, dep)))
}

func TestAddDependencyToReadyJob(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	job := newTestJob(0, nil)
	dep := newTestJob(0, nil)
	require.NoError(t, s.Submit(job))
	require.NoError(t, s.AddDependency(job, dep))
	assert.Equal(t, []*Job{job}, s.Blocked())

	require.NoError(t, s.Submit(dep))
	s.Start(1)
	assert.Equal(t, sched.Finished, waitFor(t, job))
	assert.Equal(t, sched.Finished, dep.State())
}

func TestConcurrencyNeverExceedsWorkers(t *testing.T) {
	const k, n = 4, 20
	s := NewScheduler(SchedulerConfig{}, nil)
	release := make(chan struct{})
	var cur, max int32
	jobs := make([]*Job, n)
	for i := range jobs {
		jobs[i] = newTestJob(0, func(ctx context.Context, exec *Execution) error {
			c := atomic.AddInt32(&cur, 1)
			for {
				m := atomic.LoadInt32(&max)
				if c <= m || atomic.CompareAndSwapInt32(&max, m, c) {
					break
				}
			}
			<-release
			atomic.AddInt32(&cur, -1)
			return nil
		})
	}
	require.NoError(t, s.SubmitBatch(jobs...))
	s.Start(k)
	assert.Equal(t, k, s.WorkerCount())

	waitUntil(t, "all slots are busy", func() bool { return s.Stats().Running == k })
	assert.Equal(t, n-k, s.Stats().Waiting)
	close(release)
	for _, j := range jobs {
		assert.Equal(t, sched.Finished, waitFor(t, j))
	}
	waitUntil(t, "scheduler is idle", s.Idle)
	assert.Equal(t, int32(k), atomic.LoadInt32(&max))
	assert.Equal(t, n, s.Stats().Finished)
}

func TestPriorityAndFifoDispatchOrder(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	var mu sync.Mutex
	var order []string
	record := func(name string) func(ctx context.Context, exec *Execution) error {
		return func(ctx context.Context, exec *Execution) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	jobs := []*Job{
		newTestJob(3, record("low")),
		newTestJob(1, record("high-first")),
		newTestJob(1, record("high-second")),
		newTestJob(2, record("mid")),
	}
	require.NoError(t, s.SubmitBatch(jobs...))
	s.Start(1)
	for _, j := range jobs {
		waitFor(t, j)
	}
	assert.Equal(t, []string{"high-first", "high-second", "mid", "low"}, order)
}

func TestStopFreezesAndStartResumes(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	s.Start(1)
	started := make(chan struct{})
	var aRuns, bRuns int32
	a := newTestJob(0, func(ctx context.Context, exec *Execution) error {
		if atomic.AddInt32(&aRuns, 1) == 1 {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	b := newTestJob(1, func(ctx context.Context, exec *Execution) error {
		atomic.AddInt32(&bRuns, 1)
		return nil
	})
	require.NoError(t, s.Submit(a))
	<-started
	require.NoError(t, s.Submit(b))

	frozen := s.Stop()
	assert.Equal(t, []*Job{b}, frozen)
	s.Wait()
	assert.Equal(t, sched.Queued, a.State())
	assert.False(t, s.IsExecuting())
	assert.Equal(t, 0, s.WorkerCount())
	assert.Nil(t, s.Stop())

	// The interrupted job is not failed; it waits for the next Start.
	waitUntil(t, "interrupted job is requeued", func() bool { return a.State() == sched.Queued })
	waitUntil(t, "scheduler is idle", s.Idle)
	assert.Equal(t, sched.Queued, b.State())
	assert.Equal(t, int32(0), atomic.LoadInt32(&bRuns))
	assert.Equal(t, 0, s.Stats().Failed)

	// Submissions while stopped are accepted and wait too.
	c := newTestJob(0, nil)
	require.NoError(t, s.Submit(c))

	s.Start(2)
	assert.True(t, s.IsExecuting())
	for _, j := range []*Job{a, b, c} {
		assert.Equal(t, sched.Finished, waitFor(t, j))
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&aRuns))
	assert.Equal(t, int32(1), atomic.LoadInt32(&bRuns))
}

func TestFailedJobsKeepsMostRecent(t *testing.T) {
	s := NewScheduler(SchedulerConfig{FailedQueueCapacity: 3}, nil)
	jobs := make([]*Job, 4)
	for i := range jobs {
		jobs[i] = newTestJob(i, func(ctx context.Context, exec *Execution) error {
			return errors.New("failed")
		})
	}
	require.NoError(t, s.SubmitBatch(jobs...))
	s.Start(1)
	for _, j := range jobs {
		assert.Equal(t, sched.Error, waitFor(t, j))
	}
	waitUntil(t, "scheduler is idle", s.Idle)
	assert.Equal(t, jobs[1:], s.FailedJobs())
	assert.Equal(t, 4, s.Stats().Failed)
}

type hookedWork struct {
	testWork
	mu     sync.Mutex
	events []string
}

func (w *hookedWork) record(e string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
}
func (w *hookedWork) AboutToBeEnqueued(job *Job) { w.record("enqueued") }
func (w *hookedWork) AboutToBeDequeued(job *Job) { w.record("dequeued") }
func (w *hookedWork) JobStateChanged(job *Job, state sched.State) {
	w.record(state.String())
}

func TestHooks(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	w := &hookedWork{}
	job := NewJob(w)
	require.NoError(t, s.Submit(job))
	s.Cancel(job)
	require.NoError(t, s.Submit(job))
	s.Start(1)
	assert.Equal(t, sched.Finished, waitFor(t, job))
	waitUntil(t, "scheduler is idle", s.Idle)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, []string{"enqueued", "dequeued", "enqueued", "Finished"}, w.events)
}

func TestDequeueHookOnlyWhenCancelTakesEffect(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	s.Start(1)
	started := make(chan struct{})
	release := make(chan struct{})
	w := &hookedWork{}
	w.run = func(ctx context.Context, exec *Execution) error {
		close(started)
		<-release
		return nil
	}
	job := NewJob(w)
	require.NoError(t, s.Submit(job))
	<-started
	s.Cancel(job)
	close(release)
	assert.Equal(t, sched.Finished, waitFor(t, job))
	waitUntil(t, "scheduler is idle", s.Idle)

	w.mu.Lock()
	assert.Equal(t, []string{"enqueued", "Finished"}, w.events)
	w.mu.Unlock()

	started = make(chan struct{})
	w = &hookedWork{}
	w.run = func(ctx context.Context, exec *Execution) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	job = NewJob(w)
	require.NoError(t, s.Submit(job))
	<-started
	s.Cancel(job)
	waitUntil(t, "cancelled job is detached", func() bool { return job.State() == sched.Created })

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, []string{"enqueued", "dequeued"}, w.events)
}

func TestStatsByClassAndMetrics(t *testing.T) {
	reg := stats.NewFinagleStatsRegistry()
	stat := stats.NewCustomStatsReceiver(func() stats.StatsRegistry { return reg })
	s := NewScheduler(SchedulerConfig{PerfLog: true}, stat)

	ok := NewJob(&testWork{class: "metric/loc"})
	bad := NewJob(&testWork{class: "summary", run: func(ctx context.Context, exec *Execution) error {
		return errors.New("no data")
	}})
	require.NoError(t, s.SubmitBatch(ok, bad))
	s.Start(1)
	waitFor(t, ok)
	waitFor(t, bad)
	waitUntil(t, "scheduler is idle", s.Idle)

	st := s.Stats()
	assert.Equal(t, []string{"metric/loc", "summary"}, st.ClassNames())
	assert.Equal(t, ClassStats{Finished: 1}, st.Classes["metric/loc"])
	assert.Equal(t, ClassStats{Failed: 1}, st.Classes["summary"])

	locStarted := "metric_SLASH_loc/" + stats.SchedClassStartedCounter
	summaryFailed := "summary/" + stats.SchedClassFailedCounter
	stats.VerifyStats("scheduler", reg, t, map[string]stats.Rule{
		stats.SchedJobsSubmittedCounter:        {Checker: stats.Int64EqTest, Value: 2},
		stats.SchedJobsFinishedCounter:         {Checker: stats.Int64EqTest, Value: 1},
		stats.SchedJobsFailedCounter:           {Checker: stats.Int64EqTest, Value: 1},
		stats.SchedJobsWaitingGauge:            {Checker: stats.Int64EqTest, Value: 0},
		stats.SchedJobsRunningGauge:            {Checker: stats.Int64EqTest, Value: 0},
		stats.SchedFailedQueueLenGauge:         {Checker: stats.Int64EqTest, Value: 1},
		locStarted:                             {Checker: stats.Int64EqTest, Value: 1},
		summaryFailed:                          {Checker: stats.Int64EqTest, Value: 1},
		"pool/" + stats.PoolStartedCounter:     {Checker: stats.Int64EqTest, Value: 2},
		stats.SchedJobRunLatency_ms + ".count": {Checker: stats.Int64EqTest, Value: 2},
	})

	_, known := s.AverageRunTime("metric/loc")
	assert.True(t, known)
	_, known = s.AverageRunTime("unknown")
	assert.False(t, known)
}

func TestJobClassDefaultsToWorkType(t *testing.T) {
	job := NewJob(prioWork{})
	assert.Equal(t, "scheduler.prioWork", job.Class())
	assert.NotEmpty(t, job.ID())
	assert.NotEqual(t, job.ID(), NewJob(prioWork{}).ID())
}

func TestDependOnAfterSubmitFails(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	job := newTestJob(0, nil)
	require.NoError(t, s.Submit(job))
	assert.True(t, sched.IsInvalidState(job.DependOn(newTestJob(0, nil))))
	assert.True(t, sched.IsInvalidState(job.DependOn(job)))
}
