package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	uuid "github.com/nu7hatch/gouuid"

	"github.com/twitter/depsched/sched"
	"github.com/twitter/depsched/sched/workers"
)

// Work is the unit of work a producer hands to the scheduler.
//
// Run may be invoked more than once for the same job: after a yield, the job is
// redispatched and Run observes the checkpoint it yielded through exec.Checkpoint().
// ctx is cancelled when the job yields, is cancelled, or the scheduler is stopped.
type Work interface {
	Priority() int
	Run(ctx context.Context, exec *Execution) error
}

// Classifier lets Work name the statistics class it is counted under.
// Without it the class is the Go type name of the Work.
type Classifier interface {
	Class() string
}

// EnqueueHook is invoked with the scheduler lock held right before the job is registered.
// It must not call back into the scheduler.
type EnqueueHook interface {
	AboutToBeEnqueued(job *Job)
}

// DequeueHook is invoked with the scheduler lock held right before a cancelled job is
// detached. For an executing job that is when its run returns, and only if the run failed
// to complete.
// It must not call back into the scheduler.
type DequeueHook interface {
	AboutToBeDequeued(job *Job)
}

// StateListener is invoked with the scheduler lock held whenever the job enters
// Finished or Error. It must not call back into the scheduler.
type StateListener interface {
	JobStateChanged(job *Job, state sched.State)
}

// Job is a unit of schedulable work plus the bookkeeping the scheduler keeps for it.
// The scheduler mutates a job only while holding its own lock and then the job's.
type Job struct {
	id       string
	class    string
	priority int
	work     Work

	mu         sync.Mutex
	state      sched.State
	owner      *Scheduler
	seq        uint64
	deps       map[*Job]struct{}
	handle     *workers.Handle
	exec       *Execution
	checkpoint sched.Checkpoint
	err        error

	cancelRequested bool
	reblocked       bool
	submitted       time.Time
	readySince      time.Time
	dispatched      time.Time
	done            chan struct{}
}

// NewJob wraps work in a Created job with a fresh random identity.
func NewJob(work Work) *Job {
	class := fmt.Sprintf("%T", work)
	if c, ok := work.(Classifier); ok {
		class = c.Class()
	}
	return &Job{
		id:       generateJobID(),
		class:    class,
		priority: work.Priority(),
		work:     work,
		state:    sched.Created,
		deps:     make(map[*Job]struct{}),
		done:     make(chan struct{}),
	}
}

// generates a job id using a random uuid
func generateJobID() string {
	// uuid.NewV4() only fails if the system's random source does.
	for {
		if id, err := uuid.NewV4(); err == nil {
			return id.String()
		}
	}
}

func (j *Job) ID() string     { return j.id }
func (j *Job) Class() string  { return j.class }
func (j *Job) Priority() int  { return j.priority }
func (j *Job) Work() Work     { return j.work }
func (j *Job) String() string { return fmt.Sprintf("%s(%s)", j.class, j.id) }
func (j *Job) Seq() uint64    { j.mu.Lock(); defer j.mu.Unlock(); return j.seq }
func (j *Job) Err() error     { j.mu.Lock(); defer j.mu.Unlock(); return j.err }
func (j *Job) State() sched.State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Checkpoint returns the payload recorded by the job's last yield that has not yet
// been handed back to a redispatched run.
func (j *Job) Checkpoint() sched.Checkpoint {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.checkpoint
}

// DependOn declares prerequisites that must reach Finished before the job may run.
// Only valid before submission; use Scheduler.AddDependency for a submitted job.
func (j *Job) DependOn(deps ...*Job) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != sched.Created || j.owner != nil {
		return &sched.InvalidStateError{JobID: j.id, State: j.state, Op: "declare dependency on"}
	}
	for _, d := range deps {
		if d == j {
			return &sched.InvalidStateError{JobID: j.id, State: j.state, Op: "depend on itself"}
		}
		j.deps[d] = struct{}{}
	}
	return nil
}

// Dependencies returns the prerequisites declared with DependOn that have not been
// handed to a scheduler yet.
func (j *Job) Dependencies() []*Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*Job, 0, len(j.deps))
	for d := range j.deps {
		out = append(out, d)
	}
	return out
}

// Wait blocks until the job reaches Finished or Error, or ctx is done.
func (j *Job) Wait(ctx context.Context) (sched.State, error) {
	select {
	case <-j.done:
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.state, j.err
	case <-ctx.Done():
		return j.State(), ctx.Err()
	}
}

// Must be called with the owning scheduler's lock held.
func (j *Job) setState(next sched.State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.state.CanTransitionTo(next) {
		panic(fmt.Sprintf("illegal transition %s -> %s for job %s", j.state, next, j))
	}
	j.state = next
	if next.IsTerminal() {
		close(j.done)
	}
}

func (j *Job) attach(owner *Scheduler, seq uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.owner = owner
	j.seq = seq
}

func (j *Job) detach() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.owner = nil
}

func (j *Job) isOwnedBy(s *Scheduler) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.owner == s
}

// Hands the declared prerequisites over to the scheduler's ledger.
func (j *Job) takeDeps() []*Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*Job, 0, len(j.deps))
	for d := range j.deps {
		out = append(out, d)
	}
	j.deps = make(map[*Job]struct{})
	return out
}

// Returns still-unmet prerequisites to a job leaving the scheduler, so a later
// resubmission honours them.
func (j *Job) restoreDeps(deps []*Job) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, d := range deps {
		j.deps[d] = struct{}{}
	}
}

func (j *Job) setCheckpoint(cp sched.Checkpoint) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.checkpoint = cp
}

func (j *Job) takeCheckpoint() sched.Checkpoint {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := j.checkpoint
	j.checkpoint = nil
	return cp
}

func (j *Job) setErr(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.err = err
}
