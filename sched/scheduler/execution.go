package scheduler

import (
	"context"

	"github.com/twitter/depsched/sched"
)

// Execution is a job's view of one dispatch onto a worker slot. It is only valid
// while the Run call it was passed to is in progress.
type Execution struct {
	job        *Job
	owner      *Scheduler
	checkpoint sched.Checkpoint
	// Guarded by the scheduler's lock.
	live    bool
	yielded bool
}

// Job returns the job being executed.
func (e *Execution) Job() *Job {
	return e.job
}

// Checkpoint returns the payload the job yielded with before this dispatch,
// or nil on the job's first run.
func (e *Execution) Checkpoint() sched.Checkpoint {
	return e.checkpoint
}

// Resumed reports whether this dispatch continues from a yield checkpoint.
func (e *Execution) Resumed() bool {
	return e.checkpoint != nil
}

// Yield suspends the job: checkpoint is stored, deps become prerequisites and the
// run's context is cancelled. Run should return promptly afterwards; the job is
// redispatched with the checkpoint once every dep has finished.
func (e *Execution) Yield(checkpoint sched.Checkpoint, deps ...*Job) error {
	return e.owner.Yield(e, checkpoint, deps...)
}

// SpawnAuxiliary submits subJobs and yields until all of them have finished.
func (e *Execution) SpawnAuxiliary(checkpoint sched.Checkpoint, subJobs ...*Job) error {
	return e.owner.CreateAuxiliaryChain(e, subJobs, checkpoint)
}

// dispatch is the pool task for one execution of a job.
type dispatch struct {
	job  *Job
	exec *Execution
}

func (d *dispatch) Priority() int { return d.job.Priority() }
func (d *dispatch) Seq() uint64   { return d.job.Seq() }

func (d *dispatch) Run(ctx context.Context) error {
	return d.job.work.Run(ctx, d.exec)
}
