package sched

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvalidStateError is returned when an operation is requested on a job whose
// current state does not permit it.
type InvalidStateError struct {
	JobID string
	State State
	Op    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s job %s in state %s", e.Op, e.JobID, e.State)
}

// EmptyBatchError is returned when a batch or auxiliary chain operation has no jobs to act on.
// The operation is a no-op.
type EmptyBatchError struct {
	Op string
}

func (e *EmptyBatchError) Error() string {
	return fmt.Sprintf("empty batch passed to %s", e.Op)
}

// JobExecutionError records the failure raised by a job's unit of work.
type JobExecutionError struct {
	JobID string
	Class string
	Err   error
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("job %s (%s) failed: %v", e.JobID, e.Class, e.Err)
}

// Cause lets errors.Cause reach the underlying failure.
func (e *JobExecutionError) Cause() error {
	return e.Err
}

// PoolUnavailableError is returned by the worker pool when it is paused.
type PoolUnavailableError struct{}

func (e *PoolUnavailableError) Error() string {
	return "worker pool is not running"
}

// IsInvalidState returns true if err, or anything it wraps, is an InvalidStateError.
func IsInvalidState(err error) bool {
	_, ok := errors.Cause(err).(*InvalidStateError)
	return ok
}

// IsEmptyBatch returns true if err, or anything it wraps, is an EmptyBatchError.
func IsEmptyBatch(err error) bool {
	_, ok := errors.Cause(err).(*EmptyBatchError)
	return ok
}

// IsPoolUnavailable returns true if err, or anything it wraps, is a PoolUnavailableError.
func IsPoolUnavailable(err error) bool {
	_, ok := errors.Cause(err).(*PoolUnavailableError)
	return ok
}
