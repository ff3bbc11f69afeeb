package workers

import (
	"context"
)

type handleState int

const (
	pending handleState = iota
	frozen
	running
	done
)

func (s handleState) String() string {
	switch s {
	case pending:
		return "pending"
	case frozen:
		return "frozen"
	case running:
		return "running"
	case done:
		return "done"
	}
	return "unknown"
}

// Handle is the cancellable token for one submission of a Task to a Pool.
// A Handle is owned by the Pool that returned it; all of its mutable fields are
// guarded by that pool's lock.
type Handle struct {
	task Task
	pool *Pool

	state       handleState
	cancelled   bool
	interrupted bool
	cancel      context.CancelFunc
}

// Task returns the task this handle was created for.
func (h *Handle) Task() Task {
	return h.task
}

// Priority and Seq order handles in the pool's pending queue the same way as their tasks.
func (h *Handle) Priority() int { return h.task.Priority() }
func (h *Handle) Seq() uint64   { return h.task.Seq() }

// Cancelled reports whether Cancel was requested for this handle.
func (h *Handle) Cancelled() bool {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.cancelled
}

// Interrupted reports whether the handle was running when the pool was paused,
// in which case its context was cancelled by Pause rather than by Cancel.
func (h *Handle) Interrupted() bool {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.interrupted
}

// Started reports whether the task has begun executing on a slot.
func (h *Handle) Started() bool {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.state == running || h.state == done
}
