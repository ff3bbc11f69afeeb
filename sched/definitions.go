// Package sched provides the definitions shared by the dependency-aware job scheduler:
// the job lifecycle states, the transitions allowed between them, and the error taxonomy.
package sched

import "fmt"

// State of a Job in the scheduler.
type State int

const (
	// Created by its producer, not tracked by any scheduler.
	// Cancelled jobs return to this state and may be submitted again.
	Created State = iota

	// Submitted and tracked. Either blocked on unmet dependencies,
	// waiting in the ready queue, or holding a not yet started execution handle.
	Queued

	// Executing its unit of work on a worker slot.
	Running

	// Voluntarily suspended mid-execution, waiting for the dependencies it added.
	Yielded

	// Completed successfully. Terminal.
	Finished

	// The unit of work failed. Terminal, never retried.
	Error
)

var stateNames = [...]string{"Created", "Queued", "Running", "Yielded", "Finished", "Error"}

func (s State) String() string {
	if s < Created || s > Error {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// IsTerminal returns true for Finished and Error.
func (s State) IsTerminal() bool {
	return s == Finished || s == Error
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle step.
//
//	Created  -> Queued                       submission
//	Queued   -> Running                      dispatch
//	Queued   -> Created                      cancellation before the unit started
//	Running  -> Finished | Error | Yielded   completion, failure, cooperative yield
//	Running  -> Created                      cancellation honoured after dispatch
//	Yielded  -> Queued                       dependencies satisfied again
//	Yielded  -> Created                      cancellation while suspended
//	Yielded  -> Error                        unit failed after yielding
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case Created:
		return next == Queued
	case Queued:
		return next == Running || next == Created
	case Running:
		return next == Finished || next == Error || next == Yielded || next == Created
	case Yielded:
		return next == Queued || next == Created || next == Error
	case Finished, Error:
		return false
	default:
		panic(fmt.Sprintf("sched: unhandled state %d", int(s)))
	}
}

// Checkpoint is the opaque resume payload a job hands to the scheduler when it yields.
// Only the job interprets it.
type Checkpoint interface{}
