package errors

// ExitCodeError pairs an error with the process exit code the CLI should terminate with.
type ExitCodeError struct {
	code ExitCode
	error
}

func NewError(err error, exitCode ExitCode) *ExitCodeError {
	if err == nil {
		return nil
	}
	return &ExitCodeError{exitCode, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return 0
	}
	return e.code
}

func (e *ExitCodeError) Cause() error {
	return e.error
}

// ExitCodeFor returns the code carried by err (or anything it wraps), GenericFailureExitCode
// for any other non-nil error, and 0 for nil.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return 0
	}
	for err != nil {
		if e, ok := err.(*ExitCodeError); ok {
			return e.GetExitCode()
		}
		c, ok := err.(interface{ Cause() error })
		if !ok {
			break
		}
		err = c.Cause()
	}
	return GenericFailureExitCode
}
