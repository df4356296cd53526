package errors

import (
	"github.com/pkg/errors"

	"github.com/twitter/htcproxy/htc"
)

// ExitCodeError pairs an error with the process exit code the CLI reports for it.
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

// Classify picks the exit code for err from the htc error kinds.
// An error that already carries an exit code keeps it.
func Classify(err error) *ExitCodeError {
	if err == nil {
		return nil
	}
	if ece, ok := err.(*ExitCodeError); ok {
		return ece
	}
	switch {
	case htc.IsJobNotFound(err):
		return NewError(err, JobNotFoundExitCode)
	case htc.IsSubmissionError(err):
		return NewError(err, SubmissionFailureExitCode)
	case htc.IsSchedulerCommandError(err):
		return NewError(err, SchedulerFailureExitCode)
	case htc.IsScriptError(err):
		return NewError(err, SubmissionFailureExitCode)
	}
	return NewError(errors.WithStack(err), GenericFailureExitCode)
}
