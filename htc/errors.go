package htc

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// SubmissionError is returned when a submission script could not be generated,
// transferred, or handed to the scheduler's submit command. It is fatal to that
// submission attempt and never retried by the proxy.
type SubmissionError struct {
	JobName string
	// Step that failed: "script", "write", "push", "submit" or "parse".
	Op     string
	Stdout string
	Stderr string
	cause  error
}

func NewSubmissionError(jobName, op string, stdout, stderr string, cause error) *SubmissionError {
	return &SubmissionError{JobName: jobName, Op: op, Stdout: stdout, Stderr: stderr, cause: cause}
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission of job %q failed during %s: %v%s", e.JobName, e.Op, e.cause, outputSuffix(e.Stdout, e.Stderr))
}

func (e *SubmissionError) Cause() error  { return e.cause }
func (e *SubmissionError) Unwrap() error { return e.cause }

// JobNotFoundError is the expected terminal condition for a job the scheduler
// (or the proxy's most recent status snapshot) no longer knows about.
type JobNotFoundError struct {
	ID     JobID
	Stdout string
	Stderr string
}

func NewJobNotFoundError(id JobID, stdout, stderr string) *JobNotFoundError {
	return &JobNotFoundError{ID: id, Stdout: stdout, Stderr: stderr}
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job %s not found%s", e.ID, outputSuffix(e.Stdout, e.Stderr))
}

// SchedulerCommandError reports an unexpected exit status or malformed output
// from a scheduler CLI invocation other than submission.
type SchedulerCommandError struct {
	Argv   []string
	Stdout string
	Stderr string
	cause  error
}

func NewSchedulerCommandError(argv []string, stdout, stderr string, cause error) *SchedulerCommandError {
	return &SchedulerCommandError{Argv: argv, Stdout: stdout, Stderr: stderr, cause: cause}
}

func (e *SchedulerCommandError) Error() string {
	return fmt.Sprintf("scheduler command %q failed: %v%s", strings.Join(e.Argv, " "), e.cause, outputSuffix(e.Stdout, e.Stderr))
}

func (e *SchedulerCommandError) Cause() error  { return e.cause }
func (e *SchedulerCommandError) Unwrap() error { return e.cause }

// ParseError describes one malformed entry of a status dump. It is collected
// alongside the successfully parsed entries and never aborts the parse.
type ParseError struct {
	// 1-based line (or job_list element) index within the dump.
	Entry  int
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed status entry %d (%s): %q", e.Entry, e.Reason, e.Raw)
}

// ScriptError is returned by the script builder for pipelines it refuses to render.
type ScriptError struct {
	Reason string
}

func (e *ScriptError) Error() string {
	return "invalid submission script: " + e.Reason
}

func NewScriptError(format string, args ...interface{}) *ScriptError {
	return &ScriptError{Reason: fmt.Sprintf(format, args...)}
}

func outputSuffix(stdout, stderr string) string {
	var b strings.Builder
	if s := strings.TrimSpace(stdout); s != "" {
		b.WriteString(", stdout: ")
		b.WriteString(s)
	}
	if s := strings.TrimSpace(stderr); s != "" {
		b.WriteString(", stderr: ")
		b.WriteString(s)
	}
	return b.String()
}

// find walks err and its causes looking for an error matching fn.
func find(err error, fn func(error) bool) bool {
	type causer interface {
		Cause() error
	}
	for err != nil {
		if fn(err) {
			return true
		}
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Cause()
	}
	return false
}

func IsJobNotFound(err error) bool {
	return find(err, func(e error) bool { _, ok := e.(*JobNotFoundError); return ok })
}

func IsSubmissionError(err error) bool {
	return find(err, func(e error) bool { _, ok := e.(*SubmissionError); return ok })
}

func IsSchedulerCommandError(err error) bool {
	return find(err, func(e error) bool { _, ok := e.(*SchedulerCommandError); return ok })
}

func IsScriptError(err error) bool {
	return find(err, func(e error) bool { _, ok := e.(*ScriptError); return ok })
}

// Wrapf annotates err with a stack trace and message, keeping it discoverable by the Is* predicates.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
