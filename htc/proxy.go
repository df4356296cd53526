package htc

import (
	"context"
)

// SubmitRequest carries everything needed to render and submit one job.
type SubmitRequest struct {
	JobName string
	// Where the rendered script is placed, on the host the scheduler CLI runs on.
	SubmissionPath string
	Pipeline       Pipeline
	CPUs           int
	MemoryMB       int64
	// Run unconditionally after the pipeline.
	PostProcessing []Command
}

// Proxy submits, monitors and cancels jobs on one scheduler family.
//
// A Proxy is not safe for concurrent use. Callers that poll or submit from
// several goroutines obtain one Proxy each through CloneThreadsafe; every clone
// owns its own command service and status cache.
//
// Status, Info and JobInfos only consult the snapshot taken by the most recent
// RunningJobIDs call; freshness is the caller's responsibility.
type Proxy interface {
	Family() Family

	// Submit renders the job's submission script, transfers it to
	// req.SubmissionPath and submits it. Failures are *SubmissionError.
	Submit(ctx context.Context, req SubmitRequest) (JobID, error)

	// Kill cancels a job. A job the scheduler does not know is reported as
	// *JobNotFoundError, any other failure as *SchedulerCommandError.
	Kill(ctx context.Context, id JobID) error

	// Status returns the job's status from the latest snapshot, or *JobNotFoundError.
	Status(id JobID) (JobStatus, error)

	// Info returns the job's info from the latest snapshot, or *JobNotFoundError.
	Info(id JobID) (JobInfo, error)

	// RunningJobIDs queries the scheduler, replaces the snapshot with every job
	// whose name starts with prefix, and returns those that are pending,
	// running or exited.
	RunningJobIDs(ctx context.Context, prefix string) ([]JobID, error)

	// JobInfos looks up each id in the snapshot; unknown ids are omitted.
	JobInfos(ids []JobID) map[JobID]JobInfo

	// CloneThreadsafe returns an independent Proxy with an empty snapshot.
	CloneThreadsafe() Proxy

	SubmissionFileExtension() string
}

// ParseResult is the outcome of parsing one status dump.
type ParseResult struct {
	Records []JobRecord
	// Entries that could not be parsed; the rest of the dump is still returned.
	Errors []*ParseError
}

// StatusParser turns a scheduler's raw status query output into job records.
// Only jobs whose name starts with prefix are materialized. A structurally
// malformed dump is returned as an error; a malformed entry is collected in
// ParseResult.Errors.
type StatusParser interface {
	Parse(output []byte, prefix string) (*ParseResult, error)
}
