// Package htc defines the job model shared by every batch scheduler backend:
// job identity, lifecycle status, descriptive info and the command pipeline
// that is rendered into a submission script.
package htc

import (
	"fmt"
	"strconv"
	"strings"
)

// Family identifies which scheduler issued a JobID.
type Family string

const (
	Slurm Family = "slurm"
	SGE   Family = "sge"
)

// ParseFamily returns the Family named by s, case-insensitive.
func ParseFamily(s string) (Family, error) {
	switch Family(strings.ToLower(strings.TrimSpace(s))) {
	case Slurm:
		return Slurm, nil
	case SGE:
		return SGE, nil
	}
	return "", fmt.Errorf("unsupported scheduler family %q, supported values are [%s %s]", s, Slurm, SGE)
}

// JobID is a scheduler assigned job number tagged with the scheduler family that issued it.
// JobIDs are comparable and may be used as map keys.
type JobID struct {
	Number int64
	Family Family
}

func NewJobID(family Family, number int64) JobID {
	return JobID{Number: number, Family: family}
}

// ParseJobID converts the native textual form a scheduler prints for a job into a JobID.
// Slurm may append a cluster name ("1234;cluster"), SGE may append an array task
// range ("1234.1-10:1"); both suffixes are ignored.
func ParseJobID(family Family, s string) (JobID, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ";."); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return JobID{}, fmt.Errorf("invalid %s job id %q", family, s)
	}
	return JobID{Number: n, Family: family}, nil
}

// Native returns the job number the scheduler CLI expects.
func (id JobID) Native() string {
	return strconv.FormatInt(id.Number, 10)
}

func (id JobID) String() string {
	return fmt.Sprintf("%s:%d", id.Family, id.Number)
}

// JobStatus is the normalized lifecycle state of a job.
type JobStatus int

const (
	// Unrecognized native state, never coerced into another status.
	UNKNOWN JobStatus = iota
	PENDING
	RUNNING
	// Completed with any exit code.
	EXITED
	// The scheduler failed to start or run the job.
	ERROR
	// Cancellation in flight.
	DELETING
	// No longer known to the scheduler.
	NOT_FOUND
)

var jobStatusNames = map[JobStatus]string{
	UNKNOWN:   "UNKNOWN",
	PENDING:   "PENDING",
	RUNNING:   "RUNNING",
	EXITED:    "EXITED",
	ERROR:     "ERROR",
	DELETING:  "DELETING",
	NOT_FOUND: "NOT_FOUND",
}

func (s JobStatus) String() string {
	if n, ok := jobStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("JobStatus(%d)", int(s))
}

// IsActive is true for the states reported by a running job listing.
func (s JobStatus) IsActive() bool {
	return s == PENDING || s == RUNNING || s == EXITED
}

// IsTerminal is true once the scheduler will not move the job to another state.
func (s JobStatus) IsTerminal() bool {
	return s == EXITED || s == ERROR || s == NOT_FOUND
}

// JobInfo describes a job as submitted or as first discovered by a status query.
type JobInfo struct {
	ID   JobID
	Name string
	// Execution host, if the scheduler reported one.
	Host string
	// Free form scheduler diagnostics (pending reason, exit code, error text).
	Diagnostic string
}

// WithDiagnostic returns a copy of the info carrying the given diagnostic text.
func (i JobInfo) WithDiagnostic(d string) JobInfo {
	i.Diagnostic = d
	return i
}

func (i JobInfo) String() string {
	return fmt.Sprintf("id:%s, name:%s, host:%s, diagnostic:%q", i.ID, i.Name, i.Host, i.Diagnostic)
}

// JobRecord pairs a JobInfo with the status it was last observed in.
type JobRecord struct {
	Info   JobInfo
	Status JobStatus
}

func (r JobRecord) String() string {
	return fmt.Sprintf("%s: %s", r.Info, r.Status)
}
