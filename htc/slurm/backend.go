// Package slurm drives Slurm through sbatch, scancel and sacct.
package slurm

import (
	"path"
	"strings"

	"github.com/twitter/htcproxy/htc"
	"github.com/twitter/htcproxy/htc/script"
)

const (
	SubmitCmd = "sbatch"
	CancelCmd = "scancel"
	StatusCmd = "sacct"

	SubmissionFileExt = ".slurm.sub"

	// scancel exits with this code when the job id is unknown.
	CancelJobNotFoundExitCode = 1
)

// Substrings of scancel's output for an unknown job id. Older releases say
// "does not exist", current ones "Invalid job id specified".
var CancelJobNotFoundResponses = []string{"does not exist", "invalid job id specified"}

type Config struct {
	// Directory holding the slurm commands. Empty means they are on the PATH.
	BinDir string
	// Restrict status queries to this user's jobs. Empty means the invoking user.
	User string
	// Passed to sacct --starttime. Empty keeps sacct's default window.
	StartTime string
}

// Backend is the Slurm implementation of the proxies.Backend contract.
type Backend struct {
	cfg Config
}

func NewBackend(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

func (b *Backend) Family() htc.Family              { return htc.Slurm }
func (b *Backend) SubmissionFileExtension() string { return SubmissionFileExt }
func (b *Backend) Dialect() script.Dialect         { return Dialect() }
func (b *Backend) StatusParser() htc.StatusParser  { return StatusParser{} }

func (b *Backend) bin(cmd string) string {
	if b.cfg.BinDir == "" {
		return cmd
	}
	return path.Join(b.cfg.BinDir, cmd)
}

func (b *Backend) SubmitArgv(submissionPath string) []string {
	return []string{b.bin(SubmitCmd), "--parsable", submissionPath}
}

// ParseSubmitOutput reads the "jobid[;cluster]" line printed by sbatch --parsable.
func (b *Backend) ParseSubmitOutput(stdout string) (htc.JobID, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	return htc.ParseJobID(htc.Slurm, lines[len(lines)-1])
}

func (b *Backend) KillArgv(id htc.JobID) []string {
	return []string{b.bin(CancelCmd), id.Native()}
}

func (b *Backend) KillNotFound() (int, []string) {
	return CancelJobNotFoundExitCode, CancelJobNotFoundResponses
}

func (b *Backend) StatusArgv() []string {
	argv := []string{b.bin(StatusCmd), "-X", "-P", "--format=" + strings.Join(statusFields, ",")}
	if b.cfg.User != "" {
		argv = append(argv, "--user="+b.cfg.User)
	}
	if b.cfg.StartTime != "" {
		argv = append(argv, "--starttime="+b.cfg.StartTime)
	}
	return argv
}
