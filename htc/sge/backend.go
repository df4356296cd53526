// Package sge drives Sun/Son of Grid Engine through qsub, qdel and qstat -xml.
package sge

import (
	"path"
	"strings"

	"github.com/twitter/htcproxy/htc"
	"github.com/twitter/htcproxy/htc/script"
)

const (
	SubmitCmd = "qsub"
	CancelCmd = "qdel"
	StatusCmd = "qstat"

	SubmissionFileExt = ".sge.sub"

	// qdel 6894
	// denied: job "6894" does not exist
	CancelJobNotFoundExitCode = 1
)

var CancelJobNotFoundResponses = []string{"does not exist"}

type Config struct {
	// Directory holding the SGE commands. Empty means they are on the PATH.
	BinDir string
	// Restrict status queries to this user's jobs. Empty means the invoking user.
	User string
}

// Backend is the SGE implementation of the proxies.Backend contract.
type Backend struct {
	cfg Config
}

func NewBackend(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

func (b *Backend) Family() htc.Family              { return htc.SGE }
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
	return []string{b.bin(SubmitCmd), "-terse", submissionPath}
}

// ParseSubmitOutput reads the job number printed by qsub -terse.
func (b *Backend) ParseSubmitOutput(stdout string) (htc.JobID, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	return htc.ParseJobID(htc.SGE, lines[len(lines)-1])
}

func (b *Backend) KillArgv(id htc.JobID) []string {
	return []string{b.bin(CancelCmd), id.Native()}
}

func (b *Backend) KillNotFound() (int, []string) {
	return CancelJobNotFoundExitCode, CancelJobNotFoundResponses
}

func (b *Backend) StatusArgv() []string {
	argv := []string{b.bin(StatusCmd), "-xml"}
	if b.cfg.User != "" {
		argv = append(argv, "-u", b.cfg.User)
	}
	return argv
}
