// Package script renders a job's command pipeline into a bash submission
// script. The scheduler specific header lines come from a Dialect; the body,
// exit status propagation and exit handler wiring are the same for every
// scheduler.
package script

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/twitter/htcproxy/htc"
)

// Header is what a Dialect needs to know to emit its directives.
type Header struct {
	JobName   string
	Partition string
	// Both stdout and stderr of the job go here.
	LogPath  string
	CPUs     int
	MemoryMB int64
}

// Dialect emits the scheduler specific directive lines of a submission script.
type Dialect interface {
	// Lower case scheduler name, used in log file names.
	Name() string
	// Human readable scheduler name, used in script echo lines.
	DisplayName() string
	// Directive lines (without trailing newline) placed right after the shebang.
	// When h.CPUs > 1 this includes the parallel execution directive.
	Directives(h Header) []string
}

// Builder renders submission scripts for one scheduler.
type Builder struct {
	Dialect Dialect
	// Directory the job logs are written to, on the execution hosts.
	LogDir string
	// MPI installation used to wrap parallel commands.
	MPIHome   string
	Partition string
	// Added to every non-zero memory request.
	MemoryOverheadMB int64
}

const (
	runFunc  = "runCommand"
	exitFunc = "callExitProcessor"
)

var jobNameRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// LogPath is where a job's stdout and stderr are redirected.
func (b *Builder) LogPath(jobName string) string {
	return path.Join(b.LogDir, fmt.Sprintf("%s.%s.log", jobName, b.Dialect.Name()))
}

// MPICommand wraps command with the MPI launcher for cpus processes.
func (b *Builder) MPICommand(cpus int, command htc.Command) string {
	return fmt.Sprintf("%s -np %d %s", path.Join(b.MPIHome, "bin", "mpiexec"), cpus, command.Joined())
}

// Build renders the submission script for one job.
//
// Every pipeline command is run through a helper that echoes it first, its
// status is captured and echoed, and a non-zero status calls the exit handler
// (if any) and terminates the script with that status. Post-processing
// commands run unconditionally afterwards; the exit handler is then called
// once more with 0, which is only reachable when every pipeline command succeeded.
func (b *Builder) Build(jobName string, pipeline htc.Pipeline, cpus int, memoryMB int64, postProcessing []htc.Command) (string, error) {
	if err := b.validate(jobName, pipeline, cpus, postProcessing); err != nil {
		return "", err
	}
	isParallel := cpus > 1

	w := &lineWriter{}
	w.line("#!/bin/bash")
	header := Header{
		JobName:   jobName,
		Partition: b.Partition,
		LogPath:   b.LogPath(jobName),
		CPUs:      cpus,
	}
	if memoryMB > 0 {
		header.MemoryMB = memoryMB + b.MemoryOverheadMB
	}
	for _, d := range b.Dialect.Directives(header) {
		w.line(d)
	}
	if isParallel && b.MPIHome != "" {
		w.line(fmt.Sprintf("export LD_LIBRARY_PATH=%s:$LD_LIBRARY_PATH", path.Join(b.MPIHome, "lib")))
	}
	w.newline()

	w.line(runFunc + "() {")
	w.line("\techo \"command = $*\"")
	w.line("\t\"$@\"")
	w.line("}")

	hasExitProcessor := pipeline.HasExitHandler()
	if hasExitProcessor {
		w.line(exitFunc + "() {")
		w.line("\t" + runFunc + " " + pipeline.ExitHandler.Joined(`"$1"`))
		w.line("}")
	}
	w.line("echo")

	for _, c := range pipeline.Commands {
		cmd := c.Joined()
		if c.Parallel {
			cmd = b.MPICommand(cpus, c)
		}
		w.line("echo")
		w.line(runFunc + " " + cmd)
		w.line("stat=$?")
		w.line("echo " + cmd + " returned $stat")
		w.line("if [ $stat -ne 0 ]; then")
		if hasExitProcessor {
			w.line("\t" + exitFunc + " $stat")
		}
		w.line(fmt.Sprintf("\techo \"returning $stat to %s\"", b.Dialect.DisplayName()))
		w.line("\texit $stat")
		w.line("fi")
	}

	if len(postProcessing) > 0 {
		w.newline()
		for _, c := range postProcessing {
			w.line(runFunc + " " + c.Joined())
		}
	}
	w.newline()
	if hasExitProcessor {
		w.line(exitFunc + " 0")
	}
	return w.String(), nil
}

func (b *Builder) validate(jobName string, pipeline htc.Pipeline, cpus int, postProcessing []htc.Command) error {
	if !jobNameRe.MatchString(jobName) {
		return htc.NewScriptError("job name %q must be non-empty and contain only letters, digits, '.', '_' or '-'", jobName)
	}
	if cpus < 1 {
		return htc.NewScriptError("job %s requests %d cpus", jobName, cpus)
	}
	if len(pipeline.Commands) == 0 {
		return htc.NewScriptError("job %s has an empty pipeline", jobName)
	}
	for _, c := range pipeline.Commands {
		if len(c.Argv) == 0 {
			return htc.NewScriptError("job %s has a pipeline command with no arguments", jobName)
		}
		if c.Parallel && cpus <= 1 {
			return htc.NewScriptError("parallel command %s called in non-parallel submit", c.Joined())
		}
	}
	for _, c := range postProcessing {
		if len(c.Argv) == 0 {
			return htc.NewScriptError("job %s has a post-processing command with no arguments", jobName)
		}
	}
	if pipeline.HasParallel() && b.MPIHome == "" {
		return htc.NewScriptError("job %s has parallel commands but no MPI home is configured", jobName)
	}
	return nil
}

// lineWriter accumulates script text with Unix line endings.
type lineWriter struct {
	sb strings.Builder
}

func (w *lineWriter) line(s string) {
	w.sb.WriteString(s)
	w.sb.WriteByte('\n')
}

func (w *lineWriter) newline() {
	w.sb.WriteByte('\n')
}

func (w *lineWriter) String() string {
	return w.sb.String()
}
