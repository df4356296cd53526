package htc

import (
	"strings"
)

// Command is one shell command of a submission pipeline.
type Command struct {
	Argv []string
	// Parallel marks commands that may be launched under the MPI wrapper.
	Parallel bool
}

func NewCommand(argv ...string) Command {
	return Command{Argv: argv}
}

func NewParallelCommand(argv ...string) Command {
	return Command{Argv: argv, Parallel: true}
}

// Joined renders the command as a single shell line, quoting arguments where needed.
// Any extra arguments are appended verbatim, so "$1" style references stay unquoted.
func (c Command) Joined(extra ...string) string {
	parts := make([]string, 0, len(c.Argv)+len(extra))
	for _, a := range c.Argv {
		parts = append(parts, ShellQuote(a))
	}
	parts = append(parts, extra...)
	return strings.Join(parts, " ")
}

func (c Command) String() string {
	return c.Joined()
}

// Pipeline is the ordered set of commands run by a submission script, plus the
// optional handler invoked with a failing command's exit status.
type Pipeline struct {
	Commands    []Command
	ExitHandler *Command
}

func (p Pipeline) HasExitHandler() bool {
	return p.ExitHandler != nil && len(p.ExitHandler.Argv) > 0
}

// HasParallel reports whether any pipeline command is parallel-capable.
func (p Pipeline) HasParallel() bool {
	for _, c := range p.Commands {
		if c.Parallel {
			return true
		}
	}
	return false
}

const shellSafe = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_./=:,+@%"

// ShellQuote single-quotes s for bash unless it is made only of characters that need no quoting.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !strings.ContainsRune(shellSafe, r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.Replace(s, "'", `'"'"'`, -1) + "'"
}
