// Package exec puts an injectable interface in front of os/exec so command
// services can run scheduler tools for real or against fakes in tests.
package exec

import (
	"io"
	"os"
	osexec "os/exec"
	"syscall"
)

type (
	// OsExec creates commands. NewOsExec returns the os/exec backed one.
	OsExec interface {
		// Command resolves cmd through PATH when it has no separators, like os/exec.Command.
		Command(cmd string, args ...string) Cmd
	}

	// Cmd is the part of os/exec.Cmd that RunCommand needs.
	Cmd interface {
		Path() string

		// Args returns a copy of the argv, name included.
		Args() []string

		// Run, Start and Wait behave like their os/exec counterparts, except
		// that an unsuccessful exit is reported as an ExitError.
		Run() error
		Start() error
		Wait() error

		SetStdout(io.Writer)
		SetStderr(io.Writer)

		// Process is nil until the command has been started.
		Process() *os.Process

		// ProcessState is nil until the process has exited.
		ProcessState() *os.ProcessState
	}

	// ExitError describes a process that ran and did not exit 0. Check for it with a type assertion:
	//
	//   if ee, ok := err.(exec.ExitError); ok && ee.Exited() {
	//     status := ee.ExitStatus()
	//   }
	ExitError interface {
		// Exited is false when the process was terminated by a signal.
		Exited() bool

		// ExitStatus is -1 unless Exited.
		ExitStatus() int

		Signaled() bool
		Error() string
		Path() string
		Args() []string
	}

	defaultOsExec struct{}

	cmdAdapter struct {
		cmd *osexec.Cmd
	}

	exitErrorAdapter struct {
		err  *osexec.ExitError
		ws   syscall.WaitStatus
		path string
		args []string
	}
)

var (
	_ ExitError = &exitErrorAdapter{}
	_ Cmd       = &cmdAdapter{}
)

func NewOsExec() OsExec {
	return &defaultOsExec{}
}

func (d *defaultOsExec) Command(cmd string, args ...string) Cmd {
	return &cmdAdapter{cmd: osexec.Command(cmd, args...)}
}

// wrapExitError turns an *os/exec.ExitError into our ExitError and passes any other error through.
func wrapExitError(cmd Cmd, err error) error {
	ex, ok := err.(*osexec.ExitError)
	if !ok {
		return err
	}
	ws, ok := ex.Sys().(syscall.WaitStatus)
	if !ok {
		return err
	}
	return &exitErrorAdapter{err: ex, ws: ws, path: cmd.Path(), args: cmd.Args()}
}

func (e *exitErrorAdapter) Exited() bool    { return e.ws.Exited() }
func (e *exitErrorAdapter) ExitStatus() int { return e.ws.ExitStatus() }
func (e *exitErrorAdapter) Signaled() bool  { return e.ws.Signaled() }
func (e *exitErrorAdapter) Error() string   { return e.err.Error() }
func (e *exitErrorAdapter) Path() string    { return e.path }
func (e *exitErrorAdapter) Args() []string  { return e.args }

func (c *cmdAdapter) Run() error   { return wrapExitError(c, c.cmd.Run()) }
func (c *cmdAdapter) Start() error { return c.cmd.Start() }
func (c *cmdAdapter) Wait() error  { return wrapExitError(c, c.cmd.Wait()) }

func (c *cmdAdapter) Path() string                   { return c.cmd.Path }
func (c *cmdAdapter) Args() []string                 { return append([]string(nil), c.cmd.Args...) }
func (c *cmdAdapter) SetStdout(w io.Writer)          { c.cmd.Stdout = w }
func (c *cmdAdapter) SetStderr(w io.Writer)          { c.cmd.Stderr = w }
func (c *cmdAdapter) Process() *os.Process           { return c.cmd.Process }
func (c *cmdAdapter) ProcessState() *os.ProcessState { return c.cmd.ProcessState }
