package exec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// RunResult is what RunCommand observed: the exit state plus everything the
// command wrote to stdout and stderr.
type RunResult struct {
	// nil when the command never started
	ProcessState *os.ProcessState

	Stdout []byte
	Stderr []byte

	// Error from Start or Wait, or ctx.Err() if the command was stopped early.
	Error error
}

func (rr RunResult) String() string {
	return fmt.Sprintf("Error:%s, Stdout:%s, Stderr:%s", rr.Error, rr.Stdout, rr.Stderr)
}

// ExitCode returns the process exit status and whether the process ran to an exit at all.
// A non-zero exit reported through ExitError counts as having exited.
func (rr RunResult) ExitCode() (int, bool) {
	if ee, ok := rr.Error.(ExitError); ok {
		if !ee.Exited() {
			return -1, false
		}
		return ee.ExitStatus(), true
	}
	if rr.Error != nil {
		return -1, false
	}
	if rr.ProcessState != nil {
		return rr.ProcessState.ExitCode(), true
	}
	return 0, true
}

// shortCmd renders cmd for logs with the executable's directory stripped.
func shortCmd(cmd Cmd) string {
	args := cmd.Args()
	if len(args) > 0 {
		args[0] = filepath.Base(args[0])
	}
	return strings.Join(args, " ")
}

// RunCommand starts cmd and waits for it, capturing stdout and stderr.
//
// If ctx is done before the command exits, the process gets SIGTERM and, if it
// is still running killTimeout later, SIGKILL. RunCommand always waits for the
// process to be reaped; the result then carries ctx.Err().
func RunCommand(ctx context.Context, cmd Cmd, killTimeout time.Duration) RunResult {
	var outBuf, errBuf bytes.Buffer
	cmd.SetStdout(&outBuf)
	cmd.SetStderr(&errBuf)

	log.Debugf("Running command: %s", shortCmd(cmd))
	if err := cmd.Start(); err != nil {
		return RunResult{Stdout: outBuf.Bytes(), Stderr: errBuf.Bytes(), Error: err}
	}

	var cmdErr error
	doneCh := make(chan struct{})
	go func() {
		cmdErr = cmd.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-ctx.Done():
		log.WithFields(
			log.Fields{
				"cmd":    shortCmd(cmd),
				"reason": ctx.Err(),
			}).Info("Stopping command")
		termThenKill(cmd.Process(), killTimeout, doneCh)
		<-doneCh
		cmdErr = ctx.Err()
	}

	return RunResult{
		ProcessState: cmd.ProcessState(),
		Stdout:       outBuf.Bytes(),
		Stderr:       errBuf.Bytes(),
		Error:        cmdErr,
	}
}

// termThenKill sends SIGTERM to p, then kills it if waitDoneCh has not closed after d.
func termThenKill(p *os.Process, d time.Duration, waitDoneCh <-chan struct{}) {
	if p == nil {
		return
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		log.Errorf("Failed to send SIGTERM to process %d: %s", p.Pid, err)
		return
	}

	select {
	case <-waitDoneCh:
	case <-time.After(d):
		log.Infof("Process %d ignored SIGTERM for %v, killing it", p.Pid, d)
		if err := p.Kill(); err != nil {
			log.Errorf("Failed to kill process %d: %s", p.Pid, err)
		}
	}
}
