package exec

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

// ValidatingExecer is an OsExec that runs nothing. Each command is matched,
// argument by argument, against the next entry of a list of expected argv
// regexps, then an optional fake action decides its outcome.
type ValidatingExecer struct {
	t           *testing.T
	expected    [][]string
	fakeActions map[int]func(cmd Cmd) error
	validated   int
}

// NewValidatingExecer expects exactly the commands in expectedCmdsRe, in order.
func NewValidatingExecer(t *testing.T, expectedCmdsRe [][]string) *ValidatingExecer {
	return &ValidatingExecer{t: t, expected: expectedCmdsRe}
}

// SetFakeActions sets what the command at each expected index does once it
// validates. A command without an action succeeds with no output.
func (v *ValidatingExecer) SetFakeActions(fakeActions map[int]func(cmd Cmd) error) *ValidatingExecer {
	v.fakeActions = fakeActions
	return v
}

func (v *ValidatingExecer) Command(cmd string, args ...string) Cmd {
	return &ValidatingCmd{
		Cmd:    NewOsExec().Command(cmd, args...),
		execer: v,
		argv:   append([]string{cmd}, args...),
	}
}

// CheckAllValidated fails the test unless every expected command was run.
func (v *ValidatingExecer) CheckAllValidated() {
	if v.validated != len(v.expected) {
		v.t.Fatalf("Number of expected commands: %d did not match validated command count: %d",
			len(v.expected), v.validated)
	}
}

// next validates argv against the next expected command and returns its index.
func (v *ValidatingExecer) next(argv []string) (int, error) {
	idx := v.validated
	if idx >= len(v.expected) {
		return idx, fmt.Errorf("command validation failed: only expected %d commands, received extra command: %s",
			len(v.expected), strings.Join(argv, " "))
	}
	v.validated++

	want := v.expected[idx]
	if len(want) != len(argv) {
		return idx, fmt.Errorf("command validation failed: cmd index %d expected %d args (%s), received %d args (%s)",
			idx, len(want), strings.Join(want, ","), len(argv), strings.Join(argv, ","))
	}
	for i, re := range want {
		if !regexp.MustCompile(re).MatchString(argv[i]) {
			return idx, fmt.Errorf("command validation failed: cmd index %d arg %d expected %s, received %s (%s)",
				idx, i, re, argv[i], strings.Join(argv, ","))
		}
	}
	return idx, nil
}

// ValidatingCmd wraps a real, never started, Cmd so that stdout and stderr
// can be set and written by fake actions.
type ValidatingCmd struct {
	Cmd
	execer *ValidatingExecer
	argv   []string
	doneCh chan error
}

func (v *ValidatingCmd) run() error {
	idx, err := v.execer.next(v.argv)
	if err != nil {
		log.Error(err)
		return err
	}
	if fn, ok := v.execer.fakeActions[idx]; ok {
		return fn(v)
	}
	return nil
}

func (v *ValidatingCmd) Start() error {
	v.doneCh = make(chan error, 1)
	v.doneCh <- v.run()
	return nil
}

func (v *ValidatingCmd) Wait() error {
	return <-v.doneCh
}

func (v *ValidatingCmd) Run() error {
	v.Start()
	return v.Wait()
}

// Args returns the command as it was requested, without path resolution.
func (v *ValidatingCmd) Args() []string {
	return append([]string(nil), v.argv...)
}

// Process is nil: nothing was started, so there is nothing to signal.
func (v *ValidatingCmd) Process() *os.Process { return nil }

func (v *ValidatingCmd) ProcessState() *os.ProcessState { return nil }

func (v *ValidatingCmd) stdout() io.Writer { return v.Cmd.(*cmdAdapter).cmd.Stdout }
func (v *ValidatingCmd) stderr() io.Writer { return v.Cmd.(*cmdAdapter).cmd.Stderr }

// ExitWith returns a fake action that writes stdout and stderr and then exits with code.
func ExitWith(code int, stdout, stderr string) func(cmd Cmd) error {
	return func(cmd Cmd) error {
		vc := cmd.(*ValidatingCmd)
		if w := vc.stdout(); w != nil {
			io.WriteString(w, stdout)
		}
		if w := vc.stderr(); w != nil {
			io.WriteString(w, stderr)
		}
		if code == 0 {
			return nil
		}
		return &FakeExitError{Status: code, Argv: vc.Args()}
	}
}

// FakeExitError is an ExitError for a process that exited with Status.
type FakeExitError struct {
	Status int
	Argv   []string
}

var _ ExitError = &FakeExitError{}

func (e *FakeExitError) Exited() bool    { return true }
func (e *FakeExitError) ExitStatus() int { return e.Status }
func (e *FakeExitError) Signaled() bool  { return false }
func (e *FakeExitError) Error() string   { return fmt.Sprintf("exit status %d", e.Status) }
func (e *FakeExitError) Args() []string  { return e.Argv }

func (e *FakeExitError) Path() string {
	if len(e.Argv) == 0 {
		return ""
	}
	return e.Argv[0]
}

// SleepingExecer ignores the requested command and runs "sleep durSec" instead.
type SleepingExecer struct {
	durSec int
}

func NewSleepingExecer(durSec int) *SleepingExecer {
	return &SleepingExecer{durSec: durSec}
}

func (se *SleepingExecer) Command(cmd string, args ...string) Cmd {
	return NewOsExec().Command("sleep", fmt.Sprintf("%d", se.durSec))
}
