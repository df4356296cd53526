// Package command runs scheduler command lines, either on the local host or
// on a scheduler head node over ssh, and stages files for them.
package command

//go:generate mockgen -source=service.go -package=command -destination=mock_command.go

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Output is what a finished command left behind.
type Output struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

func (o *Output) String() string {
	if o == nil {
		return "<nil>"
	}
	return fmt.Sprintf("exit=%d stdout=%q stderr=%q", o.ExitStatus, o.Stdout, o.Stderr)
}

// Service executes scheduler commands.
type Service interface {
	// Command runs argv to completion. An exit status outside acceptable
	// (or other than 0 when acceptable is empty) is returned as *ExitError
	// alongside the Output.
	Command(ctx context.Context, argv []string, acceptable ...int) (*Output, error)

	// PushFile makes the local file available at remote for the scheduler.
	PushFile(ctx context.Context, local, remote string) error

	// Clone returns an independent Service that shares no mutable state with this one.
	Clone() Service
}

// ExitError reports a command that ran but exited with an unacceptable status.
type ExitError struct {
	Argv   []string
	Output *Output
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with status %d, stdout: %q, stderr: %q",
		strings.Join(e.Argv, " "), e.Output.ExitStatus, e.Output.Stdout, e.Output.Stderr)
}

// Options shared by the Service implementations.
type Options struct {
	// Per-command timeout, zero for none.
	Timeout time.Duration
	// How long a canceled command gets between SIGTERM and SIGKILL.
	KillTimeout time.Duration
	// Commands per second across one Service. Zero disables limiting.
	MaxCommandsPerSecond float64
}

const DefaultKillTimeout = 5 * time.Second

func (o Options) killTimeout() time.Duration {
	if o.KillTimeout <= 0 {
		return DefaultKillTimeout
	}
	return o.KillTimeout
}

func (o Options) limiter() *rate.Limiter {
	if o.MaxCommandsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(o.MaxCommandsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.MaxCommandsPerSecond), burst)
}

func acceptable(status int, codes []int) bool {
	if len(codes) == 0 {
		return status == 0
	}
	for _, c := range codes {
		if c == status {
			return true
		}
	}
	return false
}
