package command

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/twitter/htcproxy/common/os/exec"
	"github.com/twitter/htcproxy/common/stats"
)

// Local runs commands on this host.
type Local struct {
	exec    exec.OsExec
	opts    Options
	stat    stats.StatsReceiver
	limiter *rate.Limiter
}

// NewLocal creates a Local service. Pass exec.NewOsExec() outside of tests.
func NewLocal(ex exec.OsExec, opts Options, stat stats.StatsReceiver) *Local {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Local{exec: ex, opts: opts, stat: stat, limiter: opts.limiter()}
}

func (l *Local) Command(ctx context.Context, argv []string, acceptableCodes ...int) (*Output, error) {
	return run(ctx, l.exec, l.limiter, l.opts, l.stat, argv, argv, acceptableCodes)
}

// PushFile copies local to remote, creating remote's parent directory. The
// copy lands under a temporary name and is renamed into place.
func (l *Local) PushFile(ctx context.Context, local, remote string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if local == remote {
		return nil
	}
	src, err := os.Open(local)
	if err != nil {
		return errors.Wrapf(err, "opening %s", local)
	}
	defer src.Close()

	dir := filepath.Dir(remote)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	dst, err := ioutil.TempFile(dir, "."+filepath.Base(remote))
	if err != nil {
		return errors.Wrapf(err, "staging %s", remote)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return errors.Wrapf(err, "copying %s to %s", local, remote)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return errors.Wrapf(err, "writing %s", dst.Name())
	}
	if err := os.Chmod(dst.Name(), 0644); err != nil {
		os.Remove(dst.Name())
		return errors.Wrapf(err, "chmod %s", dst.Name())
	}
	if err := os.Rename(dst.Name(), remote); err != nil {
		os.Remove(dst.Name())
		return errors.Wrapf(err, "renaming into %s", remote)
	}
	log.WithFields(
		log.Fields{
			"local":  local,
			"remote": remote,
		}).Debug("Pushed file")
	return nil
}

func (l *Local) Clone() Service {
	return NewLocal(l.exec, l.opts, l.stat)
}

// run executes invoked (the actual process argv) on behalf of argv (the
// scheduler command it represents, used in errors and logs).
func run(
	ctx context.Context,
	ex exec.OsExec,
	limiter *rate.Limiter,
	opts Options,
	stat stats.StatsReceiver,
	argv []string,
	invoked []string,
	acceptableCodes []int,
) (*Output, error) {
	if len(invoked) == 0 {
		return nil, errors.New("empty command")
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "waiting for command slot")
	}
	defer stat.Latency(stats.CommandLatency_ms).Time().Stop()
	stat.Counter(stats.CommandCounter).Inc(1)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	rr := exec.RunCommand(ctx, ex.Command(invoked[0], invoked[1:]...), opts.killTimeout())
	out := &Output{Stdout: string(rr.Stdout), Stderr: string(rr.Stderr)}

	status, exited := rr.ExitCode()
	if !exited {
		stat.Counter(stats.CommandFailureCounter).Inc(1)
		return out, errors.Wrapf(rr.Error, "running %v", argv)
	}
	out.ExitStatus = status

	log.WithFields(
		log.Fields{
			"argv":       argv,
			"exitStatus": status,
		}).Debug("Command finished")

	if !acceptable(status, acceptableCodes) {
		stat.Counter(stats.CommandFailureCounter).Inc(1)
		return out, &ExitError{Argv: argv, Output: out}
	}
	return out, nil
}
