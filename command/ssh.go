package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/twitter/htcproxy/common"
	"github.com/twitter/htcproxy/common/os/exec"
	"github.com/twitter/htcproxy/common/stats"
	"github.com/twitter/htcproxy/htc"
)

// ssh exits 255 when the connection itself failed; the remote command never ran.
const sshTransportFailure = 255

const DefaultSSHRetries = 3

type SSHConfig struct {
	Host         string
	User         string
	Port         int
	IdentityFile string
	// Extra attempts after an ssh transport failure.
	Retries uint64
}

func (c SSHConfig) target() string {
	if c.User == "" {
		return c.Host
	}
	return c.User + "@" + c.Host
}

// SSH runs commands on a scheduler head node through the ssh and scp clients.
type SSH struct {
	exec       exec.OsExec
	cfg        SSHConfig
	opts       Options
	stat       stats.StatsReceiver
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
}

func NewSSH(ex exec.OsExec, cfg SSHConfig, opts Options, stat stats.StatsReceiver) *SSH {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	retries := cfg.Retries
	return &SSH{
		exec:    ex,
		cfg:     cfg,
		opts:    opts,
		stat:    stat,
		limiter: opts.limiter(),
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries)
		},
	}
}

func (s *SSH) sshArgv(argv []string) []string {
	w := []string{"ssh", "-o", "BatchMode=yes"}
	if s.cfg.Port > 0 {
		w = append(w, "-p", strconv.Itoa(s.cfg.Port))
	}
	if s.cfg.IdentityFile != "" {
		w = append(w, "-i", s.cfg.IdentityFile)
	}
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = htc.ShellQuote(a)
	}
	return append(w, s.cfg.target(), "--", strings.Join(quoted, " "))
}

func (s *SSH) scpArgv(local, remote string) []string {
	w := []string{"scp", "-q", "-o", "BatchMode=yes"}
	if s.cfg.Port > 0 {
		w = append(w, "-P", strconv.Itoa(s.cfg.Port))
	}
	if s.cfg.IdentityFile != "" {
		w = append(w, "-i", s.cfg.IdentityFile)
	}
	return append(w, local, s.cfg.target()+":"+remote)
}

// retry runs invoked until it gets past the ssh transport or retries are exhausted.
func (s *SSH) retry(ctx context.Context, argv, invoked []string, acceptableCodes []int) (*Output, error) {
	var out *Output
	var err error
	try := 1
	backoff.Retry(func() error {
		out, err = run(ctx, s.exec, s.limiter, s.opts, s.stat, argv, invoked, acceptableCodes)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		if ee, ok := err.(*ExitError); ok && ee.Output.ExitStatus == sshTransportFailure {
			log.WithFields(
				log.Fields{
					"host": s.cfg.Host,
					"argv": argv,
					"try":  try,
				}).Info("ssh transport failure")
			s.stat.Counter(stats.CommandRetryCounter).Inc(1)
			try++
			return err
		}
		return nil
	}, s.newBackOff())
	return out, err
}

func (s *SSH) Command(ctx context.Context, argv []string, acceptableCodes ...int) (*Output, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	return s.retry(ctx, argv, s.sshArgv(argv), acceptableCodes)
}

// PushFile copies local to <remote>.<uuid>.tmp and then moves it into place,
// so the scheduler never sees a partial script.
func (s *SSH) PushFile(ctx context.Context, local, remote string) error {
	staging := fmt.Sprintf("%s.%s.tmp", remote, common.GenUUID())

	scp := s.scpArgv(local, staging)
	if _, err := s.retry(ctx, scp, scp, nil); err != nil {
		return errors.Wrapf(err, "copying %s to %s:%s", local, s.cfg.Host, staging)
	}
	mv := []string{"mv", "-f", staging, remote}
	if _, err := s.Command(ctx, mv); err != nil {
		return errors.Wrapf(err, "moving %s into place on %s", staging, s.cfg.Host)
	}
	log.WithFields(
		log.Fields{
			"host":   s.cfg.Host,
			"local":  local,
			"remote": remote,
		}).Debug("Pushed file")
	return nil
}

func (s *SSH) Clone() Service {
	c := NewSSH(s.exec, s.cfg, s.opts, s.stat)
	c.newBackOff = s.newBackOff
	return c
}
