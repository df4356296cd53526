// Package proxies implements htc.Proxy on top of a scheduler Backend and a
// command.Service. The Backend knows the scheduler's command lines and output
// formats; everything else (script staging, error classification, the status
// snapshot, stats) is shared here.
package proxies

import (
	"context"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/htcproxy/command"
	"github.com/twitter/htcproxy/common/stats"
	"github.com/twitter/htcproxy/htc"
	"github.com/twitter/htcproxy/htc/cache"
	"github.com/twitter/htcproxy/htc/script"
	"github.com/twitter/htcproxy/os/temp"
)

// Backend describes one scheduler family's command line surface.
type Backend interface {
	Family() htc.Family
	SubmissionFileExtension() string
	Dialect() script.Dialect

	SubmitArgv(submissionPath string) []string
	ParseSubmitOutput(stdout string) (htc.JobID, error)

	KillArgv(id htc.JobID) []string
	// Exit code and output substrings with which the cancel command reports an unknown job.
	KillNotFound() (exitCode int, responses []string)

	StatusArgv() []string
	StatusParser() htc.StatusParser
}

type Config struct {
	LogDir           string
	MPIHome          string
	Partition        string
	MemoryOverheadMB int64
	// Local staging area for rendered scripts. Nil uses the system temp dir.
	TempDir *temp.TempDir
}

// Proxy is the htc.Proxy shared by all scheduler families.
type Proxy struct {
	cfg     Config
	backend Backend
	builder *script.Builder
	svc     command.Service
	stat    stats.StatsReceiver
	cache   *cache.Cache
}

var _ htc.Proxy = &Proxy{}

func New(cfg Config, backend Backend, svc command.Service, stat stats.StatsReceiver) *Proxy {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Proxy{
		cfg:     cfg,
		backend: backend,
		builder: &script.Builder{
			Dialect:          backend.Dialect(),
			LogDir:           cfg.LogDir,
			MPIHome:          cfg.MPIHome,
			Partition:        cfg.Partition,
			MemoryOverheadMB: cfg.MemoryOverheadMB,
		},
		svc:   svc,
		stat:  stat,
		cache: cache.NewCache(),
	}
}

func (p *Proxy) Family() htc.Family {
	return p.backend.Family()
}

func (p *Proxy) SubmissionFileExtension() string {
	return p.backend.SubmissionFileExtension()
}

func (p *Proxy) CloneThreadsafe() htc.Proxy {
	return New(p.cfg, p.backend, p.svc.Clone(), p.stat)
}

// RenderScript returns the submission script Submit would transfer for req.
func (p *Proxy) RenderScript(req htc.SubmitRequest) (string, error) {
	return p.builder.Build(req.JobName, req.Pipeline, req.CPUs, req.MemoryMB, req.PostProcessing)
}

func (p *Proxy) Submit(ctx context.Context, req htc.SubmitRequest) (htc.JobID, error) {
	p.stat.Counter(stats.HTCSubmitCounter).Inc(1)
	defer p.stat.Latency(stats.HTCSubmitLatency_ms).Time().Stop()

	id, err := p.submit(ctx, req)
	if err != nil {
		p.stat.Counter(stats.HTCSubmitFailureCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"family":  p.Family(),
				"jobName": req.JobName,
				"path":    req.SubmissionPath,
				"err":     err,
			}).Error("Failed to submit job")
		return htc.JobID{}, err
	}
	log.WithFields(
		log.Fields{
			"family":  p.Family(),
			"jobName": req.JobName,
			"jobID":   id,
			"cpus":    req.CPUs,
		}).Info("Submitted job")
	return id, nil
}

func (p *Proxy) submit(ctx context.Context, req htc.SubmitRequest) (htc.JobID, error) {
	text, err := p.RenderScript(req)
	if err != nil {
		return htc.JobID{}, htc.NewSubmissionError(req.JobName, "script", "", "", err)
	}

	td := p.cfg.TempDir
	if td == nil {
		td = &temp.TempDir{}
	}
	local, err := td.WriteTempFile(req.JobName+"-*"+p.SubmissionFileExtension(), []byte(text))
	if err != nil {
		return htc.JobID{}, htc.NewSubmissionError(req.JobName, "write", "", "", err)
	}
	defer func() {
		if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
			log.WithFields(
				log.Fields{
					"jobName": req.JobName,
					"file":    local,
					"err":     err,
				}).Warn("Couldn't remove staged submission script")
		}
	}()

	if err := p.svc.PushFile(ctx, local, req.SubmissionPath); err != nil {
		return htc.JobID{}, htc.NewSubmissionError(req.JobName, "push", "", "", err)
	}

	argv := p.backend.SubmitArgv(req.SubmissionPath)
	out, err := p.svc.Command(ctx, argv, 0)
	if err != nil {
		stdout, stderr := outputOf(out)
		return htc.JobID{}, htc.NewSubmissionError(req.JobName, "submit", stdout, stderr, err)
	}
	id, err := p.backend.ParseSubmitOutput(out.Stdout)
	if err != nil {
		return htc.JobID{}, htc.NewSubmissionError(req.JobName, "parse", out.Stdout, out.Stderr, err)
	}
	return id, nil
}

func (p *Proxy) Kill(ctx context.Context, id htc.JobID) error {
	p.stat.Counter(stats.HTCKillCounter).Inc(1)
	argv := p.backend.KillArgv(id)
	notFoundCode, responses := p.backend.KillNotFound()

	out, err := p.svc.Command(ctx, argv, 0, notFoundCode)
	if err != nil {
		stdout, stderr := outputOf(out)
		exitErr, isExit := err.(*command.ExitError)
		codeMatches := !isExit || (exitErr.Output != nil && exitErr.Output.ExitStatus == notFoundCode)
		if codeMatches && (containsAny(err.Error(), responses) || containsAny(stdout+stderr, responses)) {
			return p.killNotFound(id, stdout, stderr)
		}
		return htc.NewSchedulerCommandError(argv, stdout, stderr, err)
	}
	if out.ExitStatus != 0 {
		if out.ExitStatus == notFoundCode && containsAny(out.Stdout+out.Stderr, responses) {
			return p.killNotFound(id, out.Stdout, out.Stderr)
		}
		return htc.NewSchedulerCommandError(argv, out.Stdout, out.Stderr, fmt.Errorf("exit status %d", out.ExitStatus))
	}
	log.WithFields(
		log.Fields{
			"family": p.Family(),
			"jobID":  id,
		}).Info("Killed job")
	return nil
}

func (p *Proxy) killNotFound(id htc.JobID, stdout, stderr string) error {
	p.stat.Counter(stats.HTCKillNotFoundCounter).Inc(1)
	// A later status query may still report the job's final state.
	p.cache.Remove(id)
	log.WithFields(
		log.Fields{
			"family": p.Family(),
			"jobID":  id,
		}).Info("Kill requested for job unknown to the scheduler")
	return htc.NewJobNotFoundError(id, stdout, stderr)
}

func (p *Proxy) Status(id htc.JobID) (htc.JobStatus, error) {
	r, ok := p.cache.Get(id)
	if !ok {
		return htc.UNKNOWN, htc.NewJobNotFoundError(id, "", "")
	}
	return r.Status, nil
}

func (p *Proxy) Info(id htc.JobID) (htc.JobInfo, error) {
	r, ok := p.cache.Get(id)
	if !ok {
		return htc.JobInfo{}, htc.NewJobNotFoundError(id, "", "")
	}
	return r.Info, nil
}

func (p *Proxy) JobInfos(ids []htc.JobID) map[htc.JobID]htc.JobInfo {
	infos := make(map[htc.JobID]htc.JobInfo, len(ids))
	for _, id := range ids {
		if r, ok := p.cache.Get(id); ok {
			infos[id] = r.Info
		}
	}
	return infos
}

func (p *Proxy) RunningJobIDs(ctx context.Context, prefix string) ([]htc.JobID, error) {
	p.stat.Counter(stats.HTCStatusQueryCounter).Inc(1)
	defer p.stat.Latency(stats.HTCStatusQueryLatency_ms).Time().Stop()

	argv := p.backend.StatusArgv()
	out, err := p.svc.Command(ctx, argv, 0)
	if err != nil {
		p.stat.Counter(stats.HTCStatusQueryFailureCounter).Inc(1)
		stdout, stderr := outputOf(out)
		return nil, htc.NewSchedulerCommandError(argv, stdout, stderr, err)
	}
	result, err := p.backend.StatusParser().Parse([]byte(out.Stdout), prefix)
	if err != nil {
		p.stat.Counter(stats.HTCStatusQueryFailureCounter).Inc(1)
		return nil, htc.NewSchedulerCommandError(argv, out.Stdout, out.Stderr, err)
	}
	for _, perr := range result.Errors {
		p.stat.Counter(stats.HTCParseErrorCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"family": p.Family(),
				"prefix": prefix,
				"entry":  perr.Entry,
				"reason": perr.Reason,
				"raw":    perr.Raw,
			}).Warn("Skipping malformed status entry")
	}

	vanished, resurrected := p.cache.Replace(result.Records, prefix)
	for _, id := range vanished {
		p.stat.Counter(stats.HTCVanishedJobCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"family": p.Family(),
				"jobID":  id,
			}).Info("Job no longer reported by the scheduler")
	}
	for _, id := range resurrected {
		p.stat.Counter(stats.HTCResurrectedJobCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"family": p.Family(),
				"jobID":  id,
			}).Error("Scheduler reported a job previously marked NOT_FOUND, ignoring it")
	}

	var ids []htc.JobID
	seen := make(map[htc.JobID]bool)
	for _, r := range result.Records {
		id := r.Info.ID
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := p.cache.Get(id); !ok {
			continue
		}
		if r.Status == htc.ERROR {
			log.WithFields(
				log.Fields{
					"family":     p.Family(),
					"jobID":      id,
					"jobName":    r.Info.Name,
					"diagnostic": r.Info.Diagnostic,
				}).Error("Scheduler reports job in error state")
		}
		if r.Status.IsActive() {
			ids = append(ids, id)
		}
	}

	p.stat.Gauge(stats.HTCCachedJobsGauge).Update(int64(p.cache.Len()))
	p.stat.Gauge(stats.HTCActiveJobsGauge).Update(int64(len(ids)))
	log.WithFields(
		log.Fields{
			"family": p.Family(),
			"prefix": prefix,
			"cached": p.cache.Len(),
			"active": len(ids),
		}).Debug("Refreshed job status snapshot")
	return ids, nil
}

func outputOf(out *command.Output) (stdout, stderr string) {
	if out == nil {
		return "", ""
	}
	return out.Stdout, out.Stderr
}

// containsAny does a case-insensitive substring match of s against each of subs.
func containsAny(s string, subs []string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
