package proxies

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/twitter/htcproxy/command"
	"github.com/twitter/htcproxy/common/log/hooks"
	"github.com/twitter/htcproxy/common/stats"
	"github.com/twitter/htcproxy/htc"
	"github.com/twitter/htcproxy/htc/sge"
	"github.com/twitter/htcproxy/htc/slurm"
	"github.com/twitter/htcproxy/os/temp"
)

func init() {
	log.AddHook(hooks.NewContextHook())
}

const sacctHeader = "JobIDRaw|JobName|State|ExitCode|NodeList|Reason\n"

var sacctArgv = slurm.NewBackend(slurm.Config{}).StatusArgv()

type fixture struct {
	proxy *Proxy
	svc   *command.MockService
	reg   stats.StatsRegistry
	td    *temp.TempDir
}

func newFixture(t *testing.T, ctrl *gomock.Controller, backend Backend) *fixture {
	td, err := temp.TempDirDefault()
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{svc: command.NewMockService(ctrl), td: td}
	stat, _ := stats.NewCustomStatsReceiver(func() stats.StatsRegistry {
		f.reg = stats.NewFinagleStatsRegistry()
		return f.reg
	}, 0)
	f.proxy = New(Config{LogDir: "/share/logs", MPIHome: "/opt/mpich", TempDir: td}, backend, f.svc, stat)
	return f
}

func (f *fixture) cleanup() {
	f.td.RemoveAll()
}

func (f *fixture) expectStatus(stdout string) *gomock.Call {
	return f.svc.EXPECT().Command(gomock.Any(), sacctArgv, 0).Return(&command.Output{Stdout: stdout}, nil)
}

func sim42Request() htc.SubmitRequest {
	return htc.SubmitRequest{
		JobName:        "sim42_run1",
		SubmissionPath: "/share/jobs/sim42_run1.slurm.sub",
		Pipeline: htc.Pipeline{Commands: []htc.Command{
			htc.NewCommand("/opt/solver", "in.xml"),
			htc.NewCommand("/opt/export", "out"),
		}},
		CPUs: 1,
	}
}

func TestSubmitThenList(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	f := newFixture(t, mockCtrl, slurm.NewBackend(slurm.Config{}))
	defer f.cleanup()

	var staged string
	gomock.InOrder(
		f.svc.EXPECT().PushFile(gomock.Any(), gomock.Any(), "/share/jobs/sim42_run1.slurm.sub").Do(
			func(ctx context.Context, local, remote string) {
				staged = local
				data, err := ioutil.ReadFile(local)
				if err != nil {
					t.Fatalf("staged script missing: %v", err)
				}
				assert.Contains(t, string(data), "#SBATCH -J sim42_run1\n")
				assert.Contains(t, string(data), "runCommand /opt/solver in.xml\n")
				assert.NotContains(t, string(data), "\r")
			}).Return(nil),
		f.svc.EXPECT().Command(gomock.Any(), []string{"sbatch", "--parsable", "/share/jobs/sim42_run1.slurm.sub"}, 0).Return(
			&command.Output{Stdout: "4242\n"}, nil),
		f.expectStatus(sacctHeader+
			"4242|sim42_run1|PENDING|0:0|None assigned|Priority\n"+
			"4243|other_run1|RUNNING|0:0|node01|None\n"),
	)

	id, err := f.proxy.Submit(context.Background(), sim42Request())
	assert.NoError(t, err)
	assert.Equal(t, htc.NewJobID(htc.Slurm, 4242), id)
	assert.True(t, strings.HasPrefix(staged, f.td.Dir), staged)
	assert.True(t, strings.HasSuffix(staged, ".slurm.sub"), staged)
	_, err = os.Stat(staged)
	assert.True(t, os.IsNotExist(err), "staged script should be removed")

	ids, err := f.proxy.RunningJobIDs(context.Background(), "sim42_")
	assert.NoError(t, err)
	assert.Equal(t, []htc.JobID{id}, ids)

	status, err := f.proxy.Status(id)
	assert.NoError(t, err)
	assert.Equal(t, htc.PENDING, status)

	stats.VerifyStats("submit", f.reg, t, map[string]stats.Rule{
		stats.HTCSubmitCounter:        {Checker: stats.Int64EqTest, Value: 1},
		stats.HTCSubmitFailureCounter: {Checker: stats.DoesNotExistTest},
		stats.HTCStatusQueryCounter:   {Checker: stats.Int64EqTest, Value: 1},
		stats.HTCCachedJobsGauge:      {Checker: stats.Int64EqTest, Value: 1},
		stats.HTCActiveJobsGauge:      {Checker: stats.Int64EqTest, Value: 1},
	})
}

func TestSubmitFailures(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	f := newFixture(t, mockCtrl, slurm.NewBackend(slurm.Config{}))
	defer f.cleanup()
	ctx := context.Background()

	// script errors never reach the command service
	bad := sim42Request()
	bad.Pipeline = htc.Pipeline{Commands: []htc.Command{htc.NewParallelCommand("/opt/solver")}}
	_, err := f.proxy.Submit(ctx, bad)
	assert.True(t, htc.IsSubmissionError(err), "%v", err)
	assert.True(t, htc.IsScriptError(err), "%v", err)

	var staged []string
	stage := func(ctx context.Context, local, remote string) { staged = append(staged, local) }

	f.svc.EXPECT().PushFile(gomock.Any(), gomock.Any(), gomock.Any()).Do(stage).Return(errors.New("scp: permission denied"))
	_, err = f.proxy.Submit(ctx, sim42Request())
	if assert.True(t, htc.IsSubmissionError(err), "%v", err) {
		assert.Equal(t, "push", err.(*htc.SubmissionError).Op)
	}

	f.svc.EXPECT().PushFile(gomock.Any(), gomock.Any(), gomock.Any()).Do(stage).Return(nil)
	rejected := &command.Output{ExitStatus: 1, Stderr: "sbatch: error: Batch job submission failed: Invalid partition name specified"}
	f.svc.EXPECT().Command(gomock.Any(), gomock.Any(), 0).Return(rejected, &command.ExitError{Argv: []string{"sbatch"}, Output: rejected})
	_, err = f.proxy.Submit(ctx, sim42Request())
	if assert.True(t, htc.IsSubmissionError(err), "%v", err) {
		se := err.(*htc.SubmissionError)
		assert.Equal(t, "submit", se.Op)
		assert.Contains(t, se.Stderr, "Invalid partition name")
	}

	f.svc.EXPECT().PushFile(gomock.Any(), gomock.Any(), gomock.Any()).Do(stage).Return(nil)
	f.svc.EXPECT().Command(gomock.Any(), gomock.Any(), 0).Return(&command.Output{Stdout: "Submitted batch job\n"}, nil)
	_, err = f.proxy.Submit(ctx, sim42Request())
	if assert.True(t, htc.IsSubmissionError(err), "%v", err) {
		assert.Equal(t, "parse", err.(*htc.SubmissionError).Op)
	}

	assert.Len(t, staged, 3)
	for _, p := range staged {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "staged script %s should be removed", p)
	}
	stats.VerifyStats("submit failures", f.reg, t, map[string]stats.Rule{
		stats.HTCSubmitCounter:        {Checker: stats.Int64EqTest, Value: 4},
		stats.HTCSubmitFailureCounter: {Checker: stats.Int64EqTest, Value: 4},
	})
}

func TestKill(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	f := newFixture(t, mockCtrl, slurm.NewBackend(slurm.Config{}))
	defer f.cleanup()
	ctx := context.Background()
	id := htc.NewJobID(htc.Slurm, 42)
	scancel := []string{"scancel", "42"}

	f.svc.EXPECT().Command(gomock.Any(), scancel, 0, 1).Return(&command.Output{}, nil)
	assert.NoError(t, f.proxy.Kill(ctx, id))

	// scancel exits 1 and says the job does not exist
	f.svc.EXPECT().Command(gomock.Any(), scancel, 0, 1).Return(
		&command.Output{ExitStatus: 1, Stderr: "scancel: error: Kill job error on job id 42: Invalid job id specified\n"}, nil)
	err := f.proxy.Kill(ctx, id)
	assert.True(t, htc.IsJobNotFound(err), "%v", err)
	assert.False(t, htc.IsSchedulerCommandError(err))

	// same exit code, unrelated failure
	f.svc.EXPECT().Command(gomock.Any(), scancel, 0, 1).Return(
		&command.Output{ExitStatus: 1, Stderr: "scancel: error: Access/permission denied\n"}, nil)
	err = f.proxy.Kill(ctx, id)
	assert.True(t, htc.IsSchedulerCommandError(err), "%v", err)
	assert.False(t, htc.IsJobNotFound(err))

	// not-found text, but the command service failed with another exit code
	rejected := &command.Output{ExitStatus: 2, Stderr: "scancel: error: Kill job error on job id 42: Invalid job id specified\n"}
	f.svc.EXPECT().Command(gomock.Any(), scancel, 0, 1).Return(rejected, &command.ExitError{Argv: scancel, Output: rejected})
	err = f.proxy.Kill(ctx, id)
	assert.True(t, htc.IsSchedulerCommandError(err), "%v", err)
	assert.False(t, htc.IsJobNotFound(err))

	failed := &command.Output{ExitStatus: 255, Stderr: "ssh: connect to host head port 22: Connection refused"}
	f.svc.EXPECT().Command(gomock.Any(), scancel, 0, 1).Return(failed, &command.ExitError{Argv: scancel, Output: failed})
	err = f.proxy.Kill(ctx, id)
	if assert.True(t, htc.IsSchedulerCommandError(err), "%v", err) {
		assert.Contains(t, err.(*htc.SchedulerCommandError).Stderr, "Connection refused")
	}

	stats.VerifyStats("kill", f.reg, t, map[string]stats.Rule{
		stats.HTCKillCounter:         {Checker: stats.Int64EqTest, Value: 5},
		stats.HTCKillNotFoundCounter: {Checker: stats.Int64EqTest, Value: 1},
	})
}

func TestKillNotFoundSGE(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	f := newFixture(t, mockCtrl, sge.NewBackend(sge.Config{}))
	defer f.cleanup()

	f.svc.EXPECT().Command(gomock.Any(), []string{"qdel", "6894"}, 0, 1).Return(
		&command.Output{ExitStatus: 1, Stdout: "denied: job \"6894\" does not exist\n"}, nil)
	err := f.proxy.Kill(context.Background(), htc.NewJobID(htc.SGE, 6894))
	assert.True(t, htc.IsJobNotFound(err), "%v", err)
	assert.Equal(t, ".sge.sub", f.proxy.SubmissionFileExtension())
	assert.Equal(t, htc.SGE, f.proxy.Family())
}

func TestStatusRequiresRefresh(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	f := newFixture(t, mockCtrl, slurm.NewBackend(slurm.Config{}))
	defer f.cleanup()
	id := htc.NewJobID(htc.Slurm, 101)

	_, err := f.proxy.Status(id)
	assert.True(t, htc.IsJobNotFound(err))
	_, err = f.proxy.Info(id)
	assert.True(t, htc.IsJobNotFound(err))

	f.expectStatus(sacctHeader +
		"101|sim42_run1|RUNNING|0:0|node07|None\n" +
		"102|sim42_run2|NODE_FAIL|0:0|node08|None\n" +
		"103|sim42_run3|COMPLETED|0:0|node09|None\n" +
		"104|sim42_run4|BOGUS|0:0|node09|None\n" +
		"105|other_run1|RUNNING|0:0|node01|None\n")
	ids, err := f.proxy.RunningJobIDs(context.Background(), "sim42_")
	assert.NoError(t, err)
	assert.Equal(t, []htc.JobID{id, htc.NewJobID(htc.Slurm, 103)}, ids)

	for n, expected := range map[int64]htc.JobStatus{101: htc.RUNNING, 102: htc.ERROR, 103: htc.EXITED, 104: htc.UNKNOWN} {
		status, err := f.proxy.Status(htc.NewJobID(htc.Slurm, n))
		assert.NoError(t, err)
		assert.Equal(t, expected, status, "job %d", n)
	}
	_, err = f.proxy.Status(htc.NewJobID(htc.Slurm, 105))
	assert.True(t, htc.IsJobNotFound(err))

	info, err := f.proxy.Info(id)
	assert.NoError(t, err)
	assert.Equal(t, "node07", info.Host)

	infos := f.proxy.JobInfos([]htc.JobID{id, htc.NewJobID(htc.Slurm, 105)})
	assert.Len(t, infos, 1)
	assert.Equal(t, "sim42_run1", infos[id].Name)
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	f := newFixture(t, mockCtrl, slurm.NewBackend(slurm.Config{}))
	defer f.cleanup()
	ctx := context.Background()
	first := htc.NewJobID(htc.Slurm, 101)

	gomock.InOrder(
		f.expectStatus(sacctHeader+"101|sim42_a|RUNNING|0:0|node07|None\n"),
		f.expectStatus(sacctHeader+"102|sim42_b|PENDING|0:0||None\n"),
		f.expectStatus(sacctHeader+"101|sim42_a|RUNNING|0:0|node07|None\n102|sim42_b|RUNNING|0:0|node02|None\n"),
	)

	_, err := f.proxy.RunningJobIDs(ctx, "sim42_")
	assert.NoError(t, err)

	// 101 vanished
	ids, err := f.proxy.RunningJobIDs(ctx, "sim42_")
	assert.NoError(t, err)
	assert.Equal(t, []htc.JobID{htc.NewJobID(htc.Slurm, 102)}, ids)
	_, err = f.proxy.Status(first)
	assert.True(t, htc.IsJobNotFound(err))

	// 101 comes back and is ignored
	ids, err = f.proxy.RunningJobIDs(ctx, "sim42_")
	assert.NoError(t, err)
	assert.Equal(t, []htc.JobID{htc.NewJobID(htc.Slurm, 102)}, ids)
	_, err = f.proxy.Status(first)
	assert.True(t, htc.IsJobNotFound(err))

	stats.VerifyStats("refresh", f.reg, t, map[string]stats.Rule{
		stats.HTCVanishedJobCounter:    {Checker: stats.Int64EqTest, Value: 1},
		stats.HTCResurrectedJobCounter: {Checker: stats.Int64EqTest, Value: 1},
	})
}

func TestRefreshFailuresKeepSnapshot(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	f := newFixture(t, mockCtrl, slurm.NewBackend(slurm.Config{}))
	defer f.cleanup()
	ctx := context.Background()
	id := htc.NewJobID(htc.Slurm, 101)

	failed := &command.Output{ExitStatus: 1, Stderr: "sacct: error: Problem talking to the database: Connection refused"}
	gomock.InOrder(
		f.expectStatus(sacctHeader+"101|sim42_a|RUNNING|0:0|node07|None\n"),
		f.expectStatus("this is not sacct output\n"),
		f.svc.EXPECT().Command(gomock.Any(), sacctArgv, 0).Return(failed, &command.ExitError{Argv: sacctArgv, Output: failed}),
		f.expectStatus(sacctHeader+"101|sim42_a|RUNNING|0:0|node07|None\nbroken\n"),
	)

	_, err := f.proxy.RunningJobIDs(ctx, "sim42_")
	assert.NoError(t, err)

	_, err = f.proxy.RunningJobIDs(ctx, "sim42_")
	assert.True(t, htc.IsSchedulerCommandError(err), "%v", err)
	_, err = f.proxy.RunningJobIDs(ctx, "sim42_")
	assert.True(t, htc.IsSchedulerCommandError(err), "%v", err)

	status, err := f.proxy.Status(id)
	assert.NoError(t, err)
	assert.Equal(t, htc.RUNNING, status)

	// a malformed entry is skipped, the rest of the dump is used
	ids, err := f.proxy.RunningJobIDs(ctx, "sim42_")
	assert.NoError(t, err)
	assert.Equal(t, []htc.JobID{id}, ids)

	stats.VerifyStats("refresh failures", f.reg, t, map[string]stats.Rule{
		stats.HTCStatusQueryCounter:        {Checker: stats.Int64EqTest, Value: 4},
		stats.HTCStatusQueryFailureCounter: {Checker: stats.Int64EqTest, Value: 2},
		stats.HTCParseErrorCounter:         {Checker: stats.Int64EqTest, Value: 1},
	})
}

func TestKillNotFoundDropsFromSnapshot(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	f := newFixture(t, mockCtrl, slurm.NewBackend(slurm.Config{}))
	defer f.cleanup()
	ctx := context.Background()
	id := htc.NewJobID(htc.Slurm, 101)

	f.expectStatus(sacctHeader + "101|sim42_a|RUNNING|0:0|node07|None\n")
	f.svc.EXPECT().Command(gomock.Any(), []string{"scancel", "101"}, 0, 1).Return(
		&command.Output{ExitStatus: 1, Stderr: "scancel: error: Kill job error on job id 101: Job/step does not exist\n"}, nil)

	_, err := f.proxy.RunningJobIDs(ctx, "sim42_")
	assert.NoError(t, err)
	assert.True(t, htc.IsJobNotFound(f.proxy.Kill(ctx, id)))
	_, err = f.proxy.Status(id)
	assert.True(t, htc.IsJobNotFound(err))
}

func TestKillNotFoundThenCompletedRecord(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	f := newFixture(t, mockCtrl, slurm.NewBackend(slurm.Config{}))
	defer f.cleanup()
	ctx := context.Background()
	id := htc.NewJobID(htc.Slurm, 101)

	gomock.InOrder(
		f.expectStatus(sacctHeader+"101|sim42_a|RUNNING|0:0|node07|None\n"),
		f.svc.EXPECT().Command(gomock.Any(), []string{"scancel", "101"}, 0, 1).Return(
			&command.Output{ExitStatus: 1, Stderr: "scancel: error: Kill job error on job id 101: Job/step does not exist\n"}, nil),
		f.expectStatus(sacctHeader+"101|sim42_a|COMPLETED|0:0|node07|None\n"),
	)

	_, err := f.proxy.RunningJobIDs(ctx, "sim42_")
	assert.NoError(t, err)
	assert.True(t, htc.IsJobNotFound(f.proxy.Kill(ctx, id)))

	ids, err := f.proxy.RunningJobIDs(ctx, "sim42_")
	assert.NoError(t, err)
	assert.Empty(t, ids)
	status, err := f.proxy.Status(id)
	assert.NoError(t, err)
	assert.Equal(t, htc.EXITED, status)

	stats.VerifyStats("killThenCompleted", f.reg, t, map[string]stats.Rule{
		stats.HTCKillNotFoundCounter:   {Checker: stats.Int64EqTest, Value: 1},
		stats.HTCResurrectedJobCounter: {Checker: stats.DoesNotExistTest},
	})
}

func TestCloneThreadsafe(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	f := newFixture(t, mockCtrl, slurm.NewBackend(slurm.Config{}))
	defer f.cleanup()
	cloneSvc := command.NewMockService(mockCtrl)

	f.expectStatus(sacctHeader + "101|sim42_a|RUNNING|0:0|node07|None\n")
	f.svc.EXPECT().Clone().Return(cloneSvc)
	cloneSvc.EXPECT().Command(gomock.Any(), sacctArgv, 0).Return(&command.Output{Stdout: sacctHeader}, nil)

	_, err := f.proxy.RunningJobIDs(context.Background(), "sim42_")
	assert.NoError(t, err)

	clone := f.proxy.CloneThreadsafe()
	_, err = clone.Status(htc.NewJobID(htc.Slurm, 101))
	assert.True(t, htc.IsJobNotFound(err), "clone should start with an empty snapshot")

	ids, err := clone.RunningJobIDs(context.Background(), "sim42_")
	assert.NoError(t, err)
	assert.Empty(t, ids)

	// the original snapshot is untouched
	_, err = f.proxy.Status(htc.NewJobID(htc.Slurm, 101))
	assert.NoError(t, err)
	assert.Equal(t, htc.Slurm, clone.Family())
}
