package cli

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/twitter/htcproxy/command"
	htcerrors "github.com/twitter/htcproxy/common/errors"
	"github.com/twitter/htcproxy/common/os/exec"
	"github.com/twitter/htcproxy/htc"
	"github.com/twitter/htcproxy/htc/proxies"
	"github.com/twitter/htcproxy/htc/slurm"
)

const sacctHeader = "JobIDRaw|JobName|State|ExitCode|NodeList|Reason\n"

var sacctArgv = slurm.NewBackend(slurm.Config{}).StatusArgv()

func newTestClient(t *testing.T, svc command.Service) (*HTCCLIClient, *bytes.Buffer) {
	cl, err := NewSimpleCLIClient(exec.NewOsExec())
	if err != nil {
		t.Fatal(err)
	}
	c := cl.(*HTCCLIClient)
	c.Proxy = proxies.New(proxies.Config{LogDir: "/share/logs"}, slurm.NewBackend(slurm.Config{}), svc, nil)
	var out bytes.Buffer
	c.RootCmd.SetOutput(&out)
	return c, &out
}

func run(c *HTCCLIClient, args ...string) error {
	c.RootCmd.SetArgs(args)
	return c.Exec()
}

func TestParseJobIDs(t *testing.T) {
	ids, err := parseJobIDs(htc.Slurm, []string{"42", "slurm:43", "44;cluster", "SLURM:45"})
	assert.NoError(t, err)
	assert.Equal(t, []htc.JobID{
		htc.NewJobID(htc.Slurm, 42),
		htc.NewJobID(htc.Slurm, 43),
		htc.NewJobID(htc.Slurm, 44),
		htc.NewJobID(htc.Slurm, 45),
	}, ids)

	ids, err = parseJobIDs(htc.SGE, []string{"1234.1-10:1"})
	assert.NoError(t, err)
	assert.Equal(t, []htc.JobID{htc.NewJobID(htc.SGE, 1234)}, ids)

	for _, bad := range []string{"sge:42", "abc", "", "slurm:"} {
		_, err := parseJobIDs(htc.Slurm, []string{bad})
		assert.Error(t, err, bad)
	}
}

func TestJobFlagsRequest(t *testing.T) {
	f := &jobFlags{
		jobName:     "sim42",
		submitDir:   "/share/jobs",
		cpus:        4,
		memoryMB:    2000,
		parallel:    true,
		exitHandler: "/opt/notify --job sim42",
		post:        []string{"/opt/cleanup /scratch/sim42"},
	}
	req, err := f.request([]string{"/opt/solver", "in.xml"}, ".slurm.sub")
	assert.NoError(t, err)
	assert.Equal(t, "/share/jobs/sim42.slurm.sub", req.SubmissionPath)
	assert.Equal(t, []htc.Command{htc.NewParallelCommand("/opt/solver", "in.xml")}, req.Pipeline.Commands)
	if assert.NotNil(t, req.Pipeline.ExitHandler) {
		assert.Equal(t, []string{"/opt/notify", "--job", "sim42"}, req.Pipeline.ExitHandler.Argv)
	}
	assert.Equal(t, []htc.Command{htc.NewCommand("/opt/cleanup", "/scratch/sim42")}, req.PostProcessing)
	assert.Equal(t, 4, req.CPUs)
	assert.Equal(t, int64(2000), req.MemoryMB)

	_, err = (&jobFlags{}).request([]string{"/opt/solver"}, ".slurm.sub")
	assert.Error(t, err)
	_, err = (&jobFlags{jobName: "sim42"}).request(nil, ".slurm.sub")
	assert.Error(t, err)
}

func TestJobFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "htccl-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	jobFile := filepath.Join(dir, "sim42.json")
	err = ioutil.WriteFile(jobFile, []byte(`{
		"JobName": "sim42_run1",
		"SubmissionPath": "/share/jobs/sim42_run1.slurm.sub",
		"CPUs": 1,
		"Pipeline": {"Commands": [{"Argv": ["/opt/solver", "in.xml"]}, {"Argv": ["/opt/export", "out"]}]}
	}`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	req, err := (&jobFlags{jobFile: jobFile}).request(nil, ".slurm.sub")
	assert.NoError(t, err)
	assert.Equal(t, "sim42_run1", req.JobName)
	assert.Len(t, req.Pipeline.Commands, 2)
	assert.Nil(t, req.Pipeline.ExitHandler)

	_, err = (&jobFlags{jobFile: filepath.Join(dir, "missing.json")}).request(nil, "")
	assert.Error(t, err)
}

func TestSubmitCmd(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	svc := command.NewMockService(mockCtrl)
	c, out := newTestClient(t, svc)

	svc.EXPECT().PushFile(gomock.Any(), gomock.Any(), "/share/jobs/sim42.slurm.sub").Return(nil)
	svc.EXPECT().Command(gomock.Any(), []string{"sbatch", "--parsable", "/share/jobs/sim42.slurm.sub"}, 0).Return(
		&command.Output{Stdout: "4242\n"}, nil)

	err := run(c, "submit", "--name", "sim42", "--submit_dir", "/share/jobs", "--", "/opt/solver", "in.xml")
	assert.NoError(t, err)
	assert.Equal(t, "slurm:4242\n", out.String())
}

func TestScriptCmd(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	c, out := newTestClient(t, command.NewMockService(mockCtrl))

	err := run(c, "script", "--name", "sim42", "--", "/opt/solver", "in.xml")
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "#!/bin/bash\n#SBATCH -J sim42\n"), out.String())
	assert.Contains(t, out.String(), "runCommand /opt/solver in.xml\n")

	// parallel command in a serial job fails before anything is run
	c, _ = newTestClient(t, command.NewMockService(mockCtrl))
	err = run(c, "script", "--name", "sim42", "--parallel", "--", "/opt/solver")
	assert.True(t, htc.IsScriptError(err), "%v", err)
}

func TestKillCmdNotFound(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	svc := command.NewMockService(mockCtrl)
	c, out := newTestClient(t, svc)

	svc.EXPECT().Command(gomock.Any(), []string{"scancel", "42"}, 0, 1).Return(&command.Output{}, nil)
	svc.EXPECT().Command(gomock.Any(), []string{"scancel", "43"}, 0, 1).Return(
		&command.Output{ExitStatus: 1, Stderr: "scancel: error: Kill job error on job id 43: Invalid job id specified\n"}, nil)

	err := run(c, "kill", "42", "slurm:43")
	assert.True(t, htc.IsJobNotFound(err), "%v", err)
	assert.Equal(t, htcerrors.JobNotFoundExitCode, htcerrors.Classify(err).GetExitCode())
	assert.Equal(t, "killed slurm:42\n", out.String())
}

func TestStatusAndListCmds(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	svc := command.NewMockService(mockCtrl)
	dump := sacctHeader +
		"101|sim42_run1|RUNNING|0:0|node07|None\n" +
		"102|sim42_run2|NODE_FAIL|0:0|node08|None\n"
	svc.EXPECT().Command(gomock.Any(), sacctArgv, 0).Return(&command.Output{Stdout: dump}, nil).Times(3)

	c, out := newTestClient(t, svc)
	err := run(c, "status", "101", "102", "103")
	assert.True(t, htc.IsJobNotFound(err), "%v", err)
	assert.Equal(t, "slurm:101 RUNNING\nslurm:102 ERROR\nslurm:103 NOT_FOUND\n", out.String())

	c, out = newTestClient(t, svc)
	assert.NoError(t, run(c, "list", "sim42_"))
	assert.Equal(t, "slurm:101\n", out.String())

	c, out = newTestClient(t, svc)
	assert.NoError(t, run(c, "list", "--json", "sim42_"))
	assert.Contains(t, out.String(), `"ID": "slurm:101"`)
	assert.Contains(t, out.String(), `"Host": "node07"`)
	assert.NotContains(t, out.String(), "slurm:102")
}

func TestInfoCmd(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	svc := command.NewMockService(mockCtrl)
	svc.EXPECT().Command(gomock.Any(), sacctArgv, 0).Return(
		&command.Output{Stdout: sacctHeader + "102|sim42_run2|NODE_FAIL|1:0|node08|None\n"}, nil)

	c, out := newTestClient(t, svc)
	assert.NoError(t, run(c, "info", "102"))
	assert.Contains(t, out.String(), `"Status": "ERROR"`)
	assert.Contains(t, out.String(), `"Diagnostic": "exitCode=1:0"`)
}

func TestWatchCmd(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()
	svc := command.NewMockService(mockCtrl)
	gomock.InOrder(
		svc.EXPECT().Command(gomock.Any(), sacctArgv, 0).Return(
			&command.Output{Stdout: sacctHeader + "101|sim42_run1|PENDING|0:0|None assigned|Priority\n"}, nil),
		svc.EXPECT().Command(gomock.Any(), sacctArgv, 0).Return(
			&command.Output{Stdout: sacctHeader + "101|sim42_run1|RUNNING|0:0|node07|None\n"}, nil),
		svc.EXPECT().Command(gomock.Any(), sacctArgv, 0).Return(
			&command.Output{Stdout: sacctHeader + "101|sim42_run1|RUNNING|0:0|node07|None\n"}, nil),
		svc.EXPECT().Command(gomock.Any(), sacctArgv, 0).Return(
			&command.Output{Stdout: sacctHeader + "101|sim42_run1|COMPLETED|0:0|node07|None\n"}, nil),
	)

	c, out := newTestClient(t, svc)
	assert.NoError(t, run(c, "watch", "--interval", "1ms", "101"))
	assert.Equal(t, "slurm:101 PENDING\nslurm:101 RUNNING\nslurm:101 EXITED\n", out.String())
}

func TestBadConfig(t *testing.T) {
	cl, err := NewSimpleCLIClient(exec.NewOsExec())
	if err != nil {
		t.Fatal(err)
	}
	c := cl.(*HTCCLIClient)
	c.RootCmd.SetOutput(ioutil.Discard)

	err = run(c, "--config", "no.such.config", "list")
	assert.Equal(t, htcerrors.ConfigFailureExitCode, htcerrors.Classify(err).GetExitCode())
}
