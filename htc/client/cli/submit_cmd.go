package cli

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/twitter/htcproxy/common/client"
	"github.com/twitter/htcproxy/htc"
)

// jobFlags describes a job either through a JSON job file or through flags
// plus the command line of a single-command pipeline.
type jobFlags struct {
	jobFile     string
	jobName     string
	submitDir   string
	cpus        int
	memoryMB    int64
	parallel    bool
	exitHandler string
	post        []string
}

func (f *jobFlags) register(r *cobra.Command) {
	r.Flags().StringVar(&f.jobFile, "job_file", "", "JSON file holding a full submit request; the remaining job flags are ignored")
	r.Flags().StringVar(&f.jobName, "name", "", "Job name")
	r.Flags().StringVar(&f.submitDir, "submit_dir", "", "Directory the submission script is placed in, on the scheduler host")
	r.Flags().IntVar(&f.cpus, "cpus", 1, "Number of cpus")
	r.Flags().Int64Var(&f.memoryMB, "mem", 0, "Memory in MB, 0 for the scheduler default")
	r.Flags().BoolVar(&f.parallel, "parallel", false, "Launch the command under mpiexec when cpus > 1")
	r.Flags().StringVar(&f.exitHandler, "exit_handler", "", "Command invoked with the failing (or final 0) status. Split on whitespace")
	r.Flags().StringArrayVar(&f.post, "post", nil, "Post-processing command, repeatable. Split on whitespace")
}

// request builds the SubmitRequest. ext is the scheduler's submission file extension.
func (f *jobFlags) request(args []string, ext string) (htc.SubmitRequest, error) {
	if f.jobFile != "" {
		return readJobFile(f.jobFile)
	}
	if len(args) == 0 {
		return htc.SubmitRequest{}, fmt.Errorf("a command or --job_file must be provided")
	}
	if f.jobName == "" {
		return htc.SubmitRequest{}, fmt.Errorf("--name is required")
	}
	req := htc.SubmitRequest{
		JobName:        f.jobName,
		SubmissionPath: path.Join(f.submitDir, f.jobName+ext),
		CPUs:           f.cpus,
		MemoryMB:       f.memoryMB,
	}
	req.Pipeline.Commands = []htc.Command{{Argv: args, Parallel: f.parallel}}
	if argv := strings.Fields(f.exitHandler); len(argv) > 0 {
		handler := htc.NewCommand(argv...)
		req.Pipeline.ExitHandler = &handler
	}
	for _, p := range f.post {
		req.PostProcessing = append(req.PostProcessing, htc.NewCommand(strings.Fields(p)...))
	}
	return req, nil
}

func readJobFile(name string) (htc.SubmitRequest, error) {
	var req htc.SubmitRequest
	data, err := ioutil.ReadFile(name)
	if err != nil {
		return req, fmt.Errorf("reading job file: %v", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parsing job file %s: %v", name, err)
	}
	return req, nil
}

type submitCmd struct {
	job jobFlags
}

func (c *submitCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "submit [flags] -- command [args...]",
		Short: "Render a submission script, stage it and submit it",
	}
	c.job.register(r)
	return r
}

func (c *submitCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	req, err := c.job.request(args, cl.Proxy.SubmissionFileExtension())
	if err != nil {
		return err
	}
	log.Info("Submitting job ", req.JobName)

	id, err := cl.Proxy.Submit(cl.Ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

type scriptCmd struct {
	job jobFlags
}

func (c *scriptCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "script [flags] -- command [args...]",
		Short: "Print the submission script submit would stage, without submitting",
	}
	c.job.register(r)
	return r
}

func (c *scriptCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	req, err := c.job.request(args, cl.Proxy.SubmissionFileExtension())
	if err != nil {
		return err
	}
	text, err := cl.Proxy.RenderScript(req)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), text)
	return nil
}
