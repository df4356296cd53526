package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/twitter/htcproxy/common/client"
	"github.com/twitter/htcproxy/htc"
)

const defaultWatchInterval = 10 * time.Second

type killCmd struct{}

func (c *killCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "kill jobID...",
		Short: "Cancel jobs",
	}
}

func (c *killCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("a job id must be provided")
	}
	ids, err := parseJobIDs(cl.Proxy.Family(), args)
	if err != nil {
		return err
	}
	var firstErr error
	for _, id := range ids {
		if err := cl.Proxy.Kill(cl.Ctx, id); err != nil {
			log.WithFields(
				log.Fields{
					"jobID": id,
					"err":   err,
				}).Error("Kill failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), "killed", id)
	}
	return firstErr
}

// refresh takes a fresh snapshot covering every job name starting with prefix.
func refresh(cl *client.SimpleClient, prefix string) error {
	_, err := cl.Proxy.RunningJobIDs(cl.Ctx, prefix)
	return err
}

type statusCmd struct {
	prefix string
}

func (c *statusCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "status jobID...",
		Short: "Print job statuses",
	}
	r.Flags().StringVar(&c.prefix, "prefix", "", "Only query jobs whose name starts with prefix")
	return r
}

func (c *statusCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("a job id must be provided")
	}
	ids, err := parseJobIDs(cl.Proxy.Family(), args)
	if err != nil {
		return err
	}
	if err := refresh(cl, c.prefix); err != nil {
		return err
	}
	var firstErr error
	for _, id := range ids {
		status, err := cl.Proxy.Status(id)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if err != nil {
			status = htc.NOT_FOUND
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, status)
	}
	return firstErr
}

// jobView is the JSON rendering of a cached job record.
type jobView struct {
	ID         string
	Name       string
	Status     string
	Host       string `json:",omitempty"`
	Diagnostic string `json:",omitempty"`
}

func newJobView(info htc.JobInfo, status htc.JobStatus) jobView {
	return jobView{
		ID:         info.ID.String(),
		Name:       info.Name,
		Status:     status.String(),
		Host:       info.Host,
		Diagnostic: info.Diagnostic,
	}
}

func printJSON(w io.Writer, v interface{}) error {
	asJson, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("Error converting to JSON: %v", err)
	}
	fmt.Fprintf(w, "%s\n", asJson)
	return nil
}

type infoCmd struct {
	prefix string
}

func (c *infoCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "info jobID",
		Short: "Print what the scheduler reports about a job as JSON",
	}
	r.Flags().StringVar(&c.prefix, "prefix", "", "Only query jobs whose name starts with prefix")
	return r
}

func (c *infoCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one job id must be provided")
	}
	ids, err := parseJobIDs(cl.Proxy.Family(), args)
	if err != nil {
		return err
	}
	if err := refresh(cl, c.prefix); err != nil {
		return err
	}
	info, err := cl.Proxy.Info(ids[0])
	if err != nil {
		return err
	}
	status, err := cl.Proxy.Status(ids[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), newJobView(info, status))
}

type listCmd struct {
	printAsJson bool
}

func (c *listCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List pending, running and exited jobs whose name starts with prefix",
	}
	r.Flags().BoolVar(&c.printAsJson, "json", false, "Print job details as JSON")
	return r
}

func (c *listCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	ids, err := cl.Proxy.RunningJobIDs(cl.Ctx, prefix)
	if err != nil {
		return err
	}
	if !c.printAsJson {
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	}
	infos := cl.Proxy.JobInfos(ids)
	views := make([]jobView, 0, len(ids))
	for _, id := range ids {
		status, err := cl.Proxy.Status(id)
		if err != nil {
			continue
		}
		views = append(views, newJobView(infos[id], status))
	}
	return printJSON(cmd.OutOrStdout(), views)
}

type watchCmd struct {
	prefix   string
	interval time.Duration
	timeout  time.Duration
}

func (c *watchCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "watch jobID",
		Short: "Poll a job until it exits or disappears",
	}
	r.Flags().StringVar(&c.prefix, "prefix", "", "Only query jobs whose name starts with prefix")
	r.Flags().DurationVar(&c.interval, "interval", defaultWatchInterval, "Time between status queries")
	r.Flags().DurationVar(&c.timeout, "timeout", 0, "Give up after this long, 0 to wait forever")
	return r
}

func (c *watchCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one job id must be provided")
	}
	ids, err := parseJobIDs(cl.Proxy.Family(), args)
	if err != nil {
		return err
	}
	id := ids[0]
	log.Info("Watching job: ", id)

	var deadline <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	last := htc.JobStatus(-1)
	for {
		if err := refresh(cl, c.prefix); err != nil {
			return err
		}
		status, err := cl.Proxy.Status(id)
		if err != nil {
			if last == htc.JobStatus(-1) {
				return err
			}
			// gone from the scheduler after we saw it
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, htc.NOT_FOUND)
			return nil
		}
		if status != last {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, status)
			last = status
		}
		if status.IsTerminal() {
			return nil
		}

		select {
		case <-cl.Ctx.Done():
			return cl.Ctx.Err()
		case <-deadline:
			return fmt.Errorf("timed out after %s watching %s, last status %s", c.timeout, id, status)
		case <-time.After(c.interval):
		}
	}
}
