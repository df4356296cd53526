package cli

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	commoncli "github.com/twitter/htcproxy/common/client"
	htcerrors "github.com/twitter/htcproxy/common/errors"
	"github.com/twitter/htcproxy/common/os/exec"
	"github.com/twitter/htcproxy/common/stats"
	"github.com/twitter/htcproxy/htc"
	"github.com/twitter/htcproxy/htc/config"
)

// HTCCLIClient includes fields required for CLI client handling
type HTCCLIClient struct {
	commoncli.SimpleClient
	exec   exec.OsExec
	cancel context.CancelFunc
}

func (c *HTCCLIClient) Exec() error {
	return c.RootCmd.Execute()
}

// NewSimpleCLIClient returns the htccl command tree. Scheduler commands are run through ex.
func NewSimpleCLIClient(ex exec.OsExec) (commoncli.CLIClient, error) {
	c := &HTCCLIClient{exec: ex}

	c.RootCmd = &cobra.Command{
		Use:                "htccl",
		Short:              "htccl submits, watches and cancels jobs on Slurm and SGE clusters",
		PersistentPreRunE:  c.Init,
		Run:                func(*cobra.Command, []string) {},
		PersistentPostRunE: c.Close,
		SilenceUsage:       true,
		SilenceErrors:      true,
	}
	c.RootCmd.PersistentFlags().StringVar(&c.ConfigSelector, "config", "local.slurm", "Named configuration preset")
	c.RootCmd.PersistentFlags().StringVar(&c.ConfigFile, "config_file", "", "JSON configuration file, takes precedence over --config")
	c.RootCmd.PersistentFlags().StringVar(&c.LogLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")
	c.RootCmd.PersistentFlags().BoolVar(&c.PrintStats, "stats", false, "Print collected stats to stderr on exit")

	c.addCmd(&submitCmd{})
	c.addCmd(&scriptCmd{})
	c.addCmd(&killCmd{})
	c.addCmd(&statusCmd{})
	c.addCmd(&infoCmd{})
	c.addCmd(&listCmd{})
	c.addCmd(&watchCmd{})

	return c, nil
}

// Can only be called from cobra command run or hook
func (c *HTCCLIClient) Init(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Error(err)
		return err
	}
	log.SetLevel(level)

	c.Ctx, c.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if c.Stat == nil {
		c.Stat, _ = stats.NewCustomStatsReceiver(stats.NewFinagleStatsRegistry, 0)
	}
	if c.Proxy != nil {
		return nil
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return htcerrors.NewError(err, htcerrors.ConfigFailureExitCode)
	}
	log.Debugf("htccl config: %s", cfg)
	c.Proxy, err = cfg.CreateProxy(c.exec, c.Stat)
	if err != nil {
		return htcerrors.NewError(err, htcerrors.ConfigFailureExitCode)
	}
	return nil
}

func (c *HTCCLIClient) loadConfig() (*config.HTCConfig, error) {
	if c.ConfigFile == "" {
		return config.GetConfig(c.ConfigSelector)
	}
	text, err := ioutil.ReadFile(c.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %v", err)
	}
	return config.ParseConfig(text)
}

// Needs cobra parameters for use from rootCmd
func (c *HTCCLIClient) Close(cmd *cobra.Command, args []string) error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.PrintStats && c.Stat != nil {
		fmt.Fprintf(cmd.OutOrStderr(), "%s\n", c.Stat.Render(true))
	}
	return nil
}

func (c *HTCCLIClient) addCmd(cmd commoncli.Cmd) {
	cobraCmd := cmd.RegisterFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.Run(&c.SimpleClient, innerCmd, args)
	}
	c.RootCmd.AddCommand(cobraCmd)
}

// parseJobIDs accepts both the native job number ("1234") and the
// family-qualified form printed by htccl ("slurm:1234").
func parseJobIDs(family htc.Family, args []string) ([]htc.JobID, error) {
	ids := make([]htc.JobID, 0, len(args))
	for _, arg := range args {
		native := arg
		if i := strings.Index(arg, ":"); i >= 0 {
			if f, err := htc.ParseFamily(arg[:i]); err == nil {
				if f != family {
					return nil, fmt.Errorf("job %s belongs to %s, configured scheduler is %s", arg, f, family)
				}
				native = arg[i+1:]
			}
		}
		id, err := htc.ParseJobID(family, native)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
