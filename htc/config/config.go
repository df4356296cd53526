// Package config holds the htcproxy configuration: which scheduler to drive,
// how its commands reach the head node, and the script defaults.
// Configurations are JSON; named presets live in configs.go.
package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/htcproxy/command"
	"github.com/twitter/htcproxy/common/os/exec"
	"github.com/twitter/htcproxy/common/stats"
	"github.com/twitter/htcproxy/htc"
	"github.com/twitter/htcproxy/htc/proxies"
	"github.com/twitter/htcproxy/htc/sge"
	"github.com/twitter/htcproxy/htc/slurm"
	"github.com/twitter/htcproxy/os/temp"
)

// How long a single scheduler command may run before it is killed.
const DefaultCommandTimeout = 2 * time.Minute

// HTCConfig is the top level configuration.
type HTCConfig struct {
	Scheduler SchedulerJSONConfig `json:"Scheduler"`
	Transport TransportJSONConfig `json:"Transport"`
	Script    ScriptJSONConfig    `json:"Script"`
}

func (c HTCConfig) String() string {
	return fmt.Sprintf("\n%s\n%s\n%s", c.Scheduler, c.Transport, c.Script)
}

type SchedulerJSONConfig struct {
	Type      string `json:"Type"`      // slurm, sge
	BinDir    string `json:"BinDir"`    // default to the PATH
	User      string `json:"User"`      // default to the invoking user
	StartTime string `json:"StartTime"` // slurm only, sacct --starttime
}

func (s SchedulerJSONConfig) String() string {
	return fmt.Sprintf("SchedulerJSONConfig: Type: %s, BinDir: %s, User: %s, StartTime: %s",
		s.Type, s.BinDir, s.User, s.StartTime)
}

type TransportJSONConfig struct {
	Type                 string  `json:"Type"` // local, ssh
	Host                 string  `json:"Host"`
	User                 string  `json:"User"`
	Port                 int     `json:"Port"`
	IdentityFile         string  `json:"IdentityFile"`
	Retries              int     `json:"Retries"`        // ssh transport retries, default to 3
	CommandTimeout       string  `json:"CommandTimeout"` // default to 2m
	KillTimeout          string  `json:"KillTimeout"`    // default to 5s
	MaxCommandsPerSecond float64 `json:"MaxCommandsPerSecond"`
}

func (t TransportJSONConfig) String() string {
	return fmt.Sprintf("TransportJSONConfig: Type: %s, Host: %s, User: %s, Port: %d, IdentityFile: %s, Retries: %d, "+
		"CommandTimeout: %s, KillTimeout: %s, MaxCommandsPerSecond: %g",
		t.Type, t.Host, t.User, t.Port, t.IdentityFile, t.Retries, t.CommandTimeout, t.KillTimeout, t.MaxCommandsPerSecond)
}

type ScriptJSONConfig struct {
	LogDir           string `json:"LogDir"`
	MPIHome          string `json:"MPIHome"`
	Partition        string `json:"Partition"`
	MemoryOverheadMB int64  `json:"MemoryOverheadMB"`
	StagingDir       string `json:"StagingDir"` // local dir for rendered scripts, default to the system temp dir
}

func (s ScriptJSONConfig) String() string {
	return fmt.Sprintf("ScriptJSONConfig: LogDir: %s, MPIHome: %s, Partition: %s, MemoryOverheadMB: %d, StagingDir: %s",
		s.LogDir, s.MPIHome, s.Partition, s.MemoryOverheadMB, s.StagingDir)
}

func GetConfigText(configSelector string) ([]byte, error) {
	configText, ok := HTCConfigs[configSelector]
	if !ok {
		keys := make([]string, 0, len(HTCConfigs))
		for k := range HTCConfigs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("invalid configuration %s, supported values are %v", configSelector, keys)
	}
	return []byte(configText), nil
}

// GetConfig returns the named preset with defaults filled in.
func GetConfig(configSelector string) (*HTCConfig, error) {
	configText, err := GetConfigText(configSelector)
	if err != nil {
		return nil, err
	}
	return ParseConfig(configText)
}

// ParseConfig parses a JSON configuration. Sections whose Type is unset, and
// an empty Script section, take their values from the default preset.
func ParseConfig(configText []byte) (*HTCConfig, error) {
	defaultConfigText, _ := GetConfigText("default")
	defaultConfig := &HTCConfig{}
	if err := json.Unmarshal(defaultConfigText, defaultConfig); err != nil {
		return nil, fmt.Errorf("couldn't parse the default config: %v", err)
	}

	c := &HTCConfig{}
	if err := json.Unmarshal(configText, c); err != nil {
		return nil, fmt.Errorf("couldn't parse top-level config: %v", err)
	}

	if c.Scheduler.Type == "" {
		log.Infof("using default Scheduler config")
		c.Scheduler = defaultConfig.Scheduler
	}
	if c.Transport.Type == "" {
		log.Infof("using default Transport config")
		c.Transport = defaultConfig.Transport
	}
	if c.Script == (ScriptJSONConfig{}) {
		log.Infof("using default Script config")
		c.Script = defaultConfig.Script
	}
	return c, nil
}

// CreateBackend returns the Backend for the configured scheduler family.
func (s SchedulerJSONConfig) CreateBackend() (proxies.Backend, error) {
	family, err := htc.ParseFamily(s.Type)
	if err != nil {
		return nil, err
	}
	switch family {
	case htc.Slurm:
		return slurm.NewBackend(slurm.Config{BinDir: s.BinDir, User: s.User, StartTime: s.StartTime}), nil
	case htc.SGE:
		return sge.NewBackend(sge.Config{BinDir: s.BinDir, User: s.User}), nil
	}
	return nil, fmt.Errorf("no backend for scheduler type %s", s.Type)
}

func (t TransportJSONConfig) CreateOptions() (command.Options, error) {
	opts := command.Options{
		Timeout:              DefaultCommandTimeout,
		KillTimeout:          command.DefaultKillTimeout,
		MaxCommandsPerSecond: t.MaxCommandsPerSecond,
	}
	var err error
	if t.CommandTimeout != "" {
		if opts.Timeout, err = time.ParseDuration(t.CommandTimeout); err != nil {
			return opts, errors.Wrap(err, "CommandTimeout")
		}
	}
	if t.KillTimeout != "" {
		if opts.KillTimeout, err = time.ParseDuration(t.KillTimeout); err != nil {
			return opts, errors.Wrap(err, "KillTimeout")
		}
	}
	return opts, nil
}

// CreateService returns the command.Service that runs scheduler commands.
func (t TransportJSONConfig) CreateService(ex exec.OsExec, stat stats.StatsReceiver) (command.Service, error) {
	opts, err := t.CreateOptions()
	if err != nil {
		return nil, err
	}
	switch t.Type {
	case "local":
		return command.NewLocal(ex, opts, stat), nil
	case "ssh":
		if t.Host == "" {
			return nil, fmt.Errorf("ssh transport requires a Host")
		}
		retries := t.Retries
		if retries <= 0 {
			retries = command.DefaultSSHRetries
		}
		return command.NewSSH(ex, command.SSHConfig{
			Host:         t.Host,
			User:         t.User,
			Port:         t.Port,
			IdentityFile: t.IdentityFile,
			Retries:      uint64(retries),
		}, opts, stat), nil
	}
	return nil, fmt.Errorf("unknown transport type %q, expected local or ssh", t.Type)
}

func (s ScriptJSONConfig) CreateProxyConfig() proxies.Config {
	cfg := proxies.Config{
		LogDir:           s.LogDir,
		MPIHome:          s.MPIHome,
		Partition:        s.Partition,
		MemoryOverheadMB: s.MemoryOverheadMB,
	}
	if s.StagingDir != "" {
		cfg.TempDir = &temp.TempDir{Dir: s.StagingDir}
	}
	return cfg
}

// CreateProxy builds the proxy this configuration describes, running commands with ex.
func (c *HTCConfig) CreateProxy(ex exec.OsExec, stat stats.StatsReceiver) (*proxies.Proxy, error) {
	backend, err := c.Scheduler.CreateBackend()
	if err != nil {
		return nil, errors.Wrap(err, "creating scheduler backend")
	}
	svc, err := c.Transport.CreateService(ex, stat)
	if err != nil {
		return nil, errors.Wrap(err, "creating command service")
	}
	cfg := c.Script.CreateProxyConfig()
	log.WithFields(
		log.Fields{
			"family":    backend.Family(),
			"transport": c.Transport.Type,
			"host":      c.Transport.Host,
			"staging":   c.Script.StagingDir,
		}).Info("Created scheduler proxy")
	return proxies.New(cfg, backend, svc, stat), nil
}
