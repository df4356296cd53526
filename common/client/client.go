package client

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/twitter/htcproxy/common/stats"
	"github.com/twitter/htcproxy/htc/proxies"
)

// Client interface that includes CLI handling
type CLIClient interface {
	Exec() error
}

// SimpleClient includes base fields required for implementing client
type SimpleClient struct {
	RootCmd        *cobra.Command
	ConfigSelector string
	ConfigFile     string
	LogLevel       string
	PrintStats     bool
	Ctx            context.Context
	Stat           stats.StatsReceiver
	Proxy          *proxies.Proxy
}

// Command interface used to run client commands
type Cmd interface {
	RegisterFlags() *cobra.Command
	Run(cl *SimpleClient, cmd *cobra.Command, args []string) error
}
