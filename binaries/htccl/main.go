package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/htcproxy/common/errors"
	"github.com/twitter/htcproxy/common/log/hooks"
	"github.com/twitter/htcproxy/common/os/exec"
	"github.com/twitter/htcproxy/htc/client/cli"
)

// CLI binary driving a Slurm or SGE cluster
//	Supported commands: (see "-h" for all options)
//		submit [flags] -- command [args...]
//		script [flags] -- command [args...]
//		kill [job id...]
//		status [job id...]
//		info [job id]
//		list [prefix]
//		watch [job id]
//	Global flags:
//		--config [named configuration preset]
//		--config_file [JSON configuration file]
//		--log_level [<error|info|debug> level and above should be logged]
//		--stats [print stats on exit]

func main() {
	log.AddHook(hooks.NewContextHook())

	cl, err := cli.NewSimpleCLIClient(exec.NewOsExec())
	if err != nil {
		log.Fatal("Failed to create new htccl client: ", err)
	}

	if err := cl.Exec(); err != nil {
		ece := errors.Classify(err)
		log.Error("Error running htccl: ", err)
		os.Exit(int(ece.GetExitCode()))
	}
}
