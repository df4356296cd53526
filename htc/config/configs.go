package config

// HTCConfigs the map of available configurations
var HTCConfigs = map[string]string{
	"default":     defaultConfig,
	"local.slurm": localSlurm,
	"local.sge":   localSGE,
	"ssh.slurm":   sshSlurm,
}

// defaultConfig the configuration values that are used for unset sections of a specific configuration
const defaultConfig = `{
	"Scheduler": {
		"Type": "slurm"
	},
	"Transport": {
		"Type": "local",
		"CommandTimeout": "2m",
		"KillTimeout": "5s"
	},
	"Script": {
		"LogDir": "/var/log/htc",
		"MPIHome": "/usr/lib64/mpich"
	}
}`

// localSlurm config for local.slurm - !!! make sure this constant is added to HTCConfigs map above !!!
const localSlurm = `{
	"Scheduler": {
		"Type": "slurm",
		"StartTime": "now-7days"
	},
	"Transport": {
		"Type": "local",
		"CommandTimeout": "2m",
		"MaxCommandsPerSecond": 10
	}
}`

// localSGE config for local.sge - !!! make sure this constant is added to HTCConfigs map above !!!
const localSGE = `{
	"Scheduler": {
		"Type": "sge"
	},
	"Transport": {
		"Type": "local",
		"CommandTimeout": "2m",
		"MaxCommandsPerSecond": 10
	},
	"Script": {
		"LogDir": "/var/log/htc",
		"MPIHome": "/opt/sge/mpich"
	}
}`

// sshSlurm config for ssh.slurm - !!! make sure this constant is added to HTCConfigs map above !!!
const sshSlurm = `{
	"Scheduler": {
		"Type": "slurm",
		"StartTime": "now-7days"
	},
	"Transport": {
		"Type": "ssh",
		"Host": "slurm-head",
		"Retries": 3,
		"CommandTimeout": "2m",
		"KillTimeout": "5s",
		"MaxCommandsPerSecond": 5
	},
	"Script": {
		"LogDir": "/share/htc/logs",
		"MPIHome": "/usr/lib64/mpich",
		"MemoryOverheadMB": 70
	}
}`
