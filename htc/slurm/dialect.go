package slurm

import (
	"fmt"

	"github.com/twitter/htcproxy/htc/script"
)

type dialect struct{}

// Dialect renders #SBATCH directives.
func Dialect() script.Dialect {
	return dialect{}
}

func (dialect) Name() string        { return "slurm" }
func (dialect) DisplayName() string { return "Slurm" }

func (dialect) Directives(h script.Header) []string {
	var lines []string
	if h.Partition != "" {
		lines = append(lines, "#SBATCH --partition="+h.Partition)
	}
	lines = append(lines,
		"#SBATCH -J "+h.JobName,
		"#SBATCH -o "+h.LogPath,
		"#SBATCH -e "+h.LogPath,
	)
	if h.MemoryMB > 0 {
		lines = append(lines, fmt.Sprintf("#SBATCH --mem=%dM", h.MemoryMB))
	}
	if h.CPUs > 1 {
		lines = append(lines, fmt.Sprintf("#SBATCH -n %d", h.CPUs))
	}
	return lines
}
