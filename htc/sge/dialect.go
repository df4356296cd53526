package sge

import (
	"fmt"

	"github.com/twitter/htcproxy/htc/script"
)

// Parallel environment requested for multi-cpu jobs.
const ParallelEnvironment = "mpich"

type dialect struct{}

// Dialect renders "#$" directives.
func Dialect() script.Dialect {
	return dialect{}
}

func (dialect) Name() string        { return "sge" }
func (dialect) DisplayName() string { return "SGE" }

func (dialect) Directives(h script.Header) []string {
	lines := []string{
		"#$ -S /bin/bash",
		"#$ -N " + h.JobName,
	}
	if h.Partition != "" {
		lines = append(lines, "#$ -q "+h.Partition)
	}
	lines = append(lines,
		"#$ -o "+h.LogPath,
		"#$ -e "+h.LogPath,
	)
	if h.MemoryMB > 0 {
		lines = append(lines, fmt.Sprintf("#$ -l h_vmem=%dm", h.MemoryMB))
	}
	if h.CPUs > 1 {
		lines = append(lines, fmt.Sprintf("#$ -pe %s %d", ParallelEnvironment, h.CPUs))
	}
	return lines
}
