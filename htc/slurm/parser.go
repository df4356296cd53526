package slurm

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/htcproxy/htc"
)

// Fields requested from sacct, in order. The parser checks the header against this list.
var statusFields = []string{"JobIDRaw", "JobName", "State", "ExitCode", "NodeList", "Reason"}

const (
	fieldID = iota
	fieldName
	fieldState
	fieldExitCode
	fieldNodeList
	fieldReason
)

const maxLineBytes = 1024 * 1024

// Slurm job states as printed by sacct, see job_state_string() in slurm.
var stateTable = map[string]htc.JobStatus{
	"PENDING":       htc.PENDING,
	"REQUEUED":      htc.PENDING,
	"REQUEUE_HOLD":  htc.PENDING,
	"REQUEUE_FED":   htc.PENDING,
	"RESV_DEL_HOLD": htc.PENDING,
	"SPECIAL_EXIT":  htc.PENDING,
	"RESIZING":      htc.PENDING,

	"RUNNING":     htc.RUNNING,
	"CONFIGURING": htc.RUNNING,
	"COMPLETING":  htc.RUNNING,
	"STAGE_OUT":   htc.RUNNING,
	"SIGNALING":   htc.RUNNING,
	"SUSPENDED":   htc.RUNNING,
	"STOPPED":     htc.RUNNING,

	"COMPLETED":     htc.EXITED,
	"FAILED":        htc.EXITED,
	"TIMEOUT":       htc.EXITED,
	"OUT_OF_MEMORY": htc.EXITED,
	"PREEMPTED":     htc.EXITED,
	"DEADLINE":      htc.EXITED,
	"CANCELLED":     htc.EXITED,

	"BOOT_FAIL": htc.ERROR,
	"NODE_FAIL": htc.ERROR,
	"REVOKED":   htc.ERROR,
}

// ParseState maps a sacct State column to a JobStatus. sacct decorates some
// states ("CANCELLED by 1000", "RUNNING+"); only the leading word is used.
func ParseState(state string) (htc.JobStatus, bool) {
	fields := strings.Fields(state)
	if len(fields) == 0 {
		return htc.UNKNOWN, false
	}
	s, ok := stateTable[strings.TrimRight(fields[0], "+")]
	if !ok {
		return htc.UNKNOWN, false
	}
	return s, true
}

// StatusParser parses `sacct -X -P --format=...` output (header line included).
type StatusParser struct{}

func (p StatusParser) Parse(output []byte, prefix string) (*htc.ParseResult, error) {
	result := &htc.ParseResult{}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	header := false
	entry := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !header {
			if line != strings.Join(statusFields, "|") {
				return nil, fmt.Errorf("unexpected sacct header %q, expected %q", line, strings.Join(statusFields, "|"))
			}
			header = true
			continue
		}
		entry++
		r, keep, perr := parseLine(entry, line, prefix)
		if perr != nil {
			result.Errors = append(result.Errors, perr)
			continue
		}
		if keep {
			result.Records = append(result.Records, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading sacct output: %v", err)
	}
	if !header {
		return nil, fmt.Errorf("sacct output has no header line")
	}
	return result, nil
}

func parseLine(entry int, line, prefix string) (htc.JobRecord, bool, *htc.ParseError) {
	fields := strings.Split(line, "|")
	if len(fields) != len(statusFields) {
		return htc.JobRecord{}, false, &htc.ParseError{
			Entry: entry, Raw: line,
			Reason: fmt.Sprintf("expected %d fields, got %d", len(statusFields), len(fields)),
		}
	}
	name := fields[fieldName]
	if !strings.HasPrefix(name, prefix) {
		return htc.JobRecord{}, false, nil
	}

	n, err := strconv.ParseInt(fields[fieldID], 10, 64)
	if err != nil || n < 0 {
		return htc.JobRecord{}, false, &htc.ParseError{Entry: entry, Raw: line, Reason: "invalid job id " + strconv.Quote(fields[fieldID])}
	}
	if strings.TrimSpace(fields[fieldState]) == "" {
		return htc.JobRecord{}, false, &htc.ParseError{Entry: entry, Raw: line, Reason: "missing state"}
	}
	id := htc.NewJobID(htc.Slurm, n)
	status, ok := ParseState(fields[fieldState])
	if !ok {
		log.WithFields(
			log.Fields{
				"jobID":   id,
				"jobName": name,
				"state":   fields[fieldState],
			}).Warn("Unrecognized slurm job state")
	}

	info := htc.JobInfo{
		ID:         id,
		Name:       name,
		Host:       host(fields[fieldNodeList]),
		Diagnostic: diagnostic(fields[fieldExitCode], fields[fieldReason]),
	}
	return htc.JobRecord{Info: info, Status: status}, true, nil
}

func host(nodeList string) string {
	switch nodeList {
	case "", "None assigned", "(null)":
		return ""
	}
	return nodeList
}

func diagnostic(exitCode, reason string) string {
	var parts []string
	if reason != "" && reason != "None" {
		parts = append(parts, "reason="+reason)
	}
	if exitCode != "" && exitCode != "0:0" {
		parts = append(parts, "exitCode="+exitCode)
	}
	return strings.Join(parts, ", ")
}
