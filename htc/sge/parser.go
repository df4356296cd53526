package sge

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/htcproxy/htc"
)

// qstat -xml layout. Running jobs sit directly under queue_info, or under
// queue_info/Queue-List when -f is given; pending jobs sit under job_info/job_info.
type qstatDoc struct {
	XMLName   xml.Name     `xml:"job_info"`
	QueueInfo *queueInfo   `xml:"queue_info"`
	JobInfo   *pendingInfo `xml:"job_info"`
}

type queueInfo struct {
	Jobs   []jobList   `xml:"job_list"`
	Queues []queueList `xml:"Queue-List"`
}

type queueList struct {
	Name string    `xml:"name"`
	Jobs []jobList `xml:"job_list"`
}

type pendingInfo struct {
	Jobs []jobList `xml:"job_list"`
}

type jobList struct {
	StateAttr string  `xml:"state,attr"`
	Number    string  `xml:"JB_job_number"`
	Name      *string `xml:"JB_name"`
	Owner     string  `xml:"JB_owner"`
	State     string  `xml:"state"`
	QueueName string  `xml:"queue_name"`
}

// SGE state codes as printed in the <state> element of qstat -xml.
var stateTable = map[string]htc.JobStatus{
	"qw":   htc.PENDING,
	"hqw":  htc.PENDING,
	"hRwq": htc.PENDING,
	"hRqw": htc.PENDING,
	"Rq":   htc.PENDING,
	"hr":   htc.PENDING,

	"r":  htc.RUNNING,
	"t":  htc.RUNNING,
	"Rr": htc.RUNNING,
	"Rt": htc.RUNNING,
	"s":  htc.RUNNING,
	"ts": htc.RUNNING,
	"S":  htc.RUNNING,
	"tS": htc.RUNNING,
	"T":  htc.RUNNING,
	"tT": htc.RUNNING,

	"d":    htc.DELETING,
	"dr":   htc.DELETING,
	"dt":   htc.DELETING,
	"dRr":  htc.DELETING,
	"dRt":  htc.DELETING,
	"ds":   htc.DELETING,
	"dS":   htc.DELETING,
	"dT":   htc.DELETING,
	"dqw":  htc.DELETING,
	"dhqw": htc.DELETING,

	"Eqw":   htc.ERROR,
	"Ehqw":  htc.ERROR,
	"EhRqw": htc.ERROR,
}

// Used only when a job_list carries no <state> element.
var stateAttrTable = map[string]htc.JobStatus{
	"running": htc.RUNNING,
	"pending": htc.PENDING,
}

// ParseState maps a qstat state code, falling back to the job_list state attribute.
func ParseState(code, attr string) (htc.JobStatus, bool) {
	code = strings.TrimSpace(code)
	if code != "" {
		s, ok := stateTable[code]
		return s, ok
	}
	s, ok := stateAttrTable[strings.TrimSpace(attr)]
	return s, ok
}

// StatusParser parses `qstat -xml` output.
type StatusParser struct{}

func (p StatusParser) Parse(output []byte, prefix string) (*htc.ParseResult, error) {
	var doc qstatDoc
	if err := xml.NewDecoder(bytes.NewReader(output)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("malformed qstat xml: %v", err)
	}

	type located struct {
		job   jobList
		queue string
	}
	var jobs []located
	if doc.QueueInfo != nil {
		for _, j := range doc.QueueInfo.Jobs {
			jobs = append(jobs, located{j, ""})
		}
		for _, q := range doc.QueueInfo.Queues {
			for _, j := range q.Jobs {
				jobs = append(jobs, located{j, q.Name})
			}
		}
	}
	if doc.JobInfo != nil {
		for _, j := range doc.JobInfo.Jobs {
			jobs = append(jobs, located{j, ""})
		}
	}

	result := &htc.ParseResult{}
	for i, l := range jobs {
		r, keep, perr := parseJob(i+1, l.job, l.queue, prefix)
		if perr != nil {
			result.Errors = append(result.Errors, perr)
			continue
		}
		if keep {
			result.Records = append(result.Records, r)
		}
	}
	return result, nil
}

func parseJob(entry int, j jobList, queue, prefix string) (htc.JobRecord, bool, *htc.ParseError) {
	if j.Name == nil {
		return htc.JobRecord{}, false, &htc.ParseError{Entry: entry, Raw: raw(j), Reason: "missing JB_name"}
	}
	name := strings.TrimSpace(*j.Name)
	if !strings.HasPrefix(name, prefix) {
		return htc.JobRecord{}, false, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(j.Number), 10, 64)
	if err != nil || n < 0 {
		return htc.JobRecord{}, false, &htc.ParseError{Entry: entry, Raw: raw(j), Reason: "invalid JB_job_number " + strconv.Quote(j.Number)}
	}
	id := htc.NewJobID(htc.SGE, n)
	status, ok := ParseState(j.State, j.StateAttr)
	if !ok {
		log.WithFields(
			log.Fields{
				"jobID":     id,
				"jobName":   name,
				"state":     j.State,
				"stateAttr": j.StateAttr,
			}).Warn("Unrecognized sge job state")
	}

	if q := strings.TrimSpace(j.QueueName); q != "" {
		queue = q
	}
	info := htc.JobInfo{ID: id, Name: name, Host: host(queue)}
	if status == htc.ERROR || !ok {
		info = info.WithDiagnostic("state=" + strings.TrimSpace(j.State))
	}
	return htc.JobRecord{Info: info, Status: status}, true, nil
}

// host extracts the host from a queue instance name ("all.q@node01").
func host(queue string) string {
	if i := strings.LastIndex(queue, "@"); i >= 0 {
		return queue[i+1:]
	}
	return ""
}

func raw(j jobList) string {
	b, err := xml.Marshal(j)
	if err != nil {
		return fmt.Sprintf("%+v", j)
	}
	return string(b)
}
