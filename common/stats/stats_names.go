package stats

/*
This file defines all the metrics being collected.   As new metrics are added please follow this pattern.
*/

const (
	/************************* Scheduler proxy metrics **************************/
	/*
		number of submit requests
	*/
	HTCSubmitCounter = "submitCounter"

	/*
		number of submit requests that did not produce a job id
	*/
	HTCSubmitFailureCounter = "submitFailureCounter"

	/*
		time from rendering the submission script to parsing the new job id
	*/
	HTCSubmitLatency_ms = "submitLatency_ms"

	/*
		number of cancel requests sent to the scheduler
	*/
	HTCKillCounter = "killCounter"

	/*
		number of cancel requests the scheduler answered with "job does not exist"
	*/
	HTCKillNotFoundCounter = "killNotFoundCounter"

	/*
		number of full status queries (RunningJobIDs calls)
	*/
	HTCStatusQueryCounter = "statusQueryCounter"

	/*
		number of status queries that failed to run or returned an unparseable dump
	*/
	HTCStatusQueryFailureCounter = "statusQueryFailureCounter"

	/*
		time to run and parse one status query
	*/
	HTCStatusQueryLatency_ms = "statusQueryLatency_ms"

	/*
		number of individual status entries that could not be parsed
	*/
	HTCParseErrorCounter = "parseErrorCounter"

	/*
		number of jobs reported again by the scheduler after they had been marked NOT_FOUND
	*/
	HTCResurrectedJobCounter = "resurrectedJobCounter"

	/*
		number of jobs that disappeared from the status dump between two queries
	*/
	HTCVanishedJobCounter = "vanishedJobCounter"

	/*
		number of job records held in the status cache after the last query
	*/
	HTCCachedJobsGauge = "cachedJobsGauge"

	/*
		number of PENDING, RUNNING or EXITED jobs after the last query
	*/
	HTCActiveJobsGauge = "activeJobsGauge"

	/************************* Command service metrics **************************/
	/*
		number of scheduler commands run, including retries
	*/
	CommandCounter = "commandCounter"

	/*
		number of commands that could not be run or exited with an unacceptable status
	*/
	CommandFailureCounter = "commandFailureCounter"

	/*
		number of commands retried after an ssh transport failure
	*/
	CommandRetryCounter = "commandRetryCounter"

	/*
		time to run one scheduler command, including rate limiter wait
	*/
	CommandLatency_ms = "commandLatency_ms"
)
