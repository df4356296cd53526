package errors

type ExitCode int

const (
	GenericFailureExitCode ExitCode = 1

	// Kill, status or info on a job the scheduler does not know about
	JobNotFoundExitCode ExitCode = 3

	SubmissionFailureExitCode ExitCode = 4
	SchedulerFailureExitCode  ExitCode = 5
	ConfigFailureExitCode     ExitCode = 6
)
