package errors

type ExitCode int

const (
	GenericFailureExitCode ExitCode = 1

	// Startup
	ConfigLoadFailureExitCode ExitCode = 70
	AdminServeFailureExitCode ExitCode = 71

	// demo command
	DemoJobFailureExitCode    ExitCode = 80
	DrainTimeoutExitCode      ExitCode = 81
	DemoSubmitFailureExitCode ExitCode = 82

	// stats command
	StatsFetchFailureExitCode ExitCode = 90
)
