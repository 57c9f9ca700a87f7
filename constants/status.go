package constants

// FileOutcome is the aggregate result of processing one source file.
type FileOutcome string

// Stable values (stored in the ledger and reported over /status).
const (
	OutcomeAllUploaded FileOutcome = "ALL_UPLOADED" // every record accepted, file goes to uploaded
	OutcomeAnyFailed   FileOutcome = "ANY_FAILED"   // parse or submit failure, file goes to errors
)

// RunState is the lifecycle of a scheduler run.
type RunState string

const (
	RunStateIdle       RunState = "IDLE"
	RunStateRunning    RunState = "RUNNING"
	RunStateAuthFailed RunState = "AUTH_FAILED"
	RunStateFailed     RunState = "FAILED"
	RunStateStopped    RunState = "STOPPED"
)
