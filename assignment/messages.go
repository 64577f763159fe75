package assignment

// User-facing success messages. Failure messages live on the error types in
// generic/errors.go.
const (
	MsgAssignmentsCompleted = "Assignments completed successfully."
	MsgSimulationCompleted  = "Assignment simulation completed successfully."
)

// Separator between canned comments on one block.
const commentSeparator = " | "
