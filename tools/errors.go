package tools

import "fmt"

// ToolNotFoundError is returned when the registry has no tool of the
// requested name.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// MissingParameterError is returned when a required parameter is absent
// from the call args.
type MissingParameterError struct {
	Tool      string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("tool %s: missing required parameter %q", e.Tool, e.Parameter)
}

// UnknownParameterError is returned in strict validation when args
// contains a key the tool's schema doesn't declare.
type UnknownParameterError struct {
	Tool      string
	Parameter string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("tool %s: unknown parameter %q", e.Tool, e.Parameter)
}

// InvalidParameterTypeError is returned when an argument's value doesn't
// match its declared schema type.
type InvalidParameterTypeError struct {
	Tool     string
	Name     string
	Expected string
	Actual   string
}

func (e *InvalidParameterTypeError) Error() string {
	return fmt.Sprintf("tool %s: parameter %q: expected %s, got %s", e.Tool, e.Name, e.Expected, e.Actual)
}

// ConfirmationMismatchError is returned when a mutating tool is called
// with confirm=true but its operation_hash doesn't match any dry-run
// previously recorded for the same plan.
type ConfirmationMismatchError struct {
	Tool          string
	OperationHash string
}

func (e *ConfirmationMismatchError) Error() string {
	return fmt.Sprintf("tool %s: no matching dry-run for operation %s; re-run with confirm=false first", e.Tool, e.OperationHash)
}

// ProcessFailedError wraps a failure raised by a tool's own Execute
// function, as opposed to a validation or protocol failure.
type ProcessFailedError struct {
	Tool string
	Msg  string
}

func (e *ProcessFailedError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Msg)
}

// InvalidOutputError is returned when a tool's Execute returns a Result
// that fails a caller-imposed output contract (e.g. an empty Output).
type InvalidOutputError struct {
	Tool string
	Raw  string
}

func (e *InvalidOutputError) Error() string {
	return fmt.Sprintf("tool %s: invalid output: %s", e.Tool, e.Raw)
}
