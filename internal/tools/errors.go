package tools

import "fmt"

// ErrToolUnavailable is returned when the model names a tool that is not
// registered. This is a capability mismatch, not a transient execution
// failure: the agent loop fails the request rather than feeding the
// error back to the model.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}
