package stream

import "fmt"

// InvalidStreamDefinitionError reports a malformed constraint stream
// definition: an unregistered class, a malformed joiner composition, a
// duplicate constraint name. Definition errors surface when the graph is
// built, never per-tuple during solving.
type InvalidStreamDefinitionError struct {
	Message string
	Cause   error
}

func (e *InvalidStreamDefinitionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid stream definition: %s: %v", e.Message, e.Cause)
	}
	return "invalid stream definition: " + e.Message
}

func (e *InvalidStreamDefinitionError) Unwrap() error { return e.Cause }

func newDefinitionError(format string, args ...any) error {
	return &InvalidStreamDefinitionError{Message: fmt.Sprintf(format, args...)}
}
