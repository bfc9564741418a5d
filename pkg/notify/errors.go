package notify

import "fmt"

// Usage error codes.
const (
	// CodeUntypedSelection is raised when a typeless change reaches a non-empty key selection.
	CodeUntypedSelection = "E101"

	// CodeUntypedEmit is raised when a strict channel is asked to emit a typeless change.
	CodeUntypedEmit = "E102"

	// CodeLockedAccessor is raised when an ephemeral accessor is read after it was locked.
	CodeLockedAccessor = "E103"

	// CodeUnsupportedKeyMap is raised when a key selection has an unsupported shape.
	CodeUnsupportedKeyMap = "E104"
)

// UsageError reports a programming error. It is raised with panic, never
// returned, because it signals a broken contract rather than a runtime condition.
type UsageError struct {
	// Code is a stable identifier such as "E101".
	Code string

	// Op names the operation that detected the misuse.
	Op string

	// Message describes the misuse.
	Message string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("[FLUX %s] %s: %s", e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("[FLUX %s] %s", e.Code, e.Message)
}

// Usage panics with a *UsageError.
func Usage(code, op, format string, args ...any) {
	panic(&UsageError{Code: code, Op: op, Message: fmt.Sprintf(format, args...)})
}
