package domain

import "fmt"

// ValidationError reports a local, pre-submission failure. It never reaches
// the network. Index identifies an offending condition when >= 0.
type ValidationError struct {
	Message string
	Index   int
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s at index %d", e.Message, e.Index)
	}
	return e.Message
}

// Validation builds a ValidationError without a condition index.
func Validation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Index: -1}
}

// NotFoundError reports that a referenced entity is absent from the locally
// loaded data; no network call is attempted for it.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// TimeoutError reports a request that exceeded its deadline, distinct from
// a generic network failure.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: request timed out", e.Op)
}
