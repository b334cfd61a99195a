package entitlement

import "fmt"

// ValidationError is returned when input to Issue or Override is malformed
// or out of range. It is rejected at the boundary; no partial record is
// written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
