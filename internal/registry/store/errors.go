package store

import "fmt"

// Validation error codes reported to callers.
const (
	CodeValidation           = "validation_error"
	CodeMessageNotFound      = "message_not_found"
	CodeConversationMismatch = "conversation_mismatch"
	CodeEmptySelection       = "empty_selection"
)

// NotFoundError indicates the referenced resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates caller-supplied data violates an invariant.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ErrorCode returns Code, defaulting to CodeValidation.
func (e *ValidationError) ErrorCode() string {
	if e.Code == "" {
		return CodeValidation
	}
	return e.Code
}

// InvariantError indicates the store broke its own contract, e.g. an upsert
// that returned no document. It is a programming error and is never retried.
type InvariantError struct {
	Op      string
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Op, e.Message)
}
