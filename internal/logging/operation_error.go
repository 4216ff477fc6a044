package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// OperationError annotates an error with the pipeline operation and the
// request it belonged to.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id=%s): %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Fields renders the error as zap fields so callers log it once with context.
func (e *OperationError) Fields() []zap.Field {
	fields := []zap.Field{zap.String("operation", e.Operation), zap.Error(e.Err)}
	if e.RequestID != "" {
		fields = append(fields, zap.String("request_id", e.RequestID))
	}
	return fields
}

// NewOperationError wraps an error with structured context about where it
// occurred. A nil err yields nil.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}
