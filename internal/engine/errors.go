package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while the engine serves a
// request.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// MonitorID identifies the affected monitor, if any.
	MonitorID string

	// Cause is the underlying error, if any.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownMonitor indicates no monitor has the requested id.
	ErrCodeUnknownMonitor RuntimeErrorCode = "UNKNOWN_MONITOR"

	// ErrCodeUnknownViolation indicates the violation does not exist or
	// belongs to another monitor.
	ErrCodeUnknownViolation RuntimeErrorCode = "UNKNOWN_VIOLATION"

	// ErrCodeEvaluation indicates a monitor definition or formula could not
	// be evaluated.
	ErrCodeEvaluation RuntimeErrorCode = "EVALUATION"

	// ErrCodeQueueClosed indicates the engine has stopped.
	ErrCodeQueueClosed RuntimeErrorCode = "QUEUE_CLOSED"

	// ErrCodeQueueFull indicates the request backlog reached its limit.
	ErrCodeQueueFull RuntimeErrorCode = "QUEUE_FULL"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.MonitorID != "" {
		msg += fmt.Sprintf(" (monitor=%s)", e.MonitorID)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownMonitor reports whether err is an unknown monitor error.
// Uses errors.As to handle wrapped errors.
func IsUnknownMonitor(err error) bool {
	return hasCode(err, ErrCodeUnknownMonitor)
}

// IsUnknownViolation reports whether err is an unknown violation error.
func IsUnknownViolation(err error) bool {
	return hasCode(err, ErrCodeUnknownViolation)
}

// IsEvaluationError reports whether err is an evaluation error.
func IsEvaluationError(err error) bool {
	return hasCode(err, ErrCodeEvaluation)
}

// IsQueueClosed reports whether err means the engine has stopped.
func IsQueueClosed(err error) bool {
	return hasCode(err, ErrCodeQueueClosed)
}

// IsQueueFull reports whether err means the request was rejected for
// backpressure.
func IsQueueFull(err error) bool {
	return hasCode(err, ErrCodeQueueFull)
}

// NewUnknownMonitorError creates a RuntimeError for a missing monitor.
func NewUnknownMonitorError(id string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeUnknownMonitor,
		Message:   "no such monitor",
		MonitorID: id,
	}
}

// NewEvaluationError creates a RuntimeError wrapping an evaluation failure.
func NewEvaluationError(id string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeEvaluation,
		Message:   "evaluation failed",
		MonitorID: id,
		Cause:     cause,
	}
}

var (
	errQueueClosed = &RuntimeError{Code: ErrCodeQueueClosed, Message: "engine stopped"}
	errQueueFull   = &RuntimeError{Code: ErrCodeQueueFull, Message: "request queue full"}
)
