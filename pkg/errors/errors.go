// Package errors provides the typed error used across the noso2m miner.
// Every failure that crosses a package boundary is a *ServiceError carrying a
// category, the failing operation and whether a retry can help.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType is the category of a failure
type ErrorType string

const (
	// ErrorTypeNetwork covers dial, send and receive failures against a peer
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout covers peer calls that ran past their deadline
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeProtocol covers peer responses with the wrong shape
	ErrorTypeProtocol ErrorType = "protocol"
	// ErrorTypeRejected covers explicit rejections returned by a peer
	ErrorTypeRejected ErrorType = "rejected"
	// ErrorTypeValidation covers locally detected bad values
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig covers startup configuration problems
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeStorage covers redis, postgres and influx failures
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeMessaging covers kafka and zmq failures
	ErrorTypeMessaging ErrorType = "messaging"
	// ErrorTypeInternal covers everything else
	ErrorTypeInternal ErrorType = "internal"
)

// ServiceError represents a structured error with context
type ServiceError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]any
	Timestamp time.Time
	Retryable bool
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s operation '%s' failed: %s (caused by: %v)", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s operation '%s' failed: %s", e.Type, e.Operation, e.Message)
}

// Unwrap returns the underlying cause for error unwrapping
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether this error should be retried
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// WithContext adds a key/value pair to the error
func (e *ServiceError) WithContext(key string, value any) *ServiceError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a new ServiceError
func New(errorType ErrorType, operation, message string) *ServiceError {
	return &ServiceError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: isRetryableByType(errorType),
	}
}

// Newf creates a new ServiceError with a formatted message
func Newf(errorType ErrorType, operation, format string, args ...any) *ServiceError {
	return New(errorType, operation, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with context
func Wrap(err error, errorType ErrorType, operation, message string) *ServiceError {
	if err == nil {
		return nil
	}

	// A wrapped ServiceError keeps its retry verdict
	var se *ServiceError
	if errors.As(err, &se) {
		return &ServiceError{
			Type:      errorType,
			Operation: operation,
			Message:   message,
			Cause:     err,
			Timestamp: time.Now(),
			Retryable: se.Retryable,
		}
	}

	return &ServiceError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Timestamp: time.Now(),
		Retryable: isRetryableByType(errorType) || isRetryableByDefault(err),
	}
}

func isRetryableByType(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeProtocol, ErrorTypeMessaging, ErrorTypeStorage:
		return true
	default:
		return false
	}
}

func isRetryableByDefault(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, netErr := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"network unreachable",
		"no route to host",
		"i/o timeout",
		"temporary failure",
	} {
		if strings.Contains(errStr, netErr) {
			return true
		}
	}

	return false
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Type == errorType
	}
	return false
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.IsRetryable()
	}
	return isRetryableByDefault(err)
}

// GetContext retrieves context from a ServiceError
func GetContext(err error) map[string]any {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Context
	}
	return nil
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is errors.As.
func As(err error, target any) bool { return errors.As(err, target) }
