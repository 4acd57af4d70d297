// Package errors provides error handling utilities for ECL services.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeValidation represents claim/compliance validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeLedger represents chain state errors
	ErrorTypeLedger ErrorType = "ledger"
	// ErrorTypeWallet represents wallet/balance errors
	ErrorTypeWallet ErrorType = "wallet"
	// ErrorTypeDatabase represents database-related errors
	ErrorTypeDatabase ErrorType = "database"
	// ErrorTypeKafka represents Kafka messaging errors
	ErrorTypeKafka ErrorType = "kafka"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInternal represents internal/unknown errors
	ErrorTypeInternal ErrorType = "internal"
)

// Code identifies a specific ledger failure condition
type Code string

const (
	// CodeWalletNotFound - the submitting wallet does not exist
	CodeWalletNotFound Code = "WALLET_NOT_FOUND"
	// CodeInsufficientStake - wallet balance is below the stake amount
	CodeInsufficientStake Code = "INSUFFICIENT_STAKE"
	// CodeDuplicateTask - a transaction with this task id is already pooled
	CodeDuplicateTask Code = "DUPLICATE_TASK"
	// CodeUnauthorizedOrigin - device identifier missing or not registered
	CodeUnauthorizedOrigin Code = "UNAUTHORIZED_ORIGIN"
	// CodeReplayDetected - evidence token was already consumed
	CodeReplayDetected Code = "REPLAY_DETECTED"
	// CodeLowPlausibility - plausibility score below the type threshold
	CodeLowPlausibility Code = "LOW_PLAUSIBILITY"
	// CodeAnomalyExceeded - claimed quantity exceeds the physical ceiling
	CodeAnomalyExceeded Code = "ANOMALY_EXCEEDED"
	// CodeChainContinuityMismatch - incoming block does not extend the tip
	CodeChainContinuityMismatch Code = "CHAIN_CONTINUITY_MISMATCH"
)

// ServiceError represents a structured error with context
type ServiceError struct {
	Type      ErrorType
	Code      Code
	Operation string
	Message   string
	Cause     error
	Context   map[string]interface{}
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

// WithCode tags the error with a ledger failure code
func (e *ServiceError) WithCode(code Code) *ServiceError {
	e.Code = code
	return e
}

// WithContext adds additional context to the error
func (e *ServiceError) WithContext(key string, value interface{}) *ServiceError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
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

// Wrap wraps an existing error with context
func Wrap(err error, errorType ErrorType, operation, message string) *ServiceError {
	if err == nil {
		return nil
	}

	// If it's already a ServiceError, preserve the original code and
	// retryability unless explicitly overridden
	if se, ok := err.(*ServiceError); ok {
		return &ServiceError{
			Type:      errorType,
			Code:      se.Code,
			Operation: operation,
			Message:   message,
			Cause:     se,
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
		Retryable: isRetryableByDefault(err),
	}
}

// isRetryableByType determines if an error type is generally retryable
func isRetryableByType(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeKafka:
		return true
	case ErrorTypeValidation, ErrorTypeLedger, ErrorTypeWallet:
		return false
	default:
		return false
	}
}

// isRetryableByDefault checks if an error is retryable based on common patterns
func isRetryableByDefault(err error) bool {
	if err == nil {
		return false
	}

	// Check for context cancellation/timeout (not retryable)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Network-related errors are usually retryable
	networkErrors := []string{
		"connection refused",
		"connection reset",
		"network unreachable",
		"timeout",
		"temporary failure",
		"too many connections",
	}

	for _, netErr := range networkErrors {
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

// IsCode checks if an error carries a specific ledger failure code
func IsCode(err error, code Code) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// GetCode extracts the ledger failure code from an error, if any
func GetCode(err error) Code {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
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
func GetContext(err error) map[string]interface{} {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Context
	}
	return nil
}
