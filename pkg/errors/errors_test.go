package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ServiceError
		expected string
	}{
		{
			name: "error with cause",
			err: &ServiceError{
				Type:      ErrorTypeNetwork,
				Operation: "test_operation",
				Message:   "test message",
				Cause:     errors.New("underlying error"),
			},
			expected: "network operation 'test_operation' failed: test message (caused by: underlying error)",
		},
		{
			name: "error without cause",
			err: &ServiceError{
				Type:      ErrorTypeValidation,
				Operation: "compliance_check",
				Message:   "invalid claim",
				Cause:     nil,
			},
			expected: "validation operation 'compliance_check' failed: invalid claim",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("ServiceError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ServiceError{
		Type:      ErrorTypeNetwork,
		Operation: "test",
		Message:   "test",
		Cause:     cause,
	}

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("ServiceError.Unwrap() = %v, want %v", unwrapped, cause)
	}

	errNoCause := &ServiceError{
		Type:      ErrorTypeNetwork,
		Operation: "test",
		Message:   "test",
		Cause:     nil,
	}

	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("ServiceError.Unwrap() = %v, want nil", unwrapped)
	}
}

func TestServiceError_WithContext(t *testing.T) {
	err := &ServiceError{
		Type:      ErrorTypeDatabase,
		Operation: "test",
		Message:   "test",
	}

	err = err.WithContext("key1", "value1").WithContext("key2", 42)

	if len(err.Context) != 2 {
		t.Errorf("Expected 2 context items, got %d", len(err.Context))
	}

	if err.Context["key1"] != "value1" {
		t.Errorf("Expected key1 = 'value1', got %v", err.Context["key1"])
	}

	if err.Context["key2"] != 42 {
		t.Errorf("Expected key2 = 42, got %v", err.Context["key2"])
	}
}

func TestServiceError_WithCode(t *testing.T) {
	err := New(ErrorTypeWallet, "submit_claim", "balance below stake").
		WithCode(CodeInsufficientStake)

	if !IsCode(err, CodeInsufficientStake) {
		t.Errorf("IsCode() = false, want true for %s", CodeInsufficientStake)
	}

	if IsCode(err, CodeWalletNotFound) {
		t.Error("IsCode() matched the wrong code")
	}

	if got := GetCode(err); got != CodeInsufficientStake {
		t.Errorf("GetCode() = %q, want %q", got, CodeInsufficientStake)
	}
}

func TestWrap_PreservesCode(t *testing.T) {
	inner := New(ErrorTypeValidation, "origin_check", "device not registered").
		WithCode(CodeUnauthorizedOrigin)

	wrapped := Wrap(inner, ErrorTypeLedger, "validation_pass", "claim rejected")

	if !IsCode(wrapped, CodeUnauthorizedOrigin) {
		t.Error("Wrap() should preserve the inner failure code")
	}

	// errors.As must still reach the inner error
	var se *ServiceError
	if !errors.As(wrapped, &se) {
		t.Fatal("errors.As failed on wrapped ServiceError")
	}
}

func TestWrap_PlainError(t *testing.T) {
	plain := fmt.Errorf("connection refused")
	wrapped := Wrap(plain, ErrorTypeDatabase, "archive_block", "insert failed")

	if wrapped.Cause != plain {
		t.Errorf("Wrap() cause = %v, want %v", wrapped.Cause, plain)
	}

	// "connection refused" matches the retryable network patterns
	if !wrapped.Retryable {
		t.Error("Wrap() should mark connection errors retryable")
	}
}

func TestWrap_Nil(t *testing.T) {
	if got := Wrap(nil, ErrorTypeInternal, "noop", "nothing"); got != nil {
		t.Errorf("Wrap(nil) = %v, want nil", got)
	}
}

func TestNew(t *testing.T) {
	err := New(ErrorTypeValidation, "test_operation", "test message")

	if err.Type != ErrorTypeValidation {
		t.Errorf("Expected type %v, got %v", ErrorTypeValidation, err.Type)
	}

	if err.Operation != "test_operation" {
		t.Errorf("Expected operation 'test_operation', got %q", err.Operation)
	}

	if err.Retryable {
		t.Error("validation errors should not be retryable")
	}

	if err.Timestamp.IsZero() {
		t.Error("New() should set a timestamp")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"kafka error", New(ErrorTypeKafka, "publish", "broker down"), true},
		{"ledger error", New(ErrorTypeLedger, "append", "continuity mismatch"), false},
		{"wallet error", New(ErrorTypeWallet, "debit", "not found"), false},
		{"context canceled", context.Canceled, false},
		{"plain timeout", errors.New("i/o timeout"), true},
		{"plain other", errors.New("no such table"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeKafka, "publish", "broker down")

	if !IsType(err, ErrorTypeKafka) {
		t.Error("IsType() = false, want true")
	}

	if IsType(err, ErrorTypeDatabase) {
		t.Error("IsType() matched the wrong type")
	}

	if IsType(errors.New("plain"), ErrorTypeKafka) {
		t.Error("IsType() should not match plain errors")
	}
}

func TestGetContext(t *testing.T) {
	err := New(ErrorTypeLedger, "append", "bad block").
		WithContext("block_index", 7)

	ctx := GetContext(err)
	if ctx == nil || ctx["block_index"] != 7 {
		t.Errorf("GetContext() = %v, want block_index=7", ctx)
	}

	if GetContext(errors.New("plain")) != nil {
		t.Error("GetContext() on plain error should be nil")
	}
}
