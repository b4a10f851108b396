package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorFormat(t *testing.T) {
	err := NewAppError(ErrCodeValidation, "Price out of range")
	if err.Error() != "VALIDATION_ERROR: Price out of range" {
		t.Errorf("Unexpected format: %s", err.Error())
	}

	withDetails := NewAppError(ErrCodeDecode, "Bad log", "expected 160 bytes")
	if withDetails.Error() != "DECODE_ERROR: Bad log (expected 160 bytes)" {
		t.Errorf("Unexpected format with details: %s", withDetails.Error())
	}

	t.Logf("✓ Errors format as CODE: message (details)")
}

func TestWrapErrorChain(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	wrapped := WrapError(ErrCodeConnection, "RPC endpoint unreachable", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("Wrapped error should match its cause")
	}

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("Expected AppError in chain")
	}
	if appErr.Code != ErrCodeConnection {
		t.Errorf("Unexpected code: %s", appErr.Code)
	}
	if appErr.Message != "RPC endpoint unreachable" {
		t.Errorf("Unexpected message: %s", appErr.Message)
	}

	t.Logf("✓ Wrapped causes survive errors.Is/As")
}
