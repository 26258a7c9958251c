package testutil

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	apperrors "coopledger/internal/errors"
)

// AssertAppError fails unless err is an *AppError with code, and returns it
// so callers can inspect Details.
func AssertAppError(t *testing.T, err error, code string) *apperrors.AppError {
	t.Helper()

	if err == nil {
		t.Fatalf("expected AppError %s, got nil", code)
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError %s, got %T: %v", code, err, err)
	}
	if appErr.Code != code {
		t.Errorf("expected error code %s, got %s (%s)", code, appErr.Code, appErr.Message)
	}
	return appErr
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertDecimal compares a money or rate value numerically, so "87.5" and
// "87.50" are equal.
func AssertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()

	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s: expected %s, got %s", name, want, got.String())
	}
}
