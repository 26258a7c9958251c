// Package errors provides custom error types for the ledger API.
// Expected failures (missing entities, disallowed transitions, over-commitment)
// are returned as *AppError so handlers can render a stable code. Storage
// failures are never wrapped into an AppError by the service layer; they
// propagate unchanged and surface as INTERNAL_ERROR.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	StatusCode int               `json:"-"`
	Internal   error             `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target carries the same code. Sentinels are copied by
// Wrap/WithMessage/WithDetails, so identity comparison alone is not enough.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
		Details:    copyDetails(sentinel.Details),
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
		Details:    copyDetails(sentinel.Details),
	}
}

// WithDetails creates a new AppError carrying the given key/value details.
// kv is read in pairs; a trailing odd key is ignored.
func WithDetails(sentinel *AppError, kv ...string) *AppError {
	out := &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
		Details:    copyDetails(sentinel.Details),
	}
	if out.Details == nil {
		out.Details = make(map[string]string, len(kv)/2)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out.Details[kv[i]] = kv[i+1]
	}
	return out
}

// NotFound returns ErrNotFound-coded error for the given entity and id.
func NotFound(sentinel *AppError, entity, id string) *AppError {
	return WithDetails(sentinel, "entity", entity, "id", id)
}

// InvalidTransition reports an attempted status change that the current
// state does not allow.
func InvalidTransition(entity, id, from, to string) *AppError {
	e := WithDetails(ErrInvalidState, "entity", entity, "id", id, "from", from, "to", to)
	e.Message = fmt.Sprintf("%s %s cannot move from %s to %s", entity, id, from, to)
	return e
}

// As is a convenience for errors.As into *AppError.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost AppError in err's chain, or "".
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}

func copyDetails(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Authentication & authorization errors.
var (
	ErrUnauthorized = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors. These codes form the ledger's error taxonomy.
var (
	ErrInvalidInput   = &AppError{Code: "VALIDATION", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInvalidState   = &AppError{Code: "INVALID_STATE", Message: "Operation not allowed in the current state", StatusCode: http.StatusConflict}
	ErrOverCommitted  = &AppError{Code: "OVER_COMMITTED", Message: "Requested quantity exceeds the available quantity", StatusCode: http.StatusConflict}
	ErrAlreadyMatched = &AppError{Code: "ALREADY_MATCHED", Message: "Bank transaction is already matched", StatusCode: http.StatusConflict}
	ErrConflict       = &AppError{Code: "CONFLICT", Message: "Resource already exists", StatusCode: http.StatusConflict}
	ErrWrongOwner     = &AppError{Code: "WRONG_OWNER", Message: "Share is not owned by this shareholder", StatusCode: http.StatusUnprocessableEntity}
	ErrTimeout        = &AppError{Code: "TIMEOUT", Message: "The operation did not complete in time", StatusCode: http.StatusServiceUnavailable}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// OGM errors.
var (
	ErrInvalidOGMFormat   = &AppError{Code: "INVALID_OGM_FORMAT", Message: "Payment reference must contain exactly 12 digits", StatusCode: http.StatusBadRequest}
	ErrInvalidOGMChecksum = &AppError{Code: "INVALID_OGM_CHECKSUM", Message: "Payment reference checksum does not match", StatusCode: http.StatusBadRequest}
)

// Entity lookups. All share the NOT_FOUND code so clients need to handle a
// single kind; the message names the entity.
var (
	ErrCoopNotFound            = &AppError{Code: "NOT_FOUND", Message: "Cooperative not found", StatusCode: http.StatusNotFound}
	ErrShareholderNotFound     = &AppError{Code: "NOT_FOUND", Message: "Shareholder not found", StatusCode: http.StatusNotFound}
	ErrProjectNotFound         = &AppError{Code: "NOT_FOUND", Message: "Project not found", StatusCode: http.StatusNotFound}
	ErrShareClassNotFound      = &AppError{Code: "NOT_FOUND", Message: "Share class not found", StatusCode: http.StatusNotFound}
	ErrShareNotFound           = &AppError{Code: "NOT_FOUND", Message: "Share not found", StatusCode: http.StatusNotFound}
	ErrTransactionNotFound     = &AppError{Code: "NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
	ErrPaymentNotFound         = &AppError{Code: "NOT_FOUND", Message: "Payment not found", StatusCode: http.StatusNotFound}
	ErrBankImportNotFound      = &AppError{Code: "NOT_FOUND", Message: "Bank import not found", StatusCode: http.StatusNotFound}
	ErrBankTransactionNotFound = &AppError{Code: "NOT_FOUND", Message: "Bank transaction not found", StatusCode: http.StatusNotFound}
	ErrDividendPeriodNotFound  = &AppError{Code: "NOT_FOUND", Message: "Dividend period not found", StatusCode: http.StatusNotFound}
)

// Conflicts.
var (
	ErrDuplicateOGM            = &AppError{Code: "CONFLICT", Message: "Payment reference already issued", StatusCode: http.StatusConflict}
	ErrDuplicateDividendPeriod = &AppError{Code: "CONFLICT", Message: "A dividend period already exists for this year", StatusCode: http.StatusConflict}
	ErrLockBusy                = &AppError{Code: "CONFLICT", Message: "Another operation on this resource is in progress", StatusCode: http.StatusConflict}
)
