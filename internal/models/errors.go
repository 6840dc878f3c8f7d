package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable error taxonomy returned to API clients. The
// front-end maps kinds to user messages; it must never match on message
// text.
type ErrorKind string

const (
	ErrInvalidAmount              ErrorKind = "INVALID_AMOUNT"
	ErrSameAccount                ErrorKind = "SAME_ACCOUNT"
	ErrAccountNotFound            ErrorKind = "ACCOUNT_NOT_FOUND"
	ErrSourceAccountNotFound      ErrorKind = "SOURCE_ACCOUNT_NOT_FOUND"
	ErrDestinationAccountNotFound ErrorKind = "DESTINATION_ACCOUNT_NOT_FOUND"
	ErrAccountNotActive           ErrorKind = "ACCOUNT_NOT_ACTIVE"
	ErrCurrencyMismatch           ErrorKind = "CURRENCY_MISMATCH"
	ErrInsufficientFunds          ErrorKind = "INSUFFICIENT_FUNDS"
	ErrConcurrentUpdateConflict   ErrorKind = "CONCURRENT_UPDATE_CONFLICT"
	ErrLockTimeout                ErrorKind = "LOCK_TIMEOUT"
	ErrDuplicateInFlight          ErrorKind = "DUPLICATE_IN_FLIGHT"
	ErrTransactionNotFound        ErrorKind = "TRANSACTION_NOT_FOUND"
	ErrAlreadyReversed            ErrorKind = "ALREADY_REVERSED"
	ErrAccountNotEmpty            ErrorKind = "ACCOUNT_NOT_EMPTY"
	ErrInvalidRequest             ErrorKind = "INVALID_REQUEST"
	ErrStorage                    ErrorKind = "STORAGE"
)

// LedgerError carries a stable kind alongside a human-readable message.
type LedgerError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func NewLedgerError(kind ErrorKind, message string) *LedgerError {
	return &LedgerError{Kind: kind, Message: message}
}

func WrapLedgerError(kind ErrorKind, message string, err error) *LedgerError {
	return &LedgerError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the stable kind from err, or ErrStorage when err is
// not a ledger error.
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ErrStorage
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
