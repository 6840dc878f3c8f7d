package services

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/corebank/ledger/internal/models"
)

// ErrorResponse is the JSON error body. Error carries the stable kind
// from the ledger taxonomy; clients must match on it, not on Message.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response with a stable kind.
func SendErrorResponse(w http.ResponseWriter, kind models.ErrorKind, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: string(kind), Message: message}
	if ve, ok := validationErr.(validator.ValidationErrors); ok {
		errorResp.Details = make(map[string]string)
		for _, err := range ve {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// SendLedgerError maps a ledger error to its HTTP status and writes it.
func SendLedgerError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	SendErrorResponse(w, kind, err.Error(), httpStatusForKind(kind), nil)
}

func httpStatusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrInvalidAmount, models.ErrSameAccount, models.ErrCurrencyMismatch, models.ErrInvalidRequest:
		return http.StatusBadRequest
	case models.ErrAccountNotFound, models.ErrSourceAccountNotFound,
		models.ErrDestinationAccountNotFound, models.ErrTransactionNotFound:
		return http.StatusNotFound
	case models.ErrAccountNotActive, models.ErrAccountNotEmpty, models.ErrAlreadyReversed:
		return http.StatusForbidden
	case models.ErrInsufficientFunds:
		return http.StatusUnprocessableEntity
	case models.ErrConcurrentUpdateConflict, models.ErrDuplicateInFlight:
		return http.StatusConflict
	case models.ErrLockTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
