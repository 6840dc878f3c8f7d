package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corebank/ledger/internal/models"
	"github.com/corebank/ledger/internal/services"
)

// AccountHandler exposes the administrative account operations: account
// opening, status changes and the receive-money QR code.
type AccountHandler struct {
	accounts  *services.AccountService
	qr        *services.QRService
	validator *services.ValidationHelper
}

func NewAccountHandler(accounts *services.AccountService, qr *services.QRService) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		qr:        qr,
		validator: services.NewValidationHelper(),
	}
}

type openAccountRequest struct {
	CustomerID  string `json:"customerId" validate:"required,max=64"`
	AccountType string `json:"accountType" validate:"required"`
	Currency    string `json:"currency" validate:"required,len=3"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// OpenAccount creates a new zero-balance account
// @Summary Open account
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body openAccountRequest true "Account details"
// @Success 201 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Router /accounts [post]
func (h *AccountHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, models.ErrInvalidRequest, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := h.accounts.OpenAccount(req.CustomerID, models.AccountType(req.AccountType), req.Currency)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// GetAccount returns account details
// @Summary Get account
// @Tags accounts
// @Produce json
// @Param accountNumber path string true "Account number"
// @Success 200 {object} models.Account
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountNumber} [get]
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetAccount(chi.URLParam(r, "accountNumber"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// UpdateStatus transitions the account lifecycle state
// @Summary Update account status
// @Tags accounts
// @Accept json
// @Produce json
// @Param accountNumber path string true "Account number"
// @Param request body updateStatusRequest true "New status"
// @Success 200 {object} models.Account
// @Failure 403 {object} services.ErrorResponse
// @Router /accounts/{accountNumber}/status [put]
func (h *AccountHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, models.ErrInvalidRequest, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := h.accounts.UpdateStatus(accountNumber, models.AccountStatus(req.Status))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// ReceiveQR returns a receive-money QR code for the account
// @Summary Account receive QR
// @Tags accounts
// @Produce json
// @Param accountNumber path string true "Account number"
// @Success 200 {object} object{code=string,qrImage=string}
// @Router /accounts/{accountNumber}/qr [get]
func (h *AccountHandler) ReceiveQR(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	code, image, err := h.qr.GenerateReceiveCode(r.Context(), accountNumber)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"code":    code,
		"qrImage": image,
	})
}
