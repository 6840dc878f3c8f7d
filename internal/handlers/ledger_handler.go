package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger/internal/models"
	"github.com/corebank/ledger/internal/services"
)

// LedgerHandler exposes the ledger engine over HTTP. Request bodies are
// size-capped and strict-decoded; errors carry the stable kind taxonomy.
type LedgerHandler struct {
	ledger     *services.LedgerService
	settlement *services.SettlementService
	validator  *services.ValidationHelper
}

func NewLedgerHandler(ledger *services.LedgerService, settlement *services.SettlementService) *LedgerHandler {
	return &LedgerHandler{
		ledger:     ledger,
		settlement: settlement,
		validator:  services.NewValidationHelper(),
	}
}

type amountRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=200"`
}

type transferRequest struct {
	FromAccount string          `json:"fromAccount" validate:"required,max=20"`
	ToAccount   string          `json:"toAccount" validate:"required,max=20"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=200"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, models.ErrInvalidRequest, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, models.ErrInvalidRequest, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

// Deposit credits an account
// @Summary Deposit funds
// @Description Credit an amount to an account as an atomic ledger operation
// @Tags ledger
// @Accept json
// @Produce json
// @Param accountNumber path string true "Account number"
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body amountRequest true "Deposit amount"
// @Success 201 {object} services.OperationResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountNumber}/deposit [post]
func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, models.ErrInvalidRequest, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.ledger.Deposit(r.Context(), accountNumber, req.Amount, req.Description,
		r.Header.Get("Idempotency-Key"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Withdraw debits an account
// @Summary Withdraw funds
// @Description Debit an amount from an account as an atomic ledger operation
// @Tags ledger
// @Accept json
// @Produce json
// @Param accountNumber path string true "Account number"
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body amountRequest true "Withdrawal amount"
// @Success 201 {object} services.OperationResult
// @Failure 422 {object} services.ErrorResponse
// @Router /accounts/{accountNumber}/withdraw [post]
func (h *LedgerHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, models.ErrInvalidRequest, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.ledger.Withdraw(r.Context(), accountNumber, req.Amount, req.Description,
		r.Header.Get("Idempotency-Key"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Transfer moves funds between two accounts
// @Summary Transfer funds
// @Description Atomically move an amount between two accounts, producing a linked debit/credit pair
// @Tags ledger
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body transferRequest true "Transfer details"
// @Success 201 {object} models.TransferResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /transfers [post]
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, models.ErrInvalidRequest, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.ledger.Transfer(r.Context(), req.FromAccount, req.ToAccount, req.Amount,
		req.Description, r.Header.Get("Idempotency-Key"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetBalance returns the current account balance
// @Summary Get balance
// @Tags ledger
// @Produce json
// @Param accountNumber path string true "Account number"
// @Success 200 {object} object{accountNumber=string,balance=string}
// @Router /accounts/{accountNumber}/balance [get]
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	balance, err := h.ledger.GetBalance(accountNumber)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"accountNumber": accountNumber,
		"balance":       balance.String(),
	})
}

// ListTransactions returns one page of account history, newest first
// @Summary List transactions
// @Tags ledger
// @Produce json
// @Param accountNumber path string true "Account number"
// @Param page query int false "Page (1-based)"
// @Param size query int false "Page size (max 100)"
// @Success 200 {object} object{transactions=[]models.Transaction,page=int,size=int}
// @Router /accounts/{accountNumber}/transactions [get]
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountNumber := chi.URLParam(r, "accountNumber")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	transactions, err := h.ledger.ListTransactions(accountNumber, page, size)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"page":         page,
		"size":         size,
		"count":        len(transactions),
	})
}

// GetTransaction returns one ledger entry by id
// @Summary Get transaction
// @Tags ledger
// @Produce json
// @Param transactionId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{transactionId} [get]
func (h *LedgerHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	transaction, err := h.ledger.FindTransaction(chi.URLParam(r, "transactionId"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transaction)
}

// Reverse appends compensating entries for a completed operation
// @Summary Reverse an operation
// @Description Append compensating entries for the operation identified by reference number
// @Tags ledger
// @Produce json
// @Param referenceNumber path string true "Reference number"
// @Success 201 {object} object{reversals=[]models.Transaction}
// @Failure 403 {object} services.ErrorResponse
// @Router /transactions/{referenceNumber}/reverse [post]
func (h *LedgerHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	referenceNumber := chi.URLParam(r, "referenceNumber")

	reversals, err := h.ledger.Reverse(r.Context(), referenceNumber)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"reversals": reversals})
}

// ExportSettlement renders a transfer pair as a pacs.008 message
// @Summary Export transfer for settlement
// @Tags settlement
// @Produce json
// @Param referenceNumber path string true "Transfer reference number"
// @Success 200 {object} object{messageType=string,xml=string}
// @Router /transfers/{referenceNumber}/settlement [post]
func (h *LedgerHandler) ExportSettlement(w http.ResponseWriter, r *http.Request) {
	referenceNumber := chi.URLParam(r, "referenceNumber")

	xmlData, err := h.settlement.ExportTransfer(referenceNumber)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"messageType": "pacs.008.001.08",
		"xml":         xmlData,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
