package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal  TransactionType = "WITHDRAWAL"
	TransactionTypeTransferIn  TransactionType = "TRANSFER_IN"
	TransactionTypeTransferOut TransactionType = "TRANSFER_OUT"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusReversed  TransactionStatus = "REVERSED"
)

// Transaction is one immutable ledger entry. A transfer produces two
// entries, one TRANSFER_OUT and one TRANSFER_IN, sharing ReferenceNumber.
// Amount is always a positive magnitude; the sign is implied by Type.
// BalanceAfter is a point-in-time snapshot taken when the entry was
// applied and is never recomputed.
type Transaction struct {
	ID              int64             `json:"-" db:"id"`
	TransactionID   string            `json:"transactionId" db:"transaction_id"`
	AccountID       string            `json:"accountId" db:"account_id"`
	Type            TransactionType   `json:"type" db:"type"`
	Amount          decimal.Decimal   `json:"amount" db:"amount"`
	BalanceAfter    decimal.Decimal   `json:"balanceAfter" db:"balance_after"`
	Description     string            `json:"description,omitempty" db:"description"`
	ReferenceNumber string            `json:"referenceNumber" db:"reference_number"`
	Status          TransactionStatus `json:"status" db:"status"`
	Timestamp       time.Time         `json:"timestamp" db:"timestamp"`
}

// SignedAmount is the entry's contribution to the account balance.
func (t *Transaction) SignedAmount() decimal.Decimal {
	switch t.Type {
	case TransactionTypeWithdrawal, TransactionTypeTransferOut:
		return t.Amount.Neg()
	}
	return t.Amount
}

// Realized reports whether the entry counts towards the balance
// invariant. REVERSED entries still happened; their effect is undone by
// compensating entries, never by editing history.
func (t *Transaction) Realized() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusReversed
}

// TransferResult is the outcome of a completed transfer: both updated
// accounts and the paired ledger entries.
type TransferResult struct {
	FromAccount *Account     `json:"fromAccount"`
	ToAccount   *Account     `json:"toAccount"`
	OutEntry    *Transaction `json:"outEntry"`
	InEntry     *Transaction `json:"inEntry"`
}
