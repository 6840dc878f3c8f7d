package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeSavings          AccountType = "SAVINGS"
	AccountTypeCurrent          AccountType = "CURRENT"
	AccountTypeFixedDeposit     AccountType = "FIXED_DEPOSIT"
	AccountTypeRecurringDeposit AccountType = "RECURRING_DEPOSIT"
)

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
	AccountStatusClosed   AccountStatus = "CLOSED"
	AccountStatusFrozen   AccountStatus = "FROZEN"
)

// Account is the ledger's view of a bank account. ID is the internal
// storage key; AccountNumber is the externally visible identifier.
// Balance is mutated only through the account store's compare-and-set,
// guarded by Version.
type Account struct {
	ID            string          `json:"id" db:"id"`
	AccountNumber string          `json:"accountNumber" db:"account_number"`
	CustomerID    string          `json:"customerId" db:"customer_id"`
	AccountType   AccountType     `json:"accountType" db:"account_type"`
	Currency      string          `json:"currency" db:"currency"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	Version       int64           `json:"-" db:"version"`
	Status        AccountStatus   `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// CanTransact reports whether the account accepts debits and credits.
func (a *Account) CanTransact() bool {
	return a.Status == AccountStatusActive
}

func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountTypeSavings, AccountTypeCurrent, AccountTypeFixedDeposit, AccountTypeRecurringDeposit:
		return true
	}
	return false
}

func ValidAccountStatus(s AccountStatus) bool {
	switch s {
	case AccountStatusActive, AccountStatusInactive, AccountStatusClosed, AccountStatusFrozen:
		return true
	}
	return false
}
