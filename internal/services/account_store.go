package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger/internal/models"
)

// AccountStore is the persistent record of account identity and current
// balance. All balance changes go through CompareAndSetBalance so races
// are explicit and detectable; there is no blind-overwrite path.
type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// rowQuerier lets reads run either on the pool or inside an engine
// transaction.
type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

const accountColumns = `id, account_number, customer_id, account_type, currency, balance, version, status, created_at, updated_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.AccountNumber, &a.CustomerID, &a.AccountType, &a.Currency,
		&a.Balance, &a.Version, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.NewLedgerError(models.ErrAccountNotFound, "account not found")
	}
	if err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to read account", err)
	}
	return &a, nil
}

// Get resolves an account by its external account number.
func (s *AccountStore) Get(accountNumber string) (*models.Account, error) {
	return s.GetIn(s.db, accountNumber)
}

// GetIn resolves an account using the given executor; the ledger engine
// passes its transaction here to get a fresh read under the CAS scope.
func (s *AccountStore) GetIn(q rowQuerier, accountNumber string) (*models.Account, error) {
	row := q.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber)
	return scanAccount(row)
}

// GetByID resolves an account by its internal storage key.
func (s *AccountStore) GetByID(id string) (*models.Account, error) {
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// Create opens a new account with zero balance. Uniqueness of the
// account number is enforced by the database constraint, not a
// read-before-write; a collision surfaces as CONCURRENT_UPDATE_CONFLICT
// so the caller can regenerate and retry. Account opening itself is an
// administrative operation; the transfer path never calls this.
func (s *AccountStore) Create(accountNumber, customerID string, accountType models.AccountType, currency string) (*models.Account, error) {
	now := time.Now()
	account := &models.Account{
		ID:            uuid.New().String(),
		AccountNumber: accountNumber,
		CustomerID:    customerID,
		AccountType:   accountType,
		Currency:      currency,
		Balance:       decimal.Zero,
		Version:       0,
		Status:        models.AccountStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := s.db.Exec(`
		INSERT INTO accounts (id, account_number, customer_id, account_type, currency, balance, version, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID, account.AccountNumber, account.CustomerID, account.AccountType, account.Currency,
		account.Balance, account.Version, account.Status, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, models.NewLedgerError(models.ErrConcurrentUpdateConflict,
				fmt.Sprintf("account number %s is already taken", accountNumber))
		}
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to create account", err)
	}
	return account, nil
}

// UpdateStatus transitions an account's lifecycle state under the same
// version guard as balance changes. The bump invalidates any in-flight
// operation that read the old status, and a balance change landing
// between the read and this update fails the guard, so the zero-balance
// check for closing cannot go stale. Accounts are never deleted.
func (s *AccountStore) UpdateStatus(accountNumber string, status models.AccountStatus) (*models.Account, error) {
	account, err := s.Get(accountNumber)
	if err != nil {
		return nil, err
	}

	if status == models.AccountStatusClosed && !account.Balance.IsZero() {
		return nil, models.NewLedgerError(models.ErrAccountNotEmpty,
			fmt.Sprintf("account %s must have zero balance to close", accountNumber))
	}

	result, err := s.db.Exec(`
		UPDATE accounts
		SET status = $1, version = version + 1, updated_at = $2
		WHERE account_number = $3 AND version = $4`,
		status, time.Now(), accountNumber, account.Version)
	if err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to update account status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to update account status", err)
	}
	if rowsAffected == 0 {
		return nil, models.NewLedgerError(models.ErrConcurrentUpdateConflict,
			fmt.Sprintf("status update lost the race for account %s", accountNumber))
	}

	account.Status = status
	account.Version++
	return account, nil
}

// CompareAndSetBalance applies the only balance mutation primitive: an
// update guarded by the version observed at read time. Zero rows
// affected means another writer got there first.
func (s *AccountStore) CompareAndSetBalance(tx *sql.Tx, accountID string, expectedVersion int64, newBalance decimal.Decimal) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), accountID, expectedVersion)
	if err != nil {
		return models.WrapLedgerError(models.ErrStorage, "failed to update balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return models.WrapLedgerError(models.ErrStorage, "failed to update balance", err)
	}

	if rowsAffected == 0 {
		return models.NewLedgerError(models.ErrConcurrentUpdateConflict,
			fmt.Sprintf("balance update lost the race for account %s", accountID))
	}

	return nil
}
