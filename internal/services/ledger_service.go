package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/corebank/ledger/internal/models"
)

// LedgerService executes deposits, withdrawals, transfers and reversals
// as atomic state transitions over the account store and transaction
// log. Every operation commits its balance update, ledger entries and
// idempotency record in one database transaction: a balance with no
// matching entry cannot exist.
type LedgerService struct {
	db            *sql.DB
	accounts      *AccountStore
	entries       *TransactionLog
	locks         *LockManager
	guard         *IdempotencyGuard
	converter     Converter
	audit         *AuditLogger
	maxCASRetries int
}

// OperationResult is the outcome of a deposit or withdrawal.
type OperationResult struct {
	Account     *models.Account     `json:"account"`
	Transaction *models.Transaction `json:"transaction"`
}

func NewLedgerService(db *sql.DB, accounts *AccountStore, entries *TransactionLog,
	locks *LockManager, guard *IdempotencyGuard, converter Converter) *LedgerService {

	viper.SetDefault("ledger.cas_retries", 3)

	return &LedgerService{
		db:            db,
		accounts:      accounts,
		entries:       entries,
		locks:         locks,
		guard:         guard,
		converter:     converter,
		audit:         NewAuditLogger(),
		maxCASRetries: viper.GetInt("ledger.cas_retries"),
	}
}

// Deposit credits amount to the account and appends a COMPLETED
// DEPOSIT entry carrying the resulting balance.
func (s *LedgerService) Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal,
	description, idempotencyKey string) (*OperationResult, error) {

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, models.NewLedgerError(models.ErrInvalidAmount, "deposit amount must be positive")
	}

	if _, err := s.resolveActive(accountNumber, models.ErrAccountNotFound); err != nil {
		return nil, err
	}

	if idempotencyKey == "" {
		idempotencyKey = DeriveIdempotencyKey("DEPOSIT", accountNumber, amount.String(), description)
	}
	if result, done, err := s.replaySingle(ctx, idempotencyKey); done {
		return result, err
	}

	lock, err := s.locks.Acquire(ctx, accountNumber)
	if err != nil {
		s.guard.Release(ctx, idempotencyKey)
		return nil, err
	}
	defer lock.Release()

	result, err := s.applySingle(accountNumber, models.TransactionTypeDeposit, amount, description, idempotencyKey)
	if err != nil {
		s.guard.Release(ctx, idempotencyKey)
		s.audit.LogError("", accountNumber, err)
		return nil, err
	}

	s.audit.LogOperation("DEPOSIT", result.Transaction.ReferenceNumber, accountNumber, amount)
	return result, nil
}

// Withdraw debits amount from the account. Insufficient funds fail the
// operation before any mutation; no ledger entry is written for a
// failed attempt.
func (s *LedgerService) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal,
	description, idempotencyKey string) (*OperationResult, error) {

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, models.NewLedgerError(models.ErrInvalidAmount, "withdrawal amount must be positive")
	}

	if _, err := s.resolveActive(accountNumber, models.ErrAccountNotFound); err != nil {
		return nil, err
	}

	if idempotencyKey == "" {
		idempotencyKey = DeriveIdempotencyKey("WITHDRAWAL", accountNumber, amount.String(), description)
	}
	if result, done, err := s.replaySingle(ctx, idempotencyKey); done {
		return result, err
	}

	lock, err := s.locks.Acquire(ctx, accountNumber)
	if err != nil {
		s.guard.Release(ctx, idempotencyKey)
		return nil, err
	}
	defer lock.Release()

	result, err := s.applySingle(accountNumber, models.TransactionTypeWithdrawal, amount, description, idempotencyKey)
	if err != nil {
		s.guard.Release(ctx, idempotencyKey)
		s.audit.LogError("", accountNumber, err)
		return nil, err
	}

	s.audit.LogOperation("WITHDRAWAL", result.Transaction.ReferenceNumber, accountNumber, amount)
	return result, nil
}

// Transfer atomically moves amount between two accounts, appending a
// TRANSFER_OUT and a TRANSFER_IN entry bound by one reference number.
// Either both legs commit or neither does.
func (s *LedgerService) Transfer(ctx context.Context, fromAccount, toAccount string, amount decimal.Decimal,
	description, idempotencyKey string) (*models.TransferResult, error) {

	if fromAccount == toAccount {
		return nil, models.NewLedgerError(models.ErrSameAccount, "cannot transfer to the same account")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, models.NewLedgerError(models.ErrInvalidAmount, "transfer amount must be positive")
	}

	from, err := s.resolveActive(fromAccount, models.ErrSourceAccountNotFound)
	if err != nil {
		return nil, err
	}
	to, err := s.resolveActive(toAccount, models.ErrDestinationAccountNotFound)
	if err != nil {
		return nil, err
	}

	creditAmount := amount
	if from.Currency != to.Currency {
		if s.converter == nil {
			return nil, models.NewLedgerError(models.ErrCurrencyMismatch,
				fmt.Sprintf("cannot transfer %s to %s account", from.Currency, to.Currency))
		}
		creditAmount, err = s.converter.Convert(amount, from.Currency, to.Currency)
		if err != nil {
			return nil, models.WrapLedgerError(models.ErrCurrencyMismatch, "currency conversion failed", err)
		}
	}

	if idempotencyKey == "" {
		idempotencyKey = DeriveIdempotencyKey("TRANSFER", fromAccount, toAccount, amount.String(), description)
	}
	if result, done, err := s.replayTransfer(ctx, idempotencyKey); done {
		return result, err
	}

	lock, err := s.locks.Acquire(ctx, fromAccount, toAccount)
	if err != nil {
		s.guard.Release(ctx, idempotencyKey)
		return nil, err
	}
	defer lock.Release()

	var result *models.TransferResult
	for attempt := 0; attempt < s.maxCASRetries; attempt++ {
		result, err = s.applyTransferOnce(fromAccount, toAccount, amount, creditAmount, description, idempotencyKey)
		if err == nil || !models.IsKind(err, models.ErrConcurrentUpdateConflict) {
			break
		}
	}
	if err != nil {
		s.guard.Release(ctx, idempotencyKey)
		s.audit.LogTransfer("", fromAccount, toAccount, amount, "FAILED")
		return nil, err
	}

	s.audit.LogTransfer(result.OutEntry.ReferenceNumber, fromAccount, toAccount, amount, "SUCCESS")
	return result, nil
}

// Reverse appends compensating entries for a completed operation,
// identified by its reference number, and marks the originals REVERSED.
// History is never edited; the correction is new entries.
func (s *LedgerService) Reverse(ctx context.Context, referenceNumber string) ([]models.Transaction, error) {
	originals, err := s.entries.FindByReference(referenceNumber)
	if err != nil {
		return nil, err
	}
	if len(originals) == 0 {
		return nil, models.NewLedgerError(models.ErrTransactionNotFound,
			fmt.Sprintf("no transactions found for reference %s", referenceNumber))
	}
	for _, entry := range originals {
		if entry.Status != models.TransactionStatusCompleted {
			return nil, models.NewLedgerError(models.ErrAlreadyReversed,
				fmt.Sprintf("transaction %s is not in COMPLETED state", entry.TransactionID))
		}
	}

	accountNumbers := make([]string, 0, len(originals))
	accountByID := make(map[string]*models.Account, len(originals))
	for _, entry := range originals {
		account, err := s.accounts.GetByID(entry.AccountID)
		if err != nil {
			return nil, err
		}
		accountByID[entry.AccountID] = account
		accountNumbers = append(accountNumbers, account.AccountNumber)
	}

	lock, err := s.locks.Acquire(ctx, accountNumbers...)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	reversalReference := NewReferenceNumber("RVS")

	var compensating []models.Transaction
	for attempt := 0; attempt < s.maxCASRetries; attempt++ {
		compensating, err = s.applyReversalOnce(originals, accountByID, reversalReference)
		if err == nil || !models.IsKind(err, models.ErrConcurrentUpdateConflict) {
			break
		}
	}
	if err != nil {
		s.audit.LogError(referenceNumber, "", err)
		return nil, err
	}

	s.audit.LogReversal(reversalReference, referenceNumber)
	return compensating, nil
}

// GetBalance returns the current exact balance of an account.
func (s *LedgerService) GetBalance(accountNumber string) (decimal.Decimal, error) {
	account, err := s.accounts.Get(accountNumber)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// FindTransaction returns one ledger entry by its transaction id.
func (s *LedgerService) FindTransaction(transactionID string) (*models.Transaction, error) {
	return s.entries.FindByTransactionID(transactionID)
}

// ListTransactions returns one newest-first page of an account's
// history.
func (s *LedgerService) ListTransactions(accountNumber string, page, size int) ([]models.Transaction, error) {
	account, err := s.accounts.Get(accountNumber)
	if err != nil {
		return nil, err
	}
	return s.entries.ListByAccount(account.ID, page, size)
}

func (s *LedgerService) resolveActive(accountNumber string, notFoundKind models.ErrorKind) (*models.Account, error) {
	account, err := s.accounts.Get(accountNumber)
	if err != nil {
		if models.IsKind(err, models.ErrAccountNotFound) {
			return nil, models.NewLedgerError(notFoundKind, fmt.Sprintf("account %s not found", accountNumber))
		}
		return nil, err
	}
	if !account.CanTransact() {
		return nil, models.NewLedgerError(models.ErrAccountNotActive,
			fmt.Sprintf("account %s is %s", accountNumber, account.Status))
	}
	return account, nil
}

// applySingle runs the deposit/withdraw critical section with bounded
// CAS retries, each attempt from a fresh read.
func (s *LedgerService) applySingle(accountNumber string, txType models.TransactionType,
	amount decimal.Decimal, description, idempotencyKey string) (*OperationResult, error) {

	var result *OperationResult
	var err error
	for attempt := 0; attempt < s.maxCASRetries; attempt++ {
		result, err = s.applySingleOnce(accountNumber, txType, amount, description, idempotencyKey)
		if err == nil || !models.IsKind(err, models.ErrConcurrentUpdateConflict) {
			return result, err
		}
	}
	return nil, err
}

func (s *LedgerService) applySingleOnce(accountNumber string, txType models.TransactionType,
	amount decimal.Decimal, description, idempotencyKey string) (*OperationResult, error) {

	tx, err := s.db.Begin()
	if err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	account, err := s.accounts.GetIn(tx, accountNumber)
	if err != nil {
		return nil, err
	}
	if !account.CanTransact() {
		return nil, models.NewLedgerError(models.ErrAccountNotActive,
			fmt.Sprintf("account %s is %s", accountNumber, account.Status))
	}

	var newBalance decimal.Decimal
	var prefix string
	switch txType {
	case models.TransactionTypeDeposit:
		newBalance = account.Balance.Add(amount)
		prefix = "DEP"
	case models.TransactionTypeWithdrawal:
		newBalance = account.Balance.Sub(amount)
		prefix = "WDL"
		if newBalance.IsNegative() {
			return nil, models.NewLedgerError(models.ErrInsufficientFunds,
				fmt.Sprintf("account %s has insufficient funds", accountNumber))
		}
	default:
		return nil, models.NewLedgerError(models.ErrInvalidRequest, "unsupported transaction type")
	}

	if err := s.accounts.CompareAndSetBalance(tx, account.ID, account.Version, newBalance); err != nil {
		return nil, err
	}

	entry, err := s.entries.Append(tx, account.ID, txType, amount, newBalance,
		description, NewReferenceNumber(prefix), models.TransactionStatusCompleted)
	if err != nil {
		return nil, err
	}

	if err := s.guard.MarkCompleted(tx, idempotencyKey, string(txType), entry.ReferenceNumber); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to commit transaction", err)
	}

	account.Balance = newBalance
	account.Version++
	return &OperationResult{Account: account, Transaction: entry}, nil
}

func (s *LedgerService) applyTransferOnce(fromAccount, toAccount string, debitAmount, creditAmount decimal.Decimal,
	description, idempotencyKey string) (*models.TransferResult, error) {

	tx, err := s.db.Begin()
	if err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	from, err := s.accounts.GetIn(tx, fromAccount)
	if err != nil {
		return nil, err
	}
	to, err := s.accounts.GetIn(tx, toAccount)
	if err != nil {
		return nil, err
	}

	if !from.CanTransact() {
		return nil, models.NewLedgerError(models.ErrAccountNotActive,
			fmt.Sprintf("account %s is %s", fromAccount, from.Status))
	}
	if !to.CanTransact() {
		return nil, models.NewLedgerError(models.ErrAccountNotActive,
			fmt.Sprintf("account %s is %s", toAccount, to.Status))
	}

	// Funds check under lock, from the fresh read.
	if from.Balance.LessThan(debitAmount) {
		return nil, models.NewLedgerError(models.ErrInsufficientFunds,
			fmt.Sprintf("account %s has insufficient funds", fromAccount))
	}

	fromBalance := from.Balance.Sub(debitAmount)
	toBalance := to.Balance.Add(creditAmount)

	// Both legs inside one transaction: if either CAS loses the race the
	// rollback reverts the other, so partial application is never
	// observable.
	if err := s.accounts.CompareAndSetBalance(tx, from.ID, from.Version, fromBalance); err != nil {
		return nil, err
	}
	if err := s.accounts.CompareAndSetBalance(tx, to.ID, to.Version, toBalance); err != nil {
		return nil, err
	}

	referenceNumber := NewReferenceNumber("TRF")

	outEntry, err := s.entries.Append(tx, from.ID, models.TransactionTypeTransferOut,
		debitAmount, fromBalance, description, referenceNumber, models.TransactionStatusCompleted)
	if err != nil {
		return nil, err
	}
	inEntry, err := s.entries.Append(tx, to.ID, models.TransactionTypeTransferIn,
		creditAmount, toBalance, description, referenceNumber, models.TransactionStatusCompleted)
	if err != nil {
		return nil, err
	}

	if err := s.guard.MarkCompleted(tx, idempotencyKey, "TRANSFER", referenceNumber); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to commit transfer", err)
	}

	from.Balance = fromBalance
	from.Version++
	to.Balance = toBalance
	to.Version++

	return &models.TransferResult{
		FromAccount: from,
		ToAccount:   to,
		OutEntry:    outEntry,
		InEntry:     inEntry,
	}, nil
}

func (s *LedgerService) applyReversalOnce(originals []models.Transaction,
	accountByID map[string]*models.Account, reversalReference string) ([]models.Transaction, error) {

	tx, err := s.db.Begin()
	if err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	compensating := make([]models.Transaction, 0, len(originals))
	for _, original := range originals {
		account, err := s.accounts.GetIn(tx, accountByID[original.AccountID].AccountNumber)
		if err != nil {
			return nil, err
		}

		newBalance := account.Balance.Sub(original.SignedAmount())
		if newBalance.IsNegative() {
			return nil, models.NewLedgerError(models.ErrInsufficientFunds,
				fmt.Sprintf("account %s cannot cover the reversal", account.AccountNumber))
		}

		if err := s.accounts.CompareAndSetBalance(tx, account.ID, account.Version, newBalance); err != nil {
			return nil, err
		}

		entry, err := s.entries.Append(tx, account.ID, oppositeType(original.Type),
			original.Amount, newBalance,
			fmt.Sprintf("Reversal of %s", original.TransactionID),
			reversalReference, models.TransactionStatusCompleted)
		if err != nil {
			return nil, err
		}

		if err := s.entries.MarkReversed(tx, original.TransactionID); err != nil {
			return nil, err
		}

		compensating = append(compensating, *entry)
	}

	if err := tx.Commit(); err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to commit reversal", err)
	}

	return compensating, nil
}

func oppositeType(t models.TransactionType) models.TransactionType {
	switch t {
	case models.TransactionTypeDeposit:
		return models.TransactionTypeWithdrawal
	case models.TransactionTypeWithdrawal:
		return models.TransactionTypeDeposit
	case models.TransactionTypeTransferOut:
		return models.TransactionTypeTransferIn
	default:
		return models.TransactionTypeTransferOut
	}
}

// replaySingle short-circuits a retried deposit/withdrawal to the
// previously stored result.
func (s *LedgerService) replaySingle(ctx context.Context, idempotencyKey string) (*OperationResult, bool, error) {
	check, err := s.guard.CheckOrReserve(ctx, idempotencyKey)
	if err != nil {
		return nil, true, err
	}
	switch check.State {
	case IdempotencyInProgress:
		return nil, true, models.NewLedgerError(models.ErrDuplicateInFlight, "an identical operation is already in progress")
	case IdempotencyAlreadyCompleted:
		entries, err := s.entries.FindByReference(check.ReferenceNumber)
		if err != nil {
			return nil, true, err
		}
		if len(entries) == 0 {
			return nil, true, models.NewLedgerError(models.ErrTransactionNotFound, "stored result is missing its ledger entry")
		}
		account, err := s.accounts.GetByID(entries[0].AccountID)
		if err != nil {
			return nil, true, err
		}
		return &OperationResult{Account: account, Transaction: &entries[0]}, true, nil
	}
	return nil, false, nil
}

func (s *LedgerService) replayTransfer(ctx context.Context, idempotencyKey string) (*models.TransferResult, bool, error) {
	check, err := s.guard.CheckOrReserve(ctx, idempotencyKey)
	if err != nil {
		return nil, true, err
	}
	switch check.State {
	case IdempotencyInProgress:
		return nil, true, models.NewLedgerError(models.ErrDuplicateInFlight, "an identical transfer is already in progress")
	case IdempotencyAlreadyCompleted:
		entries, err := s.entries.FindByReference(check.ReferenceNumber)
		if err != nil {
			return nil, true, err
		}
		if len(entries) != 2 {
			return nil, true, models.NewLedgerError(models.ErrTransactionNotFound, "stored transfer is missing its ledger entries")
		}
		from, err := s.accounts.GetByID(entries[0].AccountID)
		if err != nil {
			return nil, true, err
		}
		to, err := s.accounts.GetByID(entries[1].AccountID)
		if err != nil {
			return nil, true, err
		}
		return &models.TransferResult{
			FromAccount: from,
			ToAccount:   to,
			OutEntry:    &entries[0],
			InEntry:     &entries[1],
		}, true, nil
	}
	return nil, false, nil
}
