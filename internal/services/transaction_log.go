package services

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corebank/ledger/internal/models"
)

// TransactionLog is the append-only record of balance-affecting
// operations. Entries are never edited after the fact; corrections are
// new compensating entries.
type TransactionLog struct {
	db *sql.DB
}

func NewTransactionLog(db *sql.DB) *TransactionLog {
	return &TransactionLog{db: db}
}

const transactionColumns = `id, transaction_id, account_id, type, amount, balance_after, description, reference_number, status, timestamp`

// Append writes one ledger entry inside the engine's transaction so the
// entry and the balance it snapshots commit as a single durable unit.
func (l *TransactionLog) Append(tx *sql.Tx, accountID string, txType models.TransactionType,
	amount, balanceAfter decimal.Decimal, description, referenceNumber string,
	status models.TransactionStatus) (*models.Transaction, error) {

	entry := &models.Transaction{
		TransactionID:   NewTransactionID(),
		AccountID:       accountID,
		Type:            txType,
		Amount:          amount,
		BalanceAfter:    balanceAfter,
		Description:     description,
		ReferenceNumber: referenceNumber,
		Status:          status,
		Timestamp:       time.Now(),
	}

	err := tx.QueryRow(`
		INSERT INTO transactions (transaction_id, account_id, type, amount, balance_after, description, reference_number, status, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		entry.TransactionID, entry.AccountID, entry.Type, entry.Amount, entry.BalanceAfter,
		entry.Description, entry.ReferenceNumber, entry.Status, entry.Timestamp).Scan(&entry.ID)
	if err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to append ledger entry", err)
	}

	return entry, nil
}

// ListByAccount returns one page of an account's entries, newest first.
// Tie-breaking on transaction_id keeps the order total when timestamps
// collide.
func (l *TransactionLog) ListByAccount(accountID string, page, size int) ([]models.Transaction, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	rows, err := l.db.Query(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = $1
		ORDER BY timestamp DESC, transaction_id DESC
		LIMIT $2 OFFSET $3`,
		accountID, size, offset)
	if err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to list transactions", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// FindByReference returns the 0, 1 or 2 entries sharing a reference
// number. Transfers always yield the debit leg before the credit leg.
func (l *TransactionLog) FindByReference(referenceNumber string) ([]models.Transaction, error) {
	rows, err := l.db.Query(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE reference_number = $1
		ORDER BY id ASC`,
		referenceNumber)
	if err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to find transactions by reference", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// FindByTransactionID returns a single entry by its globally unique id.
func (l *TransactionLog) FindByTransactionID(transactionID string) (*models.Transaction, error) {
	row := l.db.QueryRow(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE transaction_id = $1`,
		transactionID)

	var t models.Transaction
	err := row.Scan(&t.ID, &t.TransactionID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter,
		&t.Description, &t.ReferenceNumber, &t.Status, &t.Timestamp)
	if err == sql.ErrNoRows {
		return nil, models.NewLedgerError(models.ErrTransactionNotFound, "transaction not found")
	}
	if err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to read transaction", err)
	}
	return &t, nil
}

// MarkReversed flags a realized entry as reversed. This is the only
// permitted status transition on a completed entry and is always paired
// with new compensating entries in the same transaction.
func (l *TransactionLog) MarkReversed(tx *sql.Tx, transactionID string) error {
	result, err := tx.Exec(`
		UPDATE transactions SET status = $1 WHERE transaction_id = $2 AND status = $3`,
		models.TransactionStatusReversed, transactionID, models.TransactionStatusCompleted)
	if err != nil {
		return models.WrapLedgerError(models.ErrStorage, "failed to mark transaction reversed", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return models.WrapLedgerError(models.ErrStorage, "failed to mark transaction reversed", err)
	}
	if rowsAffected == 0 {
		return models.NewLedgerError(models.ErrAlreadyReversed, "transaction is not in COMPLETED state")
	}
	return nil
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.TransactionID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter,
			&t.Description, &t.ReferenceNumber, &t.Status, &t.Timestamp); err != nil {
			return nil, models.WrapLedgerError(models.ErrStorage, "failed to scan transaction", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to iterate transactions", err)
	}
	return transactions, nil
}
