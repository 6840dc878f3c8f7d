package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/corebank/ledger/internal/models"
)

func transactionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "transaction_id", "account_id", "type", "amount",
		"balance_after", "description", "reference_number", "status", "timestamp"})
}

func TestTransactionLog_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	log := NewTransactionLog(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO transactions \(transaction_id, account_id, type, amount, balance_after, description, reference_number, status, timestamp\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectCommit()

	tx, err := db.Begin()
	assert.NoError(t, err)

	entry, err := log.Append(tx, "acc-1", models.TransactionTypeDeposit,
		decimal.NewFromInt(100), decimal.NewFromInt(600), "Salary", "DEP-AAA111BBB222",
		models.TransactionStatusCompleted)

	assert.NoError(t, err)
	assert.Equal(t, int64(42), entry.ID)
	assert.NotEmpty(t, entry.TransactionID)
	assert.Equal(t, "DEP-AAA111BBB222", entry.ReferenceNumber)
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionLog_ListByAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	log := NewTransactionLog(db)

	t.Run("paging defaults are clamped", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM transactions WHERE account_id = \$1 ORDER BY timestamp DESC, transaction_id DESC LIMIT \$2 OFFSET \$3`).
			WithArgs("acc-1", 20, 0).
			WillReturnRows(transactionRows().
				AddRow(2, "tx-2", "acc-1", "WITHDRAWAL", "50", "550", "", "WDL-AAA", "COMPLETED", time.Now()).
				AddRow(1, "tx-1", "acc-1", "DEPOSIT", "600", "600", "", "DEP-AAA", "COMPLETED", time.Now()))

		entries, err := log.ListByAccount("acc-1", 0, 0)
		assert.NoError(t, err)
		assert.Len(t, entries, 2)
		assert.Equal(t, "tx-2", entries[0].TransactionID)
	})

	t.Run("second page offset", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM transactions WHERE account_id = \$1`).
			WithArgs("acc-1", 10, 10).
			WillReturnRows(transactionRows())

		entries, err := log.ListByAccount("acc-1", 2, 10)
		assert.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestTransactionLog_FindByReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	log := NewTransactionLog(db)

	mock.ExpectQuery(`SELECT (.+) FROM transactions WHERE reference_number = \$1 ORDER BY id ASC`).
		WithArgs("TRF-AAA111BBB222").
		WillReturnRows(transactionRows().
			AddRow(1, "tx-1", "acc-1", "TRANSFER_OUT", "500", "4500", "Rent", "TRF-AAA111BBB222", "COMPLETED", time.Now()).
			AddRow(2, "tx-2", "acc-2", "TRANSFER_IN", "500", "500", "Rent", "TRF-AAA111BBB222", "COMPLETED", time.Now()))

	entries, err := log.FindByReference("TRF-AAA111BBB222")
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, models.TransactionTypeTransferOut, entries[0].Type)
	assert.Equal(t, models.TransactionTypeTransferIn, entries[1].Type)
}

func TestTransactionLog_FindByTransactionID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	log := NewTransactionLog(db)

	mock.ExpectQuery(`SELECT (.+) FROM transactions WHERE transaction_id = \$1`).
		WithArgs("tx-missing").
		WillReturnError(sql.ErrNoRows)

	_, err = log.FindByTransactionID("tx-missing")
	assert.Error(t, err)
	assert.Equal(t, models.ErrTransactionNotFound, models.KindOf(err))
}

func TestTransactionLog_MarkReversed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	log := NewTransactionLog(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE transactions SET status = \$1 WHERE transaction_id = \$2 AND status = \$3`).
		WithArgs("REVERSED", "tx-1", "COMPLETED").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.Begin()
	assert.NoError(t, err)

	err = log.MarkReversed(tx, "tx-1")
	assert.Error(t, err)
	assert.Equal(t, models.ErrAlreadyReversed, models.KindOf(err))
	assert.NoError(t, tx.Rollback())
}
