package services

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/corebank/ledger/internal/models"
)

const statusUpdateQuery = `UPDATE accounts SET status = \$1, version = version \+ 1, updated_at = \$2 WHERE account_number = \$3 AND version = \$4`

func TestAccountStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	store := NewAccountStore(db)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(selectAccountQuery).
			WithArgs("1000000001").
			WillReturnRows(accountRows("1000000001", "acc-1", "INR", "45000.50", 3, "ACTIVE"))

		account, err := store.Get("1000000001")
		assert.NoError(t, err)
		assert.Equal(t, "acc-1", account.ID)
		assert.True(t, account.Balance.Equal(decimal.RequireFromString("45000.50")))
		assert.Equal(t, int64(3), account.Version)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(selectAccountQuery).
			WithArgs("9999999999").
			WillReturnError(sql.ErrNoRows)

		_, err := store.Get("9999999999")
		assert.Error(t, err)
		assert.Equal(t, models.ErrAccountNotFound, models.KindOf(err))
	})
}

func TestAccountStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	store := NewAccountStore(db)

	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	account, err := store.Create("1000000001", "cust-1", models.AccountTypeSavings, "INR")
	assert.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.True(t, account.Balance.IsZero())
	assert.Equal(t, int64(0), account.Version)
	assert.Equal(t, models.AccountStatusActive, account.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountStore_Create_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	store := NewAccountStore(db)

	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err = store.Create("1000000001", "cust-1", models.AccountTypeSavings, "INR")
	assert.Error(t, err)
	assert.Equal(t, models.ErrConcurrentUpdateConflict, models.KindOf(err))
}

func TestAccountStore_UpdateStatus(t *testing.T) {
	t.Run("freeze bumps the version", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		store := NewAccountStore(db)

		mock.ExpectQuery(selectAccountQuery).
			WithArgs("1000000001").
			WillReturnRows(accountRows("1000000001", "acc-1", "INR", "500", 1, "ACTIVE"))
		mock.ExpectExec(statusUpdateQuery).
			WithArgs("FROZEN", sqlmock.AnyArg(), "1000000001", int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		account, err := store.UpdateStatus("1000000001", models.AccountStatusFrozen)
		assert.NoError(t, err)
		assert.Equal(t, models.AccountStatusFrozen, account.Status)
		assert.Equal(t, int64(2), account.Version)
	})

	t.Run("concurrent balance change fails the version guard", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		store := NewAccountStore(db)

		// Another writer committed between the read at version 5 and the
		// guarded update, so the transition must not apply over it.
		mock.ExpectQuery(selectAccountQuery).
			WithArgs("1000000001").
			WillReturnRows(accountRows("1000000001", "acc-1", "INR", "0", 5, "ACTIVE"))
		mock.ExpectExec(statusUpdateQuery).
			WithArgs("CLOSED", sqlmock.AnyArg(), "1000000001", int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err = store.UpdateStatus("1000000001", models.AccountStatusClosed)
		assert.Error(t, err)
		assert.Equal(t, models.ErrConcurrentUpdateConflict, models.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("closing a funded account is refused", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		store := NewAccountStore(db)

		mock.ExpectQuery(selectAccountQuery).
			WithArgs("1000000001").
			WillReturnRows(accountRows("1000000001", "acc-1", "INR", "500", 1, "ACTIVE"))

		_, err = store.UpdateStatus("1000000001", models.AccountStatusClosed)
		assert.Error(t, err)
		assert.Equal(t, models.ErrAccountNotEmpty, models.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("closing an empty account succeeds", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		store := NewAccountStore(db)

		mock.ExpectQuery(selectAccountQuery).
			WithArgs("1000000001").
			WillReturnRows(accountRows("1000000001", "acc-1", "INR", "0", 4, "ACTIVE"))
		mock.ExpectExec(statusUpdateQuery).
			WithArgs("CLOSED", sqlmock.AnyArg(), "1000000001", int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		account, err := store.UpdateStatus("1000000001", models.AccountStatusClosed)
		assert.NoError(t, err)
		assert.Equal(t, models.AccountStatusClosed, account.Status)
	})
}

func TestAccountStore_CompareAndSetBalance(t *testing.T) {
	t.Run("version matches", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		store := NewAccountStore(db)

		mock.ExpectBegin()
		mock.ExpectExec(casUpdateQuery).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc-1", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := db.Begin()
		assert.NoError(t, err)
		assert.NoError(t, store.CompareAndSetBalance(tx, "acc-1", 3, decimal.NewFromInt(100)))
		assert.NoError(t, tx.Commit())
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		store := NewAccountStore(db)

		mock.ExpectBegin()
		mock.ExpectExec(casUpdateQuery).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acc-1", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		tx, err := db.Begin()
		assert.NoError(t, err)
		err = store.CompareAndSetBalance(tx, "acc-1", 3, decimal.NewFromInt(100))
		assert.Error(t, err)
		assert.Equal(t, models.ErrConcurrentUpdateConflict, models.KindOf(err))
		assert.NoError(t, tx.Rollback())
	})
}
