package services

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/spf13/viper"

	"github.com/corebank/ledger/internal/models"
)

// AccountService covers the administrative account operations the
// transfer path never exercises: opening accounts and lifecycle status
// changes. Customer lifecycle is owned elsewhere; customerID is an
// opaque reference here.
type AccountService struct {
	store      *AccountStore
	audit      *AuditLogger
	maxRetries int
}

func NewAccountService(store *AccountStore) *AccountService {
	viper.SetDefault("ledger.cas_retries", 3)

	return &AccountService{
		store:      store,
		audit:      NewAuditLogger(),
		maxRetries: viper.GetInt("ledger.cas_retries"),
	}
}

const accountNumberDigits = 12

// OpenAccount creates a new zero-balance ACTIVE account with a
// generated account number, retrying on the unlikely collision.
func (s *AccountService) OpenAccount(customerID string, accountType models.AccountType, currency string) (*models.Account, error) {
	if customerID == "" {
		return nil, models.NewLedgerError(models.ErrInvalidRequest, "customerId is required")
	}
	if !models.ValidAccountType(accountType) {
		return nil, models.NewLedgerError(models.ErrInvalidRequest, fmt.Sprintf("invalid account type %q", accountType))
	}
	if len(currency) != 3 {
		return nil, models.NewLedgerError(models.ErrInvalidRequest, "currency must be a 3-letter ISO code")
	}

	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		accountNumber, err := generateAccountNumber()
		if err != nil {
			return nil, models.WrapLedgerError(models.ErrStorage, "failed to generate account number", err)
		}

		// Insert first; the UNIQUE constraint arbitrates collisions, so
		// no check-then-create window exists.
		account, err := s.store.Create(accountNumber, customerID, accountType, currency)
		if models.IsKind(err, models.ErrConcurrentUpdateConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.audit.LogOperation("ACCOUNT_OPENED", account.AccountNumber, account.AccountNumber, account.Balance)
		return account, nil
	}

	return nil, models.NewLedgerError(models.ErrStorage,
		fmt.Sprintf("failed to generate a unique account number after %d attempts", maxAttempts))
}

// UpdateStatus transitions an account's status; closing requires a
// zero balance. The store's version guard can lose to a concurrent
// balance change, in which case the transition is retried from a fresh
// read so the zero-balance check sees the balance that will actually be
// closed over.
func (s *AccountService) UpdateStatus(accountNumber string, status models.AccountStatus) (*models.Account, error) {
	if !models.ValidAccountStatus(status) {
		return nil, models.NewLedgerError(models.ErrInvalidRequest, fmt.Sprintf("invalid account status %q", status))
	}

	var account *models.Account
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		account, err = s.store.UpdateStatus(accountNumber, status)
		if err == nil || !models.IsKind(err, models.ErrConcurrentUpdateConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation("ACCOUNT_STATUS_"+string(status), account.AccountNumber, account.AccountNumber, account.Balance)
	return account, nil
}

// GetAccount resolves an account by account number.
func (s *AccountService) GetAccount(accountNumber string) (*models.Account, error) {
	return s.store.Get(accountNumber)
}

func generateAccountNumber() (string, error) {
	digits := make([]byte, accountNumberDigits)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	// No leading zero so account numbers keep a fixed visible width.
	if digits[0] == '0' {
		digits[0] = '1'
	}
	return string(digits), nil
}
