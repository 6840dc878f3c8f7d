package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/corebank/ledger/internal/models"
)

// LockManager serializes operations per account. Multi-account
// acquisitions always proceed in ascending account-number order, so two
// concurrent transfers can never hold locks in opposite orders.
type LockManager struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	timeout time.Duration
}

// LockHandle releases held locks in reverse acquisition order. Safe to
// release more than once.
type LockHandle struct {
	manager  *LockManager
	acquired []string
	once     sync.Once
}

func NewLockManager(timeout time.Duration) *LockManager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LockManager{
		locks:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

func (m *LockManager) lockChan(accountNumber string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.locks[accountNumber]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[accountNumber] = ch
	}
	return ch
}

// Acquire takes the locks for the given accounts, deduplicated and in
// global order regardless of argument order. The wait is bounded by the
// configured timeout and the caller's context; on failure nothing stays
// held.
func (m *LockManager) Acquire(ctx context.Context, accountNumbers ...string) (*LockHandle, error) {
	ordered := dedupeSorted(accountNumbers)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	handle := &LockHandle{manager: m}
	for _, accountNumber := range ordered {
		select {
		case m.lockChan(accountNumber) <- struct{}{}:
			handle.acquired = append(handle.acquired, accountNumber)
		case <-ctx.Done():
			handle.Release()
			return nil, models.NewLedgerError(models.ErrLockTimeout,
				fmt.Sprintf("timed out waiting for lock on account %s", accountNumber))
		}
	}

	return handle, nil
}

func (h *LockHandle) Release() {
	h.once.Do(func() {
		for i := len(h.acquired) - 1; i >= 0; i-- {
			<-h.manager.lockChan(h.acquired[i])
		}
	})
}

func dedupeSorted(accountNumbers []string) []string {
	seen := make(map[string]bool, len(accountNumbers))
	ordered := make([]string, 0, len(accountNumbers))
	for _, n := range accountNumbers {
		if !seen[n] {
			seen[n] = true
			ordered = append(ordered, n)
		}
	}
	sort.Strings(ordered)
	return ordered
}
