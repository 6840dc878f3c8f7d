package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/corebank/ledger/internal/models"
)

type IdempotencyState string

const (
	IdempotencyFresh            IdempotencyState = "FRESH"
	IdempotencyAlreadyCompleted IdempotencyState = "ALREADY_COMPLETED"
	IdempotencyInProgress       IdempotencyState = "IN_PROGRESS"
)

// IdempotencyCheck is the outcome of CheckOrReserve. For an already
// completed key, ReferenceNumber points at the stored result.
type IdempotencyCheck struct {
	State           IdempotencyState
	ReferenceNumber string
}

// IdempotencyGuard deduplicates retried client requests. A Redis SETNX
// reservation catches concurrent duplicates still running; the durable
// row, committed inside the same transaction as the balance change,
// guarantees at-most-once application across restarts. Redis may be
// nil, in which case only the durable check applies.
type IdempotencyGuard struct {
	db    *sql.DB
	redis *redis.Client
	ttl   time.Duration
}

func NewIdempotencyGuard(db *sql.DB, redisClient *redis.Client, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &IdempotencyGuard{db: db, redis: redisClient, ttl: ttl}
}

func reservationKey(key string) string {
	return fmt.Sprintf("idem:%s", key)
}

// CheckOrReserve classifies the key and, when fresh, reserves it for
// the calling operation.
func (g *IdempotencyGuard) CheckOrReserve(ctx context.Context, key string) (*IdempotencyCheck, error) {
	var referenceNumber string
	err := g.db.QueryRow(`SELECT reference_number FROM idempotency_keys WHERE key = $1`, key).Scan(&referenceNumber)
	if err == nil {
		return &IdempotencyCheck{State: IdempotencyAlreadyCompleted, ReferenceNumber: referenceNumber}, nil
	}
	if err != sql.ErrNoRows {
		return nil, models.WrapLedgerError(models.ErrStorage, "failed to check idempotency key", err)
	}

	if g.redis != nil {
		reserved, err := g.redis.SetNX(ctx, reservationKey(key), time.Now().UnixNano(), g.ttl).Result()
		if err != nil {
			// Reservation is an optimization; the durable row still
			// guarantees at-most-once.
			return &IdempotencyCheck{State: IdempotencyFresh}, nil
		}
		if !reserved {
			return &IdempotencyCheck{State: IdempotencyInProgress}, nil
		}
	}

	return &IdempotencyCheck{State: IdempotencyFresh}, nil
}

// MarkCompleted records the key durably inside the operation's
// transaction, so the completion becomes visible atomically with the
// balance change and ledger entries it guards.
func (g *IdempotencyGuard) MarkCompleted(tx *sql.Tx, key, operation, referenceNumber string) error {
	_, err := tx.Exec(`
		INSERT INTO idempotency_keys (key, operation, reference_number, created_at)
		VALUES ($1, $2, $3, $4)`,
		key, operation, referenceNumber, time.Now())
	if err != nil {
		return models.WrapLedgerError(models.ErrStorage, "failed to record idempotency key", err)
	}
	return nil
}

// Release drops the in-flight reservation after a failed operation so a
// client retry is not misreported as a concurrent duplicate.
func (g *IdempotencyGuard) Release(ctx context.Context, key string) {
	if g.redis != nil {
		g.redis.Del(ctx, reservationKey(key))
	}
}
