package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Identifier generation. Transaction IDs must be globally unique under
// concurrency, so they are UUIDs rather than wall-clock derived strings.

func NewTransactionID() string {
	return uuid.New().String()
}

// NewReferenceNumber returns an operation reference with a type prefix,
// e.g. TRF-9F2C41D83A6B. The reference links a transfer's two entries
// and is the stored pointer for idempotent replays.
func NewReferenceNumber(prefix string) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return fmt.Sprintf("%s-%s", prefix, raw[:12])
}

// DeriveIdempotencyKey builds a deterministic key from the operation's
// identifying fields, used when the caller supplies no Idempotency-Key
// header. Two submissions of the same logical operation hash to the
// same key.
func DeriveIdempotencyKey(operation string, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(operation))
	for _, f := range fields {
		h.Write([]byte{0})
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}
