package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTransactionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewTransactionID()
		assert.False(t, seen[id], "duplicate transaction id %s", id)
		seen[id] = true
	}
}

func TestNewReferenceNumber(t *testing.T) {
	ref := NewReferenceNumber("TRF")
	assert.True(t, strings.HasPrefix(ref, "TRF-"))
	assert.Len(t, ref, len("TRF-")+12)
	assert.Equal(t, strings.ToUpper(ref), ref)
	assert.NotEqual(t, ref, NewReferenceNumber("TRF"))
}

func TestDeriveIdempotencyKey(t *testing.T) {
	a := DeriveIdempotencyKey("TRANSFER", "1000000001", "1000000002", "500.00", "Rent")
	b := DeriveIdempotencyKey("TRANSFER", "1000000001", "1000000002", "500.00", "Rent")
	assert.Equal(t, a, b)

	// field boundaries matter: ("ab","c") must not collide with ("a","bc")
	assert.NotEqual(t,
		DeriveIdempotencyKey("TRANSFER", "ab", "c"),
		DeriveIdempotencyKey("TRANSFER", "a", "bc"))

	assert.NotEqual(t, a, DeriveIdempotencyKey("WITHDRAWAL", "1000000001", "1000000002", "500.00", "Rent"))
}
