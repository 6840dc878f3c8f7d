package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type AuditEvent struct {
	Timestamp       time.Time `json:"timestamp"`
	EventType       string    `json:"event_type"`
	ReferenceNumber string    `json:"reference_number"`
	AccountNumber   string    `json:"account_number"`
	Amount          string    `json:"amount,omitempty"`
	Status          string    `json:"status"`
	Details         any       `json:"details,omitempty"`
}

// AuditLogger emits one structured event per ledger operation, applied
// or failed. Reversals are audited separately from the entries they
// compensate.
type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogOperation(eventType, referenceNumber, accountNumber string, amount decimal.Decimal) {
	a.log(AuditEvent{
		Timestamp:       time.Now(),
		EventType:       eventType,
		ReferenceNumber: referenceNumber,
		AccountNumber:   accountNumber,
		Amount:          amount.String(),
		Status:          "SUCCESS",
	})
}

func (a *AuditLogger) LogTransfer(referenceNumber, fromAccount, toAccount string, amount decimal.Decimal, status string) {
	a.log(AuditEvent{
		Timestamp:       time.Now(),
		EventType:       "TRANSFER",
		ReferenceNumber: referenceNumber,
		Amount:          amount.String(),
		Status:          status,
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
		},
	})
}

func (a *AuditLogger) LogReversal(reversalReference, originalReference string) {
	a.log(AuditEvent{
		Timestamp:       time.Now(),
		EventType:       "REVERSAL",
		ReferenceNumber: reversalReference,
		Status:          "SUCCESS",
		Details:         map[string]string{"original_reference": originalReference},
	})
}

func (a *AuditLogger) LogError(referenceNumber, accountNumber string, err error) {
	a.log(AuditEvent{
		Timestamp:       time.Now(),
		EventType:       "ERROR",
		ReferenceNumber: referenceNumber,
		AccountNumber:   accountNumber,
		Status:          "FAILED",
		Details:         map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
