package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"

	"github.com/corebank/ledger/internal/models"
)

// QRService produces receive-money QR codes: a payload identifying the
// destination account that a payer's app scans to prefill a transfer.
type QRService struct {
	accounts *AccountStore
	redis    *redis.Client
}

func NewQRService(accounts *AccountStore, redisClient *redis.Client) *QRService {
	return &QRService{
		accounts: accounts,
		redis:    redisClient,
	}
}

// GenerateReceiveCode returns the encoded payload and a base64 PNG QR
// image for the account. The payload is cached briefly so a scan can be
// validated server-side.
func (s *QRService) GenerateReceiveCode(ctx context.Context, accountNumber string) (string, string, error) {
	account, err := s.accounts.Get(accountNumber)
	if err != nil {
		return "", "", err
	}
	if !account.CanTransact() {
		return "", "", models.NewLedgerError(models.ErrAccountNotActive,
			fmt.Sprintf("account %s is %s", accountNumber, account.Status))
	}

	payload := map[string]any{
		"accountNumber": account.AccountNumber,
		"currency":      account.Currency,
		"timestamp":     time.Now().Unix(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}

	code := base64.URLEncoding.EncodeToString(jsonData)

	if s.redis != nil {
		key := fmt.Sprintf("qr:%s", code)
		if err := s.redis.Set(ctx, key, jsonData, 5*time.Minute).Err(); err != nil {
			return "", "", err
		}
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return code, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ResolveReceiveCode validates a scanned payload against the cache and
// returns the destination account details.
func (s *QRService) ResolveReceiveCode(ctx context.Context, code string) (map[string]any, error) {
	if s.redis == nil {
		return nil, models.NewLedgerError(models.ErrInvalidRequest, "QR resolution is unavailable")
	}

	key := fmt.Sprintf("qr:%s", code)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, models.NewLedgerError(models.ErrInvalidRequest, "invalid or expired QR code")
	}
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	return payload, nil
}
