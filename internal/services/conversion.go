package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Converter is the optional currency conversion collaborator. When no
// converter is configured, cross-currency transfers are rejected with
// CURRENCY_MISMATCH.
type Converter interface {
	Convert(amount decimal.Decimal, fromCurrency, toCurrency string) (decimal.Decimal, error)
}

// StaticRateConverter converts through a fixed rate table keyed
// "FROM/TO", loaded from configuration (conversion.rates.USD/EUR=0.92).
type StaticRateConverter struct {
	rates map[string]decimal.Decimal
}

func NewStaticRateConverter() *StaticRateConverter {
	rates := make(map[string]decimal.Decimal)
	for pair, value := range viper.GetStringMapString("conversion.rates") {
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || rate.LessThanOrEqual(decimal.Zero) {
			continue
		}
		rates[strings.ToUpper(pair)] = rate
	}
	if len(rates) == 0 {
		return nil
	}
	return &StaticRateConverter{rates: rates}
}

func (c *StaticRateConverter) Convert(amount decimal.Decimal, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	if strings.EqualFold(fromCurrency, toCurrency) {
		return amount, nil
	}

	pair := strings.ToUpper(fromCurrency + "/" + toCurrency)
	if rate, ok := c.rates[pair]; ok {
		return amount.Mul(rate).Round(4), nil
	}

	inverse := strings.ToUpper(toCurrency + "/" + fromCurrency)
	if rate, ok := c.rates[inverse]; ok {
		return amount.DivRound(rate, 4), nil
	}

	return decimal.Zero, fmt.Errorf("no rate configured for %s", pair)
}
