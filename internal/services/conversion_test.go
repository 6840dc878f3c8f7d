package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestStaticRateConverter(t *testing.T) {
	viper.Set("conversion.rates", map[string]string{
		"USD/INR": "83.25",
		"EUR/USD": "1.08",
	})
	defer viper.Set("conversion.rates", nil)

	converter := NewStaticRateConverter()
	assert.NotNil(t, converter)

	t.Run("direct rate", func(t *testing.T) {
		got, err := converter.Convert(decimal.NewFromInt(10), "USD", "INR")
		assert.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString("832.50")), got.String())
	})

	t.Run("inverse rate", func(t *testing.T) {
		got, err := converter.Convert(decimal.RequireFromString("83.25"), "INR", "USD")
		assert.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromInt(1)), got.String())
	})

	t.Run("same currency is identity", func(t *testing.T) {
		got, err := converter.Convert(decimal.RequireFromString("12.34"), "INR", "inr")
		assert.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString("12.34")))
	})

	t.Run("unknown pair", func(t *testing.T) {
		_, err := converter.Convert(decimal.NewFromInt(1), "GBP", "JPY")
		assert.Error(t, err)
	})
}

func TestNewStaticRateConverter_NoRates(t *testing.T) {
	viper.Set("conversion.rates", map[string]string{})
	defer viper.Set("conversion.rates", nil)

	assert.Nil(t, NewStaticRateConverter())
}
