package service

import (
	"testing"

	"checkout-service/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testShippingConfig() config.ShippingConfig {
	return config.ShippingConfig{
		CityRates: map[string]decimal.Decimal{
			"Ho Chi Minh": decimal.NewFromInt(25000),
			"Hanoi":       decimal.NewFromInt(25000),
			"Da Nang":     decimal.NewFromInt(30000),
		},
		DefaultFee:    decimal.NewFromInt(35000),
		FreeThreshold: decimal.NewFromInt(500000),
	}
}

func TestTableFeePolicy(t *testing.T) {
	fee := NewTableFeePolicy(testShippingConfig())

	tests := []struct {
		name     string
		subtotal string
		city     string
		want     string
	}{
		{"major city", "120000", "Ho Chi Minh", "25000"},
		{"capital", "120000", "Hanoi", "25000"},
		{"regional city", "120000", "Da Nang", "30000"},
		{"unlisted city falls back", "120000", "Can Tho", "35000"},
		{"free above threshold", "500000", "Can Tho", "0"},
		{"free well above threshold", "1250000", "Ho Chi Minh", "0"},
		{"just under threshold pays", "499999", "Hanoi", "25000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fee(decimal.RequireFromString(tt.subtotal), tt.city)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"fee(%s, %q) = %s, want %s", tt.subtotal, tt.city, got, tt.want)
		})
	}
}
