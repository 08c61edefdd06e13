package service

import (
	"checkout-service/config"

	"github.com/shopspring/decimal"
)

// FeePolicy computes the shipping fee for an order from its subtotal
// and destination city. It is a pure function; swapping the policy does
// not touch the checkout flow.
type FeePolicy func(subtotal decimal.Decimal, city string) decimal.Decimal

// NewTableFeePolicy builds the default policy: a fixed per-city rate
// table with a fallback rate, and free shipping above a subtotal
// threshold.
func NewTableFeePolicy(cfg config.ShippingConfig) FeePolicy {
	return func(subtotal decimal.Decimal, city string) decimal.Decimal {
		if subtotal.GreaterThanOrEqual(cfg.FreeThreshold) {
			return decimal.Zero
		}
		if fee, ok := cfg.CityRates[city]; ok {
			return fee
		}
		return cfg.DefaultFee
	}
}
