// Package fixedpoint defines the protocol's fixed-point constants and the
// 256-bit arithmetic helpers shared by pricing and solvency math.
//
// Token amounts, USD values, and health factors are all 1e18-scaled
// unsigned 256-bit integers. Feed prices arrive in 8-decimal scale and are
// lifted to 18 decimals with FeedAdjustment before any valuation math.
package fixedpoint

import "github.com/holiman/uint256"

const (
	// PrecisionDecimals is the internal fixed-point scale (wei-style).
	PrecisionDecimals = 18
	// FeedDecimals is the price-feed native scale this engine assumes.
	FeedDecimals = 8
)

var (
	// Precision is 1e18, the internal fixed-point unit.
	Precision = uint256.NewInt(1_000_000_000_000_000_000)

	// FeedAdjustment is 1e10, lifting an 8-decimal feed price to 18 decimals.
	FeedAdjustment = uint256.NewInt(10_000_000_000)

	// LiquidationThreshold / LiquidationPrecision = 50% of raw collateral
	// value counts toward debt capacity (effective 200% collateralization).
	LiquidationThreshold = uint256.NewInt(50)
	LiquidationPrecision = uint256.NewInt(100)

	// LiquidationBonus / LiquidationPrecision = 10% extra collateral
	// awarded to a liquidator on top of the debt-equivalent amount.
	LiquidationBonus = uint256.NewInt(10)

	// MinHealthFactor is 1.0 in fixed-point terms. A position at or above
	// this value cannot be liquidated.
	MinHealthFactor = uint256.NewInt(1_000_000_000_000_000_000)
)

// MulDiv returns a*b/d in a fresh integer. The intermediate product is
// bounded by realistic price*amount magnitudes and fits 256 bits; callers
// must guarantee d != 0.
func MulDiv(a, b, d *uint256.Int) *uint256.Int {
	z := new(uint256.Int).Mul(a, b)
	return z.Div(z, d)
}

// MaxHealthFactor returns the sentinel "no debt" health factor (all-ones).
func MaxHealthFactor() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// Clone returns a defensive copy. Ledger getters hand out clones so callers
// can never alias stored balances.
func Clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
