// Package engine orchestrates deposits, minting, redemption, burning, and
// liquidation over the vault ledgers. It owns the solvency invariant:
// after any user-initiated operation the user's health factor is at or
// above the minimum.
package engine

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"stablevault/internal/fixedpoint"
	"stablevault/internal/vault"
)

// Solvency computes health factors from the bookkeeping ledgers. All reads
// go through the ledgers, never through external token balances.
type Solvency struct {
	collateral *vault.CollateralLedger
	debt       *vault.DebtLedger
}

func NewSolvency(collateral *vault.CollateralLedger, debt *vault.DebtLedger) *Solvency {
	return &Solvency{collateral: collateral, debt: debt}
}

// AccountInfo returns the user's outstanding debt and total collateral
// value, both 1e18-scaled.
func (s *Solvency) AccountInfo(user uuid.UUID) (debt, collateralValue *uint256.Int, err error) {
	debt = s.debt.Debt(user)
	collateralValue, err = s.collateral.TotalValueUsd(user)
	if err != nil {
		return nil, nil, err
	}
	return debt, collateralValue, nil
}

// HealthFactor returns adjusted collateral value over debt, 1e18-scaled:
// (value * 50 / 100) * 1e18 / debt. A debt-free position gets the
// all-ones sentinel, which compares above every finite factor.
func (s *Solvency) HealthFactor(user uuid.UUID) (*uint256.Int, error) {
	debt, value, err := s.AccountInfo(user)
	if err != nil {
		return nil, err
	}
	return healthFactor(debt, value), nil
}

// AssertHealthy fails with *BrokenHealthFactorError when the user's health
// factor is below the minimum.
func (s *Solvency) AssertHealthy(user uuid.UUID) error {
	factor, err := s.HealthFactor(user)
	if err != nil {
		return err
	}
	if factor.Cmp(fixedpoint.MinHealthFactor) < 0 {
		return &BrokenHealthFactorError{User: user, Factor: factor}
	}
	return nil
}

func healthFactor(debt, collateralValue *uint256.Int) *uint256.Int {
	if debt.IsZero() {
		return fixedpoint.MaxHealthFactor()
	}
	adjusted := fixedpoint.MulDiv(collateralValue, fixedpoint.LiquidationThreshold, fixedpoint.LiquidationPrecision)
	return fixedpoint.MulDiv(adjusted, fixedpoint.Precision, debt)
}
