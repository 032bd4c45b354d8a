package engine

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"stablevault/internal/event"
	"stablevault/internal/fixedpoint"
	"stablevault/internal/vault"
)

// Liquidate lets liquidator repay debtToCover of user's debt in exchange
// for the equivalent collateral plus a 10% bonus, both converted at the
// guarded price. The target must be below the minimum health factor before
// and strictly better after; otherwise every step is unwound and a typed
// error is returned.
func (e *Engine) Liquidate(liquidator, user uuid.UUID, asset string, debtToCover *uint256.Int) error {
	if debtToCover == nil || debtToCover.IsZero() {
		e.rejectLiquidation(vault.ErrZeroAmount)
		return vault.ErrZeroAmount
	}

	release, err := e.acquirePair(liquidator, user)
	if err != nil {
		e.rejectLiquidation(err)
		return err
	}
	defer release()

	start := time.Now()

	starting, err := e.solvency.HealthFactor(user)
	if err != nil {
		e.rejectLiquidation(err)
		return err
	}
	if starting.Cmp(fixedpoint.MinHealthFactor) >= 0 {
		err := &HealthFactorOkError{User: user, Factor: starting}
		e.rejectLiquidation(err)
		return err
	}

	// Guarded conversion: liquidating on a stale price seizes the wrong
	// amount of collateral, so staleness aborts here.
	seized, err := e.conv.TokenAmountForUsd(asset, debtToCover)
	if err != nil {
		e.rejectLiquidation(err)
		return err
	}
	bonus := fixedpoint.MulDiv(seized, fixedpoint.LiquidationBonus, fixedpoint.LiquidationPrecision)
	total := new(uint256.Int).Add(seized, bonus)

	// Compensations for completed steps, run in reverse on a later failure.
	var unwind []func()
	rollback := func() {
		for i := len(unwind) - 1; i >= 0; i-- {
			unwind[i]()
		}
	}

	if err := e.collateral.Withdraw(user, asset, total, liquidator, nil); err != nil {
		e.rejectLiquidation(err)
		return err
	}
	unwind = append(unwind, func() { e.collateral.Reclaim(user, asset, total, liquidator) })

	if err := e.debt.Burn(debtToCover, user, liquidator); err != nil {
		rollback()
		e.rejectLiquidation(err)
		return err
	}
	unwind = append(unwind, func() { e.debt.Remint(user, debtToCover, liquidator) })

	ending, err := e.solvency.HealthFactor(user)
	if err != nil {
		rollback()
		e.rejectLiquidation(err)
		return err
	}
	if ending.Cmp(starting) <= 0 {
		rollback()
		err := &HealthFactorNotImprovedError{User: user, Starting: starting, Ending: ending}
		e.rejectLiquidation(err)
		return err
	}

	// Paying with borrowed funds must not leave the liquidator unhealthy.
	if err := e.solvency.AssertHealthy(liquidator); err != nil {
		rollback()
		e.rejectLiquidation(err)
		return err
	}

	e.commit("liquidate", start)
	if e.metrics != nil {
		e.metrics.LiquidationsExecuted.Inc()
	}
	e.emit(
		e.newEvent(event.TypeCollateralRedeemed, user, asset, total, &user, &liquidator),
		e.newEvent(event.TypeDebtBurned, user, "", debtToCover, &liquidator, nil),
		e.newEvent(event.TypeLiquidationExecuted, user, asset, debtToCover, &liquidator, nil),
	)

	e.log.Info().Stringer("liquidator", liquidator).Stringer("user", user).
		Str("asset", asset).Str("debt_covered", debtToCover.Dec()).
		Str("collateral_seized", total.Dec()).Msg("liquidation executed")
	return nil
}

// acquirePair takes the per-user guard for both parties in a fixed byte
// order so two concurrent liquidations cannot deadlock. Self-liquidation
// takes the guard once.
func (e *Engine) acquirePair(a, b uuid.UUID) (func(), error) {
	if a == b {
		if err := e.acquire(a); err != nil {
			return nil, err
		}
		return func() { e.release(a) }, nil
	}
	first, second := a, b
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}
	if err := e.acquire(first); err != nil {
		return nil, err
	}
	if err := e.acquire(second); err != nil {
		e.release(first)
		return nil, err
	}
	return func() {
		e.release(second)
		e.release(first)
	}, nil
}

// rejectLiquidation layers the liquidation-specific counters on top of the
// generic rejection metric. Oracle faults are counted by kind as well.
func (e *Engine) rejectLiquidation(err error) {
	e.reject("liquidate", err)
	if e.metrics == nil {
		return
	}
	r := reason(err)
	e.metrics.LiquidationsRejected.WithLabelValues(r).Inc()
	switch r {
	case "stale_price":
		e.metrics.StaleQuotes.Inc()
	case "invalid_price":
		e.metrics.InvalidQuotes.Inc()
	}
}
