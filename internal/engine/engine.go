package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"stablevault/internal/config"
	"stablevault/internal/event"
	"stablevault/internal/observability"
	"stablevault/internal/oracle"
	"stablevault/internal/pricing"
	"stablevault/internal/vault"
)

// Engine is the single entry point for state-changing operations. Every
// exported mutation takes the per-user guard, runs the bookkeeping and the
// external token moves, and emits events only once the operation has
// committed. A failed operation emits nothing.
type Engine struct {
	collateral *vault.CollateralLedger
	debt       *vault.DebtLedger
	conv       *pricing.Converter
	solvency   *Solvency
	sink       *event.Sink
	metrics    *observability.Metrics
	log        zerolog.Logger

	guardMu    sync.Mutex
	inProgress map[uuid.UUID]bool
}

// New wires the engine. sink and metrics may be nil; the engine then runs
// without an event pipeline or instrumentation (unit-test mode).
func New(collateral *vault.CollateralLedger, debt *vault.DebtLedger, conv *pricing.Converter, sink *event.Sink, metrics *observability.Metrics, log zerolog.Logger) *Engine {
	return &Engine{
		collateral: collateral,
		debt:       debt,
		conv:       conv,
		solvency:   NewSolvency(collateral, debt),
		sink:       sink,
		metrics:    metrics,
		log:        log.With().Str("component", "engine").Logger(),
		inProgress: make(map[uuid.UUID]bool),
	}
}

// acquire marks the user as having an operation in flight. A user with one
// already in flight is rejected immediately.
func (e *Engine) acquire(user uuid.UUID) error {
	e.guardMu.Lock()
	defer e.guardMu.Unlock()
	if e.inProgress[user] {
		return ErrOperationInProgress
	}
	e.inProgress[user] = true
	return nil
}

func (e *Engine) release(user uuid.UUID) {
	e.guardMu.Lock()
	defer e.guardMu.Unlock()
	delete(e.inProgress, user)
}

// DepositCollateral credits amount of asset to the user's position and
// pulls the tokens into custody.
func (e *Engine) DepositCollateral(user uuid.UUID, asset string, amount *uint256.Int) error {
	if err := e.acquire(user); err != nil {
		e.reject("deposit", err)
		return err
	}
	defer e.release(user)

	start := time.Now()
	ev, err := e.depositLocked(user, asset, amount)
	if err != nil {
		e.reject("deposit", err)
		return err
	}
	e.commit("deposit", start)
	e.emit(ev)
	return nil
}

// The locked bodies mutate state and hand back the event describing the
// committed leg without emitting it. Composite operations collect the
// events from their legs and flush them only once the whole composition
// has committed, so a rolled-back leg is never observable outside.
func (e *Engine) depositLocked(user uuid.UUID, asset string, amount *uint256.Int) (event.Event, error) {
	if err := e.collateral.Deposit(user, asset, amount); err != nil {
		return event.Event{}, err
	}
	return e.newEvent(event.TypeCollateralDeposited, user, asset, amount, &user, ptr(e.collateral.Custody())), nil
}

// MintDsc issues new stablecoin debt to the user. The health factor is
// checked on the updated bookkeeping before any tokens exist, so an
// undercollateralized mint never reaches the token.
func (e *Engine) MintDsc(user uuid.UUID, amount *uint256.Int) error {
	if err := e.acquire(user); err != nil {
		e.reject("mint", err)
		return err
	}
	defer e.release(user)

	start := time.Now()
	ev, err := e.mintLocked(user, amount)
	if err != nil {
		e.reject("mint", err)
		return err
	}
	e.commit("mint", start)
	e.emit(ev)
	return nil
}

func (e *Engine) mintLocked(user uuid.UUID, amount *uint256.Int) (event.Event, error) {
	err := e.debt.Mint(user, amount, func() error {
		return e.solvency.AssertHealthy(user)
	})
	if err != nil {
		return event.Event{}, err
	}
	// Re-check after the external mint call. Unreachable under correct
	// accounting; if it ever fires, the fresh tokens are burned back.
	if err := e.solvency.AssertHealthy(user); err != nil {
		if undo := e.debt.Burn(amount, user, user); undo != nil {
			e.log.Error().Err(undo).Stringer("user", user).Msg("failed to undo mint after health re-check")
		}
		return event.Event{}, err
	}
	return e.newEvent(event.TypeDebtMinted, user, "", amount, nil, &user), nil
}

// BurnDsc retires amount of the user's own debt using the user's tokens.
func (e *Engine) BurnDsc(user uuid.UUID, amount *uint256.Int) error {
	if err := e.acquire(user); err != nil {
		e.reject("burn", err)
		return err
	}
	defer e.release(user)

	start := time.Now()
	ev, err := e.burnLocked(user, amount)
	if err != nil {
		e.reject("burn", err)
		return err
	}
	e.commit("burn", start)
	e.emit(ev)
	return nil
}

func (e *Engine) burnLocked(user uuid.UUID, amount *uint256.Int) (event.Event, error) {
	if err := e.debt.Burn(amount, user, user); err != nil {
		return event.Event{}, err
	}
	// Reducing debt can only raise the health factor; checked anyway so a
	// bookkeeping bug surfaces here instead of at the next liquidation.
	if err := e.solvency.AssertHealthy(user); err != nil {
		e.debt.Remint(user, amount, user)
		return event.Event{}, err
	}
	return e.newEvent(event.TypeDebtBurned, user, "", amount, &user, nil), nil
}

// RedeemCollateral releases amount of asset back to the user. The solvency
// guard runs against the post-debit bookkeeping, so a redeem that would
// break the health factor is refused and fully rolled back.
func (e *Engine) RedeemCollateral(user uuid.UUID, asset string, amount *uint256.Int) error {
	if err := e.acquire(user); err != nil {
		e.reject("redeem", err)
		return err
	}
	defer e.release(user)

	start := time.Now()
	ev, err := e.redeemLocked(user, asset, amount)
	if err != nil {
		e.reject("redeem", err)
		return err
	}
	e.commit("redeem", start)
	e.emit(ev)
	return nil
}

func (e *Engine) redeemLocked(user uuid.UUID, asset string, amount *uint256.Int) (event.Event, error) {
	err := e.collateral.Withdraw(user, asset, amount, user, func() error {
		return e.solvency.AssertHealthy(user)
	})
	if err != nil {
		return event.Event{}, err
	}
	return e.newEvent(event.TypeCollateralRedeemed, user, asset, amount, ptr(e.collateral.Custody()), &user), nil
}

// DepositAndMint deposits collateral and mints debt as one guarded
// operation. A mint failure rolls the deposit back so the pair is
// all-or-nothing.
func (e *Engine) DepositAndMint(user uuid.UUID, asset string, amount, mintAmount *uint256.Int) error {
	if err := e.acquire(user); err != nil {
		e.reject("deposit_and_mint", err)
		return err
	}
	defer e.release(user)

	start := time.Now()
	depositEv, err := e.depositLocked(user, asset, amount)
	if err != nil {
		e.reject("deposit_and_mint", err)
		return err
	}
	mintEv, err := e.mintLocked(user, mintAmount)
	if err != nil {
		if undo := e.collateral.Withdraw(user, asset, amount, user, nil); undo != nil {
			e.log.Error().Err(undo).Stringer("user", user).Str("asset", asset).
				Msg("failed to return deposit after mint failure")
		}
		e.reject("deposit_and_mint", err)
		return err
	}
	e.commit("deposit_and_mint", start)
	e.emit(depositEv, mintEv)
	return nil
}

// RedeemForBurn burns debt and then redeems collateral as one guarded
// operation. Burning first raises the health factor, so the redeem is
// checked against the reduced debt.
func (e *Engine) RedeemForBurn(user uuid.UUID, asset string, amount, burnAmount *uint256.Int) error {
	if err := e.acquire(user); err != nil {
		e.reject("redeem_for_burn", err)
		return err
	}
	defer e.release(user)

	start := time.Now()
	burnEv, err := e.burnLocked(user, burnAmount)
	if err != nil {
		e.reject("redeem_for_burn", err)
		return err
	}
	redeemEv, err := e.redeemLocked(user, asset, amount)
	if err != nil {
		e.debt.Remint(user, burnAmount, user)
		e.reject("redeem_for_burn", err)
		return err
	}
	e.commit("redeem_for_burn", start)
	e.emit(burnEv, redeemEv)
	return nil
}

// --- Read operations. Unguarded; they never mutate state. ---

// HealthFactor returns the user's current health factor.
func (e *Engine) HealthFactor(user uuid.UUID) (*uint256.Int, error) {
	return e.solvency.HealthFactor(user)
}

// AccountInfo returns the user's debt and total collateral value.
func (e *Engine) AccountInfo(user uuid.UUID) (debt, collateralValue *uint256.Int, err error) {
	return e.solvency.AccountInfo(user)
}

// CollateralValueUsd returns the user's total collateral value in USD.
func (e *Engine) CollateralValueUsd(user uuid.UUID) (*uint256.Int, error) {
	return e.collateral.TotalValueUsd(user)
}

// CollateralBalance returns the user's recorded balance of one asset.
func (e *Engine) CollateralBalance(user uuid.UUID, asset string) *uint256.Int {
	return e.collateral.Balance(user, asset)
}

// Debt returns the user's outstanding stablecoin debt.
func (e *Engine) Debt(user uuid.UUID) *uint256.Int {
	return e.debt.Debt(user)
}

// Assets returns the collateral allow-list in configuration order.
func (e *Engine) Assets() []config.Asset {
	return e.collateral.Assets()
}

// FeedFor returns the price-feed reference for an asset.
func (e *Engine) FeedFor(asset string) (string, error) {
	return e.conv.FeedFor(asset)
}

// UsdValue converts a token amount to USD at the current raw price.
func (e *Engine) UsdValue(asset string, amount *uint256.Int) (*uint256.Int, error) {
	return e.conv.UsdValue(asset, amount)
}

// TokenAmountForUsd converts a USD value to a token amount at the current
// guarded price.
func (e *Engine) TokenAmountForUsd(asset string, usd *uint256.Int) (*uint256.Int, error) {
	return e.conv.TokenAmountForUsd(asset, usd)
}

// --- Internals ---

func (e *Engine) newEvent(t event.Type, user uuid.UUID, asset string, amount *uint256.Int, from, to *uuid.UUID) event.Event {
	return event.Event{
		ID:        uuid.New(),
		Type:      t,
		User:      user,
		Asset:     asset,
		Amount:    amount.Dec(),
		From:      from,
		To:        to,
		Timestamp: time.Now().UTC(),
	}
}

func (e *Engine) emit(events ...event.Event) {
	for _, ev := range events {
		if e.sink != nil {
			e.sink.Emit(ev)
		}
		if e.metrics != nil {
			e.metrics.EventsEmitted.WithLabelValues(string(ev.Type)).Inc()
		}
	}
}

func (e *Engine) commit(op string, start time.Time) {
	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (e *Engine) reject(op string, err error) {
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(op, reason(err)).Inc()
	}
	e.log.Debug().Err(err).Str("op", op).Msg("operation rejected")
}

func reason(err error) string {
	switch err.(type) {
	case *BrokenHealthFactorError:
		return "health_factor"
	case *HealthFactorOkError:
		return "target_healthy"
	case *HealthFactorNotImprovedError:
		return "not_improved"
	case *vault.InsufficientCollateralError:
		return "insufficient_collateral"
	case *vault.InsufficientDebtError:
		return "insufficient_debt"
	case *vault.TransferFailedError:
		return "transfer_failed"
	case *vault.MintFailedError:
		return "mint_failed"
	case *pricing.InvalidPriceError:
		return "invalid_price"
	case *pricing.UnknownAssetError:
		return "unknown_asset"
	case *oracle.StalePriceError:
		return "stale_price"
	}
	switch err {
	case ErrOperationInProgress:
		return "in_progress"
	case vault.ErrZeroAmount:
		return "zero_amount"
	case vault.ErrUnknownAsset:
		return "unknown_asset"
	}
	return "other"
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }
