// Package vault holds the bookkeeping ledgers: per-user collateral
// balances and outstanding stablecoin debt. The ledgers are the source of
// truth for solvency math; external token balances mirror them but are
// never read to answer solvency questions.
package vault

import (
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"stablevault/internal/config"
	"stablevault/internal/fixedpoint"
	"stablevault/internal/pricing"
	"stablevault/internal/token"
)

// CollateralLedger tracks deposited collateral per user per asset and
// moves the backing tokens through the custody account.
type CollateralLedger struct {
	mu       sync.RWMutex
	balances map[uuid.UUID]map[string]*uint256.Int
	assets   []config.Asset
	tokens   map[string]token.Token
	custody  uuid.UUID
	conv     *pricing.Converter
	log      zerolog.Logger
}

// NewCollateralLedger wires the ledger to its asset allow-list, the token
// handles used for custody transfers, and the converter used for
// valuation. Every configured asset must have a token handle.
func NewCollateralLedger(assets []config.Asset, tokens map[string]token.Token, custody uuid.UUID, conv *pricing.Converter, log zerolog.Logger) *CollateralLedger {
	return &CollateralLedger{
		balances: make(map[uuid.UUID]map[string]*uint256.Int),
		assets:   assets,
		tokens:   tokens,
		custody:  custody,
		conv:     conv,
		log:      log.With().Str("component", "collateral_ledger").Logger(),
	}
}

// Custody returns the account that holds the backing tokens.
func (l *CollateralLedger) Custody() uuid.UUID { return l.custody }

// Assets returns the allow-listed assets in configuration order.
func (l *CollateralLedger) Assets() []config.Asset {
	out := make([]config.Asset, len(l.assets))
	copy(out, l.assets)
	return out
}

func (l *CollateralLedger) allowed(asset string) bool {
	_, ok := l.tokens[asset]
	return ok
}

// Deposit credits the user's balance and pulls the tokens into custody.
// If the external transfer fails the credit is reversed before returning,
// so a failed deposit leaves no trace.
func (l *CollateralLedger) Deposit(user uuid.UUID, asset string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if !l.allowed(asset) {
		return ErrUnknownAsset
	}

	l.mu.Lock()
	l.creditLocked(user, asset, amount)
	l.mu.Unlock()

	if !l.tokens[asset].Transfer(user, l.custody, amount) {
		l.mu.Lock()
		l.debitLocked(user, asset, amount)
		l.mu.Unlock()
		return &TransferFailedError{Asset: asset, From: user, To: l.custody}
	}

	l.log.Debug().Stringer("user", user).Str("asset", asset).
		Str("amount", amount.Dec()).Msg("collateral deposited")
	return nil
}

// Withdraw debits the user's balance, runs the guard against the updated
// bookkeeping, then releases tokens from custody to the recipient. Any
// failure after the debit restores the balance, so callers observe either
// the full effect or none.
func (l *CollateralLedger) Withdraw(user uuid.UUID, asset string, amount *uint256.Int, to uuid.UUID, guard func() error) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if !l.allowed(asset) {
		return ErrUnknownAsset
	}

	l.mu.Lock()
	have := l.balanceLocked(user, asset)
	if have.Cmp(amount) < 0 {
		l.mu.Unlock()
		return &InsufficientCollateralError{User: user, Asset: asset, Have: have, Want: fixedpoint.Clone(amount)}
	}
	l.debitLocked(user, asset, amount)
	l.mu.Unlock()

	restore := func() {
		l.mu.Lock()
		l.creditLocked(user, asset, amount)
		l.mu.Unlock()
	}

	if guard != nil {
		if err := guard(); err != nil {
			restore()
			return err
		}
	}
	if !l.tokens[asset].Transfer(l.custody, to, amount) {
		restore()
		return &TransferFailedError{Asset: asset, From: l.custody, To: to}
	}

	l.log.Debug().Stringer("user", user).Stringer("to", to).Str("asset", asset).
		Str("amount", amount.Dec()).Msg("collateral released")
	return nil
}

// Reclaim reverses a completed Withdraw: the recorded balance returns to
// user and the tokens move from holder back into custody. A failed return
// transfer cannot be compensated further and is only logged; the
// bookkeeping restore still happens so the user is never short.
func (l *CollateralLedger) Reclaim(user uuid.UUID, asset string, amount *uint256.Int, holder uuid.UUID) {
	l.mu.Lock()
	l.creditLocked(user, asset, amount)
	l.mu.Unlock()
	if !l.tokens[asset].Transfer(holder, l.custody, amount) {
		l.log.Error().Stringer("holder", holder).Str("asset", asset).
			Str("amount", amount.Dec()).Msg("compensating transfer failed, custody short")
	}
}

// Balance returns a copy of the user's recorded balance for one asset.
// Unknown users and assets read as zero.
func (l *CollateralLedger) Balance(user uuid.UUID, asset string) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(user, asset)
}

// TotalValueUsd values the user's collateral across every allow-listed
// asset in configuration order. Assets with zero balance contribute zero
// without an oracle read.
func (l *CollateralLedger) TotalValueUsd(user uuid.UUID) (*uint256.Int, error) {
	l.mu.RLock()
	held := make(map[string]*uint256.Int, len(l.assets))
	for _, a := range l.assets {
		bal := l.balanceLocked(user, a.Symbol)
		if !bal.IsZero() {
			held[a.Symbol] = bal
		}
	}
	l.mu.RUnlock()

	total := new(uint256.Int)
	for _, a := range l.assets {
		bal, ok := held[a.Symbol]
		if !ok {
			continue
		}
		value, err := l.conv.UsdValue(a.Symbol, bal)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

func (l *CollateralLedger) balanceLocked(user uuid.UUID, asset string) *uint256.Int {
	return fixedpoint.Clone(l.balances[user][asset])
}

func (l *CollateralLedger) creditLocked(user uuid.UUID, asset string, amount *uint256.Int) {
	byAsset, ok := l.balances[user]
	if !ok {
		byAsset = make(map[string]*uint256.Int)
		l.balances[user] = byAsset
	}
	bal, ok := byAsset[asset]
	if !ok {
		bal = new(uint256.Int)
		byAsset[asset] = bal
	}
	bal.Add(bal, amount)
}

func (l *CollateralLedger) debitLocked(user uuid.UUID, asset string, amount *uint256.Int) {
	if bal, ok := l.balances[user][asset]; ok {
		bal.Sub(bal, amount)
	}
}
