package vault

import (
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"stablevault/internal/fixedpoint"
	"stablevault/internal/token"
)

// DebtLedger tracks outstanding stablecoin debt per user and drives the
// external mint/burn calls. Recorded debt, not token balances, is what
// solvency math reads.
type DebtLedger struct {
	mu      sync.RWMutex
	minted  map[uuid.UUID]*uint256.Int
	dsc     token.StableCoin
	custody uuid.UUID
	log     zerolog.Logger
}

func NewDebtLedger(dsc token.StableCoin, custody uuid.UUID, log zerolog.Logger) *DebtLedger {
	return &DebtLedger{
		minted:  make(map[uuid.UUID]*uint256.Int),
		dsc:     dsc,
		custody: custody,
		log:     log.With().Str("component", "debt_ledger").Logger(),
	}
}

// Debt returns a copy of the user's outstanding debt. Unknown users read
// as zero.
func (l *DebtLedger) Debt(user uuid.UUID) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fixedpoint.Clone(l.minted[user])
}

// Mint records the new debt, runs the solvency guard against the updated
// bookkeeping, then mints the tokens. Any failure after the record is
// reversed before returning.
func (l *DebtLedger) Mint(user uuid.UUID, amount *uint256.Int, guard func() error) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}

	l.mu.Lock()
	l.increaseLocked(user, amount)
	l.mu.Unlock()

	restore := func() {
		l.mu.Lock()
		l.decreaseLocked(user, amount)
		l.mu.Unlock()
	}

	if guard != nil {
		if err := guard(); err != nil {
			restore()
			return err
		}
	}
	if !l.dsc.Mint(user, amount) {
		restore()
		return &MintFailedError{User: user}
	}

	l.log.Debug().Stringer("user", user).Str("amount", amount.Dec()).Msg("debt minted")
	return nil
}

// Burn retires amount of onBehalf's debt, paid for by payer. The recorded
// debt is decreased first, then payer's tokens move into custody and are
// burned there. A transfer failure restores the recorded debt; a burn
// failure after a successful transfer additionally returns the tokens.
func (l *DebtLedger) Burn(amount *uint256.Int, onBehalf, payer uuid.UUID) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}

	l.mu.Lock()
	have := fixedpoint.Clone(l.minted[onBehalf])
	if have.Cmp(amount) < 0 {
		l.mu.Unlock()
		return &InsufficientDebtError{User: onBehalf, Have: have, Want: fixedpoint.Clone(amount)}
	}
	l.decreaseLocked(onBehalf, amount)
	l.mu.Unlock()

	restore := func() {
		l.mu.Lock()
		l.increaseLocked(onBehalf, amount)
		l.mu.Unlock()
	}

	if !l.dsc.Transfer(payer, l.custody, amount) {
		restore()
		return &TransferFailedError{Asset: "DSC", From: payer, To: l.custody}
	}
	if err := l.dsc.Burn(l.custody, amount); err != nil {
		l.dsc.Transfer(l.custody, payer, amount)
		restore()
		return err
	}

	l.log.Debug().Stringer("on_behalf", onBehalf).Stringer("payer", payer).
		Str("amount", amount.Dec()).Msg("debt burned")
	return nil
}

// Remint reverses a completed Burn: the recorded debt returns to user and
// the tokens are minted back to payer. A mint failure here cannot be
// compensated further and is only logged.
func (l *DebtLedger) Remint(user uuid.UUID, amount *uint256.Int, payer uuid.UUID) {
	l.mu.Lock()
	l.increaseLocked(user, amount)
	l.mu.Unlock()
	if !l.dsc.Mint(payer, amount) {
		l.log.Error().Stringer("payer", payer).Str("amount", amount.Dec()).
			Msg("compensating mint failed, payer tokens not restored")
	}
}

func (l *DebtLedger) increaseLocked(user uuid.UUID, amount *uint256.Int) {
	bal, ok := l.minted[user]
	if !ok {
		bal = new(uint256.Int)
		l.minted[user] = bal
	}
	bal.Add(bal, amount)
}

func (l *DebtLedger) decreaseLocked(user uuid.UUID, amount *uint256.Int) {
	if bal, ok := l.minted[user]; ok {
		bal.Sub(bal, amount)
	}
}
