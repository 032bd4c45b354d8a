// Package token defines the external token collaborators the vault moves
// balances through. The engine never trusts a token call to succeed; every
// transfer result is checked and failures roll the bookkeeping back.
package token

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Token is a transferable asset balance keyed by account ID. Transfer
// reports success; implementations must not partially apply.
type Token interface {
	Transfer(from, to uuid.UUID, amount *uint256.Int) bool
	BalanceOf(owner uuid.UUID) *uint256.Int
}

// StableCoin extends Token with supply control. Mint and Burn are
// restricted to the configured authority (the vault engine).
type StableCoin interface {
	Token
	Mint(to uuid.UUID, amount *uint256.Int) bool
	Burn(holder uuid.UUID, amount *uint256.Int) error
}
