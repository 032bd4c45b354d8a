package vault

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ErrZeroAmount rejects any operation with a zero amount before state is
// touched.
var ErrZeroAmount = errors.New("vault: amount must be greater than zero")

// ErrUnknownAsset rejects any operation on an asset outside the allow-list.
var ErrUnknownAsset = errors.New("vault: asset not allow-listed")

// InsufficientCollateralError reports a redeem or seizure that exceeds the
// user's recorded balance. The ledger refuses explicitly instead of
// wrapping below zero.
type InsufficientCollateralError struct {
	User  uuid.UUID
	Asset string
	Have  *uint256.Int
	Want  *uint256.Int
}

func (e *InsufficientCollateralError) Error() string {
	return fmt.Sprintf("vault: user %s holds %s %s, cannot release %s",
		e.User, e.Have.Dec(), e.Asset, e.Want.Dec())
}

// InsufficientDebtError reports a burn larger than the user's recorded debt.
type InsufficientDebtError struct {
	User uuid.UUID
	Have *uint256.Int
	Want *uint256.Int
}

func (e *InsufficientDebtError) Error() string {
	return fmt.Sprintf("vault: user %s owes %s, cannot burn %s",
		e.User, e.Have.Dec(), e.Want.Dec())
}

// TransferFailedError reports an external token transfer that returned
// failure. Bookkeeping changes made before the transfer are rolled back by
// the caller before this error is returned.
type TransferFailedError struct {
	Asset string
	From  uuid.UUID
	To    uuid.UUID
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("vault: %s transfer from %s to %s failed", e.Asset, e.From, e.To)
}

// MintFailedError reports a stablecoin mint that returned failure.
type MintFailedError struct {
	User uuid.UUID
}

func (e *MintFailedError) Error() string {
	return fmt.Sprintf("vault: stablecoin mint for %s failed", e.User)
}
