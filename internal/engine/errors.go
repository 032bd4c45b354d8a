package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ErrOperationInProgress rejects a state-changing call for a user who
// already has one in flight. The second call fails immediately; there is
// no queueing.
var ErrOperationInProgress = errors.New("engine: operation already in progress for user")

// BrokenHealthFactorError reports an operation that would leave (or found)
// a position below the minimum health factor.
type BrokenHealthFactorError struct {
	User   uuid.UUID
	Factor *uint256.Int
}

func (e *BrokenHealthFactorError) Error() string {
	return fmt.Sprintf("engine: health factor %s of user %s is below minimum", e.Factor.Dec(), e.User)
}

// HealthFactorOkError reports a liquidation attempt against a healthy
// position.
type HealthFactorOkError struct {
	User   uuid.UUID
	Factor *uint256.Int
}

func (e *HealthFactorOkError) Error() string {
	return fmt.Sprintf("engine: user %s is healthy (factor %s), nothing to liquidate", e.User, e.Factor.Dec())
}

// HealthFactorNotImprovedError reports a liquidation that would not raise
// the target's health factor. The whole operation is unwound before this
// is returned.
type HealthFactorNotImprovedError struct {
	User     uuid.UUID
	Starting *uint256.Int
	Ending   *uint256.Int
}

func (e *HealthFactorNotImprovedError) Error() string {
	return fmt.Sprintf("engine: liquidating user %s would move health factor %s -> %s",
		e.User, e.Starting.Dec(), e.Ending.Dec())
}
