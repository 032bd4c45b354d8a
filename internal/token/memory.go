package token

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"stablevault/internal/fixedpoint"
)

// MemoryToken is an in-process Token for tests and local runs. Balances
// are 1e18-scaled.
type MemoryToken struct {
	mu       sync.Mutex
	symbol   string
	balances map[uuid.UUID]*uint256.Int
}

func NewMemoryToken(symbol string) *MemoryToken {
	return &MemoryToken{symbol: symbol, balances: make(map[uuid.UUID]*uint256.Int)}
}

// SetBalance seeds an account balance. Test setup only.
func (t *MemoryToken) SetBalance(owner uuid.UUID, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[owner] = fixedpoint.Clone(amount)
}

func (t *MemoryToken) Transfer(from, to uuid.UUID, amount *uint256.Int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferLocked(from, to, amount)
}

func (t *MemoryToken) transferLocked(from, to uuid.UUID, amount *uint256.Int) bool {
	if amount == nil || amount.IsZero() {
		return false
	}
	bal, ok := t.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return false
	}
	bal.Sub(bal, amount)
	dst, ok := t.balances[to]
	if !ok {
		dst = new(uint256.Int)
		t.balances[to] = dst
	}
	dst.Add(dst, amount)
	return true
}

func (t *MemoryToken) BalanceOf(owner uuid.UUID) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fixedpoint.Clone(t.balances[owner])
}

// MemoryStableCoin is an in-process StableCoin whose supply operations are
// restricted to a single minter account.
type MemoryStableCoin struct {
	MemoryToken
	minter uuid.UUID
	set    bool
}

func NewMemoryStableCoin(symbol string) *MemoryStableCoin {
	return &MemoryStableCoin{
		MemoryToken: MemoryToken{symbol: symbol, balances: make(map[uuid.UUID]*uint256.Int)},
	}
}

// SetMinter fixes the mint/burn authority. Called once during wiring.
func (t *MemoryStableCoin) SetMinter(minter uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minter = minter
	t.set = true
}

func (t *MemoryStableCoin) Mint(to uuid.UUID, amount *uint256.Int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.set || amount == nil || amount.IsZero() {
		return false
	}
	dst, ok := t.balances[to]
	if !ok {
		dst = new(uint256.Int)
		t.balances[to] = dst
	}
	dst.Add(dst, amount)
	return true
}

func (t *MemoryStableCoin) Burn(holder uuid.UUID, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.set {
		return fmt.Errorf("token %s: no minter configured", t.symbol)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("token %s: burn amount must be positive", t.symbol)
	}
	bal, ok := t.balances[holder]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("token %s: burn exceeds balance of %s", t.symbol, holder)
	}
	bal.Sub(bal, amount)
	return nil
}
