package fixedpoint

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d uint64
		want    uint64
	}{
		{"exact", 10, 50, 100, 5},
		{"rounds down", 7, 50, 100, 3},
		{"identity", 42, 1, 1, 42},
		{"zero numerator", 0, 50, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MulDiv(uint256.NewInt(tt.a), uint256.NewInt(tt.b), uint256.NewInt(tt.d))
			if got.Uint64() != tt.want {
				t.Errorf("MulDiv(%d, %d, %d) = %s, want %d", tt.a, tt.b, tt.d, got.Dec(), tt.want)
			}
		})
	}
}

func TestMulDivLargeIntermediate(t *testing.T) {
	// 2000e8 * 1e10 * 10e18 / 1e18 exceeds 64 bits in the intermediate.
	price := new(uint256.Int).Mul(uint256.NewInt(2000_00000000), FeedAdjustment)
	amount := new(uint256.Int).Mul(uint256.NewInt(10), Precision)
	got := MulDiv(price, amount, Precision)

	want := new(uint256.Int).Mul(uint256.NewInt(20000), Precision)
	if !got.Eq(want) {
		t.Errorf("value = %s, want %s", got.Dec(), want.Dec())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := uint256.NewInt(100)
	c := Clone(orig)
	c.Add(c, uint256.NewInt(1))
	if orig.Uint64() != 100 {
		t.Errorf("original mutated to %s", orig.Dec())
	}
	if z := Clone(nil); !z.IsZero() {
		t.Errorf("Clone(nil) = %s, want 0", z.Dec())
	}
}

func TestMaxHealthFactorDominates(t *testing.T) {
	max := MaxHealthFactor()
	if max.Cmp(MinHealthFactor) <= 0 {
		t.Error("sentinel must compare above the minimum health factor")
	}
}
