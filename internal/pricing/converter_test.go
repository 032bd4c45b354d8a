package pricing

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"stablevault/internal/config"
	"stablevault/internal/fixedpoint"
	"stablevault/internal/oracle"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestConverter(t *testing.T) (*Converter, *oracle.StaticSource) {
	t.Helper()
	src := oracle.NewStaticSource()
	guard := oracle.NewGuard(src, func() time.Time { return testNow })
	assets, err := config.NewAssetList([]string{"ETH", "BTC"}, []string{"feed-eth-usd", "feed-btc-usd"})
	if err != nil {
		t.Fatalf("asset list: %v", err)
	}
	return NewConverter(src, guard, assets), src
}

func scaled(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fixedpoint.Precision)
}

func TestUsdValue(t *testing.T) {
	conv, src := newTestConverter(t)
	src.SetPrice("feed-eth-usd", 2000_00000000, testNow)

	got, err := conv.UsdValue("ETH", scaled(15))
	if err != nil {
		t.Fatalf("UsdValue: %v", err)
	}
	if want := scaled(30000); !got.Eq(want) {
		t.Errorf("value = %s, want %s", got.Dec(), want.Dec())
	}
}

func TestTokenAmountForUsd(t *testing.T) {
	conv, src := newTestConverter(t)
	src.SetPrice("feed-eth-usd", 2000_00000000, testNow)

	got, err := conv.TokenAmountForUsd("ETH", scaled(100))
	if err != nil {
		t.Fatalf("TokenAmountForUsd: %v", err)
	}
	// $100 at $2000/token is 0.05 tokens.
	want := uint256.NewInt(50_000_000_000_000_000)
	if !got.Eq(want) {
		t.Errorf("amount = %s, want %s", got.Dec(), want.Dec())
	}
}

func TestConversionsAreInverse(t *testing.T) {
	conv, src := newTestConverter(t)
	src.SetPrice("feed-eth-usd", 1234_56000000, testNow)

	amount := scaled(7)
	value, err := conv.UsdValue("ETH", amount)
	if err != nil {
		t.Fatalf("UsdValue: %v", err)
	}
	back, err := conv.TokenAmountForUsd("ETH", value)
	if err != nil {
		t.Fatalf("TokenAmountForUsd: %v", err)
	}
	// Round trip loses at most one unit to integer division.
	diff := new(uint256.Int).Sub(amount, back)
	if diff.Cmp(uint256.NewInt(1)) > 0 {
		t.Errorf("round trip %s -> %s, diff %s", amount.Dec(), back.Dec(), diff.Dec())
	}
}

func TestUsdValueRejectsNonPositivePrice(t *testing.T) {
	conv, src := newTestConverter(t)

	for _, price := range []int64{0, -1} {
		src.Set("feed-eth-usd", oracle.Quote{Price: big.NewInt(price), UpdatedAt: testNow})
		_, err := conv.UsdValue("ETH", scaled(1))
		var invalid *InvalidPriceError
		if !errors.As(err, &invalid) {
			t.Errorf("price %d: err = %v, want *InvalidPriceError", price, err)
		}
	}
}

func TestTokenAmountForUsdRejectsStaleQuote(t *testing.T) {
	conv, src := newTestConverter(t)
	src.SetPrice("feed-eth-usd", 2000_00000000, testNow.Add(-4*time.Hour))

	_, err := conv.TokenAmountForUsd("ETH", scaled(100))
	var stale *oracle.StalePriceError
	if !errors.As(err, &stale) {
		t.Fatalf("err = %v, want *StalePriceError", err)
	}

	// The raw valuation path deliberately skips the staleness guard.
	if _, err := conv.UsdValue("ETH", scaled(1)); err != nil {
		t.Errorf("UsdValue on stale quote: %v", err)
	}
}

func TestUnknownAsset(t *testing.T) {
	conv, _ := newTestConverter(t)
	_, err := conv.UsdValue("DOGE", scaled(1))
	var unknown *UnknownAssetError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want *UnknownAssetError", err)
	}
	if _, err := conv.FeedFor("DOGE"); !errors.As(err, &unknown) {
		t.Errorf("FeedFor err = %v, want *UnknownAssetError", err)
	}
}
