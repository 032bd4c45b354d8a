package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"stablevault/internal/config"
	"stablevault/internal/observability"
	"stablevault/internal/oracle"
	"stablevault/internal/pricing"
	"stablevault/internal/token"
	"stablevault/internal/vault"
)

// setupUnderwater creates the canonical distressed position: 10 ETH
// deposited at $2000 backing 8000 DSC, then the price halves to $1000
// leaving a health factor of 0.625. The liquidator holds 4000 DSC.
func setupUnderwater(t *testing.T) (*fixture, uuid.UUID) {
	t.Helper()
	f := newFixture(t)
	if err := f.eng.DepositAndMint(f.user, "ETH", scaled(10), scaled(8000)); err != nil {
		t.Fatalf("DepositAndMint: %v", err)
	}
	f.source.SetPrice("feed-eth-usd", 1000_00000000, testNow)

	liquidator := uuid.New()
	f.dsc.Mint(liquidator, scaled(4000))
	return f, liquidator
}

func TestLiquidateSeizesCollateralWithBonus(t *testing.T) {
	f, liquidator := setupUnderwater(t)

	starting, err := f.eng.HealthFactor(f.user)
	if err != nil {
		t.Fatalf("HealthFactor: %v", err)
	}
	if want := uint256.NewInt(625_000_000_000_000_000); !starting.Eq(want) {
		t.Fatalf("starting health = %s, want %s", starting.Dec(), want.Dec())
	}

	if err := f.eng.Liquidate(liquidator, f.user, "ETH", scaled(4000)); err != nil {
		t.Fatalf("Liquidate: %v", err)
	}

	// 4000 DSC at $1000 is 4 ETH, plus the 10% bonus is 4.4 ETH.
	seized := uint256.NewInt(4_400_000_000_000_000_000)
	if got := f.eth.BalanceOf(liquidator); !got.Eq(seized) {
		t.Errorf("liquidator received %s, want %s", got.Dec(), seized.Dec())
	}
	remaining := uint256.NewInt(5_600_000_000_000_000_000)
	if got := f.eng.CollateralBalance(f.user, "ETH"); !got.Eq(remaining) {
		t.Errorf("target keeps %s, want %s", got.Dec(), remaining.Dec())
	}
	if got := f.eng.Debt(f.user); !got.Eq(scaled(4000)) {
		t.Errorf("target debt = %s, want 4000e18", got.Dec())
	}
	if got := f.dsc.BalanceOf(liquidator); !got.IsZero() {
		t.Errorf("liquidator DSC = %s, want 0", got.Dec())
	}

	ending, err := f.eng.HealthFactor(f.user)
	if err != nil {
		t.Fatalf("HealthFactor: %v", err)
	}
	if ending.Cmp(starting) <= 0 {
		t.Errorf("health did not improve: %s -> %s", starting.Dec(), ending.Dec())
	}
}

func TestLiquidateHealthyPositionRejected(t *testing.T) {
	f := newFixture(t)
	if err := f.eng.DepositAndMint(f.user, "ETH", scaled(10), scaled(8000)); err != nil {
		t.Fatalf("DepositAndMint: %v", err)
	}
	liquidator := uuid.New()
	f.dsc.Mint(liquidator, scaled(4000))

	err := f.eng.Liquidate(liquidator, f.user, "ETH", scaled(4000))
	var ok *HealthFactorOkError
	if !errors.As(err, &ok) {
		t.Fatalf("err = %v, want *HealthFactorOkError", err)
	}
	if got := f.eng.CollateralBalance(f.user, "ETH"); !got.Eq(scaled(10)) {
		t.Errorf("collateral = %s after rejected liquidation", got.Dec())
	}
	if got := f.eng.Debt(f.user); !got.Eq(scaled(8000)) {
		t.Errorf("debt = %s after rejected liquidation", got.Dec())
	}
}

func TestLiquidateRejectsZeroCover(t *testing.T) {
	f, liquidator := setupUnderwater(t)
	if err := f.eng.Liquidate(liquidator, f.user, "ETH", new(uint256.Int)); !errors.Is(err, vault.ErrZeroAmount) {
		t.Fatalf("err = %v, want ErrZeroAmount", err)
	}
}

func TestLiquidateOnStaleQuoteRejected(t *testing.T) {
	f, liquidator := setupUnderwater(t)
	f.source.SetPrice("feed-eth-usd", 1000_00000000, testNow.Add(-4*time.Hour))

	// Raw valuation still works, so the target is still visibly
	// underwater, but the seizure conversion insists on a fresh quote.
	err := f.eng.Liquidate(liquidator, f.user, "ETH", scaled(4000))
	var stale *oracle.StalePriceError
	if !errors.As(err, &stale) {
		t.Fatalf("err = %v, want *StalePriceError", err)
	}
	if got := f.eng.Debt(f.user); !got.Eq(scaled(8000)) {
		t.Errorf("debt = %s after rejected liquidation", got.Dec())
	}
}

func TestLiquidateUnwindsOnBurnFailure(t *testing.T) {
	f, _ := setupUnderwater(t)
	// A liquidator with no DSC cannot pay; the seizure must unwind.
	broke := uuid.New()

	err := f.eng.Liquidate(broke, f.user, "ETH", scaled(4000))
	var tf *vault.TransferFailedError
	if !errors.As(err, &tf) {
		t.Fatalf("err = %v, want *TransferFailedError", err)
	}
	if got := f.eng.CollateralBalance(f.user, "ETH"); !got.Eq(scaled(10)) {
		t.Errorf("collateral = %s, want full 10e18 restored", got.Dec())
	}
	if got := f.eth.BalanceOf(broke); !got.IsZero() {
		t.Errorf("failed liquidator kept %s", got.Dec())
	}
	if got := f.eng.Debt(f.user); !got.Eq(scaled(8000)) {
		t.Errorf("debt = %s, want 8000e18", got.Dec())
	}
}

func TestLiquidateEmitsEvents(t *testing.T) {
	f, liquidator := setupUnderwater(t)
	f.drainEvents()

	if err := f.eng.Liquidate(liquidator, f.user, "ETH", scaled(4000)); err != nil {
		t.Fatalf("Liquidate: %v", err)
	}
	events := f.drainEvents()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	last := events[len(events)-1]
	if string(last.Type) != "liquidation_executed" {
		t.Errorf("last event type = %s", last.Type)
	}
	if last.User != f.user || last.From == nil || *last.From != liquidator {
		t.Errorf("liquidation event parties wrong: %+v", last)
	}
}

func TestLiquidationRejectionCounters(t *testing.T) {
	src := oracle.NewStaticSource()
	src.SetPrice("feed-eth-usd", 2000_00000000, testNow)
	guard := oracle.NewGuard(src, func() time.Time { return testNow })
	assets, err := config.NewAssetList([]string{"ETH"}, []string{"feed-eth-usd"})
	if err != nil {
		t.Fatalf("asset list: %v", err)
	}
	conv := pricing.NewConverter(src, guard, assets)

	custody := uuid.New()
	user := uuid.New()
	eth := token.NewMemoryToken("ETH")
	eth.SetBalance(user, scaled(1000))
	dsc := token.NewMemoryStableCoin("DSC")
	dsc.SetMinter(custody)

	collateral := vault.NewCollateralLedger(assets, map[string]token.Token{"ETH": eth}, custody, conv, zerolog.Nop())
	debt := vault.NewDebtLedger(dsc, custody, zerolog.Nop())

	// promauto registers against the default registry, so the metrics are
	// constructed exactly once in this test binary.
	m := observability.NewMetrics()
	eng := New(collateral, debt, conv, nil, m, zerolog.Nop())

	if err := eng.DepositAndMint(user, "ETH", scaled(10), scaled(8000)); err != nil {
		t.Fatalf("DepositAndMint: %v", err)
	}
	liquidator := uuid.New()
	dsc.Mint(liquidator, scaled(4000))

	if err := eng.Liquidate(liquidator, user, "ETH", scaled(4000)); err == nil {
		t.Fatal("expected rejection of healthy target")
	}
	if got := testutil.ToFloat64(m.LiquidationsRejected.WithLabelValues("target_healthy")); got != 1 {
		t.Errorf("target_healthy rejections = %v, want 1", got)
	}

	src.SetPrice("feed-eth-usd", 1000_00000000, testNow.Add(-4*time.Hour))
	if err := eng.Liquidate(liquidator, user, "ETH", scaled(4000)); err == nil {
		t.Fatal("expected rejection on stale quote")
	}
	if got := testutil.ToFloat64(m.LiquidationsRejected.WithLabelValues("stale_price")); got != 1 {
		t.Errorf("stale_price rejections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StaleQuotes); got != 1 {
		t.Errorf("stale quote counter = %v, want 1", got)
	}

	// A non-positive price fails the health factor read itself.
	src.SetPrice("feed-eth-usd", -1, testNow)
	if err := eng.Liquidate(liquidator, user, "ETH", scaled(4000)); err == nil {
		t.Fatal("expected rejection on invalid quote")
	}
	if got := testutil.ToFloat64(m.InvalidQuotes); got != 1 {
		t.Errorf("invalid quote counter = %v, want 1", got)
	}
}

func TestSelfLiquidationUnwindsWhenStillUnhealthy(t *testing.T) {
	// Self-liquidation takes the guard once, but the liquidator-side
	// health check then fails because the caller is still underwater,
	// and the whole operation unwinds.
	f, _ := setupUnderwater(t)
	f.dsc.Mint(f.user, scaled(4000))

	err := f.eng.Liquidate(f.user, f.user, "ETH", scaled(4000))
	var broken *BrokenHealthFactorError
	if !errors.As(err, &broken) {
		t.Fatalf("err = %v, want *BrokenHealthFactorError", err)
	}
	if got := f.eng.Debt(f.user); !got.Eq(scaled(8000)) {
		t.Errorf("debt = %s, want 8000e18 restored", got.Dec())
	}
	if got := f.eng.CollateralBalance(f.user, "ETH"); !got.Eq(scaled(10)) {
		t.Errorf("collateral = %s, want 10e18 restored", got.Dec())
	}
}
