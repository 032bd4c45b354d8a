package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"stablevault/internal/config"
	"stablevault/internal/engine"
	"stablevault/internal/fixedpoint"
	"stablevault/internal/oracle"
	"stablevault/internal/pricing"
	"stablevault/internal/token"
	"stablevault/internal/vault"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func scaled(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fixedpoint.Precision)
}

func newTestServer(t *testing.T) (*Server, uuid.UUID) {
	t.Helper()
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
	eth.SetBalance(user, scaled(100))
	dsc := token.NewMemoryStableCoin("DSC")
	dsc.SetMinter(custody)

	collateral := vault.NewCollateralLedger(assets, map[string]token.Token{"ETH": eth}, custody, conv, zerolog.Nop())
	debt := vault.NewDebtLedger(dsc, custody, zerolog.Nop())
	eng := engine.New(collateral, debt, conv, nil, nil, zerolog.Nop())

	if err := eng.DepositAndMint(user, "ETH", scaled(10), scaled(8000)); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	return NewServer(":0", eng, nil, nil, zerolog.Nop()), user
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var body map[string]interface{}
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec, body
}

func TestAccountEndpoint(t *testing.T) {
	srv, user := newTestServer(t)
	rec, body := get(t, srv, "/api/v1/accounts/"+user.String())

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["debt"] != scaled(8000).Dec() {
		t.Errorf("debt = %v", body["debt"])
	}
	if body["collateral_value_usd"] != scaled(20000).Dec() {
		t.Errorf("collateral_value_usd = %v", body["collateral_value_usd"])
	}
	if body["health_factor"] != "1250000000000000000" {
		t.Errorf("health_factor = %v", body["health_factor"])
	}
}

func TestAccountEndpointRejectsBadID(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, _ := get(t, srv, "/api/v1/accounts/not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDebtFreeAccountReportsMaxHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, body := get(t, srv, "/api/v1/accounts/"+uuid.NewString()+"/health-factor")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["value"] != "max" {
		t.Errorf("value = %v, want max", body["value"])
	}
}

func TestBalanceEndpoint(t *testing.T) {
	srv, user := newTestServer(t)
	rec, body := get(t, srv, "/api/v1/accounts/"+user.String()+"/balances/ETH")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["value"] != scaled(10).Dec() {
		t.Errorf("value = %v", body["value"])
	}
}

func TestUsdValueEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, body := get(t, srv, "/api/v1/assets/ETH/usd-value?amount="+scaled(15).Dec())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["value"] != scaled(30000).Dec() {
		t.Errorf("value = %v", body["value"])
	}
}

func TestTokenAmountEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, body := get(t, srv, "/api/v1/assets/ETH/token-amount?usd="+scaled(100).Dec())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["value"] != "50000000000000000" {
		t.Errorf("value = %v", body["value"])
	}
}

func TestUnknownAssetIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, _ := get(t, srv, "/api/v1/assets/DOGE/feed")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMissingAmountIs400(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, _ := get(t, srv, "/api/v1/assets/ETH/usd-value")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestParamsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, body := get(t, srv, "/api/v1/params")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["liquidation_threshold"] != "50" || body["liquidation_bonus"] != "10" {
		t.Errorf("params = %v", body)
	}
	if body["min_health_factor"] != fixedpoint.MinHealthFactor.Dec() {
		t.Errorf("min_health_factor = %v", body["min_health_factor"])
	}
}

func TestAssetsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var assets []map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &assets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(assets) != 1 || assets[0]["symbol"] != "ETH" {
		t.Errorf("assets = %v", assets)
	}
}
