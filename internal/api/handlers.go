package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	jsoniter "github.com/json-iterator/go"

	"stablevault/internal/fixedpoint"
	"stablevault/internal/oracle"
	"stablevault/internal/pricing"
	"stablevault/internal/vault"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type accountResponse struct {
	User            string `json:"user"`
	Debt            string `json:"debt"`
	CollateralValue string `json:"collateral_value_usd"`
	HealthFactor    string `json:"health_factor"`
}

type valueResponse struct {
	Value string `json:"value"`
}

type assetResponse struct {
	Symbol  string `json:"symbol"`
	FeedRef string `json:"feed_ref"`
}

type paramsResponse struct {
	LiquidationThreshold string `json:"liquidation_threshold"`
	LiquidationBonus     string `json:"liquidation_bonus"`
	LiquidationPrecision string `json:"liquidation_precision"`
	MinHealthFactor      string `json:"min_health_factor"`
	Precision            string `json:"precision"`
	FeedAdjustment       string `json:"feed_adjustment"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	done := s.observe("account")
	user, ok := s.userID(w, r)
	if !ok {
		done(http.StatusBadRequest)
		return
	}
	debt, value, err := s.engine.AccountInfo(user)
	if err != nil {
		done(s.writeError(w, err))
		return
	}
	factor, err := s.engine.HealthFactor(user)
	if err != nil {
		done(s.writeError(w, err))
		return
	}
	s.writeJSON(w, http.StatusOK, accountResponse{
		User:            user.String(),
		Debt:            debt.Dec(),
		CollateralValue: value.Dec(),
		HealthFactor:    healthString(factor),
	})
	done(http.StatusOK)
}

func (s *Server) handleHealthFactor(w http.ResponseWriter, r *http.Request) {
	done := s.observe("health_factor")
	user, ok := s.userID(w, r)
	if !ok {
		done(http.StatusBadRequest)
		return
	}
	factor, err := s.engine.HealthFactor(user)
	if err != nil {
		done(s.writeError(w, err))
		return
	}
	s.writeJSON(w, http.StatusOK, valueResponse{Value: healthString(factor)})
	done(http.StatusOK)
}

func (s *Server) handleCollateralValue(w http.ResponseWriter, r *http.Request) {
	done := s.observe("collateral_value")
	user, ok := s.userID(w, r)
	if !ok {
		done(http.StatusBadRequest)
		return
	}
	value, err := s.engine.CollateralValueUsd(user)
	if err != nil {
		done(s.writeError(w, err))
		return
	}
	s.writeJSON(w, http.StatusOK, valueResponse{Value: value.Dec()})
	done(http.StatusOK)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	done := s.observe("balance")
	user, ok := s.userID(w, r)
	if !ok {
		done(http.StatusBadRequest)
		return
	}
	asset := mux.Vars(r)["asset"]
	s.writeJSON(w, http.StatusOK, valueResponse{Value: s.engine.CollateralBalance(user, asset).Dec()})
	done(http.StatusOK)
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	done := s.observe("assets")
	assets := s.engine.Assets()
	out := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		out = append(out, assetResponse{Symbol: a.Symbol, FeedRef: a.FeedRef})
	}
	s.writeJSON(w, http.StatusOK, out)
	done(http.StatusOK)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	done := s.observe("feed")
	asset := mux.Vars(r)["asset"]
	feed, err := s.engine.FeedFor(asset)
	if err != nil {
		done(s.writeError(w, err))
		return
	}
	s.writeJSON(w, http.StatusOK, valueResponse{Value: feed})
	done(http.StatusOK)
}

func (s *Server) handleUsdValue(w http.ResponseWriter, r *http.Request) {
	done := s.observe("usd_value")
	asset := mux.Vars(r)["asset"]
	amount, ok := s.amountParam(w, r, "amount")
	if !ok {
		done(http.StatusBadRequest)
		return
	}
	value, err := s.engine.UsdValue(asset, amount)
	if err != nil {
		done(s.writeError(w, err))
		return
	}
	s.writeJSON(w, http.StatusOK, valueResponse{Value: value.Dec()})
	done(http.StatusOK)
}

func (s *Server) handleTokenAmount(w http.ResponseWriter, r *http.Request) {
	done := s.observe("token_amount")
	asset := mux.Vars(r)["asset"]
	usd, ok := s.amountParam(w, r, "usd")
	if !ok {
		done(http.StatusBadRequest)
		return
	}
	amount, err := s.engine.TokenAmountForUsd(asset, usd)
	if err != nil {
		done(s.writeError(w, err))
		return
	}
	s.writeJSON(w, http.StatusOK, valueResponse{Value: amount.Dec()})
	done(http.StatusOK)
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	done := s.observe("params")
	s.writeJSON(w, http.StatusOK, paramsResponse{
		LiquidationThreshold: fixedpoint.LiquidationThreshold.Dec(),
		LiquidationBonus:     fixedpoint.LiquidationBonus.Dec(),
		LiquidationPrecision: fixedpoint.LiquidationPrecision.Dec(),
		MinHealthFactor:      fixedpoint.MinHealthFactor.Dec(),
		Precision:            fixedpoint.Precision.Dec(),
		FeedAdjustment:       fixedpoint.FeedAdjustment.Dec(),
	})
	done(http.StatusOK)
}

// --- helpers ---

// healthString renders a health factor; the debt-free sentinel reads as
// "max" instead of a 78-digit number.
func healthString(factor *uint256.Int) string {
	if factor.Eq(fixedpoint.MaxHealthFactor()) {
		return "max"
	}
	return factor.Dec()
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid account id"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) amountParam(w http.ResponseWriter, r *http.Request, name string) (*uint256.Int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing " + name + " parameter"})
		return nil, false
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name + " parameter"})
		return nil, false
	}
	return v, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("encode response failed")
	}
}

// writeError maps domain errors to HTTP status codes and returns the code
// for metrics.
func (s *Server) writeError(w http.ResponseWriter, err error) int {
	status := http.StatusInternalServerError

	var stale *oracle.StalePriceError
	var unknown *pricing.UnknownAssetError
	var invalid *pricing.InvalidPriceError
	switch {
	case errors.As(err, &unknown), errors.Is(err, vault.ErrUnknownAsset):
		status = http.StatusNotFound
	case errors.As(err, &stale), errors.As(err, &invalid):
		status = http.StatusServiceUnavailable
	case errors.Is(err, vault.ErrZeroAmount):
		status = http.StatusBadRequest
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
	return status
}

// observe returns a completion callback recording request count and
// latency for one endpoint.
func (s *Server) observe(endpoint string) func(status int) {
	start := time.Now()
	return func(status int) {
		if s.metrics == nil {
			return
		}
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}
