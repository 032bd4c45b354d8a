// Package api exposes the read-only HTTP surface: account solvency,
// collateral balances, protocol parameters, and price conversions. All
// mutations go through the engine directly; this server never writes.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"stablevault/internal/engine"
	"stablevault/internal/observability"
)

// Server wraps the HTTP read API.
type Server struct {
	engine  *engine.Engine
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
	srv     *http.Server
}

func NewServer(addr string, eng *engine.Engine, health *observability.HealthChecker, metrics *observability.Metrics, log zerolog.Logger) *Server {
	s := &Server{
		engine:  eng,
		health:  health,
		metrics: metrics,
		log:     log.With().Str("component", "api").Logger(),
	}

	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/accounts/{id}", s.handleAccount).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/health-factor", s.handleHealthFactor).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/collateral-value", s.handleCollateralValue).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/balances/{asset}", s.handleBalance).Methods(http.MethodGet)
	v1.HandleFunc("/assets", s.handleAssets).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{asset}/feed", s.handleFeed).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{asset}/usd-value", s.handleUsdValue).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{asset}/token-amount", s.handleTokenAmount).Methods(http.MethodGet)
	v1.HandleFunc("/params", s.handleParams).Methods(http.MethodGet)

	if health != nil {
		r.HandleFunc("/healthz", health.LivenessHandler).Methods(http.MethodGet)
		r.HandleFunc("/readyz", health.ReadinessHandler).Methods(http.MethodGet)
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("read API listening")
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
