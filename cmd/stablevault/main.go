package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablevault/internal/api"
	"stablevault/internal/config"
	"stablevault/internal/engine"
	"stablevault/internal/event"
	"stablevault/internal/observability"
	"stablevault/internal/oracle"
	"stablevault/internal/persistence"
	"stablevault/internal/pricing"
	"stablevault/internal/publish"
	"stablevault/internal/token"
	"stablevault/internal/vault"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := observability.NewLogger("main")

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Oracle and pricing ---
	source := oracle.NewStaticSource()
	guard := oracle.NewGuard(source, nil)
	conv := pricing.NewConverter(source, guard, cfg.Assets)

	// --- Tokens ---
	// In-process token ledgers; a chain-backed deployment swaps these for
	// RPC-backed implementations of the same interfaces.
	custody := uuid.New()
	tokens := make(map[string]token.Token, len(cfg.Assets))
	for _, a := range cfg.Assets {
		tokens[a.Symbol] = token.NewMemoryToken(a.Symbol)
	}
	dsc := token.NewMemoryStableCoin("DSC")
	dsc.SetMinter(custody)

	// --- Event pipeline ---
	sink := event.NewSink(cfg.EventBuffer, func(e event.Event) {
		metrics.EventsDropped.Inc()
	})

	// --- Ledgers and engine ---
	collateral := vault.NewCollateralLedger(cfg.Assets, tokens, custody, conv, log)
	debt := vault.NewDebtLedger(dsc, custody, log)
	eng := engine.New(collateral, debt, conv, sink, metrics, log)

	var wg sync.WaitGroup

	// The sink fans out to persistence and publishing when configured;
	// otherwise events are drained and discarded so the buffer never fills.
	persistChan := make(chan event.Event, cfg.EventBuffer)
	publishChan := make(chan event.Event, cfg.EventBuffer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(persistChan)
		defer close(publishChan)
		for e := range sink.Events() {
			persistChan <- e
			select {
			case publishChan <- e:
			default:
				metrics.EventsDropped.Inc()
			}
		}
	}()

	// --- Postgres journal (optional) ---
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres open")
		}
		defer db.Close()
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping")
		}

		worker := persistence.NewWorker(db, persistChan, cfg.PersistBatch, cfg.PersistFlush, metrics, log)
		if err := worker.Writer().EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
		log.Info().Msg("postgres journal enabled")
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range persistChan {
			}
		}()
	}

	// --- NATS publisher (optional) ---
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()

		js, err := jetstream.New(nc)
		if err != nil {
			log.Fatal().Err(err).Msg("jetstream init")
		}
		if err := publish.EnsureStream(ctx, js); err != nil {
			log.Fatal().Err(err).Msg("ensure stream")
		}

		pub := publish.NewPublisher(js, publishChan, metrics, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(ctx)
		}()
		log.Info().Msg("nats publisher enabled")
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range publishChan {
			}
		}()
	}

	// --- Metrics server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server")
		}
	}()

	// --- Read API ---
	apiSrv := api.NewServer(cfg.HTTPAddr, eng, health, metrics, log)
	go func() {
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("api server")
		}
	}()

	health.SetReady(true)
	log.Info().Int("assets", len(cfg.Assets)).Msg("stablevault ready")

	<-sigChan
	log.Info().Msg("shutting down")
	health.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Shutdown(shutdownCtx)

	// Stop emitters first, then let the pipeline drain.
	sink.Close()
	cancel()
	wg.Wait()
	log.Info().Msg("stopped")
}
