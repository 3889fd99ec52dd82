package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"assettrail/internal/audit"
	audithandler "assettrail/internal/audit/handler"
	auditmemory "assettrail/internal/audit/store/memory"
	auditpostgres "assettrail/internal/audit/store/postgres"
	inventorymemory "assettrail/internal/inventory/memory"
	inventorypostgres "assettrail/internal/inventory/postgres"
	"assettrail/internal/platform/config"
	"assettrail/internal/platform/httpserver"
	"assettrail/internal/platform/kafka"
	"assettrail/internal/platform/logger"
	"assettrail/internal/platform/metrics"
	"assettrail/internal/platform/middleware"
	platformredis "assettrail/internal/platform/redis"
	"assettrail/internal/stream"
	"assettrail/internal/summary"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		eventStore audit.Store
		reader     summary.InventoryReader
		db         *sql.DB
	)
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := auditpostgres.EnsureSchema(ctx, db); err != nil {
			log.Error("ensure audit schema", "error", err)
			os.Exit(1)
		}
		if err := inventorypostgres.EnsureSchema(ctx, db); err != nil {
			log.Error("ensure inventory schema", "error", err)
			os.Exit(1)
		}
		eventStore = auditpostgres.New(db)
		reader = inventorypostgres.New(db)
	} else {
		log.Warn("POSTGRES_DSN unset, using in-memory stores")
		eventStore = auditmemory.New()
		reader = inventorymemory.New()
	}

	summaries := summary.New(reader, cfg.Thresholds, cfg.SummaryTTL, log, m)
	hub := stream.NewHub(log, m)

	g, ctx := errgroup.WithContext(ctx)

	// With Redis the broadcast path goes through pub/sub so every replica's
	// hub sees the event; without it fan-out stays in-process.
	var broadcaster audit.Broadcaster = hub
	rdb, err := platformredis.New(cfg.RedisURL, cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		bus := stream.NewBus(rdb, hub, summaries, log)
		broadcaster = bus
		g.Go(func() error { return ignoreCancel(bus.Run(ctx)) })
	}

	var recorderOpts []audit.RecorderOption
	recorderOpts = append(recorderOpts, audit.WithMaxTake(cfg.MaxListTake))

	producer, err := kafka.NewPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, log)
	if err != nil {
		log.Error("connect kafka", "error", err)
		os.Exit(1)
	}
	if producer != nil {
		defer producer.Close()
		exports := make(chan audit.Event, 256)
		recorderOpts = append(recorderOpts, audit.WithExports(exports))
		exporter := audit.NewExporter(producer, exports, log)
		g.Go(func() error { return ignoreCancel(exporter.Run(ctx)) })
	}

	recorder := audit.NewRecorder(eventStore, summaries, broadcaster, log, m, recorderOpts...)
	h := audithandler.New(recorder, summaries, hub, log)

	checks := map[string]httpserver.Check{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = rdb.Health
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Get("/healthz", httpserver.Readiness(checks))
	r.Handle("/metrics", promhttp.Handler())
	h.Register(r)

	srv := httpserver.New(cfg.Addr, r)

	g.Go(func() error {
		log.Info("starting assettrail", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
