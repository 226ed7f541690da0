package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hemolink/internal/donor"
	donorhandler "hemolink/internal/donor/handler"
	donorservice "hemolink/internal/donor/service"
	"hemolink/internal/geo"
	"hemolink/internal/inventory"
	inventoryhandler "hemolink/internal/inventory/handler"
	inventoryservice "hemolink/internal/inventory/service"
	"hemolink/internal/matching"
	matchinghandler "hemolink/internal/matching/handler"
	"hemolink/internal/platform/config"
	"hemolink/internal/platform/httpserver"
	"hemolink/internal/platform/logger"
	"hemolink/internal/platform/metrics"
	"hemolink/internal/platform/middleware"
	"hemolink/internal/platform/postgres"
	platformredis "hemolink/internal/platform/redis"
	"hemolink/internal/ports"
	"hemolink/internal/request"
	requesthandler "hemolink/internal/request/handler"
	requestservice "hemolink/internal/request/service"
	"hemolink/internal/sweep"
	"hemolink/internal/token"
	auditpublisher "hemolink/pkg/platform/audit/publisher"
	auditkafka "hemolink/pkg/platform/audit/publishers/kafka"
	auditmemory "hemolink/pkg/platform/audit/store/memory"
)

// auditSink is what main needs from either audit publisher flavor.
type auditSink interface {
	ports.AuditPublisher
	Close()
}

// main wires stores, services, background workers, and the HTTP router.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store selection: URLs pick the backend, empty URLs mean in-memory.
	donorStore := donor.Store(donor.NewInMemoryStore())
	requestStore := request.Store(request.NewInMemoryStore())
	inventoryStore := inventory.Store(inventory.NewInMemoryStore())

	if cfg.PostgresURL != "" {
		db, err := postgres.Open(cfg.PostgresURL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		donorStore = donor.NewPostgresStore(db)
		requestStore = request.NewPostgresStore(db)
		inventoryStore = inventory.NewPostgresStore(db)
	}
	if cfg.RedisURL != "" {
		rdb, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to redis", "error", err.Error())
			os.Exit(1)
		}
		defer rdb.Close()
		// Redis carries only the hot ledger; donors and requests stay on
		// whichever store was selected above.
		inventoryStore = inventory.NewRedisStore(rdb.Client)
	}

	var auditPub auditSink
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := auditkafka.New(ctx, cfg.KafkaBrokers, cfg.AuditTopic, auditkafka.WithLogger(log))
		if err != nil {
			log.Error("failed to connect to kafka", "error", err.Error())
			os.Exit(1)
		}
		auditPub = kp
	} else {
		auditPub = auditpublisher.NewPublisher(auditmemory.NewInMemoryStore(), auditpublisher.WithAsyncBuffer(256))
	}
	defer auditPub.Close()

	donorIndex := geo.NewIndex()
	bankIndex := geo.NewIndex()

	donorSvc, err := donorservice.New(donorStore, donorIndex,
		donorservice.WithLogger(log),
		donorservice.WithAuditPublisher(auditPub),
	)
	if err != nil {
		log.Error("failed to build donor service", "error", err.Error())
		os.Exit(1)
	}

	ledger, err := inventoryservice.New(inventoryStore, bankIndex,
		inventoryservice.WithLogger(log),
		inventoryservice.WithMetrics(m),
		inventoryservice.WithAuditPublisher(auditPub),
		inventoryservice.WithHoldTTL(cfg.ReservationHoldTTL),
	)
	if err != nil {
		log.Error("failed to build inventory ledger", "error", err.Error())
		os.Exit(1)
	}

	engine := matching.NewEngine(matching.Config{
		RadiusStepsKm: cfg.Matching.RadiusStepsKm,
		MinCandidates: cfg.Matching.MinCandidates,
		MaxCandidates: cfg.Matching.MaxCandidates,
	}, donorIndex, bankIndex, donorSvc, ledger,
		matching.WithLogger(log),
		matching.WithMetrics(m),
	)

	requestSvc, err := requestservice.New(requestStore, ledger, engine,
		requestservice.WithLogger(log),
		requestservice.WithMetrics(m),
		requestservice.WithAuditPublisher(auditPub),
		requestservice.WithRequestTTL(cfg.RequestTTL),
	)
	if err != nil {
		log.Error("failed to build request service", "error", err.Error())
		os.Exit(1)
	}

	if err := donorSvc.WarmIndex(ctx); err != nil {
		log.Error("failed to warm donor index", "error", err.Error())
		os.Exit(1)
	}
	if err := ledger.WarmIndex(ctx); err != nil {
		log.Error("failed to warm bank index", "error", err.Error())
		os.Exit(1)
	}

	sweeper := sweep.New(ledger, requestSvc, cfg.SweepInterval, log)
	go sweeper.Run(ctx)

	tokenSvc := token.NewService(cfg.JWTSigningKey, "hemolink")

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokenSvc, log))
		donorhandler.New(donorSvc, log).Register(r)
		inventoryhandler.New(ledger, log).Register(r)
		requesthandler.New(requestSvc, log).Register(r)
		matchinghandler.New(requestSvc, engine, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting hemolink", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
}
