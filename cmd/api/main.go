package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/myhmtk/storefront/internal/cart"
	"github.com/myhmtk/storefront/internal/catalog"
	"github.com/myhmtk/storefront/internal/checkout"
	"github.com/myhmtk/storefront/internal/clock"
	"github.com/myhmtk/storefront/internal/config"
	"github.com/myhmtk/storefront/internal/messaging"
	"github.com/myhmtk/storefront/internal/payment"
	"github.com/myhmtk/storefront/internal/reconcile"
	"github.com/myhmtk/storefront/internal/students"
	"github.com/myhmtk/storefront/internal/telemetry"
	"github.com/myhmtk/storefront/internal/transactions"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadAPI()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, telemetry.TracerOptions{
		ServiceName: "api",
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.SampleRatio,
	})
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("api")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	clk, err := clock.NewCivil(cfg.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", "error", err, "timezone", cfg.Timezone)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(cfg.PostgresURL, cfg.SearchPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	productRepo := catalog.NewRepository(db)
	var (
		products    catalog.Lookup = productRepo
		invalidator catalog.Invalidator
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()

		cache := catalog.NewRedisCache(rdb, productRepo, logger)
		products, invalidator = cache, cache
		logger.Info("product cache enabled", "addr", cfg.RedisAddr)
	}

	var (
		checkoutOpts  = []checkout.Option{checkout.WithMetrics(metrics)}
		reconcileOpts = []reconcile.Option{reconcile.WithMetrics(metrics)}
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic)
		defer func() { _ = producer.Close() }()

		checkoutOpts = append(checkoutOpts, checkout.WithPublisher(producer))
		reconcileOpts = append(reconcileOpts, reconcile.WithPublisher(producer))
	}

	gateway := payment.NewBreaker(
		payment.NewSnapClient(cfg.SnapBaseURL, cfg.ServerKey, cfg.PaymentTimeout),
		cfg.BreakerMaxFailures, cfg.BreakerCooldown, logger,
	)

	studentRepo := students.NewRepository(db)

	checkoutSvc := checkout.NewService(checkout.NewSQLStore(db), studentRepo, products, gateway, clk,
		checkout.Config{
			AdminFee:      cfg.AdminFee,
			MerchantName:  cfg.MerchantName,
			PaymentMethod: cfg.PaymentMethod,
			PaymentExpiry: cfg.PaymentExpiry,
		}, logger, checkoutOpts...)

	reconciler := reconcile.NewReconciler(reconcile.NewSQLStore(db), studentRepo, clk,
		reconcile.Config{
			ServerKey:     cfg.ServerKey,
			PaymentExpiry: cfg.PaymentExpiry,
		}, logger, reconcileOpts...)

	txRepo := transactions.NewRepository(db)
	reads := transactions.NewReadModel(txRepo, studentRepo, reconciler, clk)

	catalogHandler := catalog.NewHandler(productRepo, invalidator, logger)
	cartHandler := cart.NewHandler(cart.NewRepository(db), studentRepo, logger)
	txHandler := transactions.NewHandler(reads, txRepo, checkoutSvc, logger)
	paymentHandler := reconcile.NewHandler(reconciler, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(catalogHandler.HandleList))
	mux.HandleFunc("POST /products", telemetry.WithHTTPRoute(catalogHandler.HandleCreate))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleGet))
	mux.HandleFunc("PUT /products/{id}", telemetry.WithHTTPRoute(catalogHandler.HandleUpdate))

	mux.HandleFunc("GET /students/{nim}/cart", telemetry.WithHTTPRoute(cartHandler.HandleList))
	mux.HandleFunc("POST /students/{nim}/cart", telemetry.WithHTTPRoute(cartHandler.HandleAdd))
	mux.HandleFunc("GET /students/{nim}/cart/{id}", telemetry.WithHTTPRoute(cartHandler.HandleGet))
	mux.HandleFunc("PUT /students/{nim}/cart/{id}", telemetry.WithHTTPRoute(cartHandler.HandleUpdate))
	mux.HandleFunc("DELETE /students/{nim}/cart/{id}", telemetry.WithHTTPRoute(cartHandler.HandleDelete))

	mux.HandleFunc("POST /students/{nim}/transactions", telemetry.WithHTTPRoute(txHandler.HandleCheckout))
	mux.HandleFunc("GET /students/{nim}/transactions", telemetry.WithHTTPRoute(txHandler.HandleListForStudent))
	mux.HandleFunc("GET /students/{nim}/transactions/{id}", telemetry.WithHTTPRoute(txHandler.HandleGetForStudent))
	mux.HandleFunc("GET /transactions/{id}", telemetry.WithHTTPRoute(txHandler.HandleGet))
	mux.HandleFunc("PATCH /transactions/{id}", telemetry.WithHTTPRoute(txHandler.HandleOverride))

	mux.HandleFunc("POST /payments/notifications", telemetry.WithHTTPRoute(paymentHandler.HandleNotification))
	mux.HandleFunc("GET /payments/finish", telemetry.WithHTTPRoute(paymentHandler.HandleFinish))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			logger.Error("health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, "api", otelhttp.WithSpanNameFormatter(telemetry.SpanName)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.PaymentTimeout + 10*time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		reconcile.NewSweeper(reconciler, cfg.ExpirySweep, logger).Run(sweepCtx)
	}()

	go func() {
		logger.Info("starting api service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	stopSweep()
	<-sweepDone

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
