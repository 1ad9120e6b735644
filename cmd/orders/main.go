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
	"go.opentelemetry.io/otel"

	"github.com/joao-fontenele/pharmacy-orders/internal/cart"
	"github.com/joao-fontenele/pharmacy-orders/internal/config"
	"github.com/joao-fontenele/pharmacy-orders/internal/customers"
	"github.com/joao-fontenele/pharmacy-orders/internal/messaging"
	"github.com/joao-fontenele/pharmacy-orders/internal/orders"
	"github.com/joao-fontenele/pharmacy-orders/internal/outbox"
	"github.com/joao-fontenele/pharmacy-orders/internal/payments"
	"github.com/joao-fontenele/pharmacy-orders/internal/telemetry"
)

const serviceName = "orders"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load[config.Orders]()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	metrics, err := telemetry.NewDomainMetrics(otel.Meter(serviceName))
	if err != nil {
		logger.Error("failed to create domain metrics", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var cartCache cart.Cache = cart.NoopCache{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		cartCache = cart.NewRedisCache(rdb, cfg.CartCacheTTL)
	}

	transitions, err := orders.ParseTransitions(cfg.OrderTransitions)
	if err != nil {
		logger.Error("invalid order transition table", "error", err)
		os.Exit(1)
	}

	var stripeGateway *payments.StripeGateway
	if cfg.StripeAPIURL != "" {
		stripeGateway = payments.NewStripeGatewayWithBackend(cfg.StripeAPIKey, cfg.StripeAPIURL, &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		})
	} else {
		if cfg.StripeAPIKey == "" {
			logger.Warn("STRIPE_API_KEY is not set, card payments will fail verification")
		}
		stripeGateway = payments.NewStripeGateway(cfg.StripeAPIKey)
	}
	paymentGateway := payments.NewBreakerGateway(stripeGateway, payments.BreakerSettings{
		Name:             "stripe",
		Timeout:          cfg.BreakerTimeout,
		FailureThreshold: cfg.BreakerFailures,
	}, logger)

	customerRepo := customers.NewCustomerRepository(db)
	auth := customers.NewMiddleware(customerRepo, logger)

	cartService := cart.NewService(db, cartCache, logger)
	engine := orders.NewCheckoutEngine(db, cartService, metrics, logger)
	orderService := orders.NewService(db, transitions, metrics, logger)
	paymentService := payments.NewService(orderService, customerRepo, paymentGateway, metrics, logger)

	cartHandler := cart.NewHandler(cartService, logger)
	orderHandler := orders.NewHandler(engine, orderService, logger)
	paymentHandler := payments.NewHandler(paymentService, logger)

	customer := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(auth.Authenticated(h))
	}
	staff := func(h http.HandlerFunc) http.HandlerFunc {
		return telemetry.WithHTTPRoute(auth.StaffOnly(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /cart", customer(cartHandler.HandleGet))
	mux.HandleFunc("POST /cart/items", customer(cartHandler.HandleAddItem))
	mux.HandleFunc("PATCH /cart/items/{lineId}", customer(cartHandler.HandleUpdateItem))
	mux.HandleFunc("DELETE /cart/items/{lineId}", customer(cartHandler.HandleRemoveItem))
	mux.HandleFunc("POST /cart/checkout", customer(orderHandler.HandleCheckout))
	mux.HandleFunc("POST /orders", customer(orderHandler.HandleCreate))
	mux.HandleFunc("GET /orders", customer(orderHandler.HandleList))
	mux.HandleFunc("GET /orders/all", staff(orderHandler.HandleListAll))
	mux.HandleFunc("GET /orders/{id}", customer(orderHandler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}/status", staff(orderHandler.HandleUpdateStatus))
	mux.HandleFunc("PUT /orders/{id}/pickup/complete", staff(orderHandler.HandlePickupComplete))
	mux.HandleFunc("POST /payments/orders/{id}/pay", customer(paymentHandler.HandleConfirm))
	mux.HandleFunc("POST /payments/intents", customer(paymentHandler.HandleCreateIntent))
	mux.HandleFunc("POST /payments/intents/temporary", customer(paymentHandler.HandleCreateTemporaryIntent))
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()

	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers)
		defer func() { _ = producer.Close() }()

		relay := outbox.NewRelay(outbox.NewRepository(db), producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)
		go relay.Run(relayCtx)
	} else {
		logger.Warn("KAFKA_BROKERS is not set, order events stay in the outbox")
	}

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	stopRelay()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
