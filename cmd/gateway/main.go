package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/pharmacy-orders/internal/config"
	"github.com/joao-fontenele/pharmacy-orders/internal/gateway"
	"github.com/joao-fontenele/pharmacy-orders/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load[config.Gateway]()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "gateway", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	ordersProxy := gateway.NewServiceProxy(cfg.OrdersServiceURL, httpClient)
	catalogProxy := gateway.NewServiceProxy(cfg.CatalogServiceURL, httpClient)
	var opts []gateway.HandlerOption
	if cfg.TrustIdentityHeader {
		opts = append(opts, gateway.TrustIdentityHeader())
	} else {
		logger.Warn("identity header is not trusted, customer routes will answer 401")
	}
	handler := gateway.NewHandler(ordersProxy, catalogProxy, logger, opts...)

	orders := telemetry.WithHTTPRoute(handler.HandleOrders)
	products := telemetry.WithHTTPRoute(handler.HandleCatalog)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/products", products)
	mux.HandleFunc("GET /api/v1/products/{id}", products)
	mux.HandleFunc("GET /api/v1/cart", orders)
	mux.HandleFunc("POST /api/v1/cart/items", orders)
	mux.HandleFunc("PATCH /api/v1/cart/items/{lineId}", orders)
	mux.HandleFunc("DELETE /api/v1/cart/items/{lineId}", orders)
	mux.HandleFunc("POST /api/v1/cart/checkout", orders)
	mux.HandleFunc("GET /api/v1/orders", orders)
	mux.HandleFunc("POST /api/v1/orders", orders)
	mux.HandleFunc("GET /api/v1/orders/all", orders)
	mux.HandleFunc("GET /api/v1/orders/{id}", orders)
	mux.HandleFunc("PATCH /api/v1/orders/{id}/status", orders)
	mux.HandleFunc("PUT /api/v1/orders/{id}/pickup/complete", orders)
	mux.HandleFunc("POST /api/v1/payments/orders/{id}/pay", orders)
	mux.HandleFunc("POST /api/v1/payments/intents", orders)
	mux.HandleFunc("POST /api/v1/payments/intents/temporary", orders)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, "gateway",
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
		logger.Info("starting gateway service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
