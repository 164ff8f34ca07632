package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	appcart "github.com/smartpos/sale-engine/internal/application/cart"
	"github.com/smartpos/sale-engine/internal/application/report"
	appsale "github.com/smartpos/sale-engine/internal/application/sale"
	"github.com/smartpos/sale-engine/internal/config"
	domcatalog "github.com/smartpos/sale-engine/internal/domain/catalog"
	dompayment "github.com/smartpos/sale-engine/internal/domain/payment"
	"github.com/smartpos/sale-engine/internal/infrastructure/id"
	"github.com/smartpos/sale-engine/internal/infrastructure/memory"
	"github.com/smartpos/sale-engine/internal/infrastructure/mongo"
	infraobs "github.com/smartpos/sale-engine/internal/infrastructure/observability"
	"github.com/smartpos/sale-engine/internal/infrastructure/observability/oteltrace"
	"github.com/smartpos/sale-engine/internal/infrastructure/observability/prometrics"
	"github.com/smartpos/sale-engine/internal/infrastructure/observability/zaplogger"
	"github.com/smartpos/sale-engine/internal/infrastructure/outbox"
	infrapayment "github.com/smartpos/sale-engine/internal/infrastructure/payment"
	"github.com/smartpos/sale-engine/internal/infrastructure/scheduler"
	"github.com/smartpos/sale-engine/internal/observability"
	httppresentation "github.com/smartpos/sale-engine/internal/presentation/http"
)

func main() {
	envFile := flag.String("env-file", "", "path to an optional .env file")
	seedDemo := flag.Bool("seed-demo", false, "seed a demo catalog and stock on startup")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}

	baseLogger := zaplogger.New(
		observability.F("service", cfg.Service.Name),
		observability.F("env", cfg.Service.Env),
	)

	registry := prometrics.New("smartpos", "sale_engine")
	tel := infraobs.New(
		oteltrace.New(cfg.Service.Name),
		baseLogger,
		map[observability.MetricKey]observability.Counter{
			observability.MUsecaseRequests: registry.Counter(
				string(observability.MUsecaseRequests),
				"Total number of use case invocations.",
				"use_case", "outcome",
			),
			observability.MHTTPRequests: registry.Counter(
				string(observability.MHTTPRequests),
				"Total number of HTTP requests served.",
				"method", "route", "status",
			),
			observability.MExternalRequests: registry.Counter(
				string(observability.MExternalRequests),
				"Total number of calls to external collaborators.",
				"peer", "endpoint", "outcome",
			),
		},
		map[observability.MetricKey]observability.Histogram{
			observability.MUsecaseDuration: registry.Histogram(
				string(observability.MUsecaseDuration),
				"Duration of use case execution in seconds.",
				prometheus.DefBuckets,
				"use_case",
			),
			observability.MHTTPRequestDuration: registry.Histogram(
				string(observability.MHTTPRequestDuration),
				"Duration of HTTP request handling in seconds.",
				prometheus.DefBuckets,
				"method", "route", "status",
			),
			observability.MExternalRequestDuration: registry.Histogram(
				string(observability.MExternalRequestDuration),
				"Duration of external collaborator calls in seconds.",
				prometheus.DefBuckets,
				"peer", "endpoint",
			),
		},
		map[observability.MetricKey]observability.Gauge{
			observability.MLowStockProducts: registry.Gauge(
				string(observability.MLowStockProducts),
				"Number of products at or below their reorder level.",
			),
		},
	)
	log := tel.Logger()

	cartRepo := memory.NewCartRepository()
	saleRepo := memory.NewSaleRepository()
	catalog := memory.NewCatalog()
	ledger := memory.NewStockLedger()
	idGen := id.NewUUIDGenerator()

	bus := outbox.NewBus(log)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	var authorizer dompayment.Authorizer
	switch cfg.Payment.Mode {
	case config.PaymentModeGateway:
		gateway := infrapayment.NewGatewayClient(infrapayment.GatewayConfig{
			BaseURL: cfg.Payment.GatewayURL,
			APIKey:  cfg.Payment.APIKey,
			Timeout: cfg.Payment.Timeout,
		})
		authorizer = infrapayment.NewBreakerAuthorizer(gateway, infrapayment.BreakerConfig{}, log)
	default:
		authorizer = infrapayment.NewSimulator(cfg.Payment.SuccessRate, 50*time.Millisecond)
	}

	calc := appcart.Calculator{
		MinorUnits: cfg.Currency.MinorUnits,
		TaxRate:    cfg.Currency.TaxRate,
	}

	cartService := appcart.NewService(cartRepo, catalog, idGen, calc, log)
	submitUseCase := appsale.NewSubmitUseCase(cartRepo, saleRepo, ledger, authorizer, bus, idGen, calc, tel)
	voidUseCase := appsale.NewVoidUseCase(saleRepo, ledger, bus, idGen, tel)

	reportService := report.NewService(tel)
	reportWorker := report.NewWorker(reportService, bus, tel)
	reportWorker.Start()

	if cfg.Archive.MongoURI != "" {
		archiveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		archive, aerr := mongo.NewSaleArchive(archiveCtx, cfg.Archive.MongoURI, cfg.Archive.Database)
		cancel()
		if aerr != nil {
			log.Error("sale_archive_unavailable", observability.F("error", aerr.Error()))
		} else {
			defer func() { _ = archive.Close(context.Background()) }()
			mongo.NewWorker(archive, saleRepo, bus, tel).Start()
		}
	}

	reportScheduler := scheduler.New(cfg.Report.CronSchedule, reportService, ledger, tel)
	reportScheduler.Start()
	defer reportScheduler.Stop()

	if *seedDemo {
		seedDemoData(catalog, ledger, log)
	}

	handler := httppresentation.NewHandler(
		cartService,
		submitUseCase,
		voidUseCase,
		reportService,
		ledger,
		cfg.Payment.DefaultDeadline,
		tel,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("http_server_start", observability.F("addr", server.Addr))
		if serr := server.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			log.Error("http_server_error", observability.F("error", serr.Error()))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		log.Info("http_server_stopped")
	}
}

func seedDemoData(catalog *memory.Catalog, ledger *memory.StockLedger, log observability.Logger) {
	ctx := context.Background()
	now := time.Now().UTC()

	products := []struct {
		product      domcatalog.Product
		onHand       int
		reorderLevel int
	}{
		{domcatalog.Product{ID: "P-001", Name: "Maize Flour 2kg", UnitPrice: decimal.RequireFromString("185.00"), Active: true, UpdatedAt: now}, 120, 20},
		{domcatalog.Product{ID: "P-002", Name: "Cooking Oil 1L", UnitPrice: decimal.RequireFromString("320.00"), Active: true, UpdatedAt: now}, 60, 15},
		{domcatalog.Product{ID: "P-003", Name: "Sugar 1kg", UnitPrice: decimal.RequireFromString("145.50"), Active: true, UpdatedAt: now}, 10, 10},
	}

	for _, p := range products {
		prod := p.product
		if err := catalog.Put(ctx, &prod); err != nil {
			log.Error("seed_product_failed", observability.F("product_id", prod.ID), observability.F("error", err.Error()))
			continue
		}
		if err := ledger.InitProduct(ctx, prod.ID, p.onHand, p.reorderLevel); err != nil {
			log.Error("seed_stock_failed", observability.F("product_id", prod.ID), observability.F("error", err.Error()))
		}
	}
	log.Info("demo_data_seeded", observability.F("products", len(products)))
}
