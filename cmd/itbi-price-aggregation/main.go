package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "github.com/i474232898/itbi-price-aggregation/internal/api/http"
	"github.com/i474232898/itbi-price-aggregation/internal/config"
	"github.com/i474232898/itbi-price-aggregation/internal/itbi"
	"github.com/i474232898/itbi-price-aggregation/internal/itbi/sources"
	"github.com/i474232898/itbi-price-aggregation/internal/observability"
	"github.com/i474232898/itbi-price-aggregation/internal/scheduler"
	"github.com/i474232898/itbi-price-aggregation/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics("itbi", registry)

	// Shared HTTP client for outbound source calls; the timeout applies per page.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	source := sources.NewPagedSource(httpClient, sources.PagedConfig{
		Name:       "itbi-sp",
		BaseURL:    cfg.SourceURL,
		PageSize:   cfg.PageSize,
		MaxRecords: cfg.MaxRecords,
	}, log, metrics)

	// In-memory snapshot holder, replaced as a whole on refresh.
	memStore := store.NewMemoryStore()

	service := itbi.NewService(memStore, source, itbi.Options{
		WindowMonths:       cfg.WindowMonths,
		Thresholds:         cfg.Thresholds,
		SuggestionLimit:    cfg.SuggestionLimit,
		CommercialTokens:   cfg.CommercialTokens,
		ExcludedTypologies: cfg.ExcludedTypologies,
		RefreshTimeout:     cfg.RefreshTimeout,
		Logger:             log,
		Metrics:            metrics,
	})

	// Initial load runs in the background so the API can report progress
	// and failures; queries return 503 until it completes.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RefreshTimeout)
		defer cancel()
		if _, err := service.Refresh(ctx); err != nil {
			log.Error("initial load failed; POST /api/v1/refresh to retry", "error", err)
		}
	}()

	sched := scheduler.New(cfg.RefreshInterval, cfg.RefreshTimeout, service, log)
	if err := sched.Start(); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "itbi-price-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.RefreshTimeout + 10*time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "itbi-price-aggregation",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, service, cfg.RefreshTimeout)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()
	log.Info("listening", "port", cfg.Port)

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}
