package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spis/m/internal/analytics"
	"spis/m/internal/api"
	"spis/m/internal/auth"
	"spis/m/internal/cache"
	"spis/m/internal/config"
	"spis/m/internal/database"
	"spis/m/internal/inventory"
	"spis/m/internal/logger"
	"spis/m/internal/metrics"
	"spis/m/internal/migrations"
	"spis/m/internal/sales"
	"spis/m/internal/seed"
	"spis/m/internal/suppliers"
	"spis/m/internal/users"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DB)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := db.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if cfg.DB.AutoMigrate {
		requireResource(ctx, logg, "migrations", migrations.Up(ctx, db.DB.DB, db.Dialect(), logg))
	}

	userRepo := users.NewRepository(db, cfg.Password.BcryptCost, cfg.Password.MinLength)
	inventoryRepo := inventory.NewRepository(db)

	_, err = seed.EnsureAdmin(ctx, userRepo, cfg.Bootstrap, logg)
	requireResource(ctx, logg, "bootstrap admin", err)
	if cfg.App.SeedFile != "" {
		_, err = seed.LoadMedicinesFile(ctx, inventoryRepo, cfg.App.SeedFile, logg)
		requireResource(ctx, logg, "medicine catalogue", err)
	}

	var limiter api.RateLimitStore
	if cfg.Redis.Enabled() {
		redisClient, err := cache.New(ctx, cfg.Redis)
		requireResource(ctx, logg, "redis", err)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		limiter = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, auth rate limiting disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	authService, err := auth.NewService(db, userRepo, cfg.JWT)
	requireResource(ctx, logg, "auth service", err)
	salesService, err := sales.NewService(db, cfg.Invoice.NodeID, m)
	requireResource(ctx, logg, "sales service", err)

	handler, err := api.New(api.Deps{
		Config:         cfg,
		Logger:         logg,
		DB:             db,
		Auth:           authService,
		Users:          userRepo,
		Inventory:      inventoryRepo,
		Suppliers:      suppliers.NewRepository(db),
		Sales:          salesService,
		Analytics:      analytics.NewService(db),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Limiter:        limiter,
	})
	requireResource(ctx, logg, "http handler", err)

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
		IdleTimeout:  cfg.App.IdleTimeout,
	}

	serveCtx := logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"addr":   addr,
		"driver": cfg.DB.Driver,
	})
	errCh := make(chan error, 1)
	go func() {
		logg.Info(serveCtx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(serveCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(serveCtx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serveCtx, "graceful shutdown failed", err)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
