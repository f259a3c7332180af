package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/shelfwise-backend/api/routes"
	"github.com/angelmondragon/shelfwise-backend/internal/notifications"
	"github.com/angelmondragon/shelfwise-backend/internal/subscriptions"
	mobilemoneywebhook "github.com/angelmondragon/shelfwise-backend/internal/webhooks/mobilemoney"
	"github.com/angelmondragon/shelfwise-backend/pkg/config"
	"github.com/angelmondragon/shelfwise-backend/pkg/db"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
	"github.com/angelmondragon/shelfwise-backend/pkg/metrics"
	"github.com/angelmondragon/shelfwise-backend/pkg/migrate"
	"github.com/angelmondragon/shelfwise-backend/pkg/mobilemoney"
	"github.com/angelmondragon/shelfwise-backend/pkg/redis"
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
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat(),
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(context.Background(), logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(context.Background(), logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	gateway, err := mobilemoney.NewClient(cfg.Gateway, mobilemoney.WithMetrics(paymentMetrics))
	requireResource(context.Background(), logg, "payment gateway", err)

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	requireResource(context.Background(), logg, "notifications service", err)

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:     subscriptions.NewRepository(dbClient.DB(), logg),
		Gateway:  gateway,
		Currency: cfg.Gateway.Currency,
		Logger:   logg,
		Metrics:  paymentMetrics,
		Notifier: notificationsService,
	})
	requireResource(context.Background(), logg, "subscriptions service", err)

	guard, err := mobilemoneywebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.DedupTTL, mobilemoneywebhook.Provider)
	requireResource(context.Background(), logg, "webhook idempotency guard", err)

	webhookService, err := mobilemoneywebhook.NewService(mobilemoneywebhook.ServiceParams{
		Reconciler: subscriptionsService,
		Guard:      guard,
		Logger:     logg,
		Metrics:    paymentMetrics,
	})
	requireResource(context.Background(), logg, "webhook service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"currency": gateway.Currency(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			subscriptionsService,
			notificationsService,
			webhookService,
			gateway,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
