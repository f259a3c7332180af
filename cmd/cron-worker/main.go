package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shelfwise-backend/internal/cron"
	"github.com/angelmondragon/shelfwise-backend/internal/notifications"
	"github.com/angelmondragon/shelfwise-backend/internal/subscriptions"
	"github.com/angelmondragon/shelfwise-backend/pkg/config"
	"github.com/angelmondragon/shelfwise-backend/pkg/db"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
	"github.com/angelmondragon/shelfwise-backend/pkg/metrics"
	"github.com/angelmondragon/shelfwise-backend/pkg/migrate"
	"github.com/angelmondragon/shelfwise-backend/pkg/mobilemoney"
	"github.com/angelmondragon/shelfwise-backend/pkg/redis"
)

const (
	expiryBatchLimit   = 500
	reminderBatchLimit = 500
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit (for external schedulers)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	reg := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(reg)
	paymentMetrics := metrics.NewPaymentMetrics(reg)

	gateway, err := mobilemoney.NewClient(cfg.Gateway, mobilemoney.WithMetrics(paymentMetrics))
	requireResource(context.Background(), logg, "payment gateway", err)

	notificationsRepo := notifications.NewRepository(dbClient.DB())
	notificationsService, err := notifications.NewService(notificationsRepo)
	requireResource(context.Background(), logg, "notifications service", err)

	subscriptionsRepo := subscriptions.NewRepository(dbClient.DB(), logg)
	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:     subscriptionsRepo,
		Gateway:  gateway,
		Currency: cfg.Gateway.Currency,
		Logger:   logg,
		Metrics:  paymentMetrics,
		Notifier: notificationsService,
	})
	requireResource(context.Background(), logg, "subscriptions service", err)

	expiryJob, err := cron.NewSubscriptionExpiryJob(cron.SubscriptionExpiryJobParams{
		Logger:  logg,
		Service: subscriptionsService,
		Metrics: cronMetrics,
		Limit:   expiryBatchLimit,
	})
	requireResource(context.Background(), logg, "subscription expiry job", err)

	reminderJob, err := cron.NewRenewalReminderJob(cron.RenewalReminderJobParams{
		Logger:   logg,
		Repo:     subscriptionsRepo,
		Notifier: notificationsService,
		Marker:   redisClient,
		Metrics:  cronMetrics,
		Window:   cfg.Cron.ReminderWindow,
		Limit:    reminderBatchLimit,
	})
	requireResource(context.Background(), logg, "renewal reminder job", err)

	reconcileJob, err := cron.NewPendingReconcileJob(cron.PendingReconcileJobParams{
		Logger:     logg,
		Repo:       subscriptionsRepo,
		Reconciler: subscriptionsService,
		Metrics:    cronMetrics,
		Limit:      cfg.Cron.ReconcileLimit,
		MinAge:     cfg.Cron.ReconcileMinAge,
		Lookback:   cfg.Cron.ReconcileLookback,
	})
	requireResource(context.Background(), logg, "pending reconcile job", err)

	cleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notificationsRepo,
		Metrics:    cronMetrics,
		Retention:  cfg.Cron.NotificationRetention,
	})
	requireResource(context.Background(), logg, "notification cleanup job", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cron.LeaseFor(cfg.Cron.Interval))
	requireResource(context.Background(), logg, "cron lock", err)

	// expiry runs before reminders so an ended period is never reminded
	registry, err := cron.NewRegistry(expiryJob, reminderJob, reconcileJob, cleanupJob)
	requireResource(context.Background(), logg, "cron registry", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	requireResource(context.Background(), logg, "cron service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	metricsServer := serveMetrics(ctx, logg, cfg.App.Port, reg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// serveMetrics exposes the job counters for scraping on the app port.
func serveMetrics(ctx context.Context, logg *logger.Logger, port string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	return server
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
