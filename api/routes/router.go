package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shelfwise-backend/api/controllers"
	subscriptioncontrollers "github.com/angelmondragon/shelfwise-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/angelmondragon/shelfwise-backend/api/controllers/webhooks"
	"github.com/angelmondragon/shelfwise-backend/api/middleware"
	"github.com/angelmondragon/shelfwise-backend/internal/notifications"
	subscriptionsvc "github.com/angelmondragon/shelfwise-backend/internal/subscriptions"
	"github.com/angelmondragon/shelfwise-backend/pkg/config"
	"github.com/angelmondragon/shelfwise-backend/pkg/db"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
	"github.com/angelmondragon/shelfwise-backend/pkg/redis"
)

type redisClient interface {
	redis.IdempotencyStore
	redis.Pinger
}

type webhookVerifier interface {
	VerifySignature(raw []byte, header string) bool
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisClient,
	gatherer prometheus.Gatherer,
	subscriptionsService subscriptionsvc.Service,
	notificationsService notifications.Service,
	webhookService webhookcontrollers.MobileMoneyWebhookService,
	webhookVerifier webhookVerifier,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// processor callbacks authenticate by signature, not by user token
	webhook := webhookcontrollers.MobileMoneyWebhook(webhookService, webhookVerifier, logg)
	r.Post("/api/v1/subscriptions/webhook", webhook)
	r.Post("/api/v1/webhooks/mobile-money", webhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subscriptioncontrollers.Create(subscriptionsService, logg))
			r.Post("/pay", subscriptioncontrollers.InitializePayment(subscriptionsService, logg))
			r.Get("/verify/{reference}", subscriptioncontrollers.Verify(subscriptionsService, logg))
			r.Put("/renew", subscriptioncontrollers.Renew(subscriptionsService, logg))
			r.Get("/", subscriptioncontrollers.List(subscriptionsService, logg))
			r.Get("/books/{bookId}", subscriptioncontrollers.ForBook(subscriptionsService, logg))
			r.Get("/{subscriptionId}", subscriptioncontrollers.Get(subscriptionsService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
		})
	})

	return r
}
