package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/julianshen/twspoc/api/controllers"
	"github.com/julianshen/twspoc/api/middleware"
	"github.com/julianshen/twspoc/pkg/config"
	"github.com/julianshen/twspoc/pkg/logger"
)

// NotificationStore is everything the local surface reads from and mutates through.
type NotificationStore interface {
	controllers.NotificationStore
	controllers.SyncStore
	controllers.Readiness
}

// NewRouter builds the local HTTP surface. conn is nil in offline mode.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	store NotificationStore,
	conn controllers.Connection,
	gatherer prometheus.Gatherer,
	pingers ...controllers.Pinger,
) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, store, logg, pingers...))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(store, logg))
			r.Get("/unread-count", controllers.UnreadCount(store, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(store, logg))
			r.Delete("/{notificationId}", controllers.DeleteNotification(store, logg))
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", controllers.SyncStatus(store, conn, logg))
			r.Post("/refresh", controllers.RefreshSnapshot(store, logg))
			r.Post("/reset", controllers.ResetConnection(conn, logg))
		})
	})

	return r
}
