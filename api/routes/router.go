package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-collections/api/controllers"
	collectioncontrollers "github.com/angelmondragon/storefront-collections/api/controllers/collections"
	"github.com/angelmondragon/storefront-collections/api/middleware"
	"github.com/angelmondragon/storefront-collections/pkg/config"
	"github.com/angelmondragon/storefront-collections/pkg/logger"
	"github.com/angelmondragon/storefront-collections/pkg/storage"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	registry collectioncontrollers.Registry,
	rateLimitStore middleware.RateLimitStore,
	metricsHandler http.Handler,
	readiness map[string]storage.Pinger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	collectionsPolicy := middleware.NewRateLimitPolicy(
		"collections",
		cfg.RateLimit.Window,
		cfg.RateLimit.DeviceLimit,
		cfg.RateLimit.IPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/{kind}", func(r chi.Router) {
		r.Use(middleware.Device(logg))
		r.Use(middleware.Session(cfg.JWT, logg))
		r.Use(middleware.RateLimit(collectionsPolicy, rateLimitStore, logg))

		r.Get("/", collectioncontrollers.CollectionList(registry, logg))
		r.Delete("/", collectioncontrollers.CollectionClear(registry, logg))
		r.Get("/events", collectioncontrollers.CollectionEvents(registry, logg))
		r.Post("/toggle", collectioncontrollers.CollectionToggle(registry, logg))
		r.Delete("/error", collectioncontrollers.CollectionClearError(registry, logg))
		r.Get("/members/{productId}", collectioncontrollers.CollectionMember(registry, logg))

		r.Route("/items", func(r chi.Router) {
			r.Post("/", collectioncontrollers.CollectionAdd(registry, logg))
			r.Delete("/{entryId}", collectioncontrollers.CollectionRemove(registry, logg))
			r.Patch("/{entryId}", collectioncontrollers.CollectionUpdate(registry, logg))
		})
	})

	return r
}
