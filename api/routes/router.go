package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/salesledger/api/controllers"
	"github.com/angelmondragon/salesledger/api/middleware"
	"github.com/angelmondragon/salesledger/internal/access"
	"github.com/angelmondragon/salesledger/internal/auth"
	"github.com/angelmondragon/salesledger/internal/orders"
	"github.com/angelmondragon/salesledger/internal/pricing"
	"github.com/angelmondragon/salesledger/internal/reference"
	"github.com/angelmondragon/salesledger/internal/reports"
	"github.com/angelmondragon/salesledger/pkg/auth/session"
	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/enums"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

type cacheStore interface {
	controllers.Pinger
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// Deps carries everything the HTTP surface calls into.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         controllers.Pinger
	Redis      cacheStore
	Sessions   session.Checker
	Auth       auth.Service
	Register   auth.RegisterService
	Access     access.Service
	Reference  reference.Service
	Prices     pricing.Resolver
	Aggregator orders.Aggregator
	Mutator    orders.Mutator
	Reports    reports.Service
	// MetricsHandler serves /metrics; promhttp.Handler() when nil.
	MetricsHandler http.Handler
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	metricsHandler := d.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    d.DB,
			"redis": d.Redis,
		}))
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	authenticated := middleware.Auth(cfg.JWT, d.Sessions, d.Access, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, d.Redis, logg)).Post("/login", controllers.AuthLogin(d.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(d.Auth, logg))
			r.With(authenticated).Post("/logout", controllers.AuthLogout(d.Auth, logg))
			r.With(
				middleware.AuthRateLimit(registerPolicy, d.Redis, logg),
				middleware.Idempotency(middleware.RegisterIdempotencyTTL, d.Redis, logg),
			).Post("/register", controllers.AuthRegister(d.Register, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Get("/me", controllers.Me(logg))

			r.Get("/reference/{kind}", controllers.ReferenceSearch(d.Reference, logg))
			r.Get("/reference/{kind}/{id}", controllers.ReferenceGet(d.Reference, logg))
			r.Get("/products/{productID}/price", controllers.ProductPrice(d.Prices, logg))
			r.Get("/products/{productID}/prices", controllers.ProductPriceHistory(d.Reference, logg))

			r.Route("/orders", func(r chi.Router) {
				canCreate := middleware.RequireOrderAction(d.Access, enums.OrderActionCreate, logg)
				canEdit := middleware.RequireOrderAction(d.Access, enums.OrderActionEdit, logg)
				canDelete := middleware.RequireOrderAction(d.Access, enums.OrderActionDelete, logg)

				r.Get("/", controllers.OrdersList(d.Aggregator, logg))
				r.With(canCreate, middleware.Idempotency(middleware.OrderCreateIdempotencyTTL, d.Redis, logg)).
					Post("/", controllers.OrderCreate(d.Mutator, logg))
				r.Get("/{orderID}", controllers.OrderDetail(d.Aggregator, logg))
				r.With(canEdit).Patch("/{orderID}", controllers.OrderUpdateHeader(d.Mutator, logg))
				r.With(canDelete).Delete("/{orderID}", controllers.OrderDelete(d.Mutator, logg))
				r.With(canEdit).Put("/{orderID}/lines", controllers.OrderReplaceLines(d.Mutator, logg))
				r.With(canEdit).Patch("/{orderID}/lines/{productID}", controllers.OrderUpdateLine(d.Mutator, logg))
				r.With(canDelete).Delete("/{orderID}/lines/{productID}", controllers.OrderDeleteLine(d.Mutator, logg))
			})

			r.Get("/dashboard/summary", controllers.DashboardSummary(d.Reports, logg))
			r.Get("/reports/orders/{orderID}", controllers.OrderReport(d.Reports, logg))

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(logg))
				r.Get("/users", controllers.AdminListUsers(d.Access, logg))
				r.Put("/users/{userID}/role", controllers.AdminUpdateRole(d.Access, logg))
				r.Put("/users/{userID}/permissions", controllers.AdminUpdatePermissions(d.Access, logg))
				r.Post("/products/{productID}/prices", controllers.AdminAppendPrice(d.Reference, logg))
			})
		})
	})

	return r
}
