package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/petalpost/storefront-backend/api/controllers"
	"github.com/petalpost/storefront-backend/api/middleware"
	"github.com/petalpost/storefront-backend/internal/auth"
	"github.com/petalpost/storefront-backend/internal/orders"
	"github.com/petalpost/storefront-backend/internal/payments"
	"github.com/petalpost/storefront-backend/pkg/auth/session"
	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/enums"
	"github.com/petalpost/storefront-backend/pkg/logger"
	"github.com/petalpost/storefront-backend/pkg/metrics"
	pkgredis "github.com/petalpost/storefront-backend/pkg/redis"
)

// Dependencies are the services the HTTP surface dispatches to.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       *pkgredis.Client
	Sessions    session.AccessSessionChecker
	Auth        auth.Service
	Payments    payments.Service
	Orders      orders.Service
	Cart        controllers.CartStore
	Registry    *prometheus.Registry
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	var (
		idempotencyStore pkgredis.IdempotencyStore
		limiter          middleware.RateLimiter
		ready            = map[string]controllers.Pinger{}
	)
	if deps.DB != nil {
		ready["db"] = deps.DB
	}
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		limiter = deps.Redis
		ready["redis"] = deps.Redis
	}

	r.Use(
		middleware.RealIP(cfg.App.TrustProxy),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.CORS),
		middleware.ClientID(logg),
		middleware.Idempotency(idempotencyStore, logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.With(middleware.RateLimit(middleware.CreateOrderPolicy(cfg.Checkout), limiter, logg)).
		Post("/create-razorpay-order", controllers.CreateRazorpayOrder(deps.Payments, logg))
	r.Post("/verify-payment", controllers.VerifyPayment(deps.Payments, logg))
	r.Post("/orders", controllers.SubmitOrder(deps.Orders, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg)).
			Get("/orders/{orderNumber}", controllers.GetOrder(deps.Orders, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.RequireClientID(logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg))
				r.Get("/", controllers.CartGet(deps.Cart, logg))
				r.Put("/", controllers.CartPut(deps.Cart, logg))
				r.Delete("/", controllers.CartDelete(deps.Cart, logg))
			})
			r.With(middleware.Auth(cfg.JWT, deps.Sessions, logg)).Post("/migrate", controllers.CartMigrate(deps.Cart, logg))
		})

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.RateLimit(middleware.LoginPolicy(cfg.AuthRateLimit), limiter, logg)).
				Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.Get("/check", controllers.AuthCheck(deps.Auth, logg))
			r.Post("/logout", controllers.AuthLogout(deps.Auth, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.With(middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleVendor)).
			Get("/orders", controllers.AdminListOrders(deps.Orders, logg))
		r.With(middleware.RequireRole(logg, enums.UserRoleAdmin)).
			Patch("/orders/{orderNumber}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
	})

	return r
}
