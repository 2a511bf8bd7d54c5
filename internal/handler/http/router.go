package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/BookReviewGo/internal/service"
	"github.com/utafrali/BookReviewGo/pkg/health"
	"github.com/utafrali/BookReviewGo/pkg/middleware"
)

// maxBodyBytes caps request bodies at 1MB.
const maxBodyBytes = 1 << 20

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	ServiceName       string
	CORS              middleware.CORSConfig
	PprofAllowedCIDRs []string

	// RateLimit guards the auth endpoints and review writes, keyed per client.
	// A zero value disables it.
	RateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all book review routes registered.
func NewRouter(
	bookService *service.BookService,
	reviewService *service.ReviewService,
	userService *service.UserService,
	tokenValidator middleware.TokenValidator,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	requireAuth := func(r chi.Router) {
		r.Use(middleware.Auth(tokenValidator))
		r.Use(middleware.RequestLogger(logger))
	}

	// Separate buckets so login attempts do not eat into the review budget.
	limitAuth := middleware.RateLimit(cfg.RateLimit, logger)
	limitReviewWrites := middleware.RateLimit(cfg.RateLimit, logger)

	authHandler := NewAuthHandler(userService, logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(limitAuth)
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			requireAuth(r)
			r.Get("/me", authHandler.Me)
		})
	})

	bookHandler := NewBookHandler(bookService, logger)
	reviewHandler := NewReviewHandler(reviewService, logger)

	r.Route("/api/v1/books", func(r chi.Router) {
		r.Get("/", bookHandler.ListBooks)
		r.Get("/{id}", bookHandler.GetBook)
		r.Get("/{id}/reviews", reviewHandler.ListBookReviews)

		r.Group(func(r chi.Router) {
			requireAuth(r)
			r.Post("/", bookHandler.CreateBook)
			r.Put("/{id}", bookHandler.UpdateBook)
			r.Delete("/{id}", bookHandler.DeleteBook)
			r.Get("/user/{userId}", bookHandler.ListUserBooks)
			r.With(limitReviewWrites).Post("/{id}/reviews", reviewHandler.SubmitReview)
		})
	})

	r.Route("/api/v1/reviews", func(r chi.Router) {
		requireAuth(r)
		r.Get("/user/{userId}", reviewHandler.ListUserReviews)
		r.With(limitReviewWrites).Put("/{id}", reviewHandler.AmendReview)
		r.With(limitReviewWrites).Delete("/{id}", reviewHandler.RetractReview)
	})

	return r
}
