package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/config"
	"github.com/pwannenmacher/ConfReview/internal/metrics"
	"github.com/pwannenmacher/ConfReview/internal/middleware"
	"github.com/pwannenmacher/ConfReview/internal/service"
)

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig holds everything the HTTP surface is built from. Metrics,
// Gatherer, Health and RateLimiter are optional.
type RouterConfig struct {
	Auth        *service.AuthService
	Conferences *service.ConferenceService
	Papers      *service.PaperService
	Reviews     *service.ReviewService

	CORS        *config.CORSConfig
	RateLimiter *middleware.RateLimiter
	Metrics     *metrics.Collector
	Gatherer    prometheus.Gatherer
	Health      HealthChecker
	Version     string
}

// NewRouter wires handlers and middleware into a chi router
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Auth)
	userHandler := NewUserHandler(cfg.Auth)
	conferenceHandler := NewConferenceHandler(cfg.Conferences)
	paperHandler := NewPaperHandler(cfg.Papers)
	reviewHandler := NewReviewHandler(cfg.Reviews)
	authMw := middleware.NewAuthMiddleware(cfg.Auth)

	r := chi.NewRouter()

	// Apply global middleware
	r.Use(middleware.Recovery)
	r.Use(middleware.SecurityHeaders)
	if cfg.CORS != nil {
		r.Use(middleware.NewCORSMiddleware(cfg.CORS).Handler)
	}
	r.Use(middleware.LoggingMiddleware)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	r.Get("/health", healthHandler(cfg.Health, cfg.Version))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Route(APIBasePath, func(r chi.Router) {
		r.Use(authMw.OptionalAuth)

		r.Route("/users", func(r chi.Router) {
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/connect-as-visitor", authHandler.ConnectAsVisitor)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", userHandler.GetProfile)
		})

		r.Route("/conferences", func(r chi.Router) {
			// Committee members may read a conference; everything else is for chairs
			r.With(middleware.RequireCapability(access.CapPCMember)).Get("/{id}", conferenceHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(access.CapPCChair))

				r.Post("/", conferenceHandler.Create)
				r.Get("/", conferenceHandler.List)
				r.Get("/search", conferenceHandler.Search)
				r.Patch("/{id}", conferenceHandler.Update)
				r.Delete("/{id}", conferenceHandler.Delete)
				r.Post("/{id}/chairs", conferenceHandler.AddChairs)
				r.Post("/{id}/members", conferenceHandler.AddMembers)
				for name, step := range conferenceHandler.transitions() {
					r.Post("/{id}/"+name, conferenceHandler.Transition(step))
				}
				r.Post("/{id}/end", conferenceHandler.End)
				r.Post("/{id}/resume-finalization", conferenceHandler.ResumeFinalization)
			})
		})

		r.Route("/papers", func(r chi.Router) {
			r.Get("/search", paperHandler.SearchPublic)
			r.Get("/{id}", paperHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(access.CapAuthor))

				r.Post("/", paperHandler.Create)
				r.Get("/mine", paperHandler.ListMine)
				r.Patch("/{id}", paperHandler.Patch)
				r.Delete("/{id}", paperHandler.Withdraw)
				r.Post("/{id}/coauthors", paperHandler.AddCoauthors)
				r.Post("/{id}/submit", paperHandler.Submit)
				r.Post("/{id}/final-submit", paperHandler.FinalSubmit)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(access.CapPCMember))

				r.Get("/committee", paperHandler.SearchForCommittee)
				r.Post("/{id}/reviews", reviewHandler.Submit)
				r.Get("/{id}/reviews", reviewHandler.List)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(access.CapPCChair))

				r.Post("/{id}/reviewers", paperHandler.AssignReviewer)
				r.Post("/{id}/approve", paperHandler.Decide(cfg.Papers.Approve))
				r.Post("/{id}/reject", paperHandler.Decide(cfg.Papers.Reject))
				r.Post("/{id}/accept", paperHandler.Decide(cfg.Papers.Accept))
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

func healthHandler(checker HealthChecker, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.HealthCheck(r.Context()); err != nil {
				_ = respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "store": "error"})
				return
			}
		}
		_ = JSONResponse(w, map[string]string{"status": "healthy", "version": version})
	}
}
