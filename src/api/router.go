package api

import (
	"net/http"

	"fincil-server/src/handlers"
	"fincil-server/src/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Store       handlers.Store
	Council     handlers.Council
	Cache       handlers.ProfileCache
	Idempotency middleware.IdempotencyStore
	RateLimiter *middleware.RateLimiter
	Gatherer    prometheus.Gatherer
	Logger      zerolog.Logger

	JWTSecret      string
	AllowedOrigins []string
	DemoMode       bool
}

func passthrough(next http.Handler) http.Handler { return next }

func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	rateLimit := passthrough
	if cfg.RateLimiter != nil {
		rateLimit = middleware.RateLimitMiddleware(cfg.RateLimiter)
	}
	idempotent := passthrough
	if cfg.Idempotency != nil {
		idempotent = middleware.IdempotencyMiddleware(cfg.Idempotency, middleware.IdempotencyTTL)
	}

	r.Get("/health", handlers.Health(cfg.Store))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.With(rateLimit).Post("/login", handlers.Login(cfg.Store, cfg.JWTSecret))
		r.With(rateLimit).Post("/register", handlers.Register(cfg.Store, cfg.JWTSecret))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
			r.Use(middleware.DemoModeMiddleware(cfg.DemoMode))

			// User
			r.Get("/user", handlers.GetCurrentUser(cfg.Store))
			r.Put("/user/password", handlers.ChangePassword(cfg.Store))

			// Profile
			r.Get("/profile", handlers.GetProfile(cfg.Store))
			r.Post("/profile", handlers.SaveProfile(cfg.Store, cfg.Cache))
			r.Put("/profile", handlers.SaveProfile(cfg.Store, cfg.Cache))

			// Transactions
			r.Get("/transactions", handlers.GetTransactions(cfg.Store))
			r.Post("/transactions/import", handlers.ImportTransactions(cfg.Store))

			// Analytics
			r.Get("/analytics/summary", handlers.GetSpendingSummary(cfg.Store))
			r.Get("/analytics/categories", handlers.GetCategoryBreakdown(cfg.Store))
			r.Get("/analytics/trends", handlers.GetSpendingTrends(cfg.Store))

			// Transaction Rules
			r.Get("/transaction-rules", handlers.GetAllTransactionRules(cfg.Store))
			r.Post("/transaction-rules", handlers.CreateTransactionRule(cfg.Store))
			r.Put("/transaction-rules/{rule_id}", handlers.UpdateTransactionRule(cfg.Store))
			r.Delete("/transaction-rules/{rule_id}", handlers.DeleteTransactionRule(cfg.Store))

			// Council
			r.Route("/council", func(r chi.Router) {
				r.Use(rateLimit)
				r.Get("/conversations", handlers.ListConversations(cfg.Council))
				r.Get("/conversations/{conversation_id}", handlers.GetConversation(cfg.Council))
				r.Get("/conversations/{conversation_id}/appeals", handlers.ListAppealRounds(cfg.Council))

				r.With(idempotent).Post("/query", handlers.SubmitQuery(cfg.Council))
				r.With(idempotent).Post("/conversations/{conversation_id}/appeal", handlers.SubmitAppeal(cfg.Council))
				r.With(idempotent).Post("/conversations/{conversation_id}/buy", handlers.BuyDecision(cfg.Council))
				r.With(idempotent).Post("/conversations/{conversation_id}/save", handlers.SaveDecision(cfg.Council))
			})
		})

		// Super Admin Routes
		r.With(middleware.JWTAuthMiddleware(cfg.JWTSecret), middleware.SuperAdminMiddleware).
			Post("/admin/cache/clear", handlers.ClearCache(cfg.Cache))
	})

	return r
}
