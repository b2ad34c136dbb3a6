package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/ajirinow/backend/internal"
	"github.com/ajirinow/backend/internal/auth"
	"github.com/ajirinow/backend/internal/core/datamodel/user"
	"github.com/ajirinow/backend/internal/entitlement"
	"github.com/ajirinow/backend/internal/listing"
	"github.com/ajirinow/backend/internal/metrics"
	"github.com/ajirinow/backend/internal/payment"
	"github.com/ajirinow/backend/internal/transport/middleware"
	"github.com/ajirinow/backend/internal/transport/swagger"
	usermod "github.com/ajirinow/backend/internal/user"
)

// Handlers groups everything the router mounts. Nil handlers are skipped.
type Handlers struct {
	Auth        *auth.Handler
	User        *usermod.Handler
	Listing     *listing.Handler
	Payment     *payment.Handler
	Webhook     *payment.WebhookHandler
	Entitlement *entitlement.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, cfg *internal.Config, h Handlers, logger *slog.Logger, checks ...Check) {
	healthHandler := NewHealthHandler(db, checks...)

	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	docPath := cfg.Server.OpenAPIPath
	if docPath == "" {
		docPath = "./api/openapi.yml"
	}
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, docPath)
	})
	router.Handle("/swagger/*", swagger.Handler())

	if cfg.Observability.Metrics.Enabled {
		path := cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, metrics.Handler())
	}

	// Daraja is configured with a bare callback URL on some shortcodes.
	if h.Webhook != nil {
		router.Post("/callback", h.Webhook.HandleCallback)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if h.Webhook != nil {
			r.Post("/mpesa/callback", h.Webhook.HandleCallback)
		}

		if h.Payment != nil && cfg.Payment.AllowAnonymous {
			r.Post("/mpesa/stkpush/guest", h.Payment.InitiateGuest)
		}

		if h.Auth != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Post("/login", h.Auth.Login)
				sr.Post("/refresh", h.Auth.RefreshToken)
				sr.Post("/logout", h.Auth.Logout)
				if h.User != nil {
					sr.Post("/register", h.User.Register)
					sr.Post("/reset-password", h.User.ResetPassword)
				}
			})
		}

		if h.Entitlement != nil {
			r.Get("/fundis", h.Entitlement.ListFundis)
			r.Get("/fundis/{id}", h.Entitlement.GetFundi)
		}

		if h.Listing != nil {
			r.Get("/ads", h.Listing.ListAds)
			r.Get("/ads/{id}", h.Listing.GetAd)
		}

		if h.User != nil {
			r.Get("/clients", h.User.ListClients)
		}

		if h.Auth == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			if h.User != nil {
				pr.Get("/users/me", h.User.GetCurrentUser)

				pr.Group(func(fr chi.Router) {
					fr.Use(middleware.RequireRoles(user.RoleFundi))
					fr.Get("/fundis/me", h.User.GetFundiProfile)
					fr.Patch("/fundis/me", h.User.UpdateFundiProfile)
					fr.Delete("/fundis/me", h.User.DeleteAccount)
				})

				pr.Group(func(cr chi.Router) {
					cr.Use(middleware.RequireRoles(user.RoleClient))
					cr.Get("/clients/me", h.User.GetClient)
					cr.Patch("/clients/me", h.User.UpdateClient)
					cr.Delete("/clients/me", h.User.DeleteAccount)
				})
			}

			if h.Listing != nil {
				pr.Route("/jobs", func(jr chi.Router) {
					jr.Get("/", h.Listing.ListJobs)
					jr.Get("/mine", h.Listing.MyJobs)
					jr.Get("/{id}", h.Listing.GetJob)
					jr.Group(func(cr chi.Router) {
						cr.Use(middleware.RequireRoles(user.RoleClient, user.RoleAdvertiser))
						cr.Post("/", h.Listing.CreateJob)
						cr.Patch("/{id}", h.Listing.UpdateJob)
						cr.Delete("/{id}", h.Listing.DeleteJob)
						cr.Patch("/{id}/filled", h.Listing.MarkJobFilled)
					})
				})
				pr.Post("/ads", h.Listing.CreateAd)
				pr.Get("/ads/mine", h.Listing.MyAds)
				pr.Patch("/ads/{id}", h.Listing.UpdateAd)
				pr.Delete("/ads/{id}", h.Listing.DeleteAd)
			}

			if h.Payment != nil {
				pr.Post("/mpesa/stkpush", h.Payment.Initiate)
				pr.Route("/payments", func(pmr chi.Router) {
					pmr.Post("/initiate", h.Payment.Initiate)
					pmr.Get("/", h.Payment.ListPayments)
					pmr.Get("/job-status", h.Payment.JobPaymentStatus)
					pmr.Get("/{id}", h.Payment.GetPayment)
				})
			}
		})
	})
}
