// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attune-cx/attune/internal/auth"
	"github.com/attune-cx/attune/internal/authz"
	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/middleware"
	"github.com/attune-cx/attune/internal/models"
	"github.com/attune-cx/attune/internal/ratelimit"
)

// HealthChecker reports the readiness of a dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Router assembles the HTTP surface.
type Router struct {
	cfg       *config.Config
	handlers  *Handlers
	authMW    *auth.Middleware
	limiter   *ratelimit.Limiter
	wsHandler http.Handler
	health    HealthChecker
}

// NewRouter builds the router from its dependencies.
func NewRouter(cfg *config.Config, handlers *Handlers, authMW *auth.Middleware, limiter *ratelimit.Limiter, wsHandler http.Handler, health HealthChecker) *Router {
	return &Router{
		cfg:       cfg,
		handlers:  handlers,
		authMW:    authMW,
		limiter:   limiter,
		wsHandler: wsHandler,
		health:    health,
	}
}

// Setup wires all routes with their middleware stacks.
//
// Order on protected routes: request id, security headers, CORS, metrics,
// global limit by source address, authentication, per-principal limit,
// then per-route authorization. The global scope runs before
// authentication so unauthenticated floods are shed as early as possible.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Compression)
	r.Use(middleware.PrometheusMetrics)

	// Operational endpoints: no auth, guarded by a permissive in-process
	// limit so monitoring cannot be weaponized.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(300, time.Minute))
		r.Get("/healthz", rt.healthz)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	// Credential exchange: global scope plus the strict fail-closed auth
	// scope keyed on source address.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(limitByIP(rt.limiter, ratelimit.ScopeGlobal))
		r.Use(limitByIP(rt.limiter, ratelimit.ScopeAuth))
		r.Post("/login", rt.handlers.Login)
	})

	// Data plane: authenticated and limited per principal.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limitByIP(rt.limiter, ratelimit.ScopeGlobal))
		r.Use(rt.authMW.Authenticate)
		r.Use(limitByPrincipal(rt.limiter))

		writeOnly := authz.Require(authz.All(
			authz.RequireRole(models.RoleAnalyst),
			authz.RequireAnyPermission(models.PermInteractionsWrite),
		), respondError)
		readInteractions := authz.Require(
			authz.RequireAnyPermission(models.PermInteractionsRead, models.PermAnalyticsRead),
			respondError)
		readCustomers := authz.Require(
			authz.RequireAnyPermission(models.PermCustomersRead, models.PermAnalyticsRead),
			respondError)
		adminOnly := authz.Require(authz.RequireRole(models.RoleAdmin), respondError)

		r.With(writeOnly).Post("/interactions", rt.handlers.CreateInteraction)
		r.With(writeOnly).Post("/interactions/batch", rt.handlers.CreateInteractionsBatch)
		r.With(readInteractions).Get("/interactions/{interactionID}", rt.handlers.GetInteraction)
		r.With(writeOnly).Post("/customers", rt.handlers.CreateCustomer)
		r.With(readCustomers).Get("/customers/{customerID}/aggregate", rt.handlers.GetCustomerAggregate)

		r.With(adminOnly).Get("/jobs/dead-letters", rt.handlers.ListDeadLetters)
		r.With(adminOnly).Delete("/jobs/dead-letters/{jobID}", rt.handlers.ResolveDeadLetter)

		// Real-time fan-out. The upgrade endpoint carries its own
		// in-process guard on top of the shared scopes.
		r.With(httprate.LimitByIP(rt.cfg.WebSocket.UpgradesPerMinute, time.Minute)).
			Get("/ws", rt.wsHandler.ServeHTTP)
	})

	return r
}

// healthz reports liveness plus storage readiness.
func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{"database": "ok"}
	if err := rt.health.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = err.Error()
	}

	writeJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   checks,
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r.Context()),
		},
	})
}
