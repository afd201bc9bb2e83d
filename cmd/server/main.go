// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

// Package main is the entry point for the Attune server.
//
// Attune ingests customer interactions for multiple tenants, keeps
// per-customer aggregates transactionally consistent with the
// interaction log, and fans the results out to analysis workers and
// live WebSocket subscribers.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, optional YAML, ATTUNE_* env vars)
//  2. Logging (zerolog)
//  3. DuckDB store and schema
//  4. NATS (embedded JetStream by default), job stream and KV buckets
//  5. Rate limiter, token verification, scoring client, job worker
//  6. Supervisor tree: data, messaging and API layers under one root
//
// Shutdown is triggered by SIGINT or SIGTERM: the HTTP server drains,
// the job router and hub stop, then connections and stores close.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/attune-cx/attune/internal/api"
	"github.com/attune-cx/attune/internal/auth"
	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/coordination"
	"github.com/attune-cx/attune/internal/database"
	"github.com/attune-cx/attune/internal/dispatch"
	"github.com/attune-cx/attune/internal/faults"
	"github.com/attune-cx/attune/internal/ingest"
	"github.com/attune-cx/attune/internal/logging"
	"github.com/attune-cx/attune/internal/models"
	"github.com/attune-cx/attune/internal/ratelimit"
	"github.com/attune-cx/attune/internal/scoring"
	"github.com/attune-cx/attune/internal/supervisor"
	"github.com/attune-cx/attune/internal/supervisor/services"
	ws "github.com/attune-cx/attune/internal/websocket"
)

// jobSubjects covers both priority lanes and the poison topic.
var jobSubjects = []string{"jobs.analysis.>"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("embedded_nats", cfg.NATS.EmbeddedServer).
		Str("listen", cfg.Server.Addr()).
		Msg("Starting Attune")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	if err := seedAdmin(ctx, db, cfg.Security); err != nil {
		logging.Fatal().Err(err).Msg("Failed to seed bootstrap admin")
	}

	// NATS backs both the job queue and the shared coordination stores.
	nconn, err := coordination.Connect(cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer nconn.Close(context.Background())
	if nconn.Embedded != nil {
		// Watermill components dial their own connections; point them
		// at the embedded server's dynamic port.
		cfg.NATS.URL = nconn.Embedded.ClientURL()
	}

	if err := coordination.EnsureStream(ctx, nconn.JS, cfg.NATS.StreamName, jobSubjects); err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision job stream")
	}

	rateStore, err := coordination.EnsureBucket(ctx, nconn.JS, cfg.NATS.RateLimitBucket, 2*time.Hour)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision rate-limit bucket")
	}
	tokenStore, err := coordination.EnsureBucket(ctx, nconn.JS, cfg.NATS.TokenCacheBucket, cfg.Security.TokenTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision token-cache bucket")
	}

	limiter := ratelimit.New(rateStore, cfg.RateLimit)
	defer limiter.Close()

	tokens, err := auth.NewTokenManager(cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token manager")
	}
	verifier := auth.NewVerifier(tokens, tokenStore, db, cfg.Security.TokenCacheTTL)
	authenticator := auth.NewAuthenticator(db, tokens)
	authMW := auth.NewMiddleware(verifier, api.RespondError)

	deadLetters, err := dispatch.OpenDeadLetterStore(cfg.Dispatch.DeadLetterPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open dead-letter store")
	}
	defer func() {
		if err := deadLetters.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing dead-letter store")
		}
	}()

	dispatcher, err := dispatch.NewDispatcher(cfg.NATS, db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create job dispatcher")
	}
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing dispatcher")
		}
	}()

	scorer := scoring.NewClient(cfg.Scoring)
	if err := scorer.Healthy(ctx); err != nil {
		logging.Warn().Err(err).Str("url", cfg.Scoring.URL).
			Msg("Sentiment service unreachable at startup (jobs will retry)")
	}

	worker, err := dispatch.NewWorker(cfg.Dispatch, cfg.NATS, scorer, db, deadLetters)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create job worker")
	}
	defer func() {
		if err := worker.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing job worker")
		}
	}()

	hub := ws.NewHub()
	wsHandler := ws.NewHandler(hub, cfg.Server.CORSOrigins, cfg.WebSocket.SendBuffer)

	ingestSvc := ingest.NewService(db, dispatcher, hub, cfg.Ingest.ChunkSize, cfg.Ingest.MaxBatchItems)

	handlers := api.NewHandlers(ingestSvc, authenticator, db, deadLetters, cfg.Security.TokenTTL)
	router := api.NewRouter(cfg, handlers, authMW, limiter, wsHandler, db)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddDataService(services.NewMaintenanceService("deadletter-gc", deadLetters, 10*time.Minute))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(services.NewJobWorkerService(worker))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", cfg.Server.Addr()).Msg("Supervisor tree starting")

	err = tree.Serve(ctx)
	if err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree terminated abnormally")
		os.Exit(1)
	}

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Shutdown complete")
}

// seedAdmin creates the bootstrap admin account on first start so the
// directory is never empty. Existing accounts are left untouched.
func seedAdmin(ctx context.Context, db *database.Store, cfg config.SecurityConfig) error {
	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminPassword == "" {
		return nil
	}

	_, err := db.PrincipalByEmail(ctx, cfg.BootstrapAdminEmail)
	if err == nil {
		return nil
	}
	if !faults.IsKind(err, faults.KindNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}

	rec := &database.PrincipalRecord{
		Principal: models.Principal{
			ID:       uuid.NewString(),
			Email:    cfg.BootstrapAdminEmail,
			Role:     models.RoleAdmin,
			RoleName: models.RoleAdmin.String(),
			Permissions: models.NewPermissionSet(
				models.PermInteractionsWrite,
				models.PermInteractionsRead,
				models.PermCustomersRead,
				models.PermAnalyticsRead,
				models.PermUsersManage,
			),
			TenantID: cfg.BootstrapTenantID,
			Status:   models.StatusActive,
		},
		PasswordHash: hash,
	}
	if err := db.CreatePrincipal(ctx, rec); err != nil {
		return err
	}

	logging.Info().Str("email", cfg.BootstrapAdminEmail).
		Str("tenant_id", cfg.BootstrapTenantID).
		Msg("Bootstrap admin account created")
	return nil
}
