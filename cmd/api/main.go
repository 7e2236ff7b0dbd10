package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/vidqueue/backend/internal/admission"
	"github.com/vidqueue/backend/internal/auth"
	"github.com/vidqueue/backend/internal/config"
	"github.com/vidqueue/backend/internal/credits"
	"github.com/vidqueue/backend/internal/entitlement"
	"github.com/vidqueue/backend/internal/handlers"
	"github.com/vidqueue/backend/internal/jobs"
	"github.com/vidqueue/backend/internal/membership"
	"github.com/vidqueue/backend/internal/queuepos"
	"github.com/vidqueue/backend/internal/repository"
	"github.com/vidqueue/backend/internal/router"
	"github.com/vidqueue/backend/internal/stats"
	"github.com/vidqueue/backend/internal/video"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	requestRepo := repository.NewRequestRepo(pool)
	settingRepo := repository.NewSettingRepo(pool)
	statsRepo := repository.NewStatsRepo(pool)

	// Services
	resolver := entitlement.NewResolver(cfg.TierTable(), cfg.DefaultAllowance)
	creditSvc := credits.NewService(ledgerRepo)
	grantSvc := credits.NewGrantService(creditSvc, resolver)

	videoSvc, err := video.NewService(ctx, cfg.YouTubeAPIKey, cfg.MaxDurationMinutes, logger)
	if err != nil {
		slog.Error("Failed to create YouTube client", "error", err)
		os.Exit(1)
	}

	patreonClient := membership.NewClient(
		cfg.PatreonClientID,
		cfg.PatreonClientSecret,
		cfg.BaseURL+"/api/v1/auth/patreon/callback",
		cfg.PatreonCampaignID,
	)
	membershipSvc := membership.NewService(patreonClient, accountRepo, cfg.PatreonWebhookSecret, logger)

	admissionSvc := admission.NewService(pool, accountRepo, ledgerRepo, requestRepo, videoSvc, logger)
	positions := queuepos.NewCalculator(requestRepo)
	statsSvc := stats.NewService(statsRepo)
	authSvc := auth.NewService(accountRepo, cfg.JWTSecret)

	// Background workers
	workers := river.NewWorkers()
	river.AddWorker(workers, &jobs.RefreshMembershipsWorker{
		Accounts:   accountRepo,
		Membership: membershipSvc,
		Logger:     logger,
	})
	river.AddWorker(workers, &jobs.GrantMonthlyWorker{
		Accounts: accountRepo,
		Grants:   grantSvc,
		Logger:   logger,
	})
	river.AddWorker(workers, &jobs.FetchVideoMetadataWorker{
		Requests: requestRepo,
		Videos:   videoSvc,
		Logger:   logger,
	})

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers:      workers,
		PeriodicJobs: jobs.PeriodicJobs(),
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	admissionSvc.SetMetadataEnqueuer(func(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) error {
		_, err := riverClient.InsertTx(ctx, tx, jobs.FetchVideoMetadataArgs{RequestID: requestID}, nil)
		return err
	})

	// Handlers
	authHandler := &handlers.AuthHandler{
		Auth:       authSvc,
		Membership: membershipSvc,
		BaseURL:    cfg.BaseURL,
		Logger:     logger,
	}
	requestHandler := &handlers.RequestHandler{
		Admission: admissionSvc,
		Positions: positions,
		Credits:   creditSvc,
		Requests:  requestRepo,
		Logger:    logger,
	}
	dashboardHandler := &handlers.DashboardHandler{
		Entitlements: resolver,
		Credits:      creditSvc,
		Ledger:       creditSvc,
		Requests:     requestRepo,
		Positions:    positions,
		Settings:     settingRepo,
		Logger:       logger,
	}
	queueHandler := &handlers.QueueHandler{
		Requests: requestRepo,
		Settings: settingRepo,
		Logger:   logger,
	}
	subscribeHandler := &handlers.SubscribeHandler{
		Membership:   membershipSvc,
		Entitlements: resolver,
		SubscribeURL: cfg.PatreonSubscribeURL,
		Logger:       logger,
	}
	webhookHandler := &handlers.WebhookHandler{
		Membership: membershipSvc,
		Logger:     logger,
	}
	adminHandler := &handlers.AdminHandler{
		Requests:     requestRepo,
		Admission:    admissionSvc,
		Accounts:     accountRepo,
		Credits:      creditSvc,
		Entitlements: resolver,
		Stats:        statsSvc,
		Settings:     settingRepo,
		Logger:       logger,
	}

	mux := router.New(router.Deps{
		Auth:      authHandler,
		Requests:  requestHandler,
		Dashboard: dashboardHandler,
		Queue:     queueHandler,
		Subscribe: subscribeHandler,
		Webhook:   webhookHandler,
		Admin:     adminHandler,

		Sessions: authSvc,
		Accounts: accountRepo,
		Grants:   grantSvc,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (runs the daily sweeps and metadata retries)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
