package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/mention-tracker/internal/config"
	httpcontroller "github.com/vadim/mention-tracker/internal/controller/http"
	"github.com/vadim/mention-tracker/internal/database"
	accountdao "github.com/vadim/mention-tracker/internal/domain/account/dao"
	accountpolicy "github.com/vadim/mention-tracker/internal/domain/account/policy"
	mentiondao "github.com/vadim/mention-tracker/internal/domain/mention/dao"
	mentionpolicy "github.com/vadim/mention-tracker/internal/domain/mention/policy"
	mentionservice "github.com/vadim/mention-tracker/internal/domain/mention/service"
	"github.com/vadim/mention-tracker/internal/domain/polling/fetch"
	"github.com/vadim/mention-tracker/internal/domain/polling/ratelimit"
	"github.com/vadim/mention-tracker/internal/domain/polling/scheduler"
	"github.com/vadim/mention-tracker/internal/domain/polling/token"
	"github.com/vadim/mention-tracker/internal/httpx/upstream/twitter"
	"github.com/vadim/mention-tracker/internal/logging"
	"github.com/vadim/mention-tracker/internal/metrics"
	"github.com/vadim/mention-tracker/internal/storage"
)

const defaultRequestTimeout = 30 * time.Second

// App is the main application container
type App struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	pool    *pgxpool.Pool
	metrics *metrics.Collector

	// Domain policies (interfaces for HTTP handlers)
	accountPolicy *accountpolicy.Policy
	mentionPolicy *mentionpolicy.Policy

	// Mention polling and proactive token refresh
	scheduler  *scheduler.Scheduler
	refreshJob *scheduler.RefreshJob
}

// NewApp creates and initializes the application
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	slog.SetDefault(logger)

	app := &App{
		cfg:    cfg,
		logger: logger,
	}

	// Initialize infrastructure
	if err := app.initInfrastructure(ctx); err != nil {
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}

	// Initialize domain layers
	if err := app.initDomains(ctx); err != nil {
		app.pool.Close()
		return nil, fmt.Errorf("initializing domains: %w", err)
	}

	// Initialize router with middleware
	app.router = app.newRouter()
	if err := app.registerRoutes(); err != nil {
		app.pool.Close()
		return nil, fmt.Errorf("registering routes: %w", err)
	}

	// Initialize HTTP server
	app.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// initInfrastructure initializes infrastructure components (DB, metrics)
func (a *App) initInfrastructure(ctx context.Context) error {
	pool, err := database.NewPostgresPool(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	a.pool = pool

	if err := database.RunMigrations(ctx, pool, a.logger); err != nil {
		pool.Close()
		return fmt.Errorf("running migrations: %w", err)
	}

	if a.cfg.Metrics.Enabled {
		collector, err := metrics.New()
		if err != nil {
			pool.Close()
			return fmt.Errorf("registering metrics: %w", err)
		}
		a.metrics = collector
	}

	return nil
}

// initDomains initializes domain layers (DAO, Service, Policy)
func (a *App) initDomains(ctx context.Context) error {
	accountsRepo := accountdao.NewAccountPostgres(a.pool)
	mentionsRepo := mentiondao.NewMentionPostgres(a.pool)

	// Initialize X API clients
	twClient := twitter.New(
		twitter.WithBaseURL(a.cfg.Twitter.BaseURL),
		twitter.WithMaxResults(a.cfg.Twitter.MaxResults),
	)
	refresher := twitter.NewTokenRefresher(
		a.cfg.Twitter.ClientID,
		a.cfg.Twitter.ClientSecret,
		twitter.WithTokenURL(a.cfg.Twitter.TokenURL),
	)

	fetchOpts := []fetch.Option{}
	if a.cfg.Archive.Enabled {
		s3, err := storage.NewS3Storage(storage.S3Config{
			Endpoint:        a.cfg.Archive.Endpoint,
			AccessKeyID:     a.cfg.Archive.AccessKeyID,
			SecretAccessKey: a.cfg.Archive.SecretAccessKey,
			Bucket:          a.cfg.Archive.Bucket,
			Region:          a.cfg.Archive.Region,
			Prefix:          a.cfg.Archive.Prefix,
		})
		if err != nil {
			return fmt.Errorf("initializing archive: %w", err)
		}
		fetchOpts = append(fetchOpts, fetch.WithArchiver(storage.NewMentionArchive(s3)))
	}

	deps := scheduler.Deps{
		Accounts: accountsRepo,
		Mentions: mentionsRepo,
		Tokens:   token.New(refresher, a.cfg.Poller.RefreshMargin, a.logger),
		Limiter:  ratelimit.New(a.cfg.Poller.RateWindowMax, a.cfg.Poller.RateWindow),
		Fetcher:  fetch.New(&mentionListerAdapter{client: twClient}, mentionsRepo, a.logger, fetchOpts...),
	}
	if a.metrics != nil {
		deps.Recorder = a.metrics
	}

	a.scheduler = scheduler.New(scheduler.Config{
		Interval:       a.cfg.Poller.TickInterval,
		WorkerPoolSize: a.cfg.Poller.WorkerPoolSize,
		AccountTimeout: a.cfg.Poller.AccountTimeout,
		InitialDelay:   a.cfg.Poller.InitialDelay,
	}, deps, a.logger)

	if a.cfg.Poller.Enabled && a.cfg.Poller.RefreshSchedule != "" {
		job, err := scheduler.NewRefreshJob(a.scheduler, a.cfg.Poller.RefreshSchedule, a.cfg.Poller.RefreshHorizon, a.logger)
		if err != nil {
			return err
		}
		a.refreshJob = job
	}

	// Initialize policies
	a.accountPolicy = accountpolicy.New(accountsRepo, a.scheduler.Guard(), a.scheduler, mentionsRepo)

	mentionSvc := mentionservice.New(mentionsRepo, &replierAdapter{client: twClient})
	a.mentionPolicy = mentionpolicy.New(mentionSvc, a.scheduler, a.logger)

	return nil
}

func (a *App) newRouter() *chi.Mux {
	// A manual fetch runs a full poll within the request.
	timeout := defaultRequestTimeout
	if t := a.cfg.Poller.AccountTimeout + 5*time.Second; t > timeout {
		timeout = t
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(timeout))
	if a.metrics != nil {
		r.Use(a.metrics.InstrumentHandler)
	}
	return r
}

// registerRoutes registers all HTTP routes
func (a *App) registerRoutes() error {
	// Health check
	a.router.Get("/healthz", a.healthHandler)
	a.router.Get("/readyz", a.readyHandler)

	if a.metrics != nil {
		a.router.Method(http.MethodGet, a.cfg.Metrics.Path, a.metrics.Handler())
	}

	// Swagger UI documentation
	swaggerHandler, err := httpcontroller.NewSwaggerHandler("Mention Tracker API", OpenAPISpec)
	if err != nil {
		return err
	}
	swaggerHandler.RegisterRoutes(a.router)

	// API v1
	a.router.Route("/api/v1", func(r chi.Router) {
		httpcontroller.NewAccountHandler(a.accountPolicy).RegisterRoutes(r)
		httpcontroller.NewMentionHandler(a.mentionPolicy).RegisterRoutes(r)
	})

	return nil
}

// healthHandler handles health check requests
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// readyHandler reports ready once the database answers
func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := a.pool.Ping(ctx); err != nil {
		a.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// Run starts the application and blocks until shutdown signal
func (a *App) Run(ctx context.Context) error {
	// Start polling if enabled
	if a.cfg.Poller.Enabled {
		a.scheduler.Start(ctx)
		if a.refreshJob != nil {
			a.refreshJob.Start()
		}
	} else {
		a.logger.Info("mention polling disabled")
	}

	// Channel to receive errors from server
	errCh := make(chan error, 1)

	// Start HTTP server in goroutine
	go func() {
		a.logger.Info("starting HTTP server", "addr", a.cfg.Server.Address())
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.Shutdown(context.Background())
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("context cancelled")
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	// Stop background work before closing the pool it writes to
	if a.refreshJob != nil {
		a.refreshJob.Stop()
	}
	a.scheduler.Stop()

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := a.httpServer.Shutdown(shutdownCtx)

	a.pool.Close()

	if err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
